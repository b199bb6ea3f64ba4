package handlers

import (
	"net/http"
	"strings"

	"github.com/tablehub/api/internal/platform/httpx"
	"github.com/tablehub/api/internal/platform/tenant"
)

const (
	headerTenantID = "X-Tenant-ID"
	headerActorRef = "X-Actor-Ref"
)

// RequireTenant resolves the tenant identity from request headers and rejects
// requests that carry none. Every tenant-scoped route sits behind it.
func RequireTenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := strings.TrimSpace(r.Header.Get(headerTenantID))
			if tenantID == "" {
				httpx.WriteError(r.Context(), w, httpx.NewError("tenant_required", "X-Tenant-ID header is required", http.StatusBadRequest))
				return
			}
			tc := tenant.New(tenantID, r.Header.Get(headerActorRef))
			next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), tc)))
		})
	}
}
