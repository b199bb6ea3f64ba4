package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tablehub/api/internal/platform/httpx"
	"github.com/tablehub/api/internal/platform/tenant"
	"github.com/tablehub/api/internal/services"
)

// DashboardHandlers exposes the tenant's day-at-a-glance summary.
type DashboardHandlers struct {
	orders services.OrderService
}

// NewDashboardHandlers constructs a new DashboardHandlers instance.
func NewDashboardHandlers(orders services.OrderService) *DashboardHandlers {
	return &DashboardHandlers{orders: orders}
}

// Routes registers the /dashboard endpoints.
func (h *DashboardHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/summary", h.summary)
}

type dashboardResponse struct {
	Day          string    `json:"day"`
	OrderCount   int       `json:"order_count"`
	OpenCount    int       `json:"open_count"`
	RevenueTotal int64     `json:"revenue_total"`
	GeneratedAt  time.Time `json:"generated_at"`
}

func (h *DashboardHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("tenant_required", "tenant identity missing", http.StatusBadRequest))
		return
	}

	summary, err := h.orders.DashboardSummary(ctx, tc)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dashboardResponse{
		Day:          summary.Day,
		OrderCount:   summary.OrderCount,
		OpenCount:    summary.OpenCount,
		RevenueTotal: summary.RevenueTotal,
		GeneratedAt:  summary.GeneratedAt,
	})
}
