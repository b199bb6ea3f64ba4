package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tablehub/api/internal/platform/httpx"
	"github.com/tablehub/api/internal/platform/tenant"
	"github.com/tablehub/api/internal/services"
)

// TableHandlers exposes the floor view: which tables exist and which are
// occupied.
type TableHandlers struct {
	tables services.TableService
}

// NewTableHandlers constructs a new TableHandlers instance.
func NewTableHandlers(tables services.TableService) *TableHandlers {
	return &TableHandlers{tables: tables}
}

// Routes registers the /tables endpoints.
func (h *TableHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listTables)
}

type tableResponse struct {
	ID             string    `json:"id"`
	TableNumber    int       `json:"table_number"`
	IsActive       bool      `json:"is_active"`
	IsOccupied     bool      `json:"is_occupied"`
	CurrentOrderID *string   `json:"current_order_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (h *TableHandlers) listTables(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("tenant_required", "tenant identity missing", http.StatusBadRequest))
		return
	}

	tables, err := h.tables.ListTables(ctx, tc)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]tableResponse, 0, len(tables))
	for _, table := range tables {
		items = append(items, tableResponse{
			ID:             table.ID,
			TableNumber:    table.TableNumber,
			IsActive:       table.IsActive,
			IsOccupied:     table.IsOccupied,
			CurrentOrderID: table.CurrentOrderID,
			UpdatedAt:      table.UpdatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"tables": items})
}
