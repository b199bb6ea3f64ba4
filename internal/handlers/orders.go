package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tablehub/api/internal/domain"
	"github.com/tablehub/api/internal/platform/httpx"
	"github.com/tablehub/api/internal/platform/tenant"
	"github.com/tablehub/api/internal/services"
)

const maxOrderBodySize = 64 * 1024

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	orders services.OrderService
	bulk   services.BulkOrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService, bulk services.BulkOrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders, bulk: bulk}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Post("/bulk/status", h.bulkUpdateStatus)
	r.Post("/bulk/delete", h.bulkDelete)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}/status", h.updateStatus)
	r.Delete("/{orderID}/items/{menuItemRef}", h.removeItem)
}

type createOrderItemRequest struct {
	MenuItemID     string                 `json:"menu_item_id"`
	Quantity       int                    `json:"quantity"`
	Customizations []itemCustomizationDTO `json:"customizations,omitempty"`
	AddOns         []string               `json:"add_ons,omitempty"`
}

type createOrderRequest struct {
	TableID           string                   `json:"table_id"`
	CustomerSessionID string                   `json:"customer_session_id,omitempty"`
	Items             []createOrderItemRequest `json:"items"`
	Tip               int64                    `json:"tip,omitempty"`
	Notes             string                   `json:"notes,omitempty"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type bulkStatusRequest struct {
	OrderIDs []string `json:"order_ids"`
	Status   string   `json:"status"`
}

type bulkDeleteRequest struct {
	OrderIDs []string `json:"order_ids"`
	Confirm  bool     `json:"confirm"`
}

type bulkStatusResponse struct {
	Requested int      `json:"requested"`
	Updated   int      `json:"updated"`
	Processed []string `json:"processed"`
	Dropped   int      `json:"dropped"`
}

type bulkDeleteResponse struct {
	Requested int      `json:"requested"`
	Deleted   int      `json:"deleted"`
	Processed []string `json:"processed"`
	Dropped   int      `json:"dropped"`
}

type itemCustomizationDTO struct {
	Name       string `json:"name"`
	PriceDelta int64  `json:"price_delta"`
}

type orderItemDTO struct {
	MenuItemRef    string                 `json:"menu_item_ref"`
	Name           string                 `json:"name"`
	UnitPrice      int64                  `json:"unit_price"`
	Quantity       int                    `json:"quantity"`
	Subtotal       int64                  `json:"subtotal"`
	Customizations []itemCustomizationDTO `json:"customizations,omitempty"`
	AddOns         []string               `json:"add_ons,omitempty"`
}

type statusHistoryDTO struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	ActorRef  *string   `json:"actor_ref,omitempty"`
}

type orderResponse struct {
	ID            string             `json:"id"`
	OrderNumber   string             `json:"order_number"`
	TableRef      string             `json:"table_ref"`
	TableNumber   int                `json:"table_number"`
	CustomerRef   *string            `json:"customer_ref,omitempty"`
	Items         []orderItemDTO     `json:"items"`
	Subtotal      int64              `json:"subtotal"`
	Tax           int64              `json:"tax"`
	Tip           int64              `json:"tip"`
	Total         int64              `json:"total"`
	Status        string             `json:"status"`
	StatusHistory []statusHistoryDTO `json:"status_history"`
	Notes         string             `json:"notes,omitempty"`
	ServedAt      *time.Time         `json:"served_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("tenant_required", "tenant identity missing", http.StatusBadRequest))
		return
	}

	var req createOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.CreateOrderCommand{
		Tenant:            tc,
		TableID:           req.TableID,
		CustomerSessionID: req.CustomerSessionID,
		Tip:               req.Tip,
		Notes:             req.Notes,
	}
	for _, item := range req.Items {
		input := services.CreateOrderItemInput{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
			AddOns:     item.AddOns,
		}
		for _, c := range item.Customizations {
			input.Customizations = append(input.Customizations, domain.ItemCustomization{
				Name:       c.Name,
				PriceDelta: c.PriceDelta,
			})
		}
		cmd.Items = append(cmd.Items, input)
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("tenant_required", "tenant identity missing", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, tc, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("tenant_required", "tenant identity missing", http.StatusBadRequest))
		return
	}

	query := services.ListOrdersQuery{
		Tenant:   tc,
		TableRef: r.URL.Query().Get("table_ref"),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				query.Statuses = append(query.Statuses, domain.OrderStatus(part))
			}
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a non-negative integer", http.StatusBadRequest))
			return
		}
		query.Limit = limit
	}

	orders, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		items = append(items, toOrderResponse(order))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": items})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("tenant_required", "tenant identity missing", http.StatusBadRequest))
		return
	}

	var req updateStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateStatusCommand{
		Tenant:     tc,
		OrderID:    chi.URLParam(r, "orderID"),
		NextStatus: domain.OrderStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("tenant_required", "tenant identity missing", http.StatusBadRequest))
		return
	}

	order, err := h.orders.RemoveItem(ctx, services.RemoveItemCommand{
		Tenant:      tc,
		OrderID:     chi.URLParam(r, "orderID"),
		MenuItemRef: chi.URLParam(r, "menuItemRef"),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandlers) bulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("tenant_required", "tenant identity missing", http.StatusBadRequest))
		return
	}
	if h.bulk == nil {
		httpx.WriteError(ctx, w, httpx.NewError("bulk_unavailable", "bulk operations unavailable", http.StatusServiceUnavailable))
		return
	}

	var req bulkStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.bulk.BulkUpdateStatus(ctx, services.BulkStatusCommand{
		Tenant:     tc,
		OrderIDs:   req.OrderIDs,
		NextStatus: domain.OrderStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bulkStatusResponse{
		Requested: result.Requested,
		Updated:   len(result.Processed),
		Processed: result.Processed,
		Dropped:   result.Dropped,
	})
}

func (h *OrderHandlers) bulkDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tc, ok := tenant.FromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("tenant_required", "tenant identity missing", http.StatusBadRequest))
		return
	}
	if h.bulk == nil {
		httpx.WriteError(ctx, w, httpx.NewError("bulk_unavailable", "bulk operations unavailable", http.StatusServiceUnavailable))
		return
	}

	var req bulkDeleteRequest
	if err := decodeBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_body", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.bulk.BulkDelete(ctx, services.BulkDeleteCommand{
		Tenant:   tc,
		OrderIDs: req.OrderIDs,
		Confirm:  req.Confirm,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bulkDeleteResponse{
		Requested: result.Requested,
		Deleted:   len(result.Processed),
		Processed: result.Processed,
		Dropped:   result.Dropped,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxOrderBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func toOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		TableRef:    order.TableRef,
		TableNumber: order.TableNumber,
		CustomerRef: order.CustomerRef,
		Subtotal:    order.Subtotal,
		Tax:         order.Tax,
		Tip:         order.Tip,
		Total:       order.Total,
		Status:      string(order.Status),
		Notes:       order.Notes,
		ServedAt:    order.ServedAt,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	resp.Items = make([]orderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		dto := orderItemDTO{
			MenuItemRef: item.MenuItemRef,
			Name:        item.Name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal,
			AddOns:      item.AddOns,
		}
		for _, c := range item.Customizations {
			dto.Customizations = append(dto.Customizations, itemCustomizationDTO{
				Name:       c.Name,
				PriceDelta: c.PriceDelta,
			})
		}
		resp.Items = append(resp.Items, dto)
	}
	resp.StatusHistory = make([]statusHistoryDTO, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		resp.StatusHistory = append(resp.StatusHistory, statusHistoryDTO{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp,
			ActorRef:  entry.ActorRef,
		})
	}
	return resp
}
