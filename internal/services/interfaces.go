package services

import (
	"context"
	"time"

	"github.com/tablehub/api/internal/domain"
	"github.com/tablehub/api/internal/platform/tenant"
)

// CreateOrderItemInput is one requested line of a new order. Prices are never
// accepted from the caller; they are resolved from the menu at creation time.
type CreateOrderItemInput struct {
	MenuItemID     string
	Quantity       int
	Customizations []domain.ItemCustomization
	AddOns         []string
}

// CreateOrderCommand opens a new order on a table.
type CreateOrderCommand struct {
	Tenant            tenant.Context
	TableID           string
	CustomerSessionID string
	Items             []CreateOrderItemInput
	Tip               int64
	Notes             string
}

// UpdateStatusCommand moves an order along its lifecycle.
type UpdateStatusCommand struct {
	Tenant     tenant.Context
	OrderID    string
	NextStatus domain.OrderStatus
}

// RemoveItemCommand removes one line from an active order. Removing the last
// line cancels the order.
type RemoveItemCommand struct {
	Tenant      tenant.Context
	OrderID     string
	MenuItemRef string
}

// ListOrdersQuery filters a tenant's orders.
type ListOrdersQuery struct {
	Tenant   tenant.Context
	Statuses []domain.OrderStatus
	TableRef string
	Limit    int
}

// BulkStatusCommand applies one status change to a batch of orders.
type BulkStatusCommand struct {
	Tenant     tenant.Context
	OrderIDs   []string
	NextStatus domain.OrderStatus
}

// BulkDeleteCommand removes a batch of orders. Deletion is destructive, so the
// caller must set Confirm explicitly.
type BulkDeleteCommand struct {
	Tenant   tenant.Context
	OrderIDs []string
	Confirm  bool
}

// BulkResult reports what a bulk operation actually touched. Requested IDs
// that did not resolve within the tenant are counted, not named, so callers
// cannot probe other tenants' ID space.
type BulkResult struct {
	Requested int
	Processed []string
	Dropped   int
}

// OrderEventMessage is published after order mutations commit.
type OrderEventMessage struct {
	Type        string    `json:"type"`
	TenantID    string    `json:"tenant_id"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number,omitempty"`
	Status      string    `json:"status,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Event types carried by OrderEventMessage.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderCancelled     = "order.cancelled"
	EventOrderDeleted       = "order.deleted"
)

// NotificationMessage asks the notification fan-out to inform interested
// parties about an order, e.g. the kitchen display or the guest's device.
type NotificationMessage struct {
	TenantID    string    `json:"tenant_id"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number,omitempty"`
	TableRef    string    `json:"table_ref,omitempty"`
	Status      string    `json:"status"`
	SentAt      time.Time `json:"sent_at"`
}

// EventEmitter publishes order lifecycle events. Emission is best effort;
// services log failures and do not roll back committed writes.
type EventEmitter interface {
	EmitOrderEvent(ctx context.Context, msg OrderEventMessage) error
}

// Notifier fans order updates out to connected clients.
type Notifier interface {
	Notify(ctx context.Context, msg NotificationMessage) error
}

// CacheLayer is the slice of the tiered cache the order services use. Reads
// fail open: a miss and a backend fault look the same.
type CacheLayer interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Deduplicate(ctx context.Context, key string, compute func(ctx context.Context) ([]byte, error)) ([]byte, error)
}

// SideEffectRunner schedules post-commit work such as event emission and
// cache invalidation off the request path.
type SideEffectRunner interface {
	Submit(ctx context.Context, name string, fn func(ctx context.Context)) bool
}
