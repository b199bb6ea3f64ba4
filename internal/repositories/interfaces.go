package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/tablehub/api/internal/domain"
)

// RepositoryError lets callers categorize storage failures without importing
// backend-specific packages.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ErrOrderNumberTaken reports that the per-day number reservation already
// exists. Callers treat it as a retryable creation conflict.
var ErrOrderNumberTaken = errors.New("repositories: order number already taken")

// UnitOfWork runs fn atomically. Repository calls made with the context passed
// to fn participate in the same transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows List results. Zero values mean no constraint.
type OrderListFilter struct {
	Statuses []domain.OrderStatus
	TableRef string
	Limit    int
}

type OrderRepository interface {
	// Insert persists a new order and reserves its order number for the
	// tenant day. Returns ErrOrderNumberTaken when the number is already
	// reserved.
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, tenantID, orderID string) (domain.Order, error)
	FindByIDs(ctx context.Context, tenantID string, orderIDs []string) ([]domain.Order, error)
	List(ctx context.Context, tenantID string, filter OrderListFilter) ([]domain.Order, error)
	ListByCustomer(ctx context.Context, tenantID, customerRef string) ([]domain.Order, error)
	// LatestNumberForDay returns the highest order number already issued for
	// the tenant on the given day, or "" when none exists.
	LatestNumberForDay(ctx context.Context, tenantID, dayPrefix string) (string, error)
	Delete(ctx context.Context, tenantID string, orderIDs []string) error
	// AggregateSince summarizes orders created at or after the cutoff.
	AggregateSince(ctx context.Context, tenantID string, cutoff time.Time) (DayAggregate, error)
}

// DayAggregate summarizes a window of orders for the dashboard.
type DayAggregate struct {
	CountsByStatus map[domain.OrderStatus]int
	// RevenueTotal sums the totals of served orders in the window.
	RevenueTotal int64
}

type TableRepository interface {
	FindByID(ctx context.Context, tenantID, tableID string) (domain.Table, error)
	List(ctx context.Context, tenantID string) ([]domain.Table, error)
	SetOccupied(ctx context.Context, tenantID, tableID, orderID string) error
	Release(ctx context.Context, tenantID, tableID string) error
}

// CounterRepository hands out monotonically increasing sequence values.
type CounterRepository interface {
	// Next increments the named counter and returns the new value. A counter
	// that does not exist yet starts at seed.
	Next(ctx context.Context, counterID string, seed int64) (int64, error)
}

type MenuItemRepository interface {
	FindActiveByIDs(ctx context.Context, tenantID string, menuItemIDs []string) ([]domain.MenuItem, error)
}

type CustomerSessionRepository interface {
	// Ensure creates the session when absent and refreshes its activity
	// timestamp otherwise.
	Ensure(ctx context.Context, tenantID, sessionID, tableRef string) error
	FindByID(ctx context.Context, tenantID, sessionID string) (domain.CustomerSession, error)
	Release(ctx context.Context, tenantID, sessionID string) error
}
