package domain

import (
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusReceived indicates the order has been placed and awaits the kitchen.
	OrderStatusReceived OrderStatus = "received"
	// OrderStatusPreparing indicates the kitchen is actively working on the order.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusReady indicates the order is ready to be brought to the table.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusServed indicates the order has been delivered to the table.
	OrderStatusServed OrderStatus = "served"
	// OrderStatusCancelled indicates the order was cancelled before being served.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether the status is one of the recognised lifecycle states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusReceived, OrderStatusPreparing, OrderStatusReady, OrderStatusServed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed out of the status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusServed || s == OrderStatusCancelled
}

// Active reports whether the order is being worked on by the kitchen. Active
// orders block bulk deletion.
func (s OrderStatus) Active() bool {
	return s == OrderStatusPreparing || s == OrderStatusReady
}

// Order is the aggregate root of the ordering domain. All monetary amounts are
// minor currency units (cents).
type Order struct {
	ID            string
	TenantID      string
	OrderNumber   string
	TableRef      string
	TableNumber   int
	CustomerRef   *string
	Items         []OrderItem
	Subtotal      int64
	Tax           int64
	Tip           int64
	Total         int64
	Status        OrderStatus
	StatusHistory []StatusHistoryEntry
	Notes         string
	ServedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderItem is a line on an order carrying a snapshot of the menu item at the
// time the order was placed.
type OrderItem struct {
	MenuItemRef    string
	Name           string
	UnitPrice      int64
	Quantity       int
	Subtotal       int64
	Customizations []ItemCustomization
	AddOns         []string
}

// ItemCustomization records a customer-selected variation and its price impact.
type ItemCustomization struct {
	Name       string
	PriceDelta int64
}

// StatusHistoryEntry is one step in the append-only status log of an order.
type StatusHistoryEntry struct {
	Status    OrderStatus
	Timestamp time.Time
	ActorRef  *string
}

// Table represents a physical table within a tenant's restaurant.
type Table struct {
	ID             string
	TenantID       string
	TableNumber    int
	IsActive       bool
	IsOccupied     bool
	CurrentOrderID *string
	UpdatedAt      time.Time
}

// MenuItem is the read-side of the tenant's menu used to snapshot names and
// prices onto new orders.
type MenuItem struct {
	ID        string
	TenantID  string
	Name      string
	Price     int64
	IsActive  bool
	UpdatedAt time.Time
}

// CustomerSession tracks an ephemeral guest identity for a tenant. Sessions
// are released once every order of the customer is terminal so the identifier
// can be reused.
type CustomerSession struct {
	ID        string
	TenantID  string
	TableRef  string
	CreatedAt time.Time
}

// DashboardSummary aggregates a tenant's day at a glance.
type DashboardSummary struct {
	TenantID     string
	Day          string
	OrderCount   int
	OpenCount    int
	RevenueTotal int64
	GeneratedAt  time.Time
}
