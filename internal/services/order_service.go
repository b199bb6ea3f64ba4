package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/oklog/ulid/v2"

	"github.com/tablehub/api/internal/domain"
	pcache "github.com/tablehub/api/internal/platform/cache"
	"github.com/tablehub/api/internal/platform/tenant"
	"github.com/tablehub/api/internal/repositories"
)

const (
	cacheClassOrders    = "orders"
	cacheClassDashboard = "dashboard"

	defaultCreateAttempts   = 5
	defaultCreateBaseDelay  = 50 * time.Millisecond
	defaultCreateMaxElapsed = 5 * time.Second
	defaultCacheTTL         = 5 * time.Minute
	defaultNumberPrefix     = "ORD"
)

// OrderService coordinates the order lifecycle for a tenant.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, tc tenant.Context, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error)
	RemoveItem(ctx context.Context, cmd RemoveItemCommand) (domain.Order, error)
	DashboardSummary(ctx context.Context, tc tenant.Context) (domain.DashboardSummary, error)
}

// OrderServiceConfig carries tunables for order creation and caching.
type OrderServiceConfig struct {
	NumberPrefix       string
	TaxRateBasisPoints int64
	CreateAttempts     int
	CreateBaseDelay    time.Duration
	CreateMaxElapsed   time.Duration
	CacheTTL           time.Duration
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Tables      repositories.TableRepository
	MenuItems   repositories.MenuItemRepository
	Sessions    repositories.CustomerSessionRepository
	Counters    repositories.CounterRepository
	UnitOfWork  repositories.UnitOfWork
	Cache       CacheLayer
	Events      EventEmitter
	Notifier    Notifier
	Effects     SideEffectRunner
	Config      OrderServiceConfig
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	tables     repositories.TableRepository
	menuItems  repositories.MenuItemRepository
	sessions   repositories.CustomerSessionRepository
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	cache      CacheLayer
	events     EventEmitter
	notifier   Notifier
	effects    SideEffectRunner
	cfg        OrderServiceConfig
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Tables == nil {
		return nil, errors.New("order service: table repository is required")
	}
	if deps.MenuItems == nil {
		return nil, errors.New("order service: menu item repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	cfg := deps.Config
	if strings.TrimSpace(cfg.NumberPrefix) == "" {
		cfg.NumberPrefix = defaultNumberPrefix
	}
	if cfg.CreateAttempts <= 0 {
		cfg.CreateAttempts = defaultCreateAttempts
	}
	if cfg.CreateBaseDelay <= 0 {
		cfg.CreateBaseDelay = defaultCreateBaseDelay
	}
	if cfg.CreateMaxElapsed <= 0 {
		cfg.CreateMaxElapsed = defaultCreateMaxElapsed
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		tables:     deps.Tables,
		menuItems:  deps.MenuItems,
		sessions:   deps.Sessions,
		counters:   deps.Counters,
		unitOfWork: unit,
		cache:      deps.Cache,
		events:     deps.Events,
		notifier:   deps.Notifier,
		effects:    deps.Effects,
		cfg:        cfg,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateOrder opens a new order on a table. The order number, the order
// document and the table occupancy commit atomically; a number collision
// retries the whole transaction with a fresh sequence value.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	if err := cmd.Tenant.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.TrimSpace(cmd.TableID) == "" {
		return domain.Order{}, fmt.Errorf("%w: table id is required", ErrValidation)
	}
	if len(cmd.Items) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order must contain at least one item", ErrValidation)
	}
	if cmd.Tip < 0 {
		return domain.Order{}, fmt.Errorf("%w: tip cannot be negative", ErrValidation)
	}
	for _, item := range cmd.Items {
		if strings.TrimSpace(item.MenuItemID) == "" {
			return domain.Order{}, fmt.Errorf("%w: menu item id is required", ErrValidation)
		}
		if item.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: quantity must be positive for item %s", ErrValidation, item.MenuItemID)
		}
	}

	tenantID := cmd.Tenant.TenantID
	items, err := s.buildOrderItems(ctx, tenantID, cmd.Items)
	if err != nil {
		return domain.Order{}, err
	}
	subtotal, tax, total := domain.OrderTotals(items, s.cfg.TaxRateBasisPoints, cmd.Tip)

	// Seed the per-day counter from the latest issued number so a fresh
	// counter continues the day's sequence instead of restarting it.
	now := s.clock()
	dayPrefix := OrderNumberDayPrefix(s.cfg.NumberPrefix, now)
	latest, err := s.orders.LatestNumberForDay(ctx, tenantID, dayPrefix)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	seed := SequenceFromNumber(latest) + 1
	counterID := orderCounterID(tenantID, now)

	backoff := gax.Backoff{
		Initial:    s.cfg.CreateBaseDelay,
		Max:        s.cfg.CreateMaxElapsed,
		Multiplier: 2,
	}
	deadline := now.Add(s.cfg.CreateMaxElapsed)

	var created domain.Order
	for attempt := 0; attempt < s.cfg.CreateAttempts; attempt++ {
		createdAt := s.clock()
		order := domain.Order{
			ID:          s.newID(),
			TenantID:    tenantID,
			TableRef:    cmd.TableID,
			CustomerRef: sessionRef(cmd.CustomerSessionID),
			Items:       items,
			Subtotal:    subtotal,
			Tax:         tax,
			Tip:         cmd.Tip,
			Total:       total,
			Status:      domain.OrderStatusReceived,
			Notes:       strings.TrimSpace(cmd.Notes),
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
			StatusHistory: []domain.StatusHistoryEntry{{
				Status:    domain.OrderStatusReceived,
				Timestamp: createdAt,
				ActorRef:  cmd.Tenant.Actor(),
			}},
		}

		err = s.runInTx(ctx, func(txCtx context.Context) error {
			table, err := s.tables.FindByID(txCtx, tenantID, cmd.TableID)
			if err != nil {
				return err
			}
			if !table.IsActive {
				return fmt.Errorf("%w: table %s is not active", ErrValidation, cmd.TableID)
			}
			order.TableNumber = table.TableNumber

			seq, err := s.counters.Next(txCtx, counterID, seed)
			if err != nil {
				return err
			}
			order.OrderNumber = FormatOrderNumber(s.cfg.NumberPrefix, createdAt, seq)

			if err := s.orders.Insert(txCtx, order); err != nil {
				return err
			}
			return s.tables.SetOccupied(txCtx, tenantID, table.ID, order.ID)
		})
		if err == nil {
			created = order
			break
		}
		if errors.Is(err, ErrValidation) {
			return domain.Order{}, err
		}
		if !repositories.IsOrderNumberTaken(err) {
			return domain.Order{}, s.mapRepositoryError(err)
		}

		s.logger(ctx, "order.create.number_conflict", map[string]any{
			"tenant":  tenantID,
			"attempt": attempt + 1,
		})
		if s.clock().After(deadline) {
			break
		}
		if sleepErr := gax.Sleep(ctx, backoff.Pause()); sleepErr != nil {
			return domain.Order{}, sleepErr
		}
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrCreationConflict, err)
	}

	s.afterCreate(ctx, created, cmd.CustomerSessionID)
	return created, nil
}

// GetOrder loads one order, trying the cache tiers before storage.
// Concurrent misses for the same order collapse into one load.
func (s *orderService) GetOrder(ctx context.Context, tc tenant.Context, orderID string) (domain.Order, error) {
	if err := tc.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}

	key := pcache.Key(tc.TenantID, cacheClassOrders, orderID)
	load := func(ctx context.Context) ([]byte, error) {
		order, err := s.orders.FindByID(ctx, tc.TenantID, orderID)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		raw, err := json.Marshal(order)
		if err != nil {
			return nil, err
		}
		s.cacheSet(ctx, key, raw)
		return raw, nil
	}

	raw, err := s.cachedLoad(ctx, key, load)
	if err != nil {
		return domain.Order{}, err
	}

	var order domain.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListOrders returns the tenant's orders matching the query, cached per
// filter combination.
func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) ([]domain.Order, error) {
	if err := query.Tenant.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	for _, status := range query.Statuses {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
		}
	}

	filter := repositories.OrderListFilter{
		Statuses: query.Statuses,
		TableRef: strings.TrimSpace(query.TableRef),
		Limit:    query.Limit,
	}
	key := pcache.Key(query.Tenant.TenantID, cacheClassOrders, "list", listCacheSuffix(filter))

	load := func(ctx context.Context) ([]byte, error) {
		orders, err := s.orders.List(ctx, query.Tenant.TenantID, filter)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		raw, err := json.Marshal(orders)
		if err != nil {
			return nil, err
		}
		s.cacheSet(ctx, key, raw)
		return raw, nil
	}

	raw, err := s.cachedLoad(ctx, key, load)
	if err != nil {
		return nil, err
	}

	var orders []domain.Order
	if err := json.Unmarshal(raw, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus moves an order one step along its lifecycle. The status
// change, its history entry and any table release commit atomically; the
// transaction re-reads the order so a concurrent transition loses cleanly.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error) {
	if err := cmd.Tenant.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.TrimSpace(cmd.OrderID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	if !cmd.NextStatus.Valid() {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrValidation, cmd.NextStatus)
	}

	var updated domain.Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, cmd.Tenant.TenantID, cmd.OrderID)
		if err != nil {
			return err
		}
		if err := ValidateTransition(order.Status, cmd.NextStatus); err != nil {
			return err
		}

		now := s.clock()
		s.applyTransition(&order, cmd.NextStatus, cmd.Tenant.Actor(), now)
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		if order.Status.Terminal() && order.TableRef != "" {
			if err := s.tables.Release(txCtx, order.TenantID, order.TableRef); err != nil {
				return err
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidTransition) {
			return domain.Order{}, err
		}
		return domain.Order{}, s.mapRepositoryError(err)
	}

	s.afterStatusChange(ctx, updated)
	return updated, nil
}

// RemoveItem removes one line from an order that the kitchen has not started
// yet. Removing the last line cancels the order and frees its table.
func (s *orderService) RemoveItem(ctx context.Context, cmd RemoveItemCommand) (domain.Order, error) {
	if err := cmd.Tenant.Validate(); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.TrimSpace(cmd.OrderID) == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	if strings.TrimSpace(cmd.MenuItemRef) == "" {
		return domain.Order{}, fmt.Errorf("%w: menu item ref is required", ErrValidation)
	}

	var updated domain.Order
	var cancelled bool
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, cmd.Tenant.TenantID, cmd.OrderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusReceived {
			return fmt.Errorf("%w: items can only be removed while the order is %s, not %s",
				ErrInvalidTransition, domain.OrderStatusReceived, order.Status)
		}

		idx := -1
		for i, item := range order.Items {
			if item.MenuItemRef == cmd.MenuItemRef {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: order has no item %s", ErrNotFound, cmd.MenuItemRef)
		}

		now := s.clock()
		order.Items = append(order.Items[:idx:idx], order.Items[idx+1:]...)
		order.Subtotal, order.Tax, order.Total = domain.OrderTotals(order.Items, s.cfg.TaxRateBasisPoints, order.Tip)
		order.UpdatedAt = now

		if len(order.Items) == 0 {
			s.applyTransition(&order, domain.OrderStatusCancelled, cmd.Tenant.Actor(), now)
			cancelled = true
		}
		if err := s.orders.Update(txCtx, order); err != nil {
			return err
		}
		if cancelled && order.TableRef != "" {
			if err := s.tables.Release(txCtx, order.TenantID, order.TableRef); err != nil {
				return err
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrNotFound) {
			return domain.Order{}, err
		}
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if cancelled {
		s.afterStatusChange(ctx, updated)
	} else {
		s.afterMutation(ctx, updated)
	}
	return updated, nil
}

// DashboardSummary aggregates the tenant's current day. Concurrent requests
// share one computation through the cache layer.
func (s *orderService) DashboardSummary(ctx context.Context, tc tenant.Context) (domain.DashboardSummary, error) {
	if err := tc.Validate(); err != nil {
		return domain.DashboardSummary{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	now := s.clock()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	key := pcache.Key(tc.TenantID, cacheClassDashboard, "summary", dayStart.Format("20060102"))

	load := func(ctx context.Context) ([]byte, error) {
		aggregate, err := s.orders.AggregateSince(ctx, tc.TenantID, dayStart)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		summary := domain.DashboardSummary{
			TenantID:     tc.TenantID,
			Day:          dayStart.Format("2006-01-02"),
			RevenueTotal: aggregate.RevenueTotal,
			GeneratedAt:  s.clock(),
		}
		for status, count := range aggregate.CountsByStatus {
			summary.OrderCount += count
			if !status.Terminal() {
				summary.OpenCount += count
			}
		}
		raw, err := json.Marshal(summary)
		if err != nil {
			return nil, err
		}
		s.cacheSet(ctx, key, raw)
		return raw, nil
	}

	raw, err := s.cachedLoad(ctx, key, load)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	var summary domain.DashboardSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return domain.DashboardSummary{}, err
	}
	return summary, nil
}

// cachedLoad serves the key from cache when possible and otherwise collapses
// concurrent loads into one compute.
func (s *orderService) cachedLoad(ctx context.Context, key string, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if s.cache == nil {
		return load(ctx)
	}
	if raw, ok := s.cache.Get(ctx, key); ok {
		return raw, nil
	}
	return s.cache.Deduplicate(ctx, key, load)
}

func (s *orderService) cacheSet(ctx context.Context, key string, raw []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL); err != nil {
		s.logger(ctx, "order.cache.set_failed", map[string]any{"key": key, "error": err.Error()})
	}
}

func (s *orderService) buildOrderItems(ctx context.Context, tenantID string, inputs []CreateOrderItemInput) ([]domain.OrderItem, error) {
	ids := make([]string, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, input := range inputs {
		if !seen[input.MenuItemID] {
			seen[input.MenuItemID] = true
			ids = append(ids, input.MenuItemID)
		}
	}

	menuItems, err := s.menuItems.FindActiveByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	byID := make(map[string]domain.MenuItem, len(menuItems))
	for _, item := range menuItems {
		byID[item.ID] = item
	}

	items := make([]domain.OrderItem, 0, len(inputs))
	for _, input := range inputs {
		menuItem, ok := byID[input.MenuItemID]
		if !ok {
			return nil, fmt.Errorf("%w: menu item %s is unknown or inactive", ErrValidation, input.MenuItemID)
		}
		item := domain.OrderItem{
			MenuItemRef:    menuItem.ID,
			Name:           menuItem.Name,
			UnitPrice:      menuItem.Price,
			Quantity:       input.Quantity,
			Customizations: append([]domain.ItemCustomization(nil), input.Customizations...),
			AddOns:         append([]string(nil), input.AddOns...),
		}
		item.Subtotal = domain.ItemSubtotal(item.UnitPrice, item.Customizations, item.Quantity)
		items = append(items, item)
	}
	return items, nil
}

func (s *orderService) applyTransition(order *domain.Order, next domain.OrderStatus, actor *string, now time.Time) {
	order.Status = next
	order.UpdatedAt = now
	order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
		Status:    next,
		Timestamp: now,
		ActorRef:  actor,
	})
	if next == domain.OrderStatusServed && order.ServedAt == nil {
		servedAt := now
		order.ServedAt = &servedAt
	}
}

// The after* hooks run once the transaction has committed. Cache work happens
// synchronously so the next read already sees the committed state; only
// publishing and session upkeep go through the dispatcher.
func (s *orderService) afterCreate(ctx context.Context, order domain.Order, sessionID string) {
	s.invalidateLists(ctx, order.TenantID)
	s.writeThrough(ctx, order)
	s.submitEffect(ctx, "order.created", func(ctx context.Context) {
		s.emit(ctx, OrderEventMessage{
			Type:        EventOrderCreated,
			TenantID:    order.TenantID,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Status:      string(order.Status),
			OccurredAt:  order.CreatedAt,
		})
		if s.sessions != nil && sessionID != "" {
			if err := s.sessions.Ensure(ctx, order.TenantID, sessionID, order.TableRef); err != nil {
				s.logger(ctx, "order.session.ensure_failed", map[string]any{
					"tenant":  order.TenantID,
					"session": sessionID,
					"error":   err.Error(),
				})
			}
		}
	})
}

func (s *orderService) afterStatusChange(ctx context.Context, order domain.Order) {
	s.invalidateLists(ctx, order.TenantID)
	s.writeThrough(ctx, order)
	s.submitEffect(ctx, "order.status_changed", func(ctx context.Context) {
		eventType := EventOrderStatusChanged
		if order.Status == domain.OrderStatusCancelled {
			eventType = EventOrderCancelled
		}
		s.emit(ctx, OrderEventMessage{
			Type:        eventType,
			TenantID:    order.TenantID,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Status:      string(order.Status),
			OccurredAt:  order.UpdatedAt,
		})
		s.notify(ctx, order)
		if order.Status.Terminal() {
			s.sweepSession(ctx, order)
		}
	})
}

func (s *orderService) afterMutation(ctx context.Context, order domain.Order) {
	s.invalidateLists(ctx, order.TenantID)
	s.writeThrough(ctx, order)
}

// submitEffect prefers the dispatcher but falls back to running inline so
// committed writes are never left without their side effects.
func (s *orderService) submitEffect(ctx context.Context, name string, fn func(ctx context.Context)) {
	if s.effects != nil && s.effects.Submit(ctx, name, fn) {
		return
	}
	fn(ctx)
}

func (s *orderService) writeThrough(ctx context.Context, order domain.Order) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return
	}
	s.cacheSet(ctx, pcache.Key(order.TenantID, cacheClassOrders, order.ID), raw)
}

func (s *orderService) invalidateLists(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, pcache.Pattern(tenantID, cacheClassOrders)); err != nil {
		s.logger(ctx, "order.cache.invalidate_failed", map[string]any{"tenant": tenantID, "error": err.Error()})
	}
	if err := s.cache.DeleteByPattern(ctx, pcache.Pattern(tenantID, cacheClassDashboard)); err != nil {
		s.logger(ctx, "order.cache.invalidate_failed", map[string]any{"tenant": tenantID, "error": err.Error()})
	}
	if err := s.cache.DeleteByPattern(ctx, pcache.Pattern(tenantID, cacheClassTables)); err != nil {
		s.logger(ctx, "order.cache.invalidate_failed", map[string]any{"tenant": tenantID, "error": err.Error()})
	}
}

func (s *orderService) emit(ctx context.Context, msg OrderEventMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.EmitOrderEvent(ctx, msg); err != nil {
		s.logger(ctx, "order.event.publish_failed", map[string]any{
			"type":  msg.Type,
			"order": msg.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) notify(ctx context.Context, order domain.Order) {
	if s.notifier == nil {
		return
	}
	msg := NotificationMessage{
		TenantID:    order.TenantID,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		TableRef:    order.TableRef,
		Status:      string(order.Status),
		SentAt:      s.clock(),
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger(ctx, "order.notify_failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

// sweepSession releases the order's guest session once the customer has no
// active orders left, freeing the identifier for reuse.
func (s *orderService) sweepSession(ctx context.Context, order domain.Order) {
	if s.sessions == nil || order.CustomerRef == nil || *order.CustomerRef == "" {
		return
	}
	remaining, err := s.orders.ListByCustomer(ctx, order.TenantID, *order.CustomerRef)
	if err != nil {
		s.logger(ctx, "order.session.sweep_failed", map[string]any{
			"tenant": order.TenantID,
			"error":  err.Error(),
		})
		return
	}
	for _, other := range remaining {
		if !other.Status.Terminal() {
			return
		}
	}
	if err := s.sessions.Release(ctx, order.TenantID, *order.CustomerRef); err != nil {
		s.logger(ctx, "order.session.release_failed", map[string]any{
			"tenant":  order.TenantID,
			"session": *order.CustomerRef,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	return mapRepositoryError(err)
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func orderCounterID(tenantID string, day time.Time) string {
	return fmt.Sprintf("orders_%s_%s", tenantID, day.UTC().Format("20060102"))
}

func sessionRef(sessionID string) *string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	return &sessionID
}

func listCacheSuffix(filter repositories.OrderListFilter) string {
	statuses := make([]string, 0, len(filter.Statuses))
	for _, status := range filter.Statuses {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)

	parts := []string{
		strings.Join(statuses, ","),
		filter.TableRef,
		strconv.Itoa(filter.Limit),
	}
	return strings.Join(parts, "|")
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
