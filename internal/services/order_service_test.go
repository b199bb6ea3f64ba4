package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tablehub/api/internal/domain"
	"github.com/tablehub/api/internal/platform/tenant"
	"github.com/tablehub/api/internal/repositories"
)

var testNow = time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)

// repoFault is a categorized storage failure for exercising error mapping.
type repoFault struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoFault) Error() string       { return e.msg }
func (e repoFault) IsNotFound() bool    { return e.notFound }
func (e repoFault) IsConflict() bool    { return e.conflict }
func (e repoFault) IsUnavailable() bool { return e.unavailable }

type stubOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	taken     map[string]bool
	latest    string
	updateErr error
	findCalls int
	deleted   [][]string
}

func newStubOrderRepo() *stubOrderRepo {
	return &stubOrderRepo{
		orders: make(map[string]domain.Order),
		taken:  make(map[string]bool),
	}
}

func (r *stubOrderRepo) reserveKey(tenantID, number string) string {
	return tenantID + "|" + number
}

func (r *stubOrderRepo) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.reserveKey(order.TenantID, order.OrderNumber)
	if r.taken[key] {
		return fmt.Errorf("insert order %s: %w", order.ID, repositories.ErrOrderNumberTaken)
	}
	r.taken[key] = true
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepo) Update(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.orders[order.ID]; !ok {
		return repoFault{msg: "order not found", notFound: true}
	}
	r.orders[order.ID] = order
	return nil
}

func (r *stubOrderRepo) FindByID(_ context.Context, tenantID, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findCalls++
	order, ok := r.orders[orderID]
	if !ok || order.TenantID != tenantID {
		return domain.Order{}, repoFault{msg: "order " + orderID + " not found", notFound: true}
	}
	return order, nil
}

func (r *stubOrderRepo) FindByIDs(_ context.Context, tenantID string, orderIDs []string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []domain.Order
	for _, id := range orderIDs {
		if order, ok := r.orders[id]; ok && order.TenantID == tenantID {
			found = append(found, order)
		}
	}
	return found, nil
}

func (r *stubOrderRepo) List(_ context.Context, tenantID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, order := range r.orders {
		if order.TenantID != tenantID {
			continue
		}
		if filter.TableRef != "" && order.TableRef != filter.TableRef {
			continue
		}
		if len(filter.Statuses) > 0 {
			matched := false
			for _, status := range filter.Statuses {
				if order.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		out = append(out, order)
	}
	return out, nil
}

func (r *stubOrderRepo) ListByCustomer(_ context.Context, tenantID, customerRef string) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Order
	for _, order := range r.orders {
		if order.TenantID == tenantID && order.CustomerRef != nil && *order.CustomerRef == customerRef {
			out = append(out, order)
		}
	}
	return out, nil
}

func (r *stubOrderRepo) LatestNumberForDay(_ context.Context, _, _ string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest, nil
}

func (r *stubOrderRepo) Delete(_ context.Context, tenantID string, orderIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, append([]string(nil), orderIDs...))
	for _, id := range orderIDs {
		if order, ok := r.orders[id]; ok && order.TenantID == tenantID {
			delete(r.orders, id)
			delete(r.taken, r.reserveKey(tenantID, order.OrderNumber))
		}
	}
	return nil
}

func (r *stubOrderRepo) AggregateSince(_ context.Context, tenantID string, cutoff time.Time) (repositories.DayAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	aggregate := repositories.DayAggregate{CountsByStatus: make(map[domain.OrderStatus]int)}
	for _, order := range r.orders {
		if order.TenantID != tenantID || order.CreatedAt.Before(cutoff) {
			continue
		}
		aggregate.CountsByStatus[order.Status]++
		if order.Status == domain.OrderStatusServed {
			aggregate.RevenueTotal += order.Total
		}
	}
	return aggregate, nil
}

type stubTableRepo struct {
	mu        sync.Mutex
	tables    map[string]domain.Table
	occupied  []string
	released  []string
	listCalls int
}

func newStubTableRepo() *stubTableRepo {
	return &stubTableRepo{tables: make(map[string]domain.Table)}
}

func (r *stubTableRepo) FindByID(_ context.Context, tenantID, tableID string) (domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, ok := r.tables[tableID]
	if !ok || table.TenantID != tenantID {
		return domain.Table{}, repoFault{msg: "table " + tableID + " not found", notFound: true}
	}
	return table, nil
}

func (r *stubTableRepo) List(_ context.Context, tenantID string) ([]domain.Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	var out []domain.Table
	for _, table := range r.tables {
		if table.TenantID == tenantID {
			out = append(out, table)
		}
	}
	return out, nil
}

func (r *stubTableRepo) SetOccupied(_ context.Context, _, tableID, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.occupied = append(r.occupied, tableID+"="+orderID)
	return nil
}

func (r *stubTableRepo) Release(_ context.Context, _, tableID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, tableID)
	return nil
}

type stubMenuRepo struct {
	items map[string]domain.MenuItem
}

func (r *stubMenuRepo) FindActiveByIDs(_ context.Context, tenantID string, menuItemIDs []string) ([]domain.MenuItem, error) {
	var out []domain.MenuItem
	for _, id := range menuItemIDs {
		if item, ok := r.items[id]; ok && item.TenantID == tenantID && item.IsActive {
			out = append(out, item)
		}
	}
	return out, nil
}

type stubSessionRepo struct {
	mu       sync.Mutex
	ensured  []string
	released []string
}

func (r *stubSessionRepo) Ensure(_ context.Context, _, sessionID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensured = append(r.ensured, sessionID)
	return nil
}

func (r *stubSessionRepo) FindByID(_ context.Context, tenantID, sessionID string) (domain.CustomerSession, error) {
	return domain.CustomerSession{ID: sessionID, TenantID: tenantID}, nil
}

func (r *stubSessionRepo) Release(_ context.Context, _, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = append(r.released, sessionID)
	return nil
}

type stubCounterRepo struct {
	mu     sync.Mutex
	values map[string]int64
}

func (r *stubCounterRepo) Next(_ context.Context, counterID string, seed int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.values == nil {
		r.values = make(map[string]int64)
	}
	if _, ok := r.values[counterID]; !ok {
		r.values[counterID] = seed
	} else {
		r.values[counterID]++
	}
	return r.values[counterID], nil
}

// memCache is an in-process CacheLayer with glob-free pattern matching on the
// tenant:class prefix, mirroring what the real tiers do.
type memCache struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{values: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	return value, ok
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = append([]byte(nil), value...)
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *memCache) DeleteByPattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.values {
		if strings.HasPrefix(key, prefix) {
			delete(c.values, key)
		}
	}
	return nil
}

func (c *memCache) Deduplicate(ctx context.Context, _ string, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	return compute(ctx)
}

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}

// queuedEffects accepts every submitted task without running it, exposing the
// window between a committed write and its side effects.
type queuedEffects struct {
	mu    sync.Mutex
	tasks []func(context.Context)
}

func (q *queuedEffects) Submit(_ context.Context, _ string, fn func(ctx context.Context)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, fn)
	return true
}

func (q *queuedEffects) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

type captureEmitter struct {
	mu   sync.Mutex
	msgs []OrderEventMessage
}

func (e *captureEmitter) EmitOrderEvent(_ context.Context, msg OrderEventMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, msg)
	return nil
}

func (e *captureEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.msgs))
	for _, msg := range e.msgs {
		out = append(out, msg.Type)
	}
	return out
}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []NotificationMessage
}

func (n *captureNotifier) Notify(_ context.Context, msg NotificationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

type orderServiceFixture struct {
	orders   *stubOrderRepo
	tables   *stubTableRepo
	menu     *stubMenuRepo
	sessions *stubSessionRepo
	counters *stubCounterRepo
	cache    *memCache
	events   *captureEmitter
	notifier *captureNotifier
	svc      OrderService
}

func newOrderServiceFixture(t *testing.T) *orderServiceFixture {
	t.Helper()

	f := &orderServiceFixture{
		orders:   newStubOrderRepo(),
		tables:   newStubTableRepo(),
		sessions: &stubSessionRepo{},
		counters: &stubCounterRepo{},
		cache:    newMemCache(),
		events:   &captureEmitter{},
		notifier: &captureNotifier{},
	}
	f.tables.tables["table-1"] = domain.Table{
		ID: "table-1", TenantID: "t1", TableNumber: 4, IsActive: true,
	}
	f.tables.tables["table-closed"] = domain.Table{
		ID: "table-closed", TenantID: "t1", TableNumber: 9, IsActive: false,
	}
	f.menu = &stubMenuRepo{items: map[string]domain.MenuItem{
		"item-burger":  {ID: "item-burger", TenantID: "t1", Name: "Burger", Price: 2000, IsActive: true},
		"item-soda":    {ID: "item-soda", TenantID: "t1", Name: "Soda", Price: 300, IsActive: true},
		"item-retired": {ID: "item-retired", TenantID: "t1", Name: "Old Special", Price: 900},
	}}

	var idSeq int
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    f.orders,
		Tables:    f.tables,
		MenuItems: f.menu,
		Sessions:  f.sessions,
		Counters:  f.counters,
		Cache:     f.cache,
		Events:    f.events,
		Notifier:  f.notifier,
		Config: OrderServiceConfig{
			TaxRateBasisPoints: 800,
			CreateAttempts:     3,
			CreateBaseDelay:    time.Millisecond,
			CreateMaxElapsed:   time.Second,
		},
		Clock: func() time.Time { return testNow },
		IDGenerator: func() string {
			idSeq++
			return fmt.Sprintf("order-%04d", idSeq)
		},
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	f.svc = svc
	return f
}

func (f *orderServiceFixture) seedOrder(order domain.Order) {
	f.orders.orders[order.ID] = order
	if order.OrderNumber != "" {
		f.orders.taken[f.orders.reserveKey(order.TenantID, order.OrderNumber)] = true
	}
}

func strPtr(s string) *string { return &s }

func TestCreateOrderComputesTotalsAndNumber(t *testing.T) {
	f := newOrderServiceFixture(t)

	created, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Tenant:            tenant.New("t1", "staff:amy"),
		TableID:           "table-1",
		CustomerSessionID: "sess-1",
		Items: []CreateOrderItemInput{
			{
				MenuItemID: "item-burger",
				Quantity:   2,
				Customizations: []domain.ItemCustomization{
					{Name: "extra cheese", PriceDelta: 300},
				},
			},
			{MenuItemID: "item-soda", Quantity: 1},
		},
		Tip: 500,
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if created.OrderNumber != "ORD-20260831-001" {
		t.Errorf("order number = %q, want ORD-20260831-001", created.OrderNumber)
	}
	if created.Subtotal != 4900 {
		t.Errorf("subtotal = %d, want 4900", created.Subtotal)
	}
	if created.Tax != 392 {
		t.Errorf("tax = %d, want 392", created.Tax)
	}
	if created.Total != 5792 {
		t.Errorf("total = %d, want 5792", created.Total)
	}
	if created.Status != domain.OrderStatusReceived {
		t.Errorf("status = %s, want received", created.Status)
	}
	if created.TableNumber != 4 {
		t.Errorf("table number = %d, want 4", created.TableNumber)
	}
	if len(created.StatusHistory) != 1 || created.StatusHistory[0].Status != domain.OrderStatusReceived {
		t.Fatalf("status history = %+v, want single received entry", created.StatusHistory)
	}
	if actor := created.StatusHistory[0].ActorRef; actor == nil || *actor != "staff:amy" {
		t.Errorf("history actor = %v, want staff:amy", actor)
	}

	if len(f.tables.occupied) != 1 || f.tables.occupied[0] != "table-1="+created.ID {
		t.Errorf("table occupancy = %v, want table-1 occupied by %s", f.tables.occupied, created.ID)
	}
	if len(f.sessions.ensured) != 1 || f.sessions.ensured[0] != "sess-1" {
		t.Errorf("sessions ensured = %v, want [sess-1]", f.sessions.ensured)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != EventOrderCreated {
		t.Errorf("event types = %v, want [%s]", got, EventOrderCreated)
	}
	if !f.cache.has("t1:orders:" + created.ID) {
		t.Error("created order was not written through to the cache")
	}
}

func TestCreateOrderSeedsCounterFromLatestNumber(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.orders.latest = "ORD-20260831-041"

	created, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Tenant:  tenant.New("t1", ""),
		TableID: "table-1",
		Items:   []CreateOrderItemInput{{MenuItemID: "item-soda", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if created.OrderNumber != "ORD-20260831-042" {
		t.Errorf("order number = %q, want ORD-20260831-042", created.OrderNumber)
	}
}

func TestCreateOrderRetriesOnNumberCollision(t *testing.T) {
	f := newOrderServiceFixture(t)
	// A reservation left by a concurrent writer: the number exists without an
	// order backing it, so the day scan does not see it.
	f.orders.taken[f.orders.reserveKey("t1", "ORD-20260831-001")] = true

	created, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Tenant:  tenant.New("t1", ""),
		TableID: "table-1",
		Items:   []CreateOrderItemInput{{MenuItemID: "item-burger", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if created.OrderNumber != "ORD-20260831-002" {
		t.Errorf("order number = %q, want ORD-20260831-002 after one retry", created.OrderNumber)
	}
	if created.ID != "order-0002" {
		t.Errorf("order id = %q, want a fresh id per attempt", created.ID)
	}
}

func TestConcurrentCreationYieldsDistinctNumbers(t *testing.T) {
	f := newOrderServiceFixture(t)

	var idMu sync.Mutex
	var idSeq int
	f.svc.(*orderService).newID = func() string {
		idMu.Lock()
		defer idMu.Unlock()
		idSeq++
		return fmt.Sprintf("conc-%04d", idSeq)
	}

	const writers = 12
	numbers := make([]string, writers)
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
				Tenant:  tenant.New("t1", ""),
				TableID: "table-1",
				Items:   []CreateOrderItemInput{{MenuItemID: "item-soda", Quantity: 1}},
			})
			numbers[i], errs[i] = order.OrderNumber, err
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, writers)
	for i := 0; i < writers; i++ {
		if errs[i] != nil {
			t.Fatalf("writer %d: %v", i, errs[i])
		}
		if seen[numbers[i]] {
			t.Fatalf("order number %s issued twice", numbers[i])
		}
		seen[numbers[i]] = true
	}
}

func TestCreateOrderGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newOrderServiceFixture(t)
	for _, number := range []string{"ORD-20260831-001", "ORD-20260831-002", "ORD-20260831-003"} {
		f.orders.taken[f.orders.reserveKey("t1", number)] = true
	}

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Tenant:  tenant.New("t1", ""),
		TableID: "table-1",
		Items:   []CreateOrderItemInput{{MenuItemID: "item-soda", Quantity: 1}},
	})
	if !errors.Is(err, ErrCreationConflict) {
		t.Fatalf("err = %v, want ErrCreationConflict", err)
	}
}

func TestCreateOrderRejectsUnknownOrInactiveMenuItem(t *testing.T) {
	f := newOrderServiceFixture(t)

	for _, itemID := range []string{"item-retired", "item-missing"} {
		_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
			Tenant:  tenant.New("t1", ""),
			TableID: "table-1",
			Items:   []CreateOrderItemInput{{MenuItemID: itemID, Quantity: 1}},
		})
		if !errors.Is(err, ErrValidation) {
			t.Errorf("item %s: err = %v, want ErrValidation", itemID, err)
		}
	}
	if len(f.orders.orders) != 0 {
		t.Errorf("orders stored = %d, want none", len(f.orders.orders))
	}
}

func TestCreateOrderRejectsInactiveTable(t *testing.T) {
	f := newOrderServiceFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Tenant:  tenant.New("t1", ""),
		TableID: "table-closed",
		Items:   []CreateOrderItemInput{{MenuItemID: "item-soda", Quantity: 1}},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if len(f.orders.orders) != 0 {
		t.Error("inactive table must not produce an order")
	}
}

func TestCreateOrderInputValidation(t *testing.T) {
	f := newOrderServiceFixture(t)

	cases := []struct {
		name string
		cmd  CreateOrderCommand
	}{
		{"missing tenant", CreateOrderCommand{
			TableID: "table-1",
			Items:   []CreateOrderItemInput{{MenuItemID: "item-soda", Quantity: 1}},
		}},
		{"missing table", CreateOrderCommand{
			Tenant: tenant.New("t1", ""),
			Items:  []CreateOrderItemInput{{MenuItemID: "item-soda", Quantity: 1}},
		}},
		{"no items", CreateOrderCommand{
			Tenant:  tenant.New("t1", ""),
			TableID: "table-1",
		}},
		{"zero quantity", CreateOrderCommand{
			Tenant:  tenant.New("t1", ""),
			TableID: "table-1",
			Items:   []CreateOrderItemInput{{MenuItemID: "item-soda"}},
		}},
		{"negative tip", CreateOrderCommand{
			Tenant:  tenant.New("t1", ""),
			TableID: "table-1",
			Items:   []CreateOrderItemInput{{MenuItemID: "item-soda", Quantity: 1}},
			Tip:     -1,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.CreateOrder(context.Background(), tc.cmd); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestGetOrderServesRepeatReadsFromCache(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedOrder(domain.Order{
		ID: "ord-1", TenantID: "t1", OrderNumber: "ORD-20260831-007",
		Status: domain.OrderStatusReceived, CreatedAt: testNow, UpdatedAt: testNow,
	})

	first, err := f.svc.GetOrder(context.Background(), tenant.New("t1", ""), "ord-1")
	if err != nil {
		t.Fatalf("first GetOrder: %v", err)
	}
	second, err := f.svc.GetOrder(context.Background(), tenant.New("t1", ""), "ord-1")
	if err != nil {
		t.Fatalf("second GetOrder: %v", err)
	}
	if first.ID != "ord-1" || second.OrderNumber != "ORD-20260831-007" {
		t.Errorf("unexpected orders: %+v / %+v", first, second)
	}
	if f.orders.findCalls != 1 {
		t.Errorf("storage reads = %d, want 1 (second read from cache)", f.orders.findCalls)
	}
}

func TestGetOrderUnknownID(t *testing.T) {
	f := newOrderServiceFixture(t)

	_, err := f.svc.GetOrder(context.Background(), tenant.New("t1", ""), "no-such-order")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetOrderNeverCrossesTenants(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedOrder(domain.Order{ID: "ord-1", TenantID: "t2", Status: domain.OrderStatusReceived})

	_, err := f.svc.GetOrder(context.Background(), tenant.New("t1", ""), "ord-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for another tenant's order", err)
	}
}

func TestUpdateStatusServesOrderAndReleasesTable(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedOrder(domain.Order{
		ID: "ord-1", TenantID: "t1", OrderNumber: "ORD-20260831-001",
		TableRef: "table-1", CustomerRef: strPtr("sess-1"),
		Status: domain.OrderStatusReady, Total: 5792,
		StatusHistory: []domain.StatusHistoryEntry{
			{Status: domain.OrderStatusReceived, Timestamp: testNow.Add(-time.Hour)},
			{Status: domain.OrderStatusPreparing, Timestamp: testNow.Add(-30 * time.Minute)},
			{Status: domain.OrderStatusReady, Timestamp: testNow.Add(-10 * time.Minute)},
		},
		CreatedAt: testNow.Add(-time.Hour), UpdatedAt: testNow.Add(-10 * time.Minute),
	})
	staleList := "t1:orders:list:|" + "|200"
	f.cache.values[staleList] = []byte("[]")
	f.cache.values["t1:dashboard:summary:20260831"] = []byte("{}")

	updated, err := f.svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		Tenant:     tenant.New("t1", "staff:amy"),
		OrderID:    "ord-1",
		NextStatus: domain.OrderStatusServed,
	})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if updated.Status != domain.OrderStatusServed {
		t.Errorf("status = %s, want served", updated.Status)
	}
	if updated.ServedAt == nil || !updated.ServedAt.Equal(testNow) {
		t.Errorf("served at = %v, want %v", updated.ServedAt, testNow)
	}
	if len(updated.StatusHistory) != 4 {
		t.Fatalf("history length = %d, want 4", len(updated.StatusHistory))
	}
	last := updated.StatusHistory[3]
	if last.Status != domain.OrderStatusServed || last.ActorRef == nil || *last.ActorRef != "staff:amy" {
		t.Errorf("last history entry = %+v, want served by staff:amy", last)
	}

	if len(f.tables.released) != 1 || f.tables.released[0] != "table-1" {
		t.Errorf("tables released = %v, want [table-1]", f.tables.released)
	}
	if len(f.sessions.released) != 1 || f.sessions.released[0] != "sess-1" {
		t.Errorf("sessions released = %v, want [sess-1]", f.sessions.released)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != EventOrderStatusChanged {
		t.Errorf("event types = %v, want [%s]", got, EventOrderStatusChanged)
	}
	if len(f.notifier.msgs) != 1 || f.notifier.msgs[0].Status != string(domain.OrderStatusServed) {
		t.Errorf("notifications = %+v, want one served notification", f.notifier.msgs)
	}

	if f.cache.has(staleList) {
		t.Error("list cache entry survived the status change")
	}
	if f.cache.has("t1:dashboard:summary:20260831") {
		t.Error("dashboard cache entry survived the status change")
	}
	if !f.cache.has("t1:orders:ord-1") {
		t.Error("updated order was not written back to the cache")
	}
}

func TestStatusChangeVisibleBeforeSideEffectsRun(t *testing.T) {
	f := newOrderServiceFixture(t)
	queued := &queuedEffects{}
	f.svc.(*orderService).effects = queued

	tc := tenant.New("t1", "staff:amy")
	created, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Tenant:  tc,
		TableID: "table-1",
		Items:   []CreateOrderItemInput{{MenuItemID: "item-soda", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	staleList := "t1:orders:list:|" + "|200"
	f.cache.values[staleList] = []byte("[]")

	if _, err := f.svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		Tenant:     tc,
		OrderID:    created.ID,
		NextStatus: domain.OrderStatusPreparing,
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// None of the queued tasks have run; reads must already see the commit.
	got, err := f.svc.GetOrder(context.Background(), tc, created.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != domain.OrderStatusPreparing {
		t.Errorf("status read back = %s, want preparing", got.Status)
	}
	if f.cache.has(staleList) {
		t.Error("stale list entry survived the status change")
	}
	if queued.pending() != 2 {
		t.Errorf("queued side effects = %d, want 2", queued.pending())
	}
}

func TestUpdateStatusKeepsSessionWithOpenOrders(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedOrder(domain.Order{
		ID: "ord-1", TenantID: "t1", TableRef: "table-1", CustomerRef: strPtr("sess-1"),
		Status: domain.OrderStatusReady, CreatedAt: testNow, UpdatedAt: testNow,
	})
	f.seedOrder(domain.Order{
		ID: "ord-2", TenantID: "t1", CustomerRef: strPtr("sess-1"),
		Status: domain.OrderStatusPreparing, CreatedAt: testNow, UpdatedAt: testNow,
	})

	if _, err := f.svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		Tenant:     tenant.New("t1", ""),
		OrderID:    "ord-1",
		NextStatus: domain.OrderStatusServed,
	}); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if len(f.sessions.released) != 0 {
		t.Errorf("sessions released = %v, want none while ord-2 is open", f.sessions.released)
	}
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	f := newOrderServiceFixture(t)
	servedAt := testNow.Add(-time.Hour)
	f.seedOrder(domain.Order{
		ID: "ord-1", TenantID: "t1", Status: domain.OrderStatusServed,
		ServedAt: &servedAt, CreatedAt: servedAt, UpdatedAt: servedAt,
	})

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		Tenant:     tenant.New("t1", ""),
		OrderID:    "ord-1",
		NextStatus: domain.OrderStatusPreparing,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if stored := f.orders.orders["ord-1"]; stored.Status != domain.OrderStatusServed {
		t.Errorf("stored status = %s, rejected transition must not write", stored.Status)
	}
	if len(f.events.msgs) != 0 {
		t.Errorf("events = %v, want none", f.events.types())
	}
}

func TestUpdateStatusMapsStorageConflict(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedOrder(domain.Order{ID: "ord-1", TenantID: "t1", Status: domain.OrderStatusReceived})
	f.orders.updateErr = repoFault{msg: "transaction aborted", conflict: true}

	_, err := f.svc.UpdateStatus(context.Background(), UpdateStatusCommand{
		Tenant:     tenant.New("t1", ""),
		OrderID:    "ord-1",
		NextStatus: domain.OrderStatusPreparing,
	})
	if !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("err = %v, want ErrConcurrencyConflict", err)
	}
}

func TestRemoveItemRecalculatesTotals(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedOrder(domain.Order{
		ID: "ord-1", TenantID: "t1", TableRef: "table-1",
		Status: domain.OrderStatusReceived,
		Items: []domain.OrderItem{
			{MenuItemRef: "item-burger", Name: "Burger", UnitPrice: 2000, Quantity: 2, Subtotal: 4000},
			{MenuItemRef: "item-soda", Name: "Soda", UnitPrice: 300, Quantity: 1, Subtotal: 300},
		},
		Subtotal: 4300, Tax: 344, Tip: 500, Total: 5144,
		CreatedAt: testNow, UpdatedAt: testNow,
	})

	updated, err := f.svc.RemoveItem(context.Background(), RemoveItemCommand{
		Tenant:      tenant.New("t1", ""),
		OrderID:     "ord-1",
		MenuItemRef: "item-soda",
	})
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(updated.Items) != 1 || updated.Items[0].MenuItemRef != "item-burger" {
		t.Fatalf("items = %+v, want only the burger line", updated.Items)
	}
	if updated.Subtotal != 4000 || updated.Tax != 320 || updated.Total != 4820 {
		t.Errorf("totals = %d/%d/%d, want 4000/320/4820", updated.Subtotal, updated.Tax, updated.Total)
	}
	if updated.Status != domain.OrderStatusReceived {
		t.Errorf("status = %s, want received", updated.Status)
	}
	if len(f.tables.released) != 0 {
		t.Errorf("tables released = %v, want none", f.tables.released)
	}
}

func TestRemoveLastItemCancelsOrder(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedOrder(domain.Order{
		ID: "ord-1", TenantID: "t1", TableRef: "table-1",
		Status: domain.OrderStatusReceived,
		Items: []domain.OrderItem{
			{MenuItemRef: "item-soda", Name: "Soda", UnitPrice: 300, Quantity: 1, Subtotal: 300},
		},
		Subtotal: 300, Tax: 24, Total: 324,
		CreatedAt: testNow, UpdatedAt: testNow,
	})

	updated, err := f.svc.RemoveItem(context.Background(), RemoveItemCommand{
		Tenant:      tenant.New("t1", ""),
		OrderID:     "ord-1",
		MenuItemRef: "item-soda",
	})
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", updated.Status)
	}
	if updated.Subtotal != 0 || updated.Total != 0 {
		t.Errorf("totals = %d/%d, want zero", updated.Subtotal, updated.Total)
	}
	if len(f.tables.released) != 1 || f.tables.released[0] != "table-1" {
		t.Errorf("tables released = %v, want [table-1]", f.tables.released)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != EventOrderCancelled {
		t.Errorf("event types = %v, want [%s]", got, EventOrderCancelled)
	}
}

func TestRemoveItemRequiresReceivedStatus(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedOrder(domain.Order{
		ID: "ord-1", TenantID: "t1", Status: domain.OrderStatusPreparing,
		Items: []domain.OrderItem{
			{MenuItemRef: "item-soda", Quantity: 1, Subtotal: 300},
		},
	})

	_, err := f.svc.RemoveItem(context.Background(), RemoveItemCommand{
		Tenant:      tenant.New("t1", ""),
		OrderID:     "ord-1",
		MenuItemRef: "item-soda",
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition once preparation started", err)
	}
}

func TestRemoveItemUnknownLine(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedOrder(domain.Order{
		ID: "ord-1", TenantID: "t1", Status: domain.OrderStatusReceived,
		Items: []domain.OrderItem{
			{MenuItemRef: "item-soda", Quantity: 1, Subtotal: 300},
		},
	})

	_, err := f.svc.RemoveItem(context.Background(), RemoveItemCommand{
		Tenant:      tenant.New("t1", ""),
		OrderID:     "ord-1",
		MenuItemRef: "item-burger",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDashboardSummaryAggregatesCurrentDay(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.seedOrder(domain.Order{
		ID: "ord-1", TenantID: "t1", Status: domain.OrderStatusServed,
		Total: 5000, CreatedAt: testNow.Add(-2 * time.Hour),
	})
	f.seedOrder(domain.Order{
		ID: "ord-2", TenantID: "t1", Status: domain.OrderStatusReceived,
		Total: 1200, CreatedAt: testNow.Add(-time.Hour),
	})
	f.seedOrder(domain.Order{
		ID: "ord-3", TenantID: "t1", Status: domain.OrderStatusCancelled,
		Total: 900, CreatedAt: testNow.Add(-time.Hour),
	})
	f.seedOrder(domain.Order{
		ID: "ord-4", TenantID: "t1", Status: domain.OrderStatusServed,
		Total: 7700, CreatedAt: testNow.Add(-36 * time.Hour),
	})
	f.seedOrder(domain.Order{
		ID: "ord-5", TenantID: "t2", Status: domain.OrderStatusServed,
		Total: 9900, CreatedAt: testNow,
	})

	summary, err := f.svc.DashboardSummary(context.Background(), tenant.New("t1", ""))
	if err != nil {
		t.Fatalf("DashboardSummary: %v", err)
	}
	if summary.Day != "2026-08-31" {
		t.Errorf("day = %q, want 2026-08-31", summary.Day)
	}
	if summary.OrderCount != 3 {
		t.Errorf("order count = %d, want 3", summary.OrderCount)
	}
	if summary.OpenCount != 1 {
		t.Errorf("open count = %d, want 1", summary.OpenCount)
	}
	if summary.RevenueTotal != 5000 {
		t.Errorf("revenue = %d, want 5000 (served today only)", summary.RevenueTotal)
	}
}
