package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/tablehub/api/internal/domain"
	pfirestore "github.com/tablehub/api/internal/platform/firestore"
	"github.com/tablehub/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "order_numbers"

	defaultOrderListLimit = 200
)

type orderDocument struct {
	TenantID      string                  `firestore:"tenantId"`
	OrderNumber   string                  `firestore:"orderNumber"`
	TableRef      string                  `firestore:"tableRef"`
	TableNumber   int                     `firestore:"tableNumber"`
	CustomerRef   *string                 `firestore:"customerRef,omitempty"`
	Items         []orderItemDocument     `firestore:"items"`
	Subtotal      int64                   `firestore:"subtotal"`
	Tax           int64                   `firestore:"tax"`
	Tip           int64                   `firestore:"tip"`
	Total         int64                   `firestore:"total"`
	Status        string                  `firestore:"status"`
	StatusHistory []statusHistoryDocument `firestore:"statusHistory"`
	Notes         string                  `firestore:"notes,omitempty"`
	ServedAt      *time.Time              `firestore:"servedAt,omitempty"`
	CreatedAt     time.Time               `firestore:"createdAt"`
	UpdatedAt     time.Time               `firestore:"updatedAt"`
}

type orderItemDocument struct {
	MenuItemRef    string                      `firestore:"menuItemRef"`
	Name           string                      `firestore:"name"`
	UnitPrice      int64                       `firestore:"unitPrice"`
	Quantity       int                         `firestore:"quantity"`
	Subtotal       int64                       `firestore:"subtotal"`
	Customizations []itemCustomizationDocument `firestore:"customizations,omitempty"`
	AddOns         []string                    `firestore:"addOns,omitempty"`
}

type itemCustomizationDocument struct {
	Name       string `firestore:"name"`
	PriceDelta int64  `firestore:"priceDelta"`
}

type statusHistoryDocument struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
	ActorRef  *string   `firestore:"actorRef,omitempty"`
}

type orderNumberDocument struct {
	TenantID    string    `firestore:"tenantId"`
	OrderNumber string    `firestore:"orderNumber"`
	OrderID     string    `firestore:"orderId"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

// OrderRepository persists orders in Firestore. Every read verifies the
// stored tenant against the requested one and reports a mismatch as not
// found, so documents never leak across tenants.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

// Insert creates the order document together with its per-day number
// reservation. Both writes join the context transaction when one is present;
// otherwise they run in their own. The reservation ref is derived from tenant
// and number, so a duplicate number fails the commit with AlreadyExists. The
// order ID itself is a freshly minted ULID, which makes the reservation the
// only create that can collide.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if err := r.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	if strings.TrimSpace(order.TenantID) == "" {
		return errors.New("order repository: tenant id is required")
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return errors.New("order repository: order number is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	orderRef := client.Collection(ordersCollection).Doc(order.ID)
	numberRef := client.Collection(orderNumbersCollection).Doc(orderNumberDocID(order.TenantID, order.OrderNumber))
	numberDoc := orderNumberDocument{
		TenantID:    order.TenantID,
		OrderNumber: order.OrderNumber,
		OrderID:     order.ID,
		CreatedAt:   order.CreatedAt.UTC(),
	}

	write := func(tx *firestore.Transaction) error {
		if err := tx.Create(numberRef, numberDoc); err != nil {
			return err
		}
		return tx.Create(orderRef, fromOrder(order))
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("orders.insert", write(tx))
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return write(tx)
	})
	if pfirestore.IsAlreadyExists(err) {
		return fmt.Errorf("%w: %s", repositories.ErrOrderNumberTaken, order.OrderNumber)
	}
	return pfirestore.WrapError("orders.insert", err)
}

// Update replaces the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if err := r.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := client.Collection(ordersCollection).Doc(order.ID)
	doc := fromOrder(order)

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("orders.update", tx.Set(ref, doc))
	}
	_, err = ref.Set(ctx, doc)
	return pfirestore.WrapError("orders.update", err)
}

// FindByID loads the order, scoped to the tenant.
func (r *OrderRepository) FindByID(ctx context.Context, tenantID, orderID string) (domain.Order, error) {
	if err := r.ready(); err != nil {
		return domain.Order{}, err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	ref := client.Collection(ordersCollection).Doc(orderID)

	var snapshot *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snapshot, err = tx.Get(ref)
	} else {
		snapshot, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}

	order, err := decodeOrder(snapshot)
	if err != nil {
		return domain.Order{}, err
	}
	if order.TenantID != tenantID {
		return domain.Order{}, pfirestore.NotFoundError("orders.get", orderID)
	}
	return order, nil
}

// FindByIDs loads the requested orders. IDs that are missing or belong to a
// different tenant are dropped from the result rather than reported.
func (r *OrderRepository) FindByIDs(ctx context.Context, tenantID string, orderIDs []string) ([]domain.Order, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if len(orderIDs) == 0 {
		return nil, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(orderIDs))
	for _, id := range orderIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		refs = append(refs, client.Collection(ordersCollection).Doc(id))
	}

	var snapshots []*firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snapshots, err = tx.GetAll(refs)
	} else {
		snapshots, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, pfirestore.WrapError("orders.getAll", err)
	}

	orders := make([]domain.Order, 0, len(snapshots))
	for _, snapshot := range snapshots {
		if !snapshot.Exists() {
			continue
		}
		order, err := decodeOrder(snapshot)
		if err != nil {
			return nil, err
		}
		if order.TenantID != tenantID {
			continue
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// List returns the tenant's orders, newest first.
func (r *OrderRepository) List(ctx context.Context, tenantID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	query := client.Collection(ordersCollection).
		Where("tenantId", "==", tenantID)
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status", "in", statuses)
	}
	if ref := strings.TrimSpace(filter.TableRef); ref != "" {
		query = query.Where("tableRef", "==", ref)
	}
	query = query.OrderBy("createdAt", firestore.Desc)
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultOrderListLimit
	}
	query = query.Limit(limit)

	return r.collect(ctx, query, "orders.list")
}

// ListByCustomer returns the customer's orders for the tenant, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, tenantID, customerRef string) ([]domain.Order, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	query := client.Collection(ordersCollection).
		Where("tenantId", "==", tenantID).
		Where("customerRef", "==", customerRef).
		OrderBy("createdAt", firestore.Desc).
		Limit(defaultOrderListLimit)

	return r.collect(ctx, query, "orders.listByCustomer")
}

// LatestNumberForDay returns the lexicographically highest order number
// already issued under the day prefix, or "" when the day has no orders yet.
// Callers treat the result as a seeding hint only; the reservation documents
// remain the source of truth for uniqueness.
func (r *OrderRepository) LatestNumberForDay(ctx context.Context, tenantID, dayPrefix string) (string, error) {
	if err := r.ready(); err != nil {
		return "", err
	}
	dayPrefix = strings.TrimSpace(dayPrefix)
	if dayPrefix == "" {
		return "", errors.New("order repository: day prefix is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return "", err
	}

	query := client.Collection(ordersCollection).
		Where("tenantId", "==", tenantID).
		Where("orderNumber", ">=", dayPrefix).
		Where("orderNumber", "<", dayPrefix+"\uf8ff").
		OrderBy("orderNumber", firestore.Desc).
		Limit(1)

	iter := query.Documents(ctx)
	defer iter.Stop()

	snapshot, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return "", nil
	}
	if err != nil {
		return "", pfirestore.WrapError("orders.latestNumber", err)
	}

	var doc orderDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return "", fmt.Errorf("firestore orders decode %s: %w", snapshot.Ref.ID, err)
	}
	return doc.OrderNumber, nil
}

// Delete removes the order documents and their number reservations. Callers
// are expected to have verified tenant ownership via FindByIDs first; the
// refs here are built from orders the caller already loaded.
func (r *OrderRepository) Delete(ctx context.Context, tenantID string, orderIDs []string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if len(orderIDs) == 0 {
		return nil
	}

	orders, err := r.FindByIDs(ctx, tenantID, orderIDs)
	if err != nil {
		return err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	deleteRefs := make([]*firestore.DocumentRef, 0, len(orders)*2)
	for _, order := range orders {
		deleteRefs = append(deleteRefs,
			client.Collection(ordersCollection).Doc(order.ID),
			client.Collection(orderNumbersCollection).Doc(orderNumberDocID(order.TenantID, order.OrderNumber)),
		)
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		for _, ref := range deleteRefs {
			if err := tx.Delete(ref); err != nil {
				return pfirestore.WrapError("orders.delete", err)
			}
		}
		return nil
	}

	batch := client.Batch()
	for _, ref := range deleteRefs {
		batch.Delete(ref)
	}
	_, err = batch.Commit(ctx)
	return pfirestore.WrapError("orders.delete", err)
}

// AggregateSince summarizes the tenant's orders created at or after cutoff.
func (r *OrderRepository) AggregateSince(ctx context.Context, tenantID string, cutoff time.Time) (repositories.DayAggregate, error) {
	if err := r.ready(); err != nil {
		return repositories.DayAggregate{}, err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.DayAggregate{}, err
	}

	query := client.Collection(ordersCollection).
		Where("tenantId", "==", tenantID).
		Where("createdAt", ">=", cutoff.UTC())

	iter := query.Documents(ctx)
	defer iter.Stop()

	aggregate := repositories.DayAggregate{CountsByStatus: make(map[domain.OrderStatus]int)}
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return repositories.DayAggregate{}, pfirestore.WrapError("orders.aggregateSince", err)
		}
		var doc orderDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return repositories.DayAggregate{}, fmt.Errorf("firestore orders decode %s: %w", snapshot.Ref.ID, err)
		}
		status := domain.OrderStatus(doc.Status)
		aggregate.CountsByStatus[status]++
		if status == domain.OrderStatusServed {
			aggregate.RevenueTotal += doc.Total
		}
	}
	return aggregate, nil
}

func (r *OrderRepository) collect(ctx context.Context, query firestore.Query, op string) ([]domain.Order, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError(op, err)
		}
		order, err := decodeOrder(snapshot)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (r *OrderRepository) ready() error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	return nil
}

func orderNumberDocID(tenantID, orderNumber string) string {
	return tenantID + "_" + orderNumber
}

func decodeOrder(snapshot *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("firestore orders decode %s: %w", snapshot.Ref.ID, err)
	}
	return toOrder(snapshot.Ref.ID, doc), nil
}

func fromOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		TenantID:    order.TenantID,
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
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),
	}
	doc.Items = make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		itemDoc := orderItemDocument{
			MenuItemRef: item.MenuItemRef,
			Name:        item.Name,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal,
			AddOns:      append([]string(nil), item.AddOns...),
		}
		for _, c := range item.Customizations {
			itemDoc.Customizations = append(itemDoc.Customizations, itemCustomizationDocument{
				Name:       c.Name,
				PriceDelta: c.PriceDelta,
			})
		}
		doc.Items = append(doc.Items, itemDoc)
	}
	doc.StatusHistory = make([]statusHistoryDocument, 0, len(order.StatusHistory))
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, statusHistoryDocument{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp.UTC(),
			ActorRef:  entry.ActorRef,
		})
	}
	return doc
}

func toOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:          id,
		TenantID:    doc.TenantID,
		OrderNumber: doc.OrderNumber,
		TableRef:    doc.TableRef,
		TableNumber: doc.TableNumber,
		CustomerRef: doc.CustomerRef,
		Subtotal:    doc.Subtotal,
		Tax:         doc.Tax,
		Tip:         doc.Tip,
		Total:       doc.Total,
		Status:      domain.OrderStatus(doc.Status),
		Notes:       doc.Notes,
		ServedAt:    doc.ServedAt,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	for _, itemDoc := range doc.Items {
		item := domain.OrderItem{
			MenuItemRef: itemDoc.MenuItemRef,
			Name:        itemDoc.Name,
			UnitPrice:   itemDoc.UnitPrice,
			Quantity:    itemDoc.Quantity,
			Subtotal:    itemDoc.Subtotal,
			AddOns:      append([]string(nil), itemDoc.AddOns...),
		}
		for _, c := range itemDoc.Customizations {
			item.Customizations = append(item.Customizations, domain.ItemCustomization{
				Name:       c.Name,
				PriceDelta: c.PriceDelta,
			})
		}
		order.Items = append(order.Items, item)
	}
	for _, entry := range doc.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			Status:    domain.OrderStatus(entry.Status),
			Timestamp: entry.Timestamp,
			ActorRef:  entry.ActorRef,
		})
	}
	sort.SliceStable(order.StatusHistory, func(i, j int) bool {
		return order.StatusHistory[i].Timestamp.Before(order.StatusHistory[j].Timestamp)
	})
	return order
}
