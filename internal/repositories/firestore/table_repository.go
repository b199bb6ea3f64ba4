package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/tablehub/api/internal/domain"
	pfirestore "github.com/tablehub/api/internal/platform/firestore"
)

const tablesCollection = "tables"

type tableDocument struct {
	TenantID       string    `firestore:"tenantId"`
	TableNumber    int       `firestore:"tableNumber"`
	IsActive       bool      `firestore:"isActive"`
	IsOccupied     bool      `firestore:"isOccupied"`
	CurrentOrderID *string   `firestore:"currentOrderId,omitempty"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

// TableRepository persists dining tables in Firestore.
type TableRepository struct {
	provider *pfirestore.Provider
}

// NewTableRepository constructs a Firestore-backed table repository.
func NewTableRepository(provider *pfirestore.Provider) (*TableRepository, error) {
	if provider == nil {
		return nil, errors.New("table repository requires firestore provider")
	}
	return &TableRepository{provider: provider}, nil
}

// FindByID loads the table, scoped to the tenant.
func (r *TableRepository) FindByID(ctx context.Context, tenantID, tableID string) (domain.Table, error) {
	if r == nil || r.provider == nil {
		return domain.Table{}, errors.New("table repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Table{}, err
	}
	ref := client.Collection(tablesCollection).Doc(tableID)

	var snapshot *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snapshot, err = tx.Get(ref)
	} else {
		snapshot, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.Table{}, pfirestore.WrapError("tables.get", err)
	}

	var doc tableDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.Table{}, fmt.Errorf("firestore tables decode %s: %w", tableID, err)
	}
	if doc.TenantID != tenantID {
		return domain.Table{}, pfirestore.NotFoundError("tables.get", tableID)
	}
	return toTable(snapshot.Ref.ID, doc), nil
}

// List returns the tenant's tables ordered by table number.
func (r *TableRepository) List(ctx context.Context, tenantID string) ([]domain.Table, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("table repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(tablesCollection).
		Where("tenantId", "==", tenantID).
		OrderBy("tableNumber", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var tables []domain.Table
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("tables.list", err)
		}
		var doc tableDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore tables decode %s: %w", snapshot.Ref.ID, err)
		}
		tables = append(tables, toTable(snapshot.Ref.ID, doc))
	}
	return tables, nil
}

// SetOccupied marks the table occupied by the given order.
func (r *TableRepository) SetOccupied(ctx context.Context, tenantID, tableID, orderID string) error {
	return r.applyOccupancy(ctx, tenantID, tableID, true, &orderID)
}

// Release clears the table's occupancy.
func (r *TableRepository) Release(ctx context.Context, tenantID, tableID string) error {
	return r.applyOccupancy(ctx, tenantID, tableID, false, nil)
}

func (r *TableRepository) applyOccupancy(ctx context.Context, tenantID, tableID string, occupied bool, orderID *string) error {
	if r == nil || r.provider == nil {
		return errors.New("table repository not initialised")
	}
	if strings.TrimSpace(tableID) == "" {
		return errors.New("table repository: table id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := client.Collection(tablesCollection).Doc(tableID)

	updates := []firestore.Update{
		{Path: "isOccupied", Value: occupied},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}
	if orderID != nil && *orderID != "" {
		updates = append(updates, firestore.Update{Path: "currentOrderId", Value: *orderID})
	} else {
		updates = append(updates, firestore.Update{Path: "currentOrderId", Value: firestore.Delete})
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("tables.occupancy", tx.Update(ref, updates))
	}
	_, err = ref.Update(ctx, updates)
	return pfirestore.WrapError("tables.occupancy", err)
}

func toTable(id string, doc tableDocument) domain.Table {
	return domain.Table{
		ID:             id,
		TenantID:       doc.TenantID,
		TableNumber:    doc.TableNumber,
		IsActive:       doc.IsActive,
		IsOccupied:     doc.IsOccupied,
		CurrentOrderID: doc.CurrentOrderID,
		UpdatedAt:      doc.UpdatedAt,
	}
}
