package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/tablehub/api/internal/domain"
	pfirestore "github.com/tablehub/api/internal/platform/firestore"
)

const menuItemsCollection = "menu_items"

type menuItemDocument struct {
	TenantID  string    `firestore:"tenantId"`
	Name      string    `firestore:"name"`
	Price     int64     `firestore:"price"`
	IsActive  bool      `firestore:"isActive"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// MenuItemRepository reads menu items from Firestore. Ordering only needs
// point lookups; catalog management lives elsewhere.
type MenuItemRepository struct {
	provider *pfirestore.Provider
}

// NewMenuItemRepository constructs a Firestore-backed menu item repository.
func NewMenuItemRepository(provider *pfirestore.Provider) (*MenuItemRepository, error) {
	if provider == nil {
		return nil, errors.New("menu item repository requires firestore provider")
	}
	return &MenuItemRepository{provider: provider}, nil
}

// FindActiveByIDs loads the requested menu items, dropping inactive entries
// and entries belonging to other tenants.
func (r *MenuItemRepository) FindActiveByIDs(ctx context.Context, tenantID string, menuItemIDs []string) ([]domain.MenuItem, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("menu item repository not initialised")
	}
	if len(menuItemIDs) == 0 {
		return nil, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, 0, len(menuItemIDs))
	for _, id := range menuItemIDs {
		if id == "" {
			continue
		}
		refs = append(refs, client.Collection(menuItemsCollection).Doc(id))
	}

	var snapshots []*firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snapshots, err = tx.GetAll(refs)
	} else {
		snapshots, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, pfirestore.WrapError("menuItems.getAll", err)
	}

	items := make([]domain.MenuItem, 0, len(snapshots))
	for _, snapshot := range snapshots {
		if !snapshot.Exists() {
			continue
		}
		var doc menuItemDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore menu items decode %s: %w", snapshot.Ref.ID, err)
		}
		if doc.TenantID != tenantID || !doc.IsActive {
			continue
		}
		items = append(items, domain.MenuItem{
			ID:        snapshot.Ref.ID,
			TenantID:  doc.TenantID,
			Name:      doc.Name,
			Price:     doc.Price,
			IsActive:  doc.IsActive,
			UpdatedAt: doc.UpdatedAt,
		})
	}
	return items, nil
}
