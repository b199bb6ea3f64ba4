package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tablehub/api/internal/domain"
	"github.com/tablehub/api/internal/platform/tenant"
)

func newTestTableService(t *testing.T, tables *stubTableRepo, cache *memCache) TableService {
	t.Helper()
	svc, err := NewTableService(TableServiceDeps{Tables: tables, Cache: cache})
	if err != nil {
		t.Fatalf("NewTableService: %v", err)
	}
	return svc
}

func TestListTablesServesRepeatReadsFromCache(t *testing.T) {
	tables := newStubTableRepo()
	tables.tables["table-1"] = domain.Table{ID: "table-1", TenantID: "t1", TableNumber: 4, IsActive: true}
	tables.tables["table-2"] = domain.Table{ID: "table-2", TenantID: "t1", TableNumber: 7, IsActive: true, IsOccupied: true}
	tables.tables["table-other"] = domain.Table{ID: "table-other", TenantID: "t2", TableNumber: 1}
	cache := newMemCache()
	svc := newTestTableService(t, tables, cache)

	first, err := svc.ListTables(context.Background(), tenant.New("t1", ""))
	if err != nil {
		t.Fatalf("first ListTables: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("tables = %d, want 2 for tenant t1", len(first))
	}

	second, err := svc.ListTables(context.Background(), tenant.New("t1", ""))
	if err != nil {
		t.Fatalf("second ListTables: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("cached tables = %d, want 2", len(second))
	}
	if tables.listCalls != 1 {
		t.Errorf("storage reads = %d, want 1 (second read from cache)", tables.listCalls)
	}
}

func TestListTablesRequiresTenant(t *testing.T) {
	svc := newTestTableService(t, newStubTableRepo(), newMemCache())

	if _, err := svc.ListTables(context.Background(), tenant.Context{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestOrderMutationsInvalidateTableListing(t *testing.T) {
	f := newOrderServiceFixture(t)
	tableSvc := newTestTableService(t, f.tables, f.cache)

	if _, err := tableSvc.ListTables(context.Background(), tenant.New("t1", "")); err != nil {
		t.Fatalf("ListTables: %v", err)
	}
	if !f.cache.has("t1:tables:list") {
		t.Fatal("table listing was not cached")
	}

	if _, err := f.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Tenant:  tenant.New("t1", ""),
		TableID: "table-1",
		Items:   []CreateOrderItemInput{{MenuItemID: "item-soda", Quantity: 1}},
	}); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if f.cache.has("t1:tables:list") {
		t.Error("table listing cache survived an occupancy change")
	}
}
