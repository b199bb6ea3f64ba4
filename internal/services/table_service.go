package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tablehub/api/internal/domain"
	pcache "github.com/tablehub/api/internal/platform/cache"
	"github.com/tablehub/api/internal/platform/tenant"
	"github.com/tablehub/api/internal/repositories"
)

const cacheClassTables = "tables"

// TableService serves the kitchen floor view: every table of the tenant with
// its occupancy. The listing is cached; order mutations that change occupancy
// invalidate the tables class.
type TableService interface {
	ListTables(ctx context.Context, tc tenant.Context) ([]domain.Table, error)
}

// TableServiceDeps bundles collaborators required to construct the table service.
type TableServiceDeps struct {
	Tables   repositories.TableRepository
	Cache    CacheLayer
	CacheTTL time.Duration
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type tableService struct {
	tables   repositories.TableRepository
	cache    CacheLayer
	cacheTTL time.Duration
	logger   func(context.Context, string, map[string]any)
}

// NewTableService wires dependencies into a TableService implementation.
func NewTableService(deps TableServiceDeps) (TableService, error) {
	if deps.Tables == nil {
		return nil, errors.New("table service: table repository is required")
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &tableService{
		tables:   deps.Tables,
		cache:    deps.Cache,
		cacheTTL: ttl,
		logger:   logger,
	}, nil
}

func (s *tableService) ListTables(ctx context.Context, tc tenant.Context) ([]domain.Table, error) {
	if err := tc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	key := pcache.Key(tc.TenantID, cacheClassTables, "list")
	load := func(ctx context.Context) ([]byte, error) {
		tables, err := s.tables.List(ctx, tc.TenantID)
		if err != nil {
			return nil, mapRepositoryError(err)
		}
		raw, err := json.Marshal(tables)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
				s.logger(ctx, "tables.cache.set_failed", map[string]any{"key": key, "error": err.Error()})
			}
		}
		return raw, nil
	}

	var raw []byte
	var err error
	if s.cache == nil {
		raw, err = load(ctx)
	} else if cached, ok := s.cache.Get(ctx, key); ok {
		raw = cached
	} else {
		raw, err = s.cache.Deduplicate(ctx, key, load)
	}
	if err != nil {
		return nil, err
	}

	var tables []domain.Table
	if err := json.Unmarshal(raw, &tables); err != nil {
		return nil, err
	}
	return tables, nil
}
