package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tablehub/api/internal/domain"
	pcache "github.com/tablehub/api/internal/platform/cache"
	"github.com/tablehub/api/internal/repositories"
)

const (
	defaultBulkMaxBatch  = 100
	defaultBulkChunkSize = 20
)

// BulkOrderService applies one mutation to a batch of orders. Each batch is
// all-or-nothing: a single order that cannot take the mutation rejects the
// whole request before anything is written.
type BulkOrderService interface {
	BulkUpdateStatus(ctx context.Context, cmd BulkStatusCommand) (BulkResult, error)
	BulkDelete(ctx context.Context, cmd BulkDeleteCommand) (BulkResult, error)
}

// BulkOrderServiceConfig carries batch limits.
type BulkOrderServiceConfig struct {
	MaxBatch  int
	ChunkSize int
	CacheTTL  time.Duration
}

// BulkOrderServiceDeps bundles collaborators required to construct the bulk service.
type BulkOrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Tables     repositories.TableRepository
	Sessions   repositories.CustomerSessionRepository
	UnitOfWork repositories.UnitOfWork
	Cache      CacheLayer
	Events     EventEmitter
	Notifier   Notifier
	Effects    SideEffectRunner
	Config     BulkOrderServiceConfig
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type bulkOrderService struct {
	orders     repositories.OrderRepository
	tables     repositories.TableRepository
	sessions   repositories.CustomerSessionRepository
	unitOfWork repositories.UnitOfWork
	cache      CacheLayer
	events     EventEmitter
	notifier   Notifier
	effects    SideEffectRunner
	cfg        BulkOrderServiceConfig
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewBulkOrderService wires dependencies into a BulkOrderService implementation.
func NewBulkOrderService(deps BulkOrderServiceDeps) (BulkOrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("bulk order service: order repository is required")
	}
	if deps.Tables == nil {
		return nil, errors.New("bulk order service: table repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	cfg := deps.Config
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = defaultBulkMaxBatch
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultBulkChunkSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &bulkOrderService{
		orders:     deps.Orders,
		tables:     deps.Tables,
		sessions:   deps.Sessions,
		unitOfWork: unit,
		cache:      deps.Cache,
		events:     deps.Events,
		notifier:   deps.Notifier,
		effects:    deps.Effects,
		cfg:        cfg,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// BulkUpdateStatus applies one status transition to every order in the
// batch. IDs that do not resolve within the tenant are dropped silently; a
// resolved order whose current status forbids the transition fails the whole
// batch before any write.
func (s *bulkOrderService) BulkUpdateStatus(ctx context.Context, cmd BulkStatusCommand) (BulkResult, error) {
	if err := cmd.Tenant.Validate(); err != nil {
		return BulkResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !cmd.NextStatus.Valid() {
		return BulkResult{}, fmt.Errorf("%w: unknown status %q", ErrValidation, cmd.NextStatus)
	}
	ids, err := s.normalizeIDs(cmd.OrderIDs)
	if err != nil {
		return BulkResult{}, err
	}

	tenantID := cmd.Tenant.TenantID
	var updated []domain.Order
	var dropped int
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		orders, err := s.orders.FindByIDs(txCtx, tenantID, ids)
		if err != nil {
			return err
		}
		dropped = len(ids) - len(orders)
		if dropped > 0 {
			s.logger(ctx, "orders.bulk.dropped", map[string]any{
				"tenant":  tenantID,
				"dropped": dropped,
			})
		}

		var blocked []string
		for _, order := range orders {
			if !CanTransition(order.Status, cmd.NextStatus) {
				blocked = append(blocked, order.ID)
			}
		}
		if len(blocked) > 0 {
			return fmt.Errorf("%w: orders %s cannot move to %s",
				ErrPreconditionFailed, strings.Join(blocked, ", "), cmd.NextStatus)
		}

		now := s.clock()
		updated = updated[:0]
		for _, order := range orders {
			order.Status = cmd.NextStatus
			order.UpdatedAt = now
			order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
				Status:    cmd.NextStatus,
				Timestamp: now,
				ActorRef:  cmd.Tenant.Actor(),
			})
			if cmd.NextStatus == domain.OrderStatusServed && order.ServedAt == nil {
				servedAt := now
				order.ServedAt = &servedAt
			}
			if err := s.orders.Update(txCtx, order); err != nil {
				return err
			}
			if cmd.NextStatus.Terminal() && order.TableRef != "" {
				if err := s.tables.Release(txCtx, tenantID, order.TableRef); err != nil {
					return err
				}
			}
			updated = append(updated, order)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return BulkResult{}, err
		}
		return BulkResult{}, s.mapRepositoryError(err)
	}

	s.afterBulkStatus(ctx, tenantID, updated)
	return s.result(updated, dropped), nil
}

// BulkDelete removes a batch of orders. Orders the kitchen is actively
// working on block the whole batch.
func (s *bulkOrderService) BulkDelete(ctx context.Context, cmd BulkDeleteCommand) (BulkResult, error) {
	if err := cmd.Tenant.Validate(); err != nil {
		return BulkResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !cmd.Confirm {
		return BulkResult{}, fmt.Errorf("%w: deletion must be confirmed", ErrValidation)
	}
	ids, err := s.normalizeIDs(cmd.OrderIDs)
	if err != nil {
		return BulkResult{}, err
	}

	tenantID := cmd.Tenant.TenantID
	var deleted []domain.Order
	var dropped int
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		orders, err := s.orders.FindByIDs(txCtx, tenantID, ids)
		if err != nil {
			return err
		}
		dropped = len(ids) - len(orders)
		if dropped > 0 {
			s.logger(ctx, "orders.bulk.dropped", map[string]any{
				"tenant":  tenantID,
				"dropped": dropped,
			})
		}

		var blocked []string
		for _, order := range orders {
			if order.Status.Active() {
				blocked = append(blocked, order.ID)
			}
		}
		if len(blocked) > 0 {
			return fmt.Errorf("%w: orders %s are in preparation and cannot be deleted",
				ErrPreconditionFailed, strings.Join(blocked, ", "))
		}

		deleteIDs := make([]string, 0, len(orders))
		for _, order := range orders {
			deleteIDs = append(deleteIDs, order.ID)
		}
		if err := s.orders.Delete(txCtx, tenantID, deleteIDs); err != nil {
			return err
		}
		for _, order := range orders {
			if !order.Status.Terminal() && order.TableRef != "" {
				if err := s.tables.Release(txCtx, tenantID, order.TableRef); err != nil {
					return err
				}
			}
		}
		deleted = orders
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return BulkResult{}, err
		}
		return BulkResult{}, s.mapRepositoryError(err)
	}

	s.afterBulkDelete(ctx, tenantID, deleted)
	return s.result(deleted, dropped), nil
}

func (s *bulkOrderService) normalizeIDs(orderIDs []string) ([]string, error) {
	ids := make([]string, 0, len(orderIDs))
	seen := make(map[string]bool, len(orderIDs))
	for _, id := range orderIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one order id is required", ErrValidation)
	}
	if len(ids) > s.cfg.MaxBatch {
		return nil, fmt.Errorf("%w: batch of %d exceeds the limit of %d", ErrValidation, len(ids), s.cfg.MaxBatch)
	}
	return ids, nil
}

// afterBulkStatus fans side effects out in chunks so one giant batch does not
// monopolize the dispatcher workers.
func (s *bulkOrderService) afterBulkStatus(ctx context.Context, tenantID string, orders []domain.Order) {
	s.invalidate(ctx, tenantID)
	for _, chunk := range chunkOrders(orders, s.cfg.ChunkSize) {
		chunk := chunk
		s.submitEffect(ctx, "orders.bulk.status_changed", func(ctx context.Context) {
			for _, order := range chunk {
				s.writeThrough(ctx, order)
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
			}
		})
	}
	if ordersTerminal(orders) {
		s.submitEffect(ctx, "orders.bulk.session_sweep", func(ctx context.Context) {
			s.sweepSessions(ctx, tenantID, orders)
		})
	}
}

func (s *bulkOrderService) afterBulkDelete(ctx context.Context, tenantID string, orders []domain.Order) {
	s.invalidate(ctx, tenantID)
	for _, chunk := range chunkOrders(orders, s.cfg.ChunkSize) {
		chunk := chunk
		s.submitEffect(ctx, "orders.bulk.deleted", func(ctx context.Context) {
			for _, order := range chunk {
				if s.cache != nil {
					if err := s.cache.Delete(ctx, pcache.Key(order.TenantID, cacheClassOrders, order.ID)); err != nil {
						s.logger(ctx, "orders.bulk.cache_delete_failed", map[string]any{
							"order": order.ID,
							"error": err.Error(),
						})
					}
				}
				s.emit(ctx, OrderEventMessage{
					Type:        EventOrderDeleted,
					TenantID:    order.TenantID,
					OrderID:     order.ID,
					OrderNumber: order.OrderNumber,
					OccurredAt:  s.clock(),
				})
			}
		})
	}
	s.submitEffect(ctx, "orders.bulk.session_sweep", func(ctx context.Context) {
		s.sweepSessions(ctx, tenantID, orders)
	})
}

// sweepSessions releases guest sessions whose customers no longer have any
// active orders.
func (s *bulkOrderService) sweepSessions(ctx context.Context, tenantID string, orders []domain.Order) {
	if s.sessions == nil {
		return
	}
	seen := make(map[string]bool)
	for _, order := range orders {
		if order.CustomerRef == nil || *order.CustomerRef == "" || seen[*order.CustomerRef] {
			continue
		}
		seen[*order.CustomerRef] = true

		remaining, err := s.orders.ListByCustomer(ctx, tenantID, *order.CustomerRef)
		if err != nil {
			s.logger(ctx, "orders.bulk.sweep_failed", map[string]any{
				"tenant": tenantID,
				"error":  err.Error(),
			})
			continue
		}
		open := false
		for _, other := range remaining {
			if !other.Status.Terminal() {
				open = true
				break
			}
		}
		if open {
			continue
		}
		if err := s.sessions.Release(ctx, tenantID, *order.CustomerRef); err != nil {
			s.logger(ctx, "orders.bulk.session_release_failed", map[string]any{
				"tenant":  tenantID,
				"session": *order.CustomerRef,
				"error":   err.Error(),
			})
		}
	}
}

func (s *bulkOrderService) invalidate(ctx context.Context, tenantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, pcache.Pattern(tenantID, cacheClassOrders)); err != nil {
		s.logger(ctx, "orders.bulk.invalidate_failed", map[string]any{"tenant": tenantID, "error": err.Error()})
	}
	if err := s.cache.DeleteByPattern(ctx, pcache.Pattern(tenantID, cacheClassDashboard)); err != nil {
		s.logger(ctx, "orders.bulk.invalidate_failed", map[string]any{"tenant": tenantID, "error": err.Error()})
	}
	if err := s.cache.DeleteByPattern(ctx, pcache.Pattern(tenantID, cacheClassTables)); err != nil {
		s.logger(ctx, "orders.bulk.invalidate_failed", map[string]any{"tenant": tenantID, "error": err.Error()})
	}
}

func (s *bulkOrderService) writeThrough(ctx context.Context, order domain.Order) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(order)
	if err != nil {
		return
	}
	key := pcache.Key(order.TenantID, cacheClassOrders, order.ID)
	if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL); err != nil {
		s.logger(ctx, "orders.bulk.cache_set_failed", map[string]any{"key": key, "error": err.Error()})
	}
}

func (s *bulkOrderService) emit(ctx context.Context, msg OrderEventMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.EmitOrderEvent(ctx, msg); err != nil {
		s.logger(ctx, "orders.bulk.event_failed", map[string]any{
			"type":  msg.Type,
			"order": msg.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *bulkOrderService) notify(ctx context.Context, order domain.Order) {
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
		s.logger(ctx, "orders.bulk.notify_failed", map[string]any{
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *bulkOrderService) submitEffect(ctx context.Context, name string, fn func(ctx context.Context)) {
	if s.effects != nil && s.effects.Submit(ctx, name, fn) {
		return
	}
	fn(ctx)
}

func (s *bulkOrderService) result(orders []domain.Order, dropped int) BulkResult {
	result := BulkResult{Requested: len(orders) + dropped, Dropped: dropped}
	for _, order := range orders {
		result.Processed = append(result.Processed, order.ID)
	}
	return result
}

func (s *bulkOrderService) mapRepositoryError(err error) error {
	return mapRepositoryError(err)
}

func (s *bulkOrderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func chunkOrders(orders []domain.Order, size int) [][]domain.Order {
	if size <= 0 {
		size = defaultBulkChunkSize
	}
	var chunks [][]domain.Order
	for start := 0; start < len(orders); start += size {
		end := start + size
		if end > len(orders) {
			end = len(orders)
		}
		chunks = append(chunks, orders[start:end])
	}
	return chunks
}

func ordersTerminal(orders []domain.Order) bool {
	for _, order := range orders {
		if order.Status.Terminal() {
			return true
		}
	}
	return false
}
