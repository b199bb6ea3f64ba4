// Package cache provides the two-tier tenant-scoped cache: a shared tier
// reachable by every server instance and a local in-process tier. The cache is
// a performance optimisation, never a correctness dependency: any fault on the
// shared tier degrades to a miss.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTTL           = 5 * time.Minute
	defaultSharedTimeout = 2 * time.Second
	defaultSweepInterval = time.Minute
	defaultCleanupBatch  = 200
)

// ErrClosed reports use of the cache service after Close.
var ErrClosed = errors.New("cache: service is closed")

// Service is the explicitly constructed cache layer injected into components
// that need it. Lifecycle is owned by the composition root via Start/Close.
type Service struct {
	shared Store
	local  Store

	ttl           time.Duration
	sharedTimeout time.Duration
	sweepInterval time.Duration
	cleanupBatch  int

	clock  func() time.Time
	logger *zap.Logger
	group  singleflight.Group

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// Option customises the Service.
type Option func(*Service)

// WithDefaultTTL overrides the TTL applied when callers pass a non-positive one.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSharedTimeout bounds every call against the shared tier.
func WithSharedTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.sharedTimeout = timeout
		}
	}
}

// WithSweepInterval controls how often the background eviction runs.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithCleanupBatchSize caps how many expired entries one sweep removes per tier.
func WithCleanupBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.cleanupBatch = size
		}
	}
}

// WithClock injects a deterministic clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger attaches a logger for fail-open and sweep diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs the cache layer. The shared tier is optional: when nil
// the service runs on the local tier alone, which keeps single-instance
// deployments and tests simple.
func NewService(shared Store, local Store, opts ...Option) (*Service, error) {
	if local == nil {
		return nil, errors.New("cache: local store is required")
	}
	s := &Service{
		shared:        shared,
		local:         local,
		ttl:           defaultTTL,
		sharedTimeout: defaultSharedTimeout,
		sweepInterval: defaultSweepInterval,
		cleanupBatch:  defaultCleanupBatch,
		clock:         time.Now,
		logger:        zap.NewNop(),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Get returns the cached value for key. The shared tier is consulted first,
// then the local tier; any shared-tier fault is treated as a miss.
func (s *Service) Get(ctx context.Context, key string) ([]byte, bool) {
	now := s.now()

	if s.shared != nil {
		entry, ok, err := s.sharedGet(ctx, key)
		if err != nil {
			s.logger.Warn("cache shared get failed, treating as miss", zap.String("key", key), zap.Error(err))
		} else if ok && !entry.Expired(now) {
			// Refresh the local accelerator so the next read stays in-process.
			if err := s.local.Set(ctx, entry); err != nil {
				s.logger.Warn("cache local refresh failed", zap.String("key", key), zap.Error(err))
			}
			return entry.Value, true
		}
	}

	entry, ok, err := s.local.Get(ctx, key)
	if err != nil || !ok || entry.Expired(now) {
		return nil, false
	}
	return entry.Value, true
}

// Set writes the value through both tiers with the same TTL.
func (s *Service) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	entry, err := NewEntry(key, value, s.now(), ttl)
	if err != nil {
		return err
	}

	if s.shared != nil {
		if err := s.sharedSet(ctx, entry); err != nil {
			s.logger.Warn("cache shared set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return s.local.Set(ctx, entry)
}

// Delete removes the key from both tiers. Unknown keys are a no-op.
func (s *Service) Delete(ctx context.Context, key string) error {
	if s.shared != nil {
		if err := s.sharedDelete(ctx, key); err != nil {
			s.logger.Warn("cache shared delete failed", zap.String("key", key), zap.Error(err))
		}
	}
	return s.local.Delete(ctx, key)
}

// DeleteByPattern invalidates every key matching a {tenant}:{class}:* pattern
// on both tiers. An exact key (no wildcard) falls back to Delete.
func (s *Service) DeleteByPattern(ctx context.Context, pattern string) error {
	tenantID, class, ok := SplitPattern(pattern)
	if !ok {
		return s.Delete(ctx, pattern)
	}

	if s.shared != nil {
		if err := s.sharedDeleteScope(ctx, tenantID, class); err != nil {
			s.logger.Warn("cache shared invalidation failed",
				zap.String("tenant", tenantID), zap.String("class", class), zap.Error(err))
		}
	}
	return s.local.DeleteByScope(ctx, tenantID, class)
}

// Deduplicate collapses concurrent computations of the same key: while one
// call is in flight, later callers wait for its result instead of recomputing.
// The in-flight registration is dropped once the computation settles, success
// or failure.
func (s *Service) Deduplicate(ctx context.Context, key string, compute func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	value, err, _ := s.group.Do(key, func() (any, error) {
		defer s.group.Forget(key)
		return compute(ctx)
	})
	if err != nil {
		return nil, err
	}
	payload, _ := value.([]byte)
	return payload, nil
}

// Start launches the background eviction loop. It is idempotent.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	s.wg.Add(1)
	go s.sweepLoop()
}

// Close stops background eviction and waits for it to drain.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Service) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Service) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.sharedTimeout)
	defer cancel()

	now := s.now()
	if removed, err := s.local.CleanupExpired(ctx, now, s.cleanupBatch); err != nil {
		s.logger.Warn("cache local sweep failed", zap.Error(err))
	} else if removed > 0 {
		s.logger.Debug("cache local sweep removed entries", zap.Int("count", removed))
	}

	if s.shared == nil {
		return
	}
	if removed, err := s.shared.CleanupExpired(ctx, now, s.cleanupBatch); err != nil {
		s.logger.Warn("cache shared sweep failed", zap.Error(err))
	} else if removed > 0 {
		s.logger.Debug("cache shared sweep removed entries", zap.Int("count", removed))
	}
}

func (s *Service) sharedGet(ctx context.Context, key string) (Entry, bool, error) {
	ctx, cancel := s.boundShared(ctx)
	defer cancel()
	return s.shared.Get(ctx, key)
}

func (s *Service) sharedSet(ctx context.Context, entry Entry) error {
	ctx, cancel := s.boundShared(ctx)
	defer cancel()
	return s.shared.Set(ctx, entry)
}

func (s *Service) sharedDelete(ctx context.Context, key string) error {
	ctx, cancel := s.boundShared(ctx)
	defer cancel()
	return s.shared.Delete(ctx, key)
}

func (s *Service) sharedDeleteScope(ctx context.Context, tenantID, class string) error {
	ctx, cancel := s.boundShared(ctx)
	defer cancel()
	return s.shared.DeleteByScope(ctx, tenantID, class)
}

func (s *Service) boundShared(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.sharedTimeout)
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}
