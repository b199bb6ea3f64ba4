package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultOrdersPrefix          = "ORD"
	defaultOrdersTaxRateBPS      = 800
	defaultOrderCreateAttempts   = 5
	defaultOrderCreateBaseDelay  = 50 * time.Millisecond
	defaultOrderCreateMaxElapsed = 5 * time.Second
	defaultBulkMaxBatch          = 100
	defaultBulkChunkSize         = 20

	defaultCacheTTL            = 5 * time.Minute
	defaultCacheSharedTimeout  = 2 * time.Second
	defaultCacheSweepInterval  = time.Minute
	defaultCacheCleanupBatch   = 200
	defaultDispatcherQueueSize = 256
	defaultDispatcherWorkers   = 4
	defaultRepositoryTimeout   = 10 * time.Second
	defaultEventsOrderTopic    = "order-events"
	defaultEventsNotifyTopic   = "notifications"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firestore  FirestoreConfig
	PubSub     PubSubConfig
	Cache      CacheConfig
	Orders     OrdersConfig
	Dispatcher DispatcherConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Timeout      time.Duration
}

// PubSubConfig names the topics side effects are published to.
type PubSubConfig struct {
	ProjectID         string
	OrderEventsTopic  string
	NotificationTopic string
}

// CacheConfig tunes the two-tier cache service.
type CacheConfig struct {
	DefaultTTL       time.Duration
	SharedTimeout    time.Duration
	SweepInterval    time.Duration
	CleanupBatchSize int
}

// OrdersConfig controls order numbering, pricing, and the creation retry loop.
type OrdersConfig struct {
	NumberPrefix     string
	TaxRateBPS       int64
	CreateAttempts   int
	CreateBaseDelay  time.Duration
	CreateMaxElapsed time.Duration
	BulkMaxBatch     int
	BulkChunkSize    int
}

// DispatcherConfig bounds the side-effect worker pool.
type DispatcherConfig struct {
	QueueSize int
	Workers   int
}

// Load reads configuration from the environment, optionally overlaying a .env
// file when present. Environment variables always win over file values.
func Load() (Config, error) {
	fileValues, err := readEnvFile(defaultEnvFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) string {
		if value, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(value)
		}
		return strings.TrimSpace(fileValues[key])
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         valueOrDefault(lookup("PORT"), defaultPort),
			ReadTimeout:  durationOrDefault(lookup("SERVER_READ_TIMEOUT"), defaultReadTimeout),
			WriteTimeout: durationOrDefault(lookup("SERVER_WRITE_TIMEOUT"), defaultWriteTimeout),
			IdleTimeout:  durationOrDefault(lookup("SERVER_IDLE_TIMEOUT"), defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    lookup("FIRESTORE_PROJECT_ID"),
			EmulatorHost: lookup("FIRESTORE_EMULATOR_HOST"),
			Timeout:      durationOrDefault(lookup("FIRESTORE_TIMEOUT"), defaultRepositoryTimeout),
		},
		PubSub: PubSubConfig{
			ProjectID:         lookup("PUBSUB_PROJECT_ID"),
			OrderEventsTopic:  valueOrDefault(lookup("PUBSUB_ORDER_EVENTS_TOPIC"), defaultEventsOrderTopic),
			NotificationTopic: valueOrDefault(lookup("PUBSUB_NOTIFICATION_TOPIC"), defaultEventsNotifyTopic),
		},
		Cache: CacheConfig{
			DefaultTTL:       durationOrDefault(lookup("CACHE_DEFAULT_TTL"), defaultCacheTTL),
			SharedTimeout:    durationOrDefault(lookup("CACHE_SHARED_TIMEOUT"), defaultCacheSharedTimeout),
			SweepInterval:    durationOrDefault(lookup("CACHE_SWEEP_INTERVAL"), defaultCacheSweepInterval),
			CleanupBatchSize: intOrDefault(lookup("CACHE_CLEANUP_BATCH_SIZE"), defaultCacheCleanupBatch),
		},
		Orders: OrdersConfig{
			NumberPrefix:     valueOrDefault(lookup("ORDERS_NUMBER_PREFIX"), defaultOrdersPrefix),
			TaxRateBPS:       int64OrDefault(lookup("ORDERS_TAX_RATE_BPS"), defaultOrdersTaxRateBPS),
			CreateAttempts:   intOrDefault(lookup("ORDERS_CREATE_ATTEMPTS"), defaultOrderCreateAttempts),
			CreateBaseDelay:  durationOrDefault(lookup("ORDERS_CREATE_BASE_DELAY"), defaultOrderCreateBaseDelay),
			CreateMaxElapsed: durationOrDefault(lookup("ORDERS_CREATE_MAX_ELAPSED"), defaultOrderCreateMaxElapsed),
			BulkMaxBatch:     intOrDefault(lookup("ORDERS_BULK_MAX_BATCH"), defaultBulkMaxBatch),
			BulkChunkSize:    intOrDefault(lookup("ORDERS_BULK_CHUNK_SIZE"), defaultBulkChunkSize),
		},
		Dispatcher: DispatcherConfig{
			QueueSize: intOrDefault(lookup("DISPATCHER_QUEUE_SIZE"), defaultDispatcherQueueSize),
			Workers:   intOrDefault(lookup("DISPATCHER_WORKERS"), defaultDispatcherWorkers),
		},
	}

	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	return cfg, nil
}

func readEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

func valueOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func durationOrDefault(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func intOrDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func int64OrDefault(value string, fallback int64) int64 {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
