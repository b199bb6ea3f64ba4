package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != defaultPort {
		t.Fatalf("unexpected port %s", cfg.Server.Port)
	}
	if cfg.Orders.NumberPrefix != "ORD" {
		t.Fatalf("unexpected order prefix %s", cfg.Orders.NumberPrefix)
	}
	if cfg.Orders.CreateAttempts != 5 {
		t.Fatalf("unexpected create attempts %d", cfg.Orders.CreateAttempts)
	}
	if cfg.Cache.DefaultTTL != 5*time.Minute {
		t.Fatalf("unexpected cache ttl %s", cfg.Cache.DefaultTTL)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ORDERS_NUMBER_PREFIX", "TBL")
	t.Setenv("ORDERS_TAX_RATE_BPS", "1000")
	t.Setenv("CACHE_DEFAULT_TTL", "30s")
	t.Setenv("DISPATCHER_WORKERS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("unexpected port %s", cfg.Server.Port)
	}
	if cfg.Orders.NumberPrefix != "TBL" {
		t.Fatalf("unexpected prefix %s", cfg.Orders.NumberPrefix)
	}
	if cfg.Orders.TaxRateBPS != 1000 {
		t.Fatalf("unexpected tax rate %d", cfg.Orders.TaxRateBPS)
	}
	if cfg.Cache.DefaultTTL != 30*time.Second {
		t.Fatalf("unexpected ttl %s", cfg.Cache.DefaultTTL)
	}
	if cfg.Dispatcher.Workers != 8 {
		t.Fatalf("unexpected workers %d", cfg.Dispatcher.Workers)
	}
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("ORDERS_CREATE_ATTEMPTS", "not-a-number")
	t.Setenv("CACHE_SHARED_TIMEOUT", "-5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Orders.CreateAttempts != defaultOrderCreateAttempts {
		t.Fatalf("expected default attempts got %d", cfg.Orders.CreateAttempts)
	}
	if cfg.Cache.SharedTimeout != defaultCacheSharedTimeout {
		t.Fatalf("expected default shared timeout got %s", cfg.Cache.SharedTimeout)
	}
}
