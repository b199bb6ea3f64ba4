package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Entry captures one cached payload with its time box. Keys follow the
// {tenantID}:{class}:{suffix} convention produced by Key so entries can be
// invalidated per tenant and resource class.
type Entry struct {
	Key       string
	TenantID  string
	Class     string
	Value     []byte
	StoredAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is one cache tier. Implementations must treat deletion of an absent
// key as a no-op.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	DeleteByScope(ctx context.Context, tenantID, class string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// Key builds a tenant-scoped cache key.
func Key(tenantID, class string, parts ...string) string {
	segments := append([]string{strings.TrimSpace(tenantID), strings.TrimSpace(class)}, parts...)
	return strings.Join(segments, ":")
}

// Pattern builds the wildcard form matching every key of a tenant's resource class.
func Pattern(tenantID, class string) string {
	return Key(tenantID, class) + ":*"
}

// SplitKey extracts the tenant and class segments from a structured key.
// Unstructured keys yield empty segments and are only matchable exactly.
func SplitKey(key string) (tenantID, class string) {
	segments := strings.SplitN(key, ":", 3)
	if len(segments) < 2 {
		return "", ""
	}
	return segments[0], segments[1]
}

// SplitPattern parses a {tenant}:{class}:* invalidation pattern. ok is false
// for anything else, including bare keys without a wildcard.
func SplitPattern(pattern string) (tenantID, class string, ok bool) {
	trimmed := strings.TrimSpace(pattern)
	if !strings.HasSuffix(trimmed, ":*") {
		return "", "", false
	}
	trimmed = strings.TrimSuffix(trimmed, ":*")
	segments := strings.Split(trimmed, ":")
	if len(segments) != 2 || segments[0] == "" || segments[1] == "" {
		return "", "", false
	}
	return segments[0], segments[1], true
}

// DocID derives a Firestore-safe document identifier from a cache key.
func DocID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// NewEntry assembles an Entry with tenant/class derived from the key.
func NewEntry(key string, value []byte, now time.Time, ttl time.Duration) (Entry, error) {
	if strings.TrimSpace(key) == "" {
		return Entry{}, fmt.Errorf("cache: key is required")
	}
	if ttl <= 0 {
		return Entry{}, fmt.Errorf("cache: ttl must be positive")
	}
	tenantID, class := SplitKey(key)
	return Entry{
		Key:       key,
		TenantID:  tenantID,
		Class:     class,
		Value:     append([]byte(nil), value...),
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}, nil
}
