package cache

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "cache_entries"

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name used to store cache entries.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// FirestoreStore implements the shared cache tier backed by Google Cloud
// Firestore, reachable by every server instance.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore constructs a Firestore-backed shared cache tier.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) (*FirestoreStore, error) {
	if client == nil {
		return nil, errors.New("cache: firestore client is required")
	}
	store := &FirestoreStore{
		client:     client,
		collection: defaultCollection,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Get implements the Store interface.
func (s *FirestoreStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	snap, err := s.client.Collection(s.collection).Doc(DocID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	var record firestoreEntry
	if err := snap.DataTo(&record); err != nil {
		return Entry{}, false, err
	}
	return record.toEntry(), true, nil
}

// Set implements the Store interface.
func (s *FirestoreStore) Set(ctx context.Context, entry Entry) error {
	ref := s.client.Collection(s.collection).Doc(DocID(entry.Key))
	_, err := ref.Set(ctx, newFirestoreEntry(entry))
	return err
}

// Delete implements the Store interface. Deleting an absent key is a no-op.
func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.Collection(s.collection).Doc(DocID(key)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// DeleteByScope removes every entry belonging to the tenant's resource class.
func (s *FirestoreStore) DeleteByScope(ctx context.Context, tenantID, class string) error {
	query := s.client.Collection(s.collection).
		Where("tenant", "==", tenantID).
		Where("class", "==", class)
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	_, err = batch.Commit(ctx)
	return err
}

// CleanupExpired removes expired cache documents up to the provided limit.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	now = now.UTC()
	if limit <= 0 {
		limit = 100
	}

	query := s.client.Collection(s.collection).Where("expires_at", "<=", now).Limit(limit)
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(docs), nil
}

type firestoreEntry struct {
	Key       string    `firestore:"key"`
	Tenant    string    `firestore:"tenant"`
	Class     string    `firestore:"class"`
	Value     []byte    `firestore:"value"`
	StoredAt  time.Time `firestore:"stored_at"`
	ExpiresAt time.Time `firestore:"expires_at"`
}

func newFirestoreEntry(entry Entry) firestoreEntry {
	return firestoreEntry{
		Key:       entry.Key,
		Tenant:    entry.TenantID,
		Class:     entry.Class,
		Value:     entry.Value,
		StoredAt:  entry.StoredAt,
		ExpiresAt: entry.ExpiresAt,
	}
}

func (r firestoreEntry) toEntry() Entry {
	return Entry{
		Key:       r.Key,
		TenantID:  r.Tenant,
		Class:     r.Class,
		Value:     r.Value,
		StoredAt:  r.StoredAt,
		ExpiresAt: r.ExpiresAt,
	}
}
