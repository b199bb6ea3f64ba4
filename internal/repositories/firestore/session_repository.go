package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tablehub/api/internal/domain"
	pfirestore "github.com/tablehub/api/internal/platform/firestore"
)

const customerSessionsCollection = "customer_sessions"

type customerSessionDocument struct {
	TenantID  string    `firestore:"tenantId"`
	TableRef  string    `firestore:"tableRef"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CustomerSessionRepository persists ephemeral guest sessions in Firestore.
// Session documents are keyed per tenant so identifiers can repeat across
// tenants.
type CustomerSessionRepository struct {
	provider *pfirestore.Provider
}

// NewCustomerSessionRepository constructs a Firestore-backed session repository.
func NewCustomerSessionRepository(provider *pfirestore.Provider) (*CustomerSessionRepository, error) {
	if provider == nil {
		return nil, errors.New("customer session repository requires firestore provider")
	}
	return &CustomerSessionRepository{provider: provider}, nil
}

// Ensure creates the session when absent and refreshes its activity timestamp
// otherwise.
func (r *CustomerSessionRepository) Ensure(ctx context.Context, tenantID, sessionID, tableRef string) error {
	if r == nil || r.provider == nil {
		return errors.New("customer session repository not initialised")
	}
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("customer session repository: session id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := client.Collection(customerSessionsCollection).Doc(sessionDocID(tenantID, sessionID))
	now := time.Now().UTC()

	snapshot, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		_, err = ref.Create(ctx, customerSessionDocument{
			TenantID:  tenantID,
			TableRef:  tableRef,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if pfirestore.IsAlreadyExists(err) {
			// Lost a create race; the session exists, which is all Ensure
			// guarantees.
			return nil
		}
		return pfirestore.WrapError("sessions.ensure", err)
	}
	if err != nil {
		return pfirestore.WrapError("sessions.ensure", err)
	}

	var doc customerSessionDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return fmt.Errorf("firestore sessions decode %s: %w", sessionID, err)
	}
	if doc.TenantID != tenantID {
		return pfirestore.NotFoundError("sessions.ensure", sessionID)
	}

	_, err = ref.Update(ctx, []firestore.Update{{Path: "updatedAt", Value: now}})
	return pfirestore.WrapError("sessions.ensure", err)
}

// FindByID loads the session, scoped to the tenant.
func (r *CustomerSessionRepository) FindByID(ctx context.Context, tenantID, sessionID string) (domain.CustomerSession, error) {
	if r == nil || r.provider == nil {
		return domain.CustomerSession{}, errors.New("customer session repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CustomerSession{}, err
	}
	snapshot, err := client.Collection(customerSessionsCollection).Doc(sessionDocID(tenantID, sessionID)).Get(ctx)
	if err != nil {
		return domain.CustomerSession{}, pfirestore.WrapError("sessions.get", err)
	}

	var doc customerSessionDocument
	if err := snapshot.DataTo(&doc); err != nil {
		return domain.CustomerSession{}, fmt.Errorf("firestore sessions decode %s: %w", sessionID, err)
	}
	if doc.TenantID != tenantID {
		return domain.CustomerSession{}, pfirestore.NotFoundError("sessions.get", sessionID)
	}
	return domain.CustomerSession{
		ID:        sessionID,
		TenantID:  doc.TenantID,
		TableRef:  doc.TableRef,
		CreatedAt: doc.CreatedAt,
	}, nil
}

// Release deletes the session. Deleting a session that is already gone is a
// no-op.
func (r *CustomerSessionRepository) Release(ctx context.Context, tenantID, sessionID string) error {
	if r == nil || r.provider == nil {
		return errors.New("customer session repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collection(customerSessionsCollection).Doc(sessionDocID(tenantID, sessionID)).Delete(ctx)
	return pfirestore.WrapError("sessions.release", err)
}

func sessionDocID(tenantID, sessionID string) string {
	return tenantID + "_" + sessionID
}
