// Package tenant carries the resolved tenant identity through the core as an
// explicit, strongly typed value. The core never resolves tenancy itself: the
// transport layer authenticates the caller and hands the identity in.
package tenant

import (
	"errors"
	"strings"
)

// ErrMissingTenant indicates a call reached the core without a resolved tenant.
var ErrMissingTenant = errors.New("tenant: identity is required")

// Context identifies the tenant an operation acts on behalf of, plus the
// optional actor recorded in order status history. The actor reference is
// opaque to the core and never validated.
type Context struct {
	TenantID string
	ActorRef string
}

// New constructs a tenant context from the already-authorized identifiers.
func New(tenantID, actorRef string) Context {
	return Context{
		TenantID: strings.TrimSpace(tenantID),
		ActorRef: strings.TrimSpace(actorRef),
	}
}

// Validate reports whether the context names a tenant.
func (c Context) Validate() error {
	if strings.TrimSpace(c.TenantID) == "" {
		return ErrMissingTenant
	}
	return nil
}

// Actor returns the actor reference as an optional pointer for status history
// entries, nil when the caller supplied none.
func (c Context) Actor() *string {
	trimmed := strings.TrimSpace(c.ActorRef)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
