package services

import (
	"errors"
	"fmt"

	"github.com/tablehub/api/internal/repositories"
)

// Service errors are sentinels so transports can translate them without
// string matching. Wrapped detail travels via fmt.Errorf("%w: ...").
var (
	// ErrValidation marks malformed or incomplete input.
	ErrValidation = errors.New("services: validation failed")
	// ErrNotFound marks a record that does not exist for the tenant.
	ErrNotFound = errors.New("services: not found")
	// ErrInvalidTransition marks a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("services: invalid status transition")
	// ErrCreationConflict marks order creation that kept colliding on its
	// order number after retries were exhausted.
	ErrCreationConflict = errors.New("services: order creation conflict")
	// ErrConcurrencyConflict marks a write that lost to a concurrent update.
	ErrConcurrencyConflict = errors.New("services: concurrent modification")
	// ErrPreconditionFailed marks a bulk operation rejected because one of
	// its targets is in a state the operation cannot touch.
	ErrPreconditionFailed = errors.New("services: precondition failed")
	// ErrUnavailable marks a dependency outage the caller may retry.
	ErrUnavailable = errors.New("services: temporarily unavailable")
)

// mapRepositoryError translates categorized storage failures into the service
// error taxonomy. Errors the repositories cannot categorize pass through.
func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}
