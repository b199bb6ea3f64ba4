package services

import (
	"fmt"

	"github.com/tablehub/api/internal/domain"
)

// statusTransitions captures the order lifecycle. An order moves forward
// through received, preparing, ready and served, and every non-terminal
// status may cancel. Terminal statuses accept nothing.
var statusTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusReceived:  {domain.OrderStatusPreparing, domain.OrderStatusCancelled},
	domain.OrderStatusPreparing: {domain.OrderStatusReady, domain.OrderStatusCancelled},
	domain.OrderStatusReady:     {domain.OrderStatusServed, domain.OrderStatusCancelled},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to domain.OrderStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from the given one.
func AllowedTransitions(from domain.OrderStatus) []domain.OrderStatus {
	allowed := statusTransitions[from]
	out := make([]domain.OrderStatus, len(allowed))
	copy(out, allowed)
	return out
}

// ValidateTransition checks a requested status change and returns an
// ErrInvalidTransition naming both statuses when the lifecycle forbids it.
func ValidateTransition(from, to domain.OrderStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
