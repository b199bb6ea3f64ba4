package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/tablehub/api/internal/platform/httpx"
	"github.com/tablehub/api/internal/services"
)

// writeServiceError translates service sentinels into the JSON error
// envelope. Unrecognized errors surface as opaque 500s.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCreationConflict):
		httpx.WriteError(ctx, w, httpx.NewError("creation_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrConcurrencyConflict):
		httpx.WriteError(ctx, w, httpx.NewError("concurrent_modification", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPreconditionFailed):
		httpx.WriteError(ctx, w, httpx.NewError("precondition_failed", err.Error(), http.StatusPreconditionFailed))
	case errors.Is(err, services.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("temporarily_unavailable", "a backing service is unavailable, retry shortly", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
