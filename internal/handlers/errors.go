package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/furnishop/api/internal/platform/httpx"
	"github.com/furnishop/api/internal/services"
)

// writeServiceError maps service errors onto the JSON error envelope. Typed errors contribute
// details so clients can react without parsing messages.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	var (
		stockErr       *services.StockError
		unavailableErr *services.UnavailableError
		promoErr       *services.PromotionError
		transitionErr  *services.TransitionError
	)
	switch {
	case errors.Is(err, services.ErrNothingToAdd):
		httpx.WriteError(ctx, w, httpx.NewError("nothing_to_add", "cart already holds all remaining stock", http.StatusConflict))
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict).WithDetails(map[string]any{
			"variationId": stockErr.VariationID,
			"requested":   stockErr.Requested,
			"available":   stockErr.Available,
		}))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.As(err, &unavailableErr):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", err.Error(), http.StatusConflict).WithDetails(map[string]any{
			"variationIds": unavailableErr.VariationIDs,
		}))
	case errors.Is(err, services.ErrProductUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("product_unavailable", err.Error(), http.StatusConflict))
	case errors.As(err, &promoErr):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_rejected", err.Error(), http.StatusBadRequest).WithDetails(map[string]any{
			"code":   promoErr.Code,
			"reason": string(promoErr.Reason),
		}))
	case errors.As(err, &transitionErr):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict).WithDetails(map[string]any{
			"from": string(transitionErr.From),
			"to":   string(transitionErr.To),
		}))
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrNoChange):
		httpx.WriteError(ctx, w, httpx.NewError("no_change", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrInvariantViolation):
		httpx.WriteError(ctx, w, httpx.NewError("invariant_violation", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrConflict):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", "resource was modified concurrently; retry", http.StatusConflict))
	case errors.Is(err, services.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("validation_error", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "operation not permitted", http.StatusForbidden))
	case errors.Is(err, services.ErrGatewayFailure):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_error", err.Error(), http.StatusBadGateway))
	case errors.Is(err, services.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "service temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError("unavailable", name+" service is unavailable", http.StatusServiceUnavailable))
}
