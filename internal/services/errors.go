package services

import (
	"errors"
	"fmt"

	"github.com/furnishop/api/internal/repositories"
)

var (
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation error")
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates live stock is below the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrProductUnavailable indicates a variation no longer resolves to a sellable product.
	ErrProductUnavailable = errors.New("product unavailable")
	// ErrInvalidTransition indicates the requested status change is not in the state table.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNoChange indicates the requested status equals the current status.
	ErrNoChange = errors.New("no change")
	// ErrInvalidSignature indicates a gateway callback failed MAC verification.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrGatewayFailure indicates the payment gateway failed or refused the request.
	ErrGatewayFailure = errors.New("gateway error")
	// ErrInvariantViolation indicates the operation would break a permanent rule.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrForbidden indicates the caller may not perform the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable indicates a backing store failed.
	ErrUnavailable = errors.New("service unavailable")
	// ErrConflict indicates a concurrent writer changed the entity first.
	ErrConflict = errors.New("conflict")
	// ErrPromotionRejected indicates the coupon cannot be applied.
	ErrPromotionRejected = errors.New("promotion rejected")
)

var (
	// ErrEmptyCart is returned when checking out a cart without items.
	ErrEmptyCart = fmt.Errorf("%w: cart is empty", ErrValidation)
	// ErrNothingToAdd is returned when the cart already holds all remaining stock.
	ErrNothingToAdd = fmt.Errorf("%w: nothing left to add", ErrInsufficientStock)
	// ErrInvalidReference is returned when a variation id does not resolve to a sellable product.
	ErrInvalidReference = fmt.Errorf("%w: invalid variation reference", ErrNotFound)
	// ErrOrderNotFound is returned when an order lookup fails.
	ErrOrderNotFound = fmt.Errorf("%w: order", ErrNotFound)
	// ErrCartNotFound is returned when the caller has no cart.
	ErrCartNotFound = fmt.Errorf("%w: cart", ErrNotFound)
	// ErrWrongPaymentMethod is returned when initiating online payment for another method.
	ErrWrongPaymentMethod = fmt.Errorf("%w: order is not paid online", ErrValidation)
)

// StockError reports a shortfall for one variation.
type StockError struct {
	VariationID string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for variation %s: requested %d, available %d", e.VariationID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// UnavailableError names the variations that no longer resolve to a sellable product.
type UnavailableError struct {
	VariationIDs []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("product unavailable: %v", e.VariationIDs)
}

func (e *UnavailableError) Unwrap() error { return ErrProductUnavailable }

// PromotionRejection enumerates why a coupon was refused.
type PromotionRejection string

const (
	PromotionUnknown      PromotionRejection = "unknown_code"
	PromotionInactive     PromotionRejection = "inactive"
	PromotionNotStarted   PromotionRejection = "not_started"
	PromotionExpired      PromotionRejection = "expired"
	PromotionExhausted    PromotionRejection = "usage_exhausted"
	PromotionBelowMinimum PromotionRejection = "below_minimum"
)

// PromotionError reports a rejected coupon.
type PromotionError struct {
	Code   string
	Reason PromotionRejection
}

func (e *PromotionError) Error() string {
	return fmt.Sprintf("promotion %s rejected: %s", e.Code, e.Reason)
}

func (e *PromotionError) Unwrap() error { return ErrPromotionRejected }

// TransitionError reports a rejected status change.
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func isRepoNotFound(err error) bool {
	return repositories.IsNotFound(err)
}

func isRepoConflict(err error) bool {
	return repositories.IsConflict(err)
}

// translateRepoError maps persistence failures to service sentinels, keeping the cause.
func translateRepoError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	switch {
	case repositories.IsNotFound(err):
		if notFound == nil {
			notFound = ErrNotFound
		}
		return fmt.Errorf("%w: %v", notFound, err)
	case repositories.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
