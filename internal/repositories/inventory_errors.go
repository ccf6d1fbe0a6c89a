package repositories

import (
	"errors"
	"fmt"
)

// InventoryErrorCode enumerates repository error causes for stock operations.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInsufficientStock indicates the requested quantity exceeds availability.
	InventoryErrorInsufficientStock InventoryErrorCode = "inventory_insufficient_stock"
	// InventoryErrorVariationNotFound indicates no stock record exists for the variation.
	InventoryErrorVariationNotFound InventoryErrorCode = "inventory_variation_not_found"
	// InventoryErrorInvalidQuantity indicates a non-positive quantity.
	InventoryErrorInvalidQuantity InventoryErrorCode = "inventory_invalid_quantity"
)

// InventoryError wraps stock failures with machine readable codes.
type InventoryError struct {
	VariationID string
	Code        InventoryErrorCode
	Message     string
	Err         error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.VariationID != "" {
		return fmt.Sprintf("inventory %s: %s", e.VariationID, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, variationID string, err error) *InventoryError {
	message := string(code)
	if err != nil {
		message = err.Error()
	}
	return &InventoryError{
		VariationID: variationID,
		Code:        code,
		Message:     message,
		Err:         err,
	}
}

// InventoryErrorCodeOf extracts the inventory code carried by err, if any.
func InventoryErrorCodeOf(err error) (InventoryErrorCode, bool) {
	var invErr *InventoryError
	if errors.As(err, &invErr) && invErr != nil {
		return invErr.Code, true
	}
	return "", false
}
