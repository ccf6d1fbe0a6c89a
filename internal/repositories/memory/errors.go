package memory

import "errors"

var (
	errMissingID        = errors.New("id is required")
	errDuplicateID      = errors.New("duplicate order id")
	errDuplicateCode    = errors.New("duplicate order code")
	errDuplicateTransID = errors.New("duplicate gateway transaction id")
	errStaleOrder       = errors.New("order state changed")
	errUsageExhausted   = errors.New("usage limit reached")
)
