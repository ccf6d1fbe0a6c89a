package payments

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ReturnCodeSuccess is the gateway return code for an accepted request or a paid transaction.
const ReturnCodeSuccess = 1

var (
	// ErrInvalidMAC is returned when a callback signature does not match its data.
	ErrInvalidMAC = errors.New("payments: invalid mac")
	// ErrMalformedCallback is returned when callback data cannot be decoded.
	ErrMalformedCallback = errors.New("payments: malformed callback")
	// ErrGatewayUnavailable is returned when the gateway cannot be reached, timed out, or the
	// circuit breaker is open. The payment was not created.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
	// ErrGatewayRejected is returned when the gateway answered but refused the request.
	ErrGatewayRejected = errors.New("payments: gateway rejected request")
)

// GatewayError carries the gateway's error payload.
type GatewayError struct {
	ReturnCode       int
	ReturnMessage    string
	SubReturnCode    int
	SubReturnMessage string
	HTTPStatus       int
	Err              error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.ReturnCode != 0 || e.ReturnMessage != "" {
		return fmt.Sprintf("payments: gateway returned %d/%d: %s %s", e.ReturnCode, e.SubReturnCode, e.ReturnMessage, e.SubReturnMessage)
	}
	if e.Err != nil {
		return "payments: gateway call failed: " + e.Err.Error()
	}
	return fmt.Sprintf("payments: gateway http status %d", e.HTTPStatus)
}

func (e *GatewayError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := []error{ErrGatewayUnavailable}
	if e.rejected() {
		errs = []error{ErrGatewayRejected}
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// rejected reports whether the gateway processed the request and declined it.
func (e *GatewayError) rejected() bool {
	return e.ReturnCode != 0 && e.ReturnCode != ReturnCodeSuccess
}

// Item is a line forwarded to the gateway for display on its payment page.
type Item struct {
	VariationID string `json:"itemid"`
	Name        string `json:"itemname"`
	Price       int64  `json:"itemprice"`
	Quantity    int    `json:"itemquantity"`
}

// CreateRequest describes a payment to create at the gateway.
type CreateRequest struct {
	TransID     string
	AppUser     string
	Amount      int64
	Description string
	Items       []Item
	EmbedData   map[string]string
	RequestedAt time.Time
}

// CreateResult is the synchronous gateway answer for an accepted request.
type CreateResult struct {
	TransID    string
	OrderURL   string
	TransToken string
	Message    string
}

// CallbackEvent is the decoded content of a verified callback.
type CallbackEvent struct {
	TransID        string
	ReturnCode     int
	GatewayTransID string
	Amount         int64
}

// Succeeded reports whether the callback reports a paid transaction.
func (e CallbackEvent) Succeeded() bool {
	return e.ReturnCode == ReturnCodeSuccess
}

// CallbackPayload is the raw body posted by the gateway.
type CallbackPayload struct {
	Data string `json:"data"`
	MAC  string `json:"mac"`
}

// Gateway creates payments at the external provider and verifies its callbacks.
type Gateway interface {
	CreatePayment(ctx context.Context, req CreateRequest) (CreateResult, error)
	ParseCallback(payload CallbackPayload) (CallbackEvent, error)
	NewTransID(now time.Time) string
}
