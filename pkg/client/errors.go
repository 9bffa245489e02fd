package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/authrail/authrail-go/pkg/engine"
	"github.com/authrail/authrail-go/pkg/ledger"
)

// sentinelByCode is the inverse of engine.Code for codes that have a
// sentinel. Kept in sync by a round-trip test.
var sentinelByCode = map[string]error{
	"authorization_already_used":  engine.ErrAuthorizationAlreadyUsed,
	"authorization_not_yet_valid": engine.ErrAuthorizationNotYetValid,
	"authorization_expired":       engine.ErrAuthorizationExpired,
	"invalid_signature":           engine.ErrInvalidSignature,
	"caller_not_payee":            engine.ErrCallerNotPayee,
	"invalid_authorization":       engine.ErrInvalidAuthorization,
	"insufficient_balance":        ledger.ErrInsufficientBalance,
	"negative_value":              ledger.ErrNegativeValue,
}

// serverError carries the server's message while unwrapping to the engine
// sentinel, so errors.Is works without duplicating the condition in the
// message text.
type serverError struct {
	sentinel error
	message  string
}

func (e *serverError) Error() string { return e.message }
func (e *serverError) Unwrap() error { return e.sentinel }

// APIError is a server rejection with no engine sentinel, such as
// rate_limited or invalid_request.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server rejected request (%s): %s", e.Code, e.Message)
}

// TransportError is a failure to complete the HTTP exchange at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport failure: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying: transport failures,
// rate limiting, and server-side 5xx. Protocol rejections are final.
func IsTransient(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests ||
			apiErr.Status >= http.StatusInternalServerError
	}
	return false
}
