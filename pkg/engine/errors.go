package engine

import (
	"context"
	"errors"

	"github.com/authrail/authrail-go/pkg/ledger"
)

var (
	// ErrAuthorizationAlreadyUsed is returned when the (authorizer, nonce)
	// pair was consumed by an earlier transfer, receive, or cancellation.
	ErrAuthorizationAlreadyUsed = errors.New("authorization already used")

	// ErrAuthorizationNotYetValid is returned when the current time is
	// before validAfter.
	ErrAuthorizationNotYetValid = errors.New("authorization not yet valid")

	// ErrAuthorizationExpired is returned when the current time has reached
	// validBefore. The upper bound is exclusive.
	ErrAuthorizationExpired = errors.New("authorization expired")

	// ErrInvalidSignature is returned when signature recovery fails or the
	// recovered address does not match the claimed authorizer.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrCallerNotPayee is returned by receive operations when the caller is
	// not the authorization's payee.
	ErrCallerNotPayee = errors.New("caller is not the payee")

	// ErrInvalidAuthorization is returned for structurally incomplete input,
	// such as nil field values. Wire-level validation normally catches this
	// first.
	ErrInvalidAuthorization = errors.New("invalid authorization")
)

// Code maps engine and ledger errors to stable machine-readable codes used
// in API responses and metrics labels. A nil error maps to "success",
// unrecognized errors to "internal".
func Code(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAuthorizationAlreadyUsed):
		return "authorization_already_used"
	case errors.Is(err, ErrAuthorizationNotYetValid):
		return "authorization_not_yet_valid"
	case errors.Is(err, ErrAuthorizationExpired):
		return "authorization_expired"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrCallerNotPayee):
		return "caller_not_payee"
	case errors.Is(err, ErrInvalidAuthorization):
		return "invalid_authorization"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrNegativeValue):
		return "negative_value"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
