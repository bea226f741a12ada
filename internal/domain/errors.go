package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by the exchange adapter, the sizer and persistence.
// Callers branch on them with errors.Is.
var (
	ErrAuthentication     = errors.New("authentication error")
	ErrNetwork            = errors.New("network error")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrInvalidSymbol      = errors.New("invalid symbol")
	ErrUnknownExchange    = errors.New("unknown exchange error")
	ErrMalformedResponse  = errors.New("malformed exchange response")

	ErrPricing = errors.New("pricing error")

	ErrPersistence         = errors.New("persistence error")
	ErrForeignKeyViolation = errors.New("foreign key violation")

	ErrNotFound        = errors.New("not found")
	ErrInvalidFollower = errors.New("invalid follower")
	ErrFollowerBusy    = errors.New("follower has an operation in flight")
	ErrBrokerInactive  = errors.New("broker account is not active")
)

// ExchangeError is a classified failure returned by the exchange
type ExchangeError struct {
	Kind       error
	Code       string
	Message    string
	HTTPStatus int
	Op         string
}

func (e *ExchangeError) Error() string {
	msg := e.Kind.Error()
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the kind so errors.Is(err, ErrAuthentication) works
func (e *ExchangeError) Unwrap() error {
	return e.Kind
}

// Retryable reports whether err is a transport-level failure worth retrying
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// ErrorKind maps err to the short label stored on failed rows and returned by the API
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return "authentication_error"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	case errors.Is(err, ErrInsufficientMargin):
		return "insufficient_margin"
	case errors.Is(err, ErrInvalidSymbol):
		return "invalid_symbol"
	case errors.Is(err, ErrPricing):
		return "pricing_error"
	case errors.Is(err, ErrForeignKeyViolation), errors.Is(err, ErrPersistence):
		return "persistence_error"
	case errors.Is(err, ErrInvalidFollower):
		return "invalid_follower"
	}
	return "unknown"
}
