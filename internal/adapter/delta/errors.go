package delta

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"copytrade/internal/domain"
)

// Exchange error codes that carry meaning for the copier
const (
	codeExpiredSignature = "expired_signature"
	codeInsufficientMarg = "insufficient_margin"
)

var authCodes = map[string]bool{
	codeExpiredSignature:             true,
	"invalid_signature":              true,
	"signature mismatch":             true,
	"invalidapikey":                  true,
	"invalid_api_key":                true,
	"unauthorizedapiaccess":          true,
	"ip_not_whitelisted_for_api_key": true,
}

var symbolCodes = map[string]bool{
	"invalid_contract":  true,
	"product_not_found": true,
	"invalid_product":   true,
	"unknown_symbol":    true,
	"contract_expired":  true,
}

// classify maps an HTTP status and exchange error code onto a domain error kind
func classify(op string, status int, code, message string) *domain.ExchangeError {
	e := &domain.ExchangeError{Op: op, Code: code, Message: message, HTTPStatus: status}

	normalized := strings.ToLower(strings.TrimSpace(code))
	switch {
	case authCodes[normalized]:
		e.Kind = domain.ErrAuthentication
	case normalized == codeInsufficientMarg:
		e.Kind = domain.ErrInsufficientMargin
	case symbolCodes[normalized]:
		e.Kind = domain.ErrInvalidSymbol
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = domain.ErrAuthentication
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		e.Kind = domain.ErrNetwork
	default:
		e.Kind = domain.ErrUnknownExchange
	}
	return e
}

// classifyTransport wraps a failure that happened before a response arrived
func classifyTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &domain.ExchangeError{Op: op, Kind: domain.ErrNetwork, Message: err.Error()}
}

func malformed(op, message string) error {
	return &domain.ExchangeError{Op: op, Kind: domain.ErrMalformedResponse, Message: message}
}
