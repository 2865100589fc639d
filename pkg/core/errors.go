// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for auction and ledger outcomes. Handlers map these to
// wire error kinds via KindOf.
var (
	ErrSchemaInvalid       = errors.New("schema invalid")
	ErrSignatureInvalid    = errors.New("signature invalid")
	ErrTimestampOutOfRange = errors.New("timestamp out of range")
	ErrNonceDuplicate      = errors.New("nonce already used")
	ErrNonceExpired        = errors.New("nonce expired")
	ErrUnknownAuction      = errors.New("unknown auction")
	ErrWindowClosed        = errors.New("auction window closed")
	ErrNotInvited          = errors.New("bidder not invited")
	ErrDuplicateBid        = errors.New("duplicate bid")
	ErrConflict            = errors.New("auction id already in use")
	ErrTerminalState       = errors.New("record in terminal state")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrInternal            = errors.New("internal error")
)

// Kind is the wire-level error discriminator carried in error bodies.
type Kind string

const (
	KindSchemaInvalid       Kind = "schema_invalid"
	KindSignatureInvalid    Kind = "signature_invalid"
	KindTimestampOutOfRange Kind = "timestamp_out_of_range"
	KindNonceDuplicate      Kind = "nonce_duplicate"
	KindNonceExpired        Kind = "nonce_expired"
	KindUnknownAuction      Kind = "unknown_auction"
	KindWindowClosed        Kind = "window_closed"
	KindNotInvited          Kind = "not_invited"
	KindDuplicateBid        Kind = "duplicate_bid"
	KindConflict            Kind = "conflict"
	KindTerminalState       Kind = "terminal_state"
	KindStorageUnavailable  Kind = "storage_unavailable"
	KindRateLimited         Kind = "rate_limited"
	KindInternal            Kind = "internal"
)

var kindByErr = []struct {
	err  error
	kind Kind
}{
	{ErrSchemaInvalid, KindSchemaInvalid},
	{ErrSignatureInvalid, KindSignatureInvalid},
	{ErrTimestampOutOfRange, KindTimestampOutOfRange},
	{ErrNonceDuplicate, KindNonceDuplicate},
	{ErrNonceExpired, KindNonceExpired},
	{ErrUnknownAuction, KindUnknownAuction},
	{ErrWindowClosed, KindWindowClosed},
	{ErrNotInvited, KindNotInvited},
	{ErrDuplicateBid, KindDuplicateBid},
	{ErrConflict, KindConflict},
	{ErrTerminalState, KindTerminalState},
	{ErrStorageUnavailable, KindStorageUnavailable},
}

// KindOf resolves err to a wire kind, unwrapping through fmt.Errorf chains.
// Unrecognized errors funnel to KindInternal.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	for _, m := range kindByErr {
		if errors.Is(err, m.err) {
			return m.kind
		}
	}
	return KindInternal
}

// HTTPStatus maps a kind to its response status code. Application-level
// outcomes such as no_bid never reach this path; they are 200s.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindSchemaInvalid, KindConflict, KindTerminalState:
		return http.StatusBadRequest
	case KindSignatureInvalid, KindTimestampOutOfRange, KindNonceDuplicate,
		KindNonceExpired, KindWindowClosed, KindNotInvited, KindDuplicateBid:
		return http.StatusUnauthorized
	case KindUnknownAuction:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// APIError is an error carrying its wire kind and a caller-safe message.
type APIError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Errf builds an APIError with a formatted message.
func Errf(kind Kind, format string, args ...any) *APIError {
	return &APIError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsAPIError coerces any error into an APIError suitable for a response
// body. Non-API errors become KindInternal with the sentinel's text when
// one matches, or a generic message otherwise.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	kind := KindOf(err)
	if kind == KindInternal {
		return &APIError{Kind: KindInternal, Message: "internal error"}
	}
	return &APIError{Kind: kind, Message: err.Error()}
}
