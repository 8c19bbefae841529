// Package errs defines the typed error kinds the ingestion pipeline uses
// to drive retry, logging, and persistence policy, matching the seven
// kinds the design calls for: transient network faults, rate limiting,
// permanent subscription rejections, auth failures, malformed data,
// database faults, and fatal startup faults.
package errs

import "fmt"

// Fields carries the structured context every error kind attaches for
// logging and for the async errors-table writer.
type Fields struct {
	Exchange     string
	Market       string
	Symbol       string
	ConnectionID string
}

type kind struct {
	name   string
	fields Fields
	cause  error
}

func (k *kind) Error() string {
	if k.cause != nil {
		return fmt.Sprintf("%s: %v", k.name, k.cause)
	}
	return k.name
}

func (k *kind) Unwrap() error { return k.cause }

// TransientNetworkError wraps WS closes, timeouts, 5xx REST responses,
// and DNS failures. Retried with exponential backoff; counted as a
// reconnect unless explicitly scheduled.
type TransientNetworkError struct{ *kind }

func NewTransientNetworkError(cause error, f Fields) *TransientNetworkError {
	return &TransientNetworkError{&kind{name: "transient_network_error", fields: f, cause: cause}}
}
func (e *TransientNetworkError) Fields() Fields { return e.kind.fields }

// RateLimitError wraps HTTP 429 or an in-band rate-limit signal. Sleep
// and retry; never counted as a reconnect.
type RateLimitError struct{ *kind }

func NewRateLimitError(cause error, f Fields) *RateLimitError {
	return &RateLimitError{&kind{name: "rate_limit_error", fields: f, cause: cause}}
}
func (e *RateLimitError) Fields() Fields { return e.kind.fields }

// PermanentSubscriptionError wraps an exchange reporting a symbol does
// not exist or is invalid. The symbol is removed from owned-symbols;
// logged at warning level.
type PermanentSubscriptionError struct{ *kind }

func NewPermanentSubscriptionError(cause error, f Fields) *PermanentSubscriptionError {
	return &PermanentSubscriptionError{&kind{name: "permanent_subscription_error", fields: f, cause: cause}}
}
func (e *PermanentSubscriptionError) Fields() Fields { return e.kind.fields }

// AuthError wraps Telegram 4xx bot-api errors or exchange auth failures.
// Logged and continued; never retried, never a global failure.
type AuthError struct{ *kind }

func NewAuthError(cause error, f Fields) *AuthError {
	return &AuthError{&kind{name: "auth_error", fields: f, cause: cause}}
}
func (e *AuthError) Fields() Fields { return e.kind.fields }

// DataError wraps malformed JSON or non-numeric/non-positive fields.
// The record is dropped; logged at debug level.
type DataError struct{ *kind }

func NewDataError(cause error, f Fields) *DataError {
	return &DataError{&kind{name: "data_error", fields: f, cause: cause}}
}
func (e *DataError) Fields() Fields { return e.kind.fields }

// DBError wraps constraint violations and operational database faults.
// The caller rolls back the current short transaction and retries once
// for operational errors.
type DBError struct{ *kind }

func NewDBError(cause error, f Fields) *DBError {
	return &DBError{&kind{name: "db_error", fields: f, cause: cause}}
}
func (e *DBError) Fields() Fields { return e.kind.fields }

// FatalError wraps unrecoverable configuration or missing dependencies
// at startup. The caller aborts process start with a non-zero exit.
type FatalError struct{ *kind }

func NewFatalError(cause error, f Fields) *FatalError {
	return &FatalError{&kind{name: "fatal_error", fields: f, cause: cause}}
}
func (e *FatalError) Fields() Fields { return e.kind.fields }
