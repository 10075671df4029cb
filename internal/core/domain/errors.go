package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAuthenticationRequired is returned when no credential is present where one is mandatory.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrInvalidCredential is returned when the issuer rejects a presented credential
	// (expired, malformed, revoked).
	ErrInvalidCredential = errors.New("invalid or expired credential")

	// ErrForbidden is returned when the credential is valid but the principal may not act:
	// inactive account, missing tenant assignment, missing capability.
	ErrForbidden = errors.New("access forbidden")

	// ErrUpstreamUnavailable covers network, timeout and decoding failures talking to the issuer.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrBadLogin is returned when the issuer rejects a username/password pair.
	ErrBadLogin = errors.New("invalid username or password")

	// ErrSessionNotFound is returned by credential persistence when no record exists.
	ErrSessionNotFound = errors.New("session not found")
)

// ValidationError is a local input error raised before any network call.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// NewValidationError builds a ValidationError whose message aggregates the field messages.
func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Message: JoinFieldMessages(fields), Fields: fields}
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AccessDenied is a Forbidden outcome. Reason is shown to the caller; Code labels it
// in metrics.
type AccessDenied struct {
	Code   string
	Reason string
}

func (e *AccessDenied) Error() string { return "access forbidden: " + e.Reason }

func (e *AccessDenied) Is(target error) bool { return target == ErrForbidden }

// IssuerError is a failure reported by the upstream issuer. Kind is one of the sentinels above.
type IssuerError struct {
	Op      string
	Status  int
	Message string
	Fields  map[string]string
	Kind    error
}

func (e *IssuerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *IssuerError) Unwrap() error { return e.Kind }

// UserMessage returns the human-readable text suitable for the frontend.
func (e *IssuerError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

// JoinFieldMessages renders field errors as "field: message; field: message" in stable order.
func JoinFieldMessages(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	return strings.Join(parts, "; ")
}

// UserMessage extracts the message that should reach the frontend for err.
func UserMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	var ie *IssuerError
	if errors.As(err, &ie) {
		return ie.UserMessage()
	}
	var ad *AccessDenied
	if errors.As(err, &ad) {
		return ad.Reason
	}
	return err.Error()
}
