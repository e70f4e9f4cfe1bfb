// internal/app/system/autherr/autherr.go
// Package autherr defines the error kinds produced while negotiating
// authentication. Every error returned by a scheme, a login record, or the
// gatekeeper wraps exactly one of the sentinel kinds below, so callers can
// branch with errors.Is without caring which scheme produced it.
package autherr

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrInvalidCredentialType means a scheme was handed a credential value it
	// does not understand. This is always a wiring mistake, never user input.
	ErrInvalidCredentialType = errors.New("invalid credential type")

	// ErrIncorrectCredentials means a user-supplied secret did not verify.
	ErrIncorrectCredentials = errors.New("incorrect credentials")

	// ErrStepIncomplete means a composite scheme was asked to authenticate
	// before every required factor was validated.
	ErrStepIncomplete = errors.New("authentication step incomplete")

	// ErrIdentityConflict means two factors resolved to different principals.
	ErrIdentityConflict = errors.New("identity conflict")

	// ErrConfiguration means a scheme could not be built or a required
	// scheme is missing. It is the only kind that becomes a 5xx.
	ErrConfiguration = errors.New("authentication configuration error")
)

// Error carries a kind plus the scheme that raised it.
type Error struct {
	Kind     error  // one of the Err* sentinels
	SchemeID string // scheme that raised the error (may be empty)
	Message  string // operator-facing detail; never shown to users
	Err      error  // underlying cause, if any
}

// New returns an *Error of the given kind.
func New(kind error, schemeID, message string) *Error {
	return &Error{Kind: kind, SchemeID: schemeID, Message: message}
}

// Wrap returns an *Error of the given kind wrapping cause.
func Wrap(kind error, schemeID string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, SchemeID: schemeID, Message: msg, Err: cause}
}

func (e *Error) Error() string {
	prefix := e.Kind.Error()
	if e.SchemeID != "" {
		prefix = fmt.Sprintf("%s [%s]", prefix, e.SchemeID)
	}
	if e.Message == "" {
		return prefix
	}
	return prefix + ": " + e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsFatal reports whether err should end the request with a server error.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// KindName returns a stable snake_case name for the kind of err, for logs and
// audit rows. Errors that are not authentication errors report "internal".
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentialType):
		return "invalid_credential_type"
	case errors.Is(err, ErrIncorrectCredentials):
		return "incorrect_credentials"
	case errors.Is(err, ErrStepIncomplete):
		return "step_incomplete"
	case errors.Is(err, ErrIdentityConflict):
		return "identity_conflict"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "internal"
	}
}

// Reason returns the opaque, user-displayable reason for err. It never
// includes scheme ids, messages, or causes.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIncorrectCredentials):
		return "The credentials you entered could not be verified."
	case errors.Is(err, ErrStepIncomplete):
		return "Additional verification is required to sign in."
	case errors.Is(err, ErrIdentityConflict):
		return "Sign-in could not be completed. Please start again."
	default:
		return "Sign-in is temporarily unavailable."
	}
}
