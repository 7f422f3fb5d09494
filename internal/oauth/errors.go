package oauth

import (
	"errors"
	"fmt"
)

// ErrorKind is a user-facing category for a flow failure
type ErrorKind string

const (
	KindInvalidState    ErrorKind = "invalid_state"
	KindDenied          ErrorKind = "authorization_denied"
	KindGrantInvalid    ErrorKind = "grant_invalid"
	KindMisconfigured   ErrorKind = "internal_misconfiguration"
	KindUnknownProvider ErrorKind = "unknown_provider_error"
	KindTransport       ErrorKind = "transport_error"
	KindNotFound        ErrorKind = "not_found"
	KindInternal        ErrorKind = "internal_error"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrInvalidState    = &Error{Kind: KindInvalidState}
	ErrDenied          = &Error{Kind: KindDenied}
	ErrGrantInvalid    = &Error{Kind: KindGrantInvalid}
	ErrMisconfigured   = &Error{Kind: KindMisconfigured}
	ErrUnknownProvider = &Error{Kind: KindUnknownProvider}
	ErrTransport       = &Error{Kind: KindTransport}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInternal        = &Error{Kind: KindInternal}
)

// ErrInsecureTLS is returned when a token client is configured without certificate validation
var ErrInsecureTLS = errors.New("tls certificate verification must not be disabled")

// Error is a classified flow failure. Code holds the raw provider error code when
// there is one so callers can attach provider-specific copy.
type Error struct {
	Kind        ErrorKind
	Code        string
	Description string
	Provider    string
	Err         error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of a classified error. Anything that is not an
// *Error, such as a storage failure, is KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns end-user copy for a kind. Misconfiguration never leaks details.
func (k ErrorKind) Message() string {
	switch k {
	case KindInvalidState:
		return "Invalid state parameter, please start the authorization again"
	case KindDenied:
		return "Authorization was denied by client"
	case KindGrantInvalid:
		return "Authorization code expired/invalid, please authorize again"
	case KindTransport:
		return "The authorization server could not be reached, please try again later"
	case KindNotFound:
		return "Not found"
	default:
		return "Something went wrong"
	}
}
