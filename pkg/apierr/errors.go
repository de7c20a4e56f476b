// Package apierr defines the error taxonomy shared by every layer of the
// Redmine connector.
//
// Callers test for a kind with errors.Is against the exported sentinels:
//
//	if errors.Is(err, apierr.ErrObjectNotFound) {
//		// the record is gone
//	}
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by what the caller can do about it.
type Kind int

const (
	// KindIO is a transport-level failure (connection refused, read failure).
	KindIO Kind = iota

	// KindResourceNotFound is a missing local resource, e.g. a config file.
	KindResourceNotFound

	// KindDataConversion is a body that could not be decoded or encoded.
	KindDataConversion

	// KindIllegalArgument is a caller bug in construction parameters.
	KindIllegalArgument

	// KindIllegalState is cursor misuse or a protocol violation by the server.
	KindIllegalState

	// KindObjectNotFound is a 404 from the server.
	KindObjectNotFound

	// KindUnprocessableEntity is a 422 from the server; Body holds the error list.
	KindUnprocessableEntity

	// KindUnauthorized is a 401 or 403 from the server.
	KindUnauthorized

	// KindStatus is any other non-success HTTP status.
	KindStatus

	// KindThrottled means the server asked us to back off and the window is still open.
	KindThrottled
)

var kindNames = map[Kind]string{
	KindIO:                  "io_error",
	KindResourceNotFound:    "resource_not_found",
	KindDataConversion:      "data_conversion_error",
	KindIllegalArgument:     "illegal_argument",
	KindIllegalState:        "illegal_state",
	KindObjectNotFound:      "object_not_found",
	KindUnprocessableEntity: "unprocessable_entity",
	KindUnauthorized:        "unauthorized",
	KindStatus:              "http_status",
	KindThrottled:           "throttled",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrIO                  = errors.New("io error")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrDataConversion      = errors.New("data conversion error")
	ErrIllegalArgument     = errors.New("illegal argument")
	ErrIllegalState        = errors.New("illegal state")
	ErrObjectNotFound      = errors.New("object not found")
	ErrUnprocessableEntity = errors.New("unprocessable entity")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrStatus              = errors.New("unexpected http status")
	ErrThrottled           = errors.New("throttled by server")
)

var sentinels = map[Kind]error{
	KindIO:                  ErrIO,
	KindResourceNotFound:    ErrResourceNotFound,
	KindDataConversion:      ErrDataConversion,
	KindIllegalArgument:     ErrIllegalArgument,
	KindIllegalState:        ErrIllegalState,
	KindObjectNotFound:      ErrObjectNotFound,
	KindUnprocessableEntity: ErrUnprocessableEntity,
	KindUnauthorized:        ErrUnauthorized,
	KindStatus:              ErrStatus,
	KindThrottled:           ErrThrottled,
}

// Error is the concrete error type returned by the connector packages.
type Error struct {
	Kind Kind

	// Op names the operation that failed, e.g. "GET /issues.xml".
	Op string

	// StatusCode is the HTTP status when the error came from a response.
	StatusCode int

	Message string

	// Body is the raw response body, preserved verbatim for 422 responses.
	Body []byte

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// New returns an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf returns an *Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind wrapping err.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// ResponseBody returns the preserved server body of the first *Error in err's
// chain that carries one.
func ResponseBody(err error) []byte {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return nil
		}
		if len(e.Body) > 0 {
			return e.Body
		}
		err = e.Err
	}
	return nil
}
