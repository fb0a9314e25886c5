package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a fetch failure.
type ErrorKind string

const (
	// KindTimeout covers deadline expiry and caller cancellation.
	KindTimeout ErrorKind = "timeout"

	// KindHTTPStatus marks a non-2xx response; Status carries the code.
	KindHTTPStatus ErrorKind = "http_status"

	// KindConnection covers dial, TLS and transport failures.
	KindConnection ErrorKind = "connection"

	// KindBrowser covers navigation, login and browser-process failures.
	KindBrowser ErrorKind = "browser"

	// KindUnsupportedQuery marks a selector query the document engine
	// cannot evaluate.
	KindUnsupportedQuery ErrorKind = "unsupported_query"
)

// Error is the typed failure produced by fetch tiers and the DOM layer.
type Error struct {
	Kind   ErrorKind
	Status int // HTTP status code, set for KindHTTPStatus
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindHTTPStatus:
		return fmt.Sprintf("fetch: http status %d", e.Status)
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("fetch: %s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("fetch: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch: %s: %s", e.Kind, e.Msg)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewTimeout wraps err as a timeout failure.
func NewTimeout(err error) *Error {
	return &Error{Kind: KindTimeout, Err: err}
}

// NewHTTPStatus records a non-2xx response code.
func NewHTTPStatus(status int) *Error {
	return &Error{Kind: KindHTTPStatus, Status: status}
}

// NewConnection wraps err as a transport-level failure.
func NewConnection(err error) *Error {
	return &Error{Kind: KindConnection, Err: err}
}

// NewBrowser wraps err as a browser failure with a descriptive cause.
func NewBrowser(msg string, err error) *Error {
	return &Error{Kind: KindBrowser, Msg: msg, Err: err}
}

// NewUnsupportedQuery marks a query the document engine cannot evaluate.
func NewUnsupportedQuery(msg string, err error) *Error {
	return &Error{Kind: KindUnsupportedQuery, Msg: msg, Err: err}
}

// IsKind reports whether err is a fetch Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Kind == kind
}

// Classify maps an arbitrary transport error into the taxonomy: deadline
// expiry and cancellation become timeouts, everything else a connection
// failure. Errors already carrying a kind pass through unchanged.
func Classify(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewTimeout(err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return NewTimeout(err)
	}
	return NewConnection(err)
}
