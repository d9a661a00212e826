package nvd

import (
	"fmt"
	"strings"
)

// Kind classifies a search failure.
type Kind int

const (
	KindInvalidRequest Kind = iota + 1
	KindNetworkFailure
	KindHTTPFailure
	KindEmptyResponse
	KindDecodeFailure
	KindResolutionFailure
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindNetworkFailure:
		return "network_failure"
	case KindHTTPFailure:
		return "http_failure"
	case KindEmptyResponse:
		return "empty_response"
	case KindDecodeFailure:
		return "decode_failure"
	case KindResolutionFailure:
		return "resolution_failure"
	}
	return "unknown"
}

// Error is the only error type returned by the search pipeline. Match it with
// errors.Is against the Err* sentinels or unpack it with errors.As.
type Error struct {
	Kind       Kind
	StatusCode int
	URL        string
	Err        error
}

var (
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrNetworkFailure    = &Error{Kind: KindNetworkFailure}
	ErrHTTPFailure       = &Error{Kind: KindHTTPFailure}
	ErrEmptyResponse     = &Error{Kind: KindEmptyResponse}
	ErrDecodeFailure     = &Error{Kind: KindDecodeFailure}
	ErrResolutionFailure = &Error{Kind: KindResolutionFailure}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(e.Kind.String(), "_", " "))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status code: %d)", e.StatusCode)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, ", url: %s", e.URL)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. A target with a
// non-zero StatusCode also has to match the status code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.StatusCode == 0 || t.StatusCode == e.StatusCode
}

func newError(kind Kind, url string, err error) *Error {
	return &Error{Kind: kind, URL: url, Err: err}
}

// ResolutionError wraps err as a resolution failure.
func ResolutionError(err error) *Error {
	return &Error{Kind: KindResolutionFailure, Err: err}
}

// InvalidRequestError reports a request that could not be built.
func InvalidRequestError(err error) *Error {
	return &Error{Kind: KindInvalidRequest, Err: err}
}
