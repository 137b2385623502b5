package fetch

import (
	"context"
	"errors"
	"fmt"
)

// TransientError is any failure that left no server answer: a URL the request
// could not be built from, timeout, DNS, refused or reset connection, truncated
// body. The resource state on the server is unknown.
type TransientError struct {
	URL string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline.
func (e *TransientError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// HTTPError is a definite non-200 response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// StatusCode returns the HTTP status carried by err, if any.
func StatusCode(err error) (int, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode, true
	}
	return 0, false
}

// Describe renders err for a log line: "status=404" or "transient: ...".
func Describe(err error) string {
	if code, ok := StatusCode(err); ok {
		return fmt.Sprintf("status=%d", code)
	}
	if IsTransient(err) {
		return "transient: " + err.Error()
	}
	return err.Error()
}
