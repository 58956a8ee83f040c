package fetch

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary. A 404 is
	// not an error: it surfaces as the NotFound outcome instead.
	ErrAuthorization = errors.New("source: authorization rejected")
	ErrUpstream      = errors.New("source: server error (5xx)")
	ErrTransport     = errors.New("source: host unreachable or transport failure")
	ErrMalformed     = errors.New("source: malformed document payload")
)

// SourceError is a rich error type that wraps the sentinel errors with
// context about the failed request.
type SourceError struct {
	Sentinel error
	URL      string
	Status   int
	Err      error
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("fetch %s: %v", e.URL, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *SourceError) Unwrap() error {
	return e.Sentinel
}
