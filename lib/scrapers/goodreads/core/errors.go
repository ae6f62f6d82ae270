package core

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned once 429/503 responses outlast the retry ceiling.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransient is returned once connection failures or 5xx responses
	// outlast the retry ceiling, callers may skip the page and continue.
	ErrTransient = errors.New("transient network failure")
	// ErrRejected is returned for 401/403/406 responses, it is never retried.
	ErrRejected = errors.New("request rejected")
	// ErrBlocked is returned once the challenge threshold has been reached,
	// every later fetch returns it without touching the network.
	ErrBlocked = errors.New("blocked by challenge page")
	// ErrUnexpectedStatus is returned for any other non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// FetchError describes a failed fetch, it matches its Kind with errors.Is.
type FetchError struct {
	Kind     error
	URL      string
	Status   int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind.Error())
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Is(target error) bool {
	return target == e.Kind
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of a fetch error, or nil when err did not
// come from a fetch.
func KindOf(err error) error {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return nil
}
