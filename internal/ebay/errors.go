package ebay

import (
	"errors"
	"fmt"
)

// ErrDailyLimitReached is returned when the daily API call limit has been exhausted.
var ErrDailyLimitReached = errors.New("daily API limit reached")

// AuthError reports a failed token exchange. It is fatal for the poll loop.
type AuthError struct {
	Status int // zero when no response was received
	Body   string
	Err    error
}

func (e *AuthError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	default:
		return fmt.Sprintf("token request failed (status %d): %s", e.Status, e.Body)
	}
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError reports a search request that did not return 200, or that
// failed before a response arrived (Status 0).
type FetchError struct {
	Query  string
	Status int
	Body   string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search %q failed: %v", e.Query, e.Err)
	}
	return fmt.Sprintf("eBay API error (status %d): %s", e.Status, e.Body)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError reports a 200 response whose body could not be parsed.
type DecodeError struct {
	Query string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("parsing search response for %q: %v", e.Query, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsAuthError reports whether err wraps an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
