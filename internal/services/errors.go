package services

import (
	"errors"
	"fmt"
)

// ErrPageLimit is returned by [TautulliService.FetchCollection] when max_pages pages were
// read and the remote still reported more. Pages already visited were delivered.
var ErrPageLimit = errors.New("page limit reached")

// ErrStopPaging may be returned by a page visitor to end a collection fetch early without error.
var ErrStopPaging = errors.New("stop paging")

// RetryableFetchError is a transient failure: timeout, connection error, 5xx or 429.
// Requests failing this way are retried with backoff before escalating.
type RetryableFetchError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RetryableFetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: transient failure (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *RetryableFetchError) Unwrap() error { return e.Err }

// FatalKind classifies a [FatalFetchError].
type FatalKind int

const (
	FatalAuth      FatalKind = iota // credentials rejected
	FatalShape                      // response could not be decoded into the expected shape
	FatalRemote                     // envelope reported result "error"
	FatalExhausted                  // retries or retry budget used up
)

func (k FatalKind) String() string {
	switch k {
	case FatalAuth:
		return "auth"
	case FatalShape:
		return "shape"
	case FatalRemote:
		return "remote"
	case FatalExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// FatalFetchError is a failure that retrying cannot fix.
type FatalFetchError struct {
	Op         string
	Kind       FatalKind
	StatusCode int
	Err        error
}

func (e *FatalFetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *FatalFetchError) Unwrap() error { return e.Err }

// Local reports whether the failure only concerns the requested resource, so a caller
// walking many resources may skip this one and continue.
func (e *FatalFetchError) Local() bool {
	return e.Kind == FatalShape || e.Kind == FatalRemote
}

// IsFatal reports whether err carries a [FatalFetchError].
func IsFatal(err error) bool {
	var fe *FatalFetchError
	return errors.As(err, &fe)
}

// IsLocal reports whether err is a [FatalFetchError] limited to one resource.
func IsLocal(err error) bool {
	var fe *FatalFetchError
	return errors.As(err, &fe) && fe.Local()
}

func shapeError(op string, err error) error {
	return &FatalFetchError{Op: op, Kind: FatalShape, Err: err}
}
