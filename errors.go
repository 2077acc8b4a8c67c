package swrcache

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Store implementations when a storage key is absent.
var ErrNotFound = errors.New("swrcache: requested item not found")

// Additional package-level errors
var (
	// ErrClientDisposed is returned by Query on a client after Dispose.
	ErrClientDisposed = errors.New("swrcache: client has been disposed")
	ErrNoTarget       = errors.New("swrcache: bind target must be non-nil")
	ErrNoRender       = errors.New("swrcache: bind render function must be non-nil")
)

// FetchError is returned by Query when the fetcher fails after exhausting all
// retries. It unwraps to the fetcher's last error.
type FetchError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("swrcache: fetch for key %q failed after %d attempts: %v", e.Key, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
