package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when a vote is attempted without a signed-in identity.
	ErrNotAuthenticated = errors.New("must be signed in to vote")
	// ErrInvalidIdentity is returned when a persisted identity's id is not a well-formed UUID.
	ErrInvalidIdentity = errors.New("user id is not a valid UUID")
	// ErrInvalidDirection is returned for a vote direction other than up or down.
	ErrInvalidDirection = errors.New("direction must be up or down")
	// ErrItemNotFound is returned when the item is not in the catalog (or not visible).
	ErrItemNotFound = errors.New("item not found")
	// ErrInvalidSubmission wraps validation failures of a submitted item.
	ErrInvalidSubmission = errors.New("invalid submission")
)

// RemoteWriteError reports a failed ledger write. The optimistic change has
// already been rolled back when the caller sees it.
type RemoteWriteError struct {
	Op  string
	Err error
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("remote write %s failed: %v", e.Op, e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// RemoteReadError reports a failed ledger read. Background refreshes log it
// and keep serving the stale cache.
type RemoteReadError struct {
	Op  string
	Err error
}

func (e *RemoteReadError) Error() string {
	return fmt.Sprintf("remote read %s failed: %v", e.Op, e.Err)
}

func (e *RemoteReadError) Unwrap() error { return e.Err }
