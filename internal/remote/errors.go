package remote

import "errors"

// Common errors returned by remote store operations.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, remote.ErrConflict) {
//	    // Another client already wrote a newer document.
//	}
var (
	// ErrNotFound is returned when no document exists for the requested
	// date.
	ErrNotFound = errors.New("no remote document for date")

	// ErrConflict is returned when a conditional write loses the race:
	// the stored document's lastUpdated is newer than the baseline the
	// writer believed it was overwriting.
	ErrConflict = errors.New("remote document is newer than the write's baseline")

	// ErrClosed is returned when an operation is attempted on a store
	// that has been shut down.
	ErrClosed = errors.New("remote store is closed")
)

// IsConflict returns true if the error is a version conflict. Conflicts are
// the only remote write failure surfaced to the user as a hard error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error means the document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient returns true if the error should be treated as a temporary
// outage: the local tier keeps serving and the remote reconciles later.
// Everything that is not a conflict, a missing document, or a closed store
// falls in this bucket.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrConflict) &&
		!errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrClosed)
}
