package remote

import (
	"context"
	"time"

	"wardsync/internal/census"
	"wardsync/internal/patch"
)

// Event is one live-subscription notification for a census date.
type Event struct {
	// Date is the document's census date.
	Date string

	// Record is the document state after the change. nil means the
	// document was deleted.
	Record *census.Record

	// Echo is true when the change originated from this client's own
	// write. Subscribers use it to avoid treating their own unconfirmed
	// writes as external updates.
	Echo bool
}

// Store is the interface every remote backend implements. One document
// exists per census date; the backend is the serialization point for
// concurrent writers.
type Store interface {
	// Get returns the document for a date, or ErrNotFound.
	Get(ctx context.Context, date string) (*census.Record, error)

	// Put overwrites the date's document. The write only succeeds while
	// the stored lastUpdated is not newer than baseline; otherwise the
	// other writer won and Put returns ErrConflict. A zero baseline
	// creates a missing document but never replaces an existing one.
	Put(ctx context.Context, rec *census.Record, baseline time.Time) error

	// Patch applies a partial update to the stored document and restamps
	// its lastUpdated. Patches carry no baseline: they are best-effort
	// and reconcile through the live subscription. Returns ErrNotFound
	// when no document exists for the date.
	Patch(ctx context.Context, date string, p patch.Patch, stamp time.Time) error

	// Delete removes the date's document. Deleting a missing document is
	// not an error.
	Delete(ctx context.Context, date string) error

	// ListDates returns every stored date, newest first.
	ListDates(ctx context.Context) ([]string, error)

	// Subscribe streams changes for one date until the returned stop
	// function is called or ctx is canceled. If a document already exists
	// the callback first receives its current state as a non-echo event.
	// The callback runs on the subscription's own goroutine, one event at
	// a time, in arrival order. The stop function must not be called from
	// inside the callback.
	Subscribe(ctx context.Context, date string, fn func(Event)) (func(), error)

	// Close releases the backend's connections. Active subscriptions are
	// stopped.
	Close() error
}
