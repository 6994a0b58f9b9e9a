// Package cache provides the local storage tier for census records.
//
// The local tier is a date-keyed snapshot store: whole records in, whole
// records out, one row per date. It exists so the ward keeps working when
// the remote store is unreachable; the Repository treats it as
// authoritative until the remote says otherwise.
package cache

import (
	"context"
	"errors"

	"wardsync/internal/census"
)

// ErrNotFound is returned when no record exists for the requested date.
var ErrNotFound = errors.New("record not found in local cache")

// Store is the local cache contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the record for a date, or ErrNotFound.
	Get(ctx context.Context, date string) (*census.Record, error)

	// Put upserts a record, overwriting any prior snapshot for its date.
	Put(ctx context.Context, rec *census.Record) error

	// Delete removes a date's record. Deleting a missing date is not an error.
	Delete(ctx context.Context, date string) error

	// MostRecentBefore returns the record with the largest date strictly
	// less than the given date, or ErrNotFound.
	MostRecentBefore(ctx context.Context, date string) (*census.Record, error)

	// ListDates returns all cached dates, descending.
	ListDates(ctx context.Context) ([]string, error)

	// Close releases the underlying storage.
	Close() error
}
