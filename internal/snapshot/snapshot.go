// Package snapshot moves the local census tier through JSONL streams: one
// record per line, oldest date first. It backs the export/import commands
// and doubles as the migration path between cache backends.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"wardsync/internal/cache"
	"wardsync/internal/census"
)

// ImportResult reports what an Import did.
type ImportResult struct {
	// Imported counts records written to the store.
	Imported int
	// Skipped counts records dropped because the store already held a
	// copy with the same or a newer lastUpdated.
	Skipped int
}

// Export writes every record in store to w as JSONL, oldest date first.
// It returns the number of records written.
func Export(ctx context.Context, store cache.Store, w io.Writer) (int, error) {
	dates, err := store.ListDates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list dates: %w", err)
	}
	sort.Strings(dates)

	enc := json.NewEncoder(w)
	written := 0
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		rec, err := store.Get(ctx, date)
		if err != nil {
			if errors.Is(err, cache.ErrNotFound) {
				// Deleted between the listing and the read.
				continue
			}
			return written, fmt.Errorf("failed to read %s: %w", date, err)
		}
		if err := enc.Encode(rec); err != nil {
			return written, fmt.Errorf("failed to encode %s: %w", date, err)
		}
		written++
	}
	return written, nil
}

// Import reads JSONL from r and upserts each record into store. When the
// store already holds a record for the same date, the copy with the newer
// lastUpdated wins; ties keep the stored copy.
func Import(ctx context.Context, store cache.Store, r io.Reader) (*ImportResult, error) {
	result := &ImportResult{}
	dec := json.NewDecoder(r)
	line := 0

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var rec census.Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return result, fmt.Errorf("invalid JSON at line %d: %w", line+1, err)
		}
		line++

		rec.SetDefaults()
		if err := rec.Validate(); err != nil {
			return result, fmt.Errorf("invalid record at line %d: %w", line, err)
		}

		existing, err := store.Get(ctx, rec.Date)
		switch {
		case errors.Is(err, cache.ErrNotFound):
			// New date, take it.
		case err != nil:
			return result, fmt.Errorf("failed to read existing %s: %w", rec.Date, err)
		case !rec.LastUpdated.After(existing.LastUpdated):
			result.Skipped++
			continue
		}

		if err := store.Put(ctx, &rec); err != nil {
			return result, fmt.Errorf("failed to store %s: %w", rec.Date, err)
		}
		result.Imported++
	}

	return result, nil
}
