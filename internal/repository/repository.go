// Package repository mediates between the local cache tier and the
// authoritative remote store. It owns the decision of which tier serves a
// read, stamps every write's lastUpdated, and is the only layer that turns
// remote outcomes into user-facing errors: version conflicts are hard
// failures, network trouble is absorbed and reported through Online().
package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"wardsync/internal/cache"
	"wardsync/internal/census"
	"wardsync/internal/patch"
	"wardsync/internal/remote"
)

// ErrNotFound is returned when neither storage tier has a record for the
// requested date.
var ErrNotFound = errors.New("no census record for date")

// ConflictError is returned by Save when the remote store already holds a
// document newer than the save's baseline. Winner carries the authoritative
// record when it could be fetched, so callers refresh without another round
// trip.
type ConflictError struct {
	Date   string
	Winner *census.Record
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("census record for %s was changed by another client", e.Date)
}

func (e *ConflictError) Unwrap() error { return remote.ErrConflict }

// Config assembles a Repository. Tiers are built by the caller (see
// internal/config for the StorageConfig wiring) so tests can instantiate
// isolated repositories with in-memory tiers.
type Config struct {
	// Local is the cache tier. Required.
	Local cache.Store

	// Remote is the authoritative tier. nil means no remote is configured
	// and the repository runs local-only.
	Remote remote.Store

	// Layout describes the ward's beds for day initialization. nil falls
	// back to the default ward.
	Layout *census.Layout

	// Logger receives swallowed remote failures and mirror diagnostics.
	// nil falls back to stderr.
	Logger *log.Logger
}

// Repository is safe for concurrent use.
type Repository struct {
	local  cache.Store
	remote remote.Store
	layout *census.Layout
	logger *log.Logger

	online atomic.Bool

	// now is the write clock; tests pin it.
	now func() time.Time
}

// New builds a Repository from cfg.
func New(cfg Config) *Repository {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[repository] ", log.LstdFlags)
	}
	layout := cfg.Layout
	if layout == nil {
		layout = census.DefaultLayout()
	}
	r := &Repository{
		local:  cfg.Local,
		remote: cfg.Remote,
		layout: layout,
		logger: logger,
		now:    time.Now,
	}
	// Local-only repositories are always "online" in the sense that no
	// deferred reconciliation is pending.
	r.online.Store(true)
	return r
}

// Online reports whether the last remote operation reached the server. A
// conflict counts as online: the server answered, it just said no.
func (r *Repository) Online() bool {
	return r.online.Load()
}

// noteRemote updates the offline indicator from a remote op outcome.
func (r *Repository) noteRemote(err error) {
	r.online.Store(!remote.IsTransient(err))
}

// GetForDate returns the record for a date: local-first, remote on a local
// miss, backfilling the local cache on a remote hit.
func (r *Repository) GetForDate(ctx context.Context, date string) (*census.Record, error) {
	rec, err := r.local.Get(ctx, date)
	if err == nil {
		return rec, nil
	}
	localMiss := errors.Is(err, cache.ErrNotFound)
	if !localMiss {
		// The failover tier absorbs cache faults, so anything else is
		// unexpected; the remote can still serve the read.
		r.logger.Printf("local read for %s failed: %v", date, err)
	}

	if r.remote == nil {
		if localMiss {
			return nil, fmt.Errorf("get %s: %w", date, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", date, err)
	}

	rec, err = r.remote.Get(ctx, date)
	r.noteRemote(err)
	if remote.IsNotFound(err) {
		return nil, fmt.Errorf("get %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", date, err)
	}

	if err := r.local.Put(ctx, rec); err != nil {
		r.logger.Printf("failed to backfill local cache for %s: %v", date, err)
	}
	return rec, nil
}

// stampAfter returns a fresh write timestamp strictly after baseline.
// Timestamps are truncated to microseconds so they survive the remote
// store's column precision unchanged.
func (r *Repository) stampAfter(baseline time.Time) time.Time {
	now := r.now().UTC().Truncate(time.Microsecond)
	if !now.After(baseline) {
		now = baseline.Add(time.Millisecond)
	}
	return now
}

// Save persists a record to both tiers. rec.LastUpdated is taken as the
// caller's baseline: the version it believes it is overwriting. The record
// is stamped with a fresh lastUpdated, written to the local cache
// unconditionally, then conditionally to the remote. A remote conflict is a
// hard *ConflictError; remote network failure is swallowed and left to the
// live subscription to reconcile. Returns the stamped record, which becomes
// the caller's next baseline.
func (r *Repository) Save(ctx context.Context, rec *census.Record) (*census.Record, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("save %s: %w", rec.Date, err)
	}

	baseline := rec.LastUpdated
	stamped := rec.Clone()
	stamped.LastUpdated = r.stampAfter(baseline)

	if err := r.local.Put(ctx, stamped); err != nil {
		return nil, fmt.Errorf("save %s locally: %w", rec.Date, err)
	}

	if r.remote == nil {
		return stamped, nil
	}

	err := r.remote.Put(ctx, stamped, baseline)
	r.noteRemote(err)
	switch {
	case err == nil:
		return stamped, nil

	case remote.IsConflict(err):
		conflict := &ConflictError{Date: rec.Date}
		// Repair the local tier with the winning document so reads
		// stop serving the rejected edit.
		if winner, ferr := r.remote.Get(ctx, rec.Date); ferr == nil {
			conflict.Winner = winner
			if perr := r.local.Put(ctx, winner); perr != nil {
				r.logger.Printf("failed to restore winner for %s locally: %v", rec.Date, perr)
			}
		} else {
			r.logger.Printf("failed to fetch winning record for %s: %v", rec.Date, ferr)
		}
		return nil, conflict

	default:
		r.logger.Printf("remote save for %s deferred: %v", rec.Date, err)
		return stamped, nil
	}
}

// UpdatePartial applies a patch to the local cached copy if one exists,
// bumps its lastUpdated, and sends the same patch to the remote best-effort.
// Remote failure is logged, never propagated; the live subscription
// reconciles the tiers. The returned stamp is the lastUpdated the patched
// copy now carries, so callers can rebase follow-up writes on it.
func (r *Repository) UpdatePartial(ctx context.Context, date string, p patch.Patch) (time.Time, error) {
	if err := p.Validate(); err != nil {
		return time.Time{}, fmt.Errorf("patch %s: %w", date, err)
	}

	stamp := r.stampAfter(time.Time{})

	local, err := r.local.Get(ctx, date)
	switch {
	case err == nil:
		updated, aerr := patch.Apply(local, p)
		if aerr != nil {
			return time.Time{}, fmt.Errorf("patch %s: %w", date, aerr)
		}
		updated.LastUpdated = r.stampAfter(local.LastUpdated)
		stamp = updated.LastUpdated
		if perr := r.local.Put(ctx, updated); perr != nil {
			return time.Time{}, fmt.Errorf("patch %s locally: %w", date, perr)
		}
	case errors.Is(err, cache.ErrNotFound):
		// No local copy to update; the remote patch below still runs.
	default:
		return time.Time{}, fmt.Errorf("patch %s locally: %w", date, err)
	}

	if r.remote == nil {
		return stamp, nil
	}
	if err := r.remote.Patch(ctx, date, p, stamp); err != nil {
		r.noteRemote(err)
		r.logger.Printf("remote patch for %s deferred: %v", date, err)
		return stamp, nil
	}
	r.noteRemote(nil)
	return stamp, nil
}

// Subscribe streams remote changes for a date. Every non-echo event,
// deletions included, is mirrored into the local cache before fn runs, so a
// client that loses its subscription afterwards still reads current state.
// Echo events pass through unmirrored with the flag intact. Without a remote
// tier the subscription is a no-op.
func (r *Repository) Subscribe(ctx context.Context, date string, fn func(remote.Event)) (func(), error) {
	if r.remote == nil {
		return func() {}, nil
	}
	return r.remote.Subscribe(ctx, date, func(ev remote.Event) {
		if !ev.Echo {
			r.mirror(ev)
		}
		fn(ev)
	})
}

// mirror applies a subscription event to the local cache. Runs on the
// subscription goroutine with its own deadline; a canceled caller context
// must not leave the tiers diverged.
func (r *Repository) mirror(ev remote.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ev.Record == nil {
		if err := r.local.Delete(ctx, ev.Date); err != nil {
			r.logger.Printf("failed to mirror deletion of %s: %v", ev.Date, err)
		}
		return
	}
	if err := r.local.Put(ctx, ev.Record); err != nil {
		r.logger.Printf("failed to mirror update of %s: %v", ev.Date, err)
	}
}

// InitializeDay returns the record for a date, creating it if no tier has
// one. A non-empty copyFrom clones occupancy forward from that date's record
// (see census.CloneForDate); otherwise the day starts blank over the ward
// layout. Losing a concurrent-create race is not an error: the winning
// record is fetched and returned, so racing initializers converge.
func (r *Repository) InitializeDay(ctx context.Context, date string, copyFrom string) (*census.Record, error) {
	if _, err := census.ParseDate(date); err != nil {
		return nil, err
	}

	existing, err := r.GetForDate(ctx, date)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var rec *census.Record
	if copyFrom != "" {
		prev, err := r.GetForDate(ctx, copyFrom)
		switch {
		case err == nil:
			rec = census.CloneForDate(prev, date, r.layout)
		case errors.Is(err, ErrNotFound):
			rec = census.NewBlankRecord(date, r.layout)
		default:
			return nil, err
		}
	} else {
		rec = census.NewBlankRecord(date, r.layout)
	}

	// Zero baseline: create the remote document, never replace one.
	saved, err := r.Save(ctx, rec)
	if err == nil {
		return saved, nil
	}

	var conflict *ConflictError
	if errors.As(err, &conflict) {
		if conflict.Winner != nil {
			return conflict.Winner, nil
		}
		return r.GetForDate(ctx, date)
	}
	return nil, err
}

// DeleteDay removes a date's record from both tiers. Remote failure is
// logged and never rolls back the local deletion.
func (r *Repository) DeleteDay(ctx context.Context, date string) error {
	if err := r.local.Delete(ctx, date); err != nil {
		return fmt.Errorf("delete %s locally: %w", date, err)
	}
	if r.remote == nil {
		return nil
	}
	err := r.remote.Delete(ctx, date)
	r.noteRemote(err)
	if err != nil {
		r.logger.Printf("remote delete for %s deferred: %v", date, err)
	}
	return nil
}

// Resync forces a remote read for a date and makes the local cache match,
// returning the authoritative record. Used after conflicts and to probe
// connectivity. Without a remote tier it serves the local copy.
func (r *Repository) Resync(ctx context.Context, date string) (*census.Record, error) {
	if r.remote == nil {
		rec, err := r.local.Get(ctx, date)
		if errors.Is(err, cache.ErrNotFound) {
			return nil, fmt.Errorf("resync %s: %w", date, ErrNotFound)
		}
		return rec, err
	}

	rec, err := r.remote.Get(ctx, date)
	r.noteRemote(err)
	switch {
	case remote.IsNotFound(err):
		if derr := r.local.Delete(ctx, date); derr != nil {
			r.logger.Printf("failed to drop stale local %s: %v", date, derr)
		}
		return nil, fmt.Errorf("resync %s: %w", date, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("resync %s: %w", date, err)
	}

	if err := r.local.Put(ctx, rec); err != nil {
		r.logger.Printf("failed to mirror resynced %s: %v", date, err)
	}
	return rec, nil
}

// ListDates returns every date either tier knows about, newest first. A
// remote listing failure degrades to the local view.
func (r *Repository) ListDates(ctx context.Context) ([]string, error) {
	dates, err := r.local.ListDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dates: %w", err)
	}

	if r.remote != nil {
		remoteDates, err := r.remote.ListDates(ctx)
		r.noteRemote(err)
		if err != nil {
			r.logger.Printf("remote date listing unavailable: %v", err)
		} else {
			dates = append(dates, remoteDates...)
		}
	}

	seen := make(map[string]bool, len(dates))
	merged := dates[:0]
	for _, date := range dates {
		if !seen[date] {
			seen[date] = true
			merged = append(merged, date)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(merged)))
	return merged, nil
}

// Close releases both tiers.
func (r *Repository) Close() error {
	var first error
	if err := r.local.Close(); err != nil {
		first = err
	}
	if r.remote != nil {
		if err := r.remote.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
