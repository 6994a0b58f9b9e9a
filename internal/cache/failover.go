package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"wardsync/internal/census"
)

// Failover wraps a persistent cache tier and degrades to a fresh in-memory
// tier the first time the primary fails. The swap is one-way for the life of
// the process: a cache that has started corrupting data does not get a second
// chance, and the remote store backfills the empty replacement.
type Failover struct {
	mu       sync.Mutex
	primary  Store
	mem      *Memory
	degraded bool
	logger   *log.Logger
}

// NewFailover wraps primary. A nil logger falls back to stderr.
func NewFailover(primary Store, logger *log.Logger) *Failover {
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	return &Failover{primary: primary, logger: logger}
}

// Degraded reports whether the primary tier has been abandoned.
func (f *Failover) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

func (f *Failover) store() Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return f.mem
	}
	return f.primary
}

// degrade abandons the primary and installs an empty memory tier. Returns
// the tier subsequent calls should use.
func (f *Failover) degrade(cause error) Store {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return f.mem
	}
	f.logger.Printf("local cache failed (%v), continuing with in-memory storage", cause)
	f.degraded = true
	f.mem = NewMemory()
	_ = f.primary.Close()
	return f.mem
}

// shouldDegrade reports whether err indicates a broken tier rather than a
// normal miss or a canceled caller.
func shouldDegrade(ctx context.Context, err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) {
		return false
	}
	return ctx.Err() == nil
}

func (f *Failover) Get(ctx context.Context, date string) (*census.Record, error) {
	rec, err := f.store().Get(ctx, date)
	if shouldDegrade(ctx, err) {
		return f.degrade(err).Get(ctx, date)
	}
	return rec, err
}

func (f *Failover) Put(ctx context.Context, rec *census.Record) error {
	// A record the caller built wrong would fail against any tier; reject
	// it here so it cannot trip the failover.
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("cannot cache invalid record: %w", err)
	}
	err := f.store().Put(ctx, rec)
	if shouldDegrade(ctx, err) {
		return f.degrade(err).Put(ctx, rec)
	}
	return err
}

func (f *Failover) Delete(ctx context.Context, date string) error {
	err := f.store().Delete(ctx, date)
	if shouldDegrade(ctx, err) {
		return f.degrade(err).Delete(ctx, date)
	}
	return err
}

func (f *Failover) MostRecentBefore(ctx context.Context, date string) (*census.Record, error) {
	rec, err := f.store().MostRecentBefore(ctx, date)
	if shouldDegrade(ctx, err) {
		return f.degrade(err).MostRecentBefore(ctx, date)
	}
	return rec, err
}

func (f *Failover) ListDates(ctx context.Context) ([]string, error) {
	dates, err := f.store().ListDates(ctx)
	if shouldDegrade(ctx, err) {
		return f.degrade(err).ListDates(ctx)
	}
	return dates, err
}

func (f *Failover) Close() error {
	return f.store().Close()
}
