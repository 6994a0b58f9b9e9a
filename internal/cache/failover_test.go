package cache

import (
	"context"
	"errors"
	"testing"

	"wardsync/internal/census"
)

// brokenStore fails every operation with a fixed error, standing in for a
// cache tier whose backing file has gone bad at runtime.
type brokenStore struct {
	err    error
	closed bool
}

func (b *brokenStore) Get(ctx context.Context, date string) (*census.Record, error) {
	return nil, b.err
}
func (b *brokenStore) Put(ctx context.Context, rec *census.Record) error  { return b.err }
func (b *brokenStore) Delete(ctx context.Context, date string) error      { return b.err }
func (b *brokenStore) ListDates(ctx context.Context) ([]string, error)    { return nil, b.err }
func (b *brokenStore) MostRecentBefore(ctx context.Context, date string) (*census.Record, error) {
	return nil, b.err
}
func (b *brokenStore) Close() error {
	b.closed = true
	return nil
}

func TestFailoverDegradesOnError(t *testing.T) {
	ctx := context.Background()
	broken := &brokenStore{err: errors.New("disk I/O error")}
	f := NewFailover(broken, testLogger)

	if f.Degraded() {
		t.Fatal("fresh failover should not be degraded")
	}

	// The failing Put triggers the swap and retries against the memory tier,
	// so the caller sees success.
	rec := cacheRecord("2026-03-14", 10)
	if err := f.Put(ctx, rec); err != nil {
		t.Fatalf("Put should succeed via memory tier, got %v", err)
	}
	if !f.Degraded() {
		t.Error("expected failover to be degraded after primary error")
	}
	if !broken.closed {
		t.Error("expected abandoned primary to be closed")
	}

	got, err := f.Get(ctx, "2026-03-14")
	if err != nil {
		t.Fatalf("Get after degrade failed: %v", err)
	}
	if got.Beds["R1"].PatientName != "Carla Munoz" {
		t.Errorf("memory tier lost the retried write: %+v", got.Beds["R1"])
	}
}

func TestFailoverDegradesOnReadError(t *testing.T) {
	broken := &brokenStore{err: errors.New("database disk image is malformed")}
	f := NewFailover(broken, testLogger)

	// The replacement tier is empty, so the retried read misses.
	_, err := f.Get(context.Background(), "2026-03-14")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from fresh memory tier, got %v", err)
	}
	if !f.Degraded() {
		t.Error("expected failover to be degraded after read error")
	}
}

func TestFailoverPassesThroughNotFound(t *testing.T) {
	f := NewFailover(NewMemory(), testLogger)

	_, err := f.Get(context.Background(), "2026-03-14")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.Degraded() {
		t.Error("a cache miss must not trip the failover")
	}
}

func TestFailoverIgnoresCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	broken := &brokenStore{err: context.Canceled}
	f := NewFailover(broken, testLogger)

	if _, err := f.Get(ctx, "2026-03-14"); err == nil {
		t.Fatal("expected error from canceled context")
	}
	if f.Degraded() {
		t.Error("a canceled caller must not trip the failover")
	}
}

func TestFailoverRejectsInvalidWithoutDegrading(t *testing.T) {
	f := NewFailover(NewMemory(), testLogger)

	bad := cacheRecord("2026-03-14", 10)
	bad.Beds = nil
	if err := f.Put(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
	if f.Degraded() {
		t.Error("a caller bug must not trip the failover")
	}
}

func TestFailoverDelegatesWhileHealthy(t *testing.T) {
	ctx := context.Background()
	primary := NewMemory()
	f := NewFailover(primary, testLogger)

	if err := f.Put(ctx, cacheRecord("2026-03-14", 10)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// The write must have landed in the primary, not a shadow tier.
	if _, err := primary.Get(ctx, "2026-03-14"); err != nil {
		t.Errorf("primary missing delegated write: %v", err)
	}

	dates, err := f.ListDates(ctx)
	if err != nil {
		t.Fatalf("ListDates failed: %v", err)
	}
	if len(dates) != 1 || dates[0] != "2026-03-14" {
		t.Errorf("unexpected dates %v", dates)
	}
	if f.Degraded() {
		t.Error("healthy primary should not degrade")
	}
}
