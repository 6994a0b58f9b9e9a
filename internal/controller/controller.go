package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"wardsync/internal/census"
	"wardsync/internal/patch"
	"wardsync/internal/repository"
)

// Status is the write-path state visible to the UI.
type Status int

const (
	// StatusIdle means no write is pending and no write recently finished.
	StatusIdle Status = iota

	// StatusSaving means at least one write is in flight or queued.
	StatusSaving

	// StatusSaved means the last write resolved; it auto-reverts to idle
	// after a short hold.
	StatusSaved

	// StatusError means the last write failed hard (version conflict or
	// local storage fault). It clears on the next write or date switch.
	StatusError
)

// String returns the status as the UI renders it.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSaving:
		return "saving"
	case StatusSaved:
		return "saved"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Snapshot is one consistent view of the controller's state.
type Snapshot struct {
	// Date is the active census date, empty before the first SetDate.
	Date string

	// Record is the current in-memory record. nil when the date has no
	// record (never initialized, or deleted remotely).
	Record *census.Record

	// Status is the write-path state.
	Status Status

	// Err is a human-readable message when Status is StatusError.
	Err string

	// LastSync is when state last converged with the remote store: an
	// accepted remote update or a completed write.
	LastSync time.Time

	// Online mirrors the repository's offline indicator.
	Online bool
}

// Config holds tuning for a Controller.
type Config struct {
	// SuppressionWindow is how long after a local write incoming
	// subscription updates are screened for echoes.
	SuppressionWindow time.Duration

	// SavedHold is how long the saved status lingers before reverting
	// to idle.
	SavedHold time.Duration

	// Logger for controller activity.
	Logger *log.Logger

	// OnChange, when set, receives every new snapshot. It runs on the
	// controller's own goroutine; keep it fast and do not call back into
	// the controller from it.
	OnChange func(Snapshot)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SuppressionWindow: 750 * time.Millisecond,
		SavedHold:         2 * time.Second,
		Logger:            log.New(os.Stderr, "[controller] ", log.LstdFlags),
	}
}

// Controller owns the in-memory record for one active census date and runs
// the optimistic-write state machine over a Repository. All methods are safe
// for concurrent use; state changes flow through a single actor goroutine.
type Controller struct {
	repo   *repository.Repository
	config *Config

	events chan event
	gen    atomic.Uint64

	snapMu sync.RWMutex
	snap   Snapshot

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	startMu sync.Mutex
	started bool
}

// New creates a controller over repo. Use Start() to begin processing.
func New(repo *repository.Repository, config *Config) (*Controller, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[controller] ", log.LstdFlags)
	}
	if config.SuppressionWindow <= 0 {
		config.SuppressionWindow = 750 * time.Millisecond
	}
	if config.SavedHold <= 0 {
		config.SavedHold = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		repo:   repo,
		config: config,
		events: make(chan event, 128),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start launches the actor loop. It returns immediately.
func (c *Controller) Start() error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return fmt.Errorf("controller already started")
	}
	if c.ctx.Err() != nil {
		return fmt.Errorf("controller already stopped")
	}
	c.started = true
	c.wg.Add(1)
	go c.run()
	return nil
}

// Stop shuts the actor down and detaches the active subscription. In-flight
// writes are abandoned (their repository calls are canceled).
func (c *Controller) Stop() error {
	c.cancel()
	c.wg.Wait()
	return nil
}

// Snapshot returns the current state. The record is a private copy; callers
// may mutate it freely (for example to build the next SaveAndUpdate).
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.RLock()
	snap := c.snap
	c.snapMu.RUnlock()
	snap.Record = snap.Record.Clone()
	return snap
}

// SetDate makes date the active date: loads its record through the
// repository, attaches a live subscription, and resets the write-path state.
// The previous date's subscription is stopped as the new one installs, and a
// generation counter discards any of its events still in flight.
func (c *Controller) SetDate(ctx context.Context, date string) error {
	if c.ctx.Err() != nil {
		return fmt.Errorf("controller stopped")
	}
	if _, err := census.ParseDate(date); err != nil {
		return err
	}

	gen := c.gen.Add(1)

	rec, err := c.repo.GetForDate(ctx, date)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load %s: %w", date, err)
	}

	unsub, subscribed := c.attach(gen, date)

	c.post(event{kind: evSetDate, gen: gen, date: date, rec: rec, unsub: unsub, subscribed: subscribed})
	return nil
}

// attach opens the repository subscription for a date, tagging every
// delivery with gen so stale-date events are discarded by the actor. A
// failed attach (remote unreachable) leaves the controller serving local
// state; Resync retries it.
func (c *Controller) attach(gen uint64, date string) (func(), bool) {
	unsub, err := c.repo.Subscribe(c.ctx, date, func(ev remoteEvent) {
		c.post(event{kind: evRemoteUpdate, gen: gen, remote: ev})
	})
	if err != nil {
		c.config.Logger.Printf("subscription for %s unavailable: %v", date, err)
		return nil, false
	}
	return unsub, true
}

// SaveAndUpdate optimistically installs rec as the in-memory state, marks
// saving, and queues a whole-record write. rec.LastUpdated must be the
// lastUpdated of the state the edit was based on; the repository uses it as
// the conflict baseline. The call returns before the write resolves; watch
// Snapshot or OnChange for the outcome.
func (c *Controller) SaveAndUpdate(rec *census.Record) error {
	if c.ctx.Err() != nil {
		return fmt.Errorf("controller stopped")
	}
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	snap := c.snapshotDate()
	if snap == "" {
		return fmt.Errorf("no active date")
	}
	if rec.Date != snap {
		return fmt.Errorf("record date %s does not match active date %s", rec.Date, snap)
	}
	c.post(event{kind: evSaveRequest, rec: rec.Clone()})
	return nil
}

// PatchRecord optimistically applies a sparse patch to the in-memory record
// and queues the same patch as a best-effort partial update. Invalid paths
// fail synchronously and change nothing.
func (c *Controller) PatchRecord(p patch.Patch) error {
	if c.ctx.Err() != nil {
		return fmt.Errorf("controller stopped")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if c.snapshotDate() == "" {
		return fmt.Errorf("no active date")
	}
	c.post(event{kind: evPatchRequest, patch: p})
	return nil
}

// Resync asks the actor to refresh from the authoritative remote copy and to
// reattach the live subscription if it is missing. Fire-and-forget; the
// result lands in the next snapshots.
func (c *Controller) Resync() {
	c.post(event{kind: evResyncRequest})
}

func (c *Controller) snapshotDate() string {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap.Date
}

// post delivers an event to the actor, giving up when the controller is
// stopping so producers never block on a dead loop.
func (c *Controller) post(ev event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}
