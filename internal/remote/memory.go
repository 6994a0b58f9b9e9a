package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"wardsync/internal/census"
	"wardsync/internal/patch"
)

func init() {
	Register("memory", func(opts Options) (Store, error) {
		client := NewMemory().Client(opts.Origin)
		client.ownsHub = true
		return client, nil
	})
}

// Memory is an in-process document hub with the same contract as the
// Postgres backend: one document per date, baseline-guarded whole-document
// writes, and per-date change events. It backs demo mode, the load tester,
// and package tests. Multiple clients can share one hub to model multiple
// devices editing the same ward.
type Memory struct {
	// dispatchMu serializes write+announce pairs so subscribers always
	// observe changes in commit order, like NOTIFY delivery.
	dispatchMu sync.Mutex

	mu     sync.RWMutex
	docs   map[string]memoryDoc
	subs   map[int]*memorySub
	nextID int
	closed bool
}

type memoryDoc struct {
	doc         []byte
	lastUpdated time.Time
}

// NewMemory returns an empty hub.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]memoryDoc),
		subs: make(map[int]*memorySub),
	}
}

// Client returns a Store view of the hub bound to an origin identity.
// Writes through the client carry its origin; events reach every client's
// subscribers, flagged as echoes only for the writer. An empty origin gets
// a fresh random identity.
func (m *Memory) Client(origin string) *MemoryClient {
	if origin == "" {
		origin = uuid.NewString()
	}
	return &MemoryClient{hub: m, origin: origin}
}

// Close stops every subscription and refuses further subscribers. Document
// contents stay readable; tests inspect them after shutdown.
func (m *Memory) Close() error {
	m.dispatchMu.Lock()
	m.mu.Lock()
	m.closed = true
	subs := make([]*memorySub, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.subs = make(map[int]*memorySub)
	m.mu.Unlock()
	m.dispatchMu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	return nil
}

func (m *Memory) get(date string) (*census.Record, error) {
	m.mu.RLock()
	d, ok := m.docs[date]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeDoc(d.doc)
}

func (m *Memory) put(rec *census.Record, baseline time.Time, origin string) error {
	doc, err := encodeDoc(rec)
	if err != nil {
		return err
	}

	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	if existing, ok := m.docs[rec.Date]; ok && existing.lastUpdated.After(baseline) {
		m.mu.Unlock()
		return fmt.Errorf("write for %s rejected: %w", rec.Date, ErrConflict)
	}
	m.docs[rec.Date] = memoryDoc{doc: doc, lastUpdated: rec.LastUpdated}
	subs := m.subsForLocked(rec.Date)
	m.mu.Unlock()

	m.announce(subs, rec.Date, doc, origin)
	return nil
}

func (m *Memory) patch(date string, pt patch.Patch, stamp time.Time, origin string) error {
	if err := pt.Validate(); err != nil {
		return err
	}

	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	existing, ok := m.docs[date]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("patch for %s: %w", date, ErrNotFound)
	}
	// A patch stamped behind a concurrent save keeps the newer stamp; the
	// version clock never moves backwards.
	if existing.lastUpdated.After(stamp) {
		stamp = existing.lastUpdated
	}
	doc, err := pt.ApplyJSON(existing.doc)
	if err == nil {
		doc, err = patchStamp(doc, stamp)
	}
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to patch document %s: %w", date, err)
	}
	m.docs[date] = memoryDoc{doc: doc, lastUpdated: stamp}
	subs := m.subsForLocked(date)
	m.mu.Unlock()

	m.announce(subs, date, doc, origin)
	return nil
}

func (m *Memory) delete(date string, origin string) error {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	_, existed := m.docs[date]
	delete(m.docs, date)
	subs := m.subsForLocked(date)
	m.mu.Unlock()

	if !existed {
		return nil
	}
	m.announce(subs, date, nil, origin)
	return nil
}

func (m *Memory) listDates() []string {
	m.mu.RLock()
	dates := make([]string, 0, len(m.docs))
	for date := range m.docs {
		dates = append(dates, date)
	}
	m.mu.RUnlock()
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}

// subsForLocked snapshots the subscribers watching date. Caller holds mu.
func (m *Memory) subsForLocked(date string) []*memorySub {
	var subs []*memorySub
	for _, s := range m.subs {
		if s.date == date {
			subs = append(subs, s)
		}
	}
	return subs
}

// announce fans one committed change out to a subscriber snapshot. A nil doc
// means the document was deleted. Caller holds dispatchMu, so concurrent
// writers cannot interleave their announcements.
func (m *Memory) announce(subs []*memorySub, date string, doc []byte, origin string) {
	if len(subs) == 0 {
		return
	}
	var base *census.Record
	if doc != nil {
		rec, err := decodeDoc(doc)
		if err != nil {
			// Stored documents are produced by encodeDoc; a decode
			// failure here is a bug, not a runtime condition.
			panic(fmt.Sprintf("remote: undecodable stored document for %s: %v", date, err))
		}
		base = rec
	}
	for _, s := range subs {
		s.send(Event{Date: date, Record: base.Clone(), Echo: origin == s.origin})
	}
}

func (m *Memory) subscribe(ctx context.Context, date, origin string, fn func(Event)) (func(), error) {
	s := &memorySub{
		date:   date,
		origin: origin,
		fn:     fn,
		events: make(chan Event, 64),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	m.dispatchMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.dispatchMu.Unlock()
		return nil, fmt.Errorf("subscribe for %s: %w", date, ErrClosed)
	}
	id := m.nextID
	m.nextID++
	m.subs[id] = s
	current, hasDoc := m.docs[date]
	m.mu.Unlock()

	// Current state first, then live changes, matching the Postgres
	// attach sequence. dispatchMu holds writers off until the snapshot
	// is queued.
	if hasDoc {
		if rec, err := decodeDoc(current.doc); err == nil {
			s.send(Event{Date: date, Record: rec})
		}
	}
	m.dispatchMu.Unlock()

	go s.pump()

	stop := func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		s.stop()
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				stop()
			case <-s.quit:
			}
		}()
	}
	return stop, nil
}

// memorySub is one subscription: a buffered event queue drained by its own
// pump goroutine, so callbacks never run under hub locks.
type memorySub struct {
	date     string
	origin   string
	fn       func(Event)
	events   chan Event
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func (s *memorySub) send(ev Event) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}

func (s *memorySub) pump() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.events:
			s.fn(ev)
		}
	}
}

// stop halts the pump and waits for any in-flight callback to return. Safe
// to call more than once.
func (s *memorySub) stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		<-s.done
	})
}

// MemoryClient is one client identity's view of a Memory hub.
type MemoryClient struct {
	hub     *Memory
	origin  string
	ownsHub bool
}

// Origin returns the client identity this store writes with.
func (c *MemoryClient) Origin() string {
	return c.origin
}

func (c *MemoryClient) Get(ctx context.Context, date string) (*census.Record, error) {
	return c.hub.get(date)
}

func (c *MemoryClient) Put(ctx context.Context, rec *census.Record, baseline time.Time) error {
	return c.hub.put(rec, baseline, c.origin)
}

func (c *MemoryClient) Patch(ctx context.Context, date string, pt patch.Patch, stamp time.Time) error {
	return c.hub.patch(date, pt, stamp, c.origin)
}

func (c *MemoryClient) Delete(ctx context.Context, date string) error {
	return c.hub.delete(date, c.origin)
}

func (c *MemoryClient) ListDates(ctx context.Context) ([]string, error) {
	return c.hub.listDates(), nil
}

func (c *MemoryClient) Subscribe(ctx context.Context, date string, fn func(Event)) (func(), error) {
	return c.hub.subscribe(ctx, date, c.origin, fn)
}

// Close shuts the underlying hub down only when this client created it
// through the registry; shared hubs outlive their clients.
func (c *MemoryClient) Close() error {
	if c.ownsHub {
		return c.hub.Close()
	}
	return nil
}
