package controller

import (
	"errors"
	"time"

	"wardsync/internal/census"
	"wardsync/internal/patch"
	"wardsync/internal/remote"
	"wardsync/internal/repository"
)

type remoteEvent = remote.Event

type eventKind int

const (
	evSetDate eventKind = iota
	evSaveRequest
	evPatchRequest
	evRemoteUpdate
	evWriteDone
	evRefreshed
	evWindowExpired
	evHoldExpired
	evResyncRequest
	evSubscribed
)

// event is the single message type flowing into the actor. Fields are used
// per kind; gen ties an event to the SetDate generation that produced it.
type event struct {
	kind eventKind
	gen  uint64
	seq  uint64

	date       string
	rec        *census.Record
	patch      patch.Patch
	stamp      time.Time
	err        error
	remote     remoteEvent
	unsub      func()
	subscribed bool
}

// writeReq is one queued write: a whole-record save when rec is set,
// otherwise a partial update.
type writeReq struct {
	seq   uint64
	rec   *census.Record
	patch patch.Patch
}

// actorState is owned exclusively by the run goroutine.
type actorState struct {
	gen        uint64
	date       string
	unsub      func()
	subscribed bool

	record   *census.Record
	status   Status
	errMsg   string
	lastSync time.Time

	inWindow  bool
	windowSeq uint64
	holdSeq   uint64

	writeInFlight bool
	queue         []writeReq
	nextSeq       uint64
	lastSeq       uint64

	// lastStamp is the lastUpdated of the newest write this controller
	// completed for the active date. Queued saves rebase their conflict
	// baseline on it so back-to-back edits never conflict with themselves.
	lastStamp time.Time
}

func (c *Controller) run() {
	defer c.wg.Done()

	st := &actorState{}
	defer func() {
		if st.unsub != nil {
			st.unsub()
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.handle(st, ev)
		}
	}
}

func (c *Controller) handle(st *actorState, ev event) {
	switch ev.kind {
	case evSetDate:
		c.installDate(st, ev)
	case evSaveRequest:
		c.startSave(st, ev.rec)
	case evPatchRequest:
		c.startPatch(st, ev.patch)
	case evRemoteUpdate:
		c.applyRemote(st, ev)
	case evWriteDone:
		c.finishWrite(st, ev)
	case evRefreshed:
		c.installRefresh(st, ev)
	case evWindowExpired:
		if ev.gen == st.gen && ev.seq == st.windowSeq {
			st.inWindow = false
		}
	case evHoldExpired:
		if ev.gen == st.gen && ev.seq == st.holdSeq && st.status == StatusSaved {
			st.status = StatusIdle
			c.publish(st)
		}
	case evResyncRequest:
		c.startResync(st)
	case evSubscribed:
		c.installSubscription(st, ev)
	}
}

// installDate activates a new date generation. Older generations, including
// a slower concurrent SetDate that lost the race, are discarded and their
// subscriptions released.
func (c *Controller) installDate(st *actorState, ev event) {
	if ev.gen <= st.gen {
		if ev.unsub != nil {
			go ev.unsub()
		}
		return
	}
	if st.unsub != nil {
		go st.unsub()
	}

	st.gen = ev.gen
	st.date = ev.date
	st.unsub = ev.unsub
	st.subscribed = ev.subscribed
	st.record = ev.rec
	st.status = StatusIdle
	st.errMsg = ""
	st.lastSync = time.Time{}
	st.inWindow = false
	st.writeInFlight = false
	st.queue = nil
	st.lastStamp = time.Time{}
	c.publish(st)
}

func (c *Controller) startSave(st *actorState, rec *census.Record) {
	if st.date == "" || rec == nil {
		return
	}
	if rec.Date != st.date {
		c.config.Logger.Printf("dropping save for %s: active date is %s", rec.Date, st.date)
		return
	}
	st.record = rec
	c.enqueue(st, writeReq{rec: rec})
}

func (c *Controller) startPatch(st *actorState, p patch.Patch) {
	if st.date == "" {
		return
	}
	if st.record == nil {
		st.status = StatusError
		st.errMsg = "no record loaded for " + st.date
		c.publish(st)
		return
	}
	updated, err := patch.Apply(st.record, p)
	if err != nil {
		st.status = StatusError
		st.errMsg = err.Error()
		c.publish(st)
		return
	}
	st.record = updated
	c.enqueue(st, writeReq{patch: p})
}

// enqueue records a pending write, marks saving, opens the echo suppression
// window, and dispatches if nothing is in flight. Writes run one at a time
// in FIFO order.
func (c *Controller) enqueue(st *actorState, req writeReq) {
	st.nextSeq++
	req.seq = st.nextSeq
	st.lastSeq = req.seq
	st.queue = append(st.queue, req)

	st.status = StatusSaving
	st.errMsg = ""
	c.openWindow(st)

	if !st.writeInFlight {
		c.dispatch(st)
	}
	c.publish(st)
}

func (c *Controller) dispatch(st *actorState) {
	req := st.queue[0]
	st.queue = st.queue[1:]
	if req.rec != nil && st.lastStamp.After(req.rec.LastUpdated) {
		// This save was built before an earlier queued write finished.
		// Its content already sits on top of that write, so carry the
		// fresher baseline forward instead of conflicting with our own
		// history.
		rebased := req.rec.Clone()
		rebased.LastUpdated = st.lastStamp
		req.rec = rebased
	}
	st.writeInFlight = true
	go c.runWrite(st.gen, st.date, req)
}

func (c *Controller) runWrite(gen uint64, date string, req writeReq) {
	if req.rec != nil {
		saved, err := c.repo.Save(c.ctx, req.rec)
		c.post(event{kind: evWriteDone, gen: gen, seq: req.seq, rec: saved, err: err})
		return
	}
	stamp, err := c.repo.UpdatePartial(c.ctx, date, req.patch)
	c.post(event{kind: evWriteDone, gen: gen, seq: req.seq, stamp: stamp, err: err})
}

func (c *Controller) finishWrite(st *actorState, ev event) {
	if ev.gen != st.gen {
		return
	}
	st.writeInFlight = false

	if ev.err != nil {
		c.failWrite(st, ev.err)
		return
	}

	st.lastSync = time.Now()
	if ev.rec != nil {
		st.lastStamp = ev.rec.LastUpdated
	} else {
		st.lastStamp = ev.stamp
	}
	if ev.seq == st.lastSeq && len(st.queue) == 0 {
		if ev.rec != nil {
			// Whole-record save: adopt the stamped copy.
			st.record = ev.rec
		} else if st.record != nil {
			// Partial update: content is already applied optimistically;
			// only the stamp needs to catch up.
			rec := st.record.Clone()
			rec.LastUpdated = ev.stamp
			st.record = rec
		}
	}

	if len(st.queue) > 0 {
		c.dispatch(st)
	} else {
		st.status = StatusSaved
		st.holdSeq++
		c.scheduleHold(st.gen, st.holdSeq)
	}
	c.publish(st)
}

// failWrite surfaces a hard write failure. Queued writes are dropped: they
// were built on the optimistic state the failure just invalidated.
func (c *Controller) failWrite(st *actorState, err error) {
	st.queue = nil
	st.status = StatusError

	var conflict *repository.ConflictError
	if errors.As(err, &conflict) {
		st.errMsg = "record for " + conflict.Date + " was changed by another device; showing the latest copy"
		if conflict.Winner != nil {
			st.record = conflict.Winner
			st.lastSync = time.Now()
		} else {
			go c.refreshRemote(st.gen, st.lastSeq, st.date)
		}
	} else {
		st.errMsg = err.Error()
	}
	c.publish(st)
}

// applyRemote handles one subscription delivery. Inside the suppression
// window, echoes of this client's own writes and updates racing an in-flight
// write are dropped so they cannot clobber optimistic state. Outside the
// window every update is authoritative and accepted as-is.
func (c *Controller) applyRemote(st *actorState, ev event) {
	if ev.gen != st.gen {
		return
	}
	if st.inWindow && (ev.remote.Echo || st.writeInFlight) {
		return
	}
	st.record = ev.remote.Record
	st.lastSync = time.Now()
	c.publish(st)
}

// installRefresh adopts an asynchronously fetched record, but only while the
// write path is quiescent; a newer optimistic edit wins over the fetch.
func (c *Controller) installRefresh(st *actorState, ev event) {
	if ev.gen != st.gen || ev.seq != st.lastSeq {
		return
	}
	if st.writeInFlight || len(st.queue) > 0 {
		return
	}
	st.record = ev.rec
	c.publish(st)
}

func (c *Controller) startResync(st *actorState) {
	if st.date == "" {
		return
	}
	if !st.subscribed {
		gen, date := st.gen, st.date
		go func() {
			unsub, ok := c.attach(gen, date)
			if ok {
				c.post(event{kind: evSubscribed, gen: gen, unsub: unsub})
			}
		}()
	}
	go c.refreshRemote(st.gen, st.lastSeq, st.date)
}

func (c *Controller) installSubscription(st *actorState, ev event) {
	if ev.gen != st.gen || st.subscribed {
		if ev.unsub != nil {
			go ev.unsub()
		}
		return
	}
	st.unsub = ev.unsub
	st.subscribed = true
}

// refreshRemote pulls the authoritative copy, treating a missing remote
// document as a deleted day.
func (c *Controller) refreshRemote(gen, seq uint64, date string) {
	rec, err := c.repo.Resync(c.ctx, date)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		c.config.Logger.Printf("resync for %s failed: %v", date, err)
		return
	}
	c.post(event{kind: evRefreshed, gen: gen, seq: seq, rec: rec})
}

func (c *Controller) openWindow(st *actorState) {
	st.inWindow = true
	st.windowSeq++
	gen, seq := st.gen, st.windowSeq
	time.AfterFunc(c.config.SuppressionWindow, func() {
		c.post(event{kind: evWindowExpired, gen: gen, seq: seq})
	})
}

func (c *Controller) scheduleHold(gen, seq uint64) {
	time.AfterFunc(c.config.SavedHold, func() {
		c.post(event{kind: evHoldExpired, gen: gen, seq: seq})
	})
}

// publish copies the actor state into the shared snapshot and notifies the
// OnChange hook.
func (c *Controller) publish(st *actorState) {
	snap := Snapshot{
		Date:     st.date,
		Record:   st.record,
		Status:   st.status,
		Err:      st.errMsg,
		LastSync: st.lastSync,
		Online:   c.repo.Online(),
	}
	c.snapMu.Lock()
	c.snap = snap
	c.snapMu.Unlock()

	if c.config.OnChange != nil {
		snap.Record = snap.Record.Clone()
		c.config.OnChange(snap)
	}
}
