// Package controller keeps one census date's record in memory and reconciles
// optimistic local edits with live remote updates.
//
// A Controller sits between the UI (or CLI) and a repository.Repository. It
// owns the authoritative in-memory copy of the active date's record, applies
// edits to it immediately so the caller never waits on storage, runs the
// actual writes in the background one at a time, and folds subscription
// deliveries back into the in-memory copy without letting the client's own
// writes echo over fresher optimistic state.
//
// # Architecture
//
// All state lives in a single actor goroutine fed by one event channel.
// Public methods never touch state directly; they validate their input, post
// an event, and return. The actor processes events strictly in order:
//
//   - SetDate install (new generation)
//   - save and patch requests (optimistic apply + enqueue)
//   - write completions posted by background write goroutines
//   - remote subscription deliveries
//   - timer expirations (suppression window, saved hold)
//
// Because a single goroutine owns the state there are no locks on the hot
// path and no torn reads; Snapshot reads a copy published after each change.
//
// # Write Path
//
// SaveAndUpdate and PatchRecord update the in-memory record first, set the
// status to saving, and append a write request to a FIFO queue. At most one
// write runs at a time; the next dispatches when the previous completes.
// A successful drain of the queue sets the status to saved, which reverts to
// idle after a short hold. A failed write drops the rest of the queue (those
// edits were built on state the failure invalidated) and sets the status to
// error with a human-readable message.
//
// A version conflict is not retried. The controller replaces the in-memory
// record with the winning remote copy carried by the conflict error, so the
// user re-edits on top of what actually won.
//
// # Echo Suppression
//
// Every local write opens a rolling suppression window (750ms by default).
// Inside the window, subscription deliveries flagged as this client's own
// echo, and deliveries racing an in-flight write, are dropped: the optimistic
// copy is already at least as new as what they carry. Outside the window
// every delivery is accepted unconditionally, echo or not, because the remote
// store is the source of truth once the write path is quiet.
//
// # Date Switching
//
// SetDate claims a new generation number, loads the record, subscribes, and
// posts the install. Every event carries the generation it belongs to; the
// actor discards events from older generations, so a slow write completion
// or a late subscription delivery for yesterday can never mutate today's
// state. The previous subscription is released as the new one installs.
//
// # Shutdown
//
// Stop cancels the controller context and waits for the actor to exit. The
// active subscription is detached on the way out. Background writes that are
// still running observe the canceled context and abandon their work.
//
// # Usage
//
//	repo := repository.New(repository.Config{Local: local, Remote: rem})
//	ctrl, err := controller.New(repo, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := ctrl.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer ctrl.Stop()
//
//	if err := ctrl.SetDate(ctx, "2026-03-14"); err != nil {
//		log.Fatal(err)
//	}
//
//	snap := ctrl.Snapshot()
//	snap.Record.Beds["R1"] = &census.BedSlot{PatientName: "Ana Reyes", Diagnosis: "NAC"}
//	ctrl.SaveAndUpdate(snap.Record)
package controller
