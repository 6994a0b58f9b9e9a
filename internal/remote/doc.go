// Package remote provides the authoritative storage tier for census records.
//
// Every backend stores exactly one document per census date and serializes
// concurrent writers: a whole-document write carries the lastUpdated baseline
// the writer read, and the backend rejects it with ErrConflict when the
// stored document has moved past that baseline. Partial patches skip the
// baseline check and reconcile through the live subscription instead.
//
// # Architecture
//
// Backends register themselves with the package registry and are dialed by
// name. Two ship in-tree:
//
//   - postgres: lib/pq against a JSONB document table, with change
//     notifications over LISTEN/NOTIFY
//   - memory: an in-process hub with identical semantics, backing demo mode
//     and tests
//
// Each client identifies itself with an origin ID. Writes carry the origin
// on the wire, and subscription events compare it against the receiving
// client's own identity to flag echoes of its unconfirmed writes.
//
// # Usage
//
//	store, err := remote.New("postgres", remote.Options{DSN: dsn})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	unsubscribe, err := store.Subscribe(ctx, "2026-03-14", func(ev remote.Event) {
//		if ev.Echo {
//			return // our own write coming back
//		}
//		render(ev.Record)
//	})
package remote
