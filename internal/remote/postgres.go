package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"wardsync/internal/census"
	"wardsync/internal/patch"
)

func init() {
	Register("postgres", func(opts Options) (Store, error) {
		return OpenPostgres(opts)
	})
}

// notifyChannel is the single LISTEN/NOTIFY channel all census changes flow
// through. Payloads identify the date, so subscribers filter client-side.
const notifyChannel = "wardsync_census"

// listenerPingInterval bounds how long a dead listener connection can go
// unnoticed.
const listenerPingInterval = 90 * time.Second

// notifyPayload is the JSON body of one NOTIFY. Subscribers re-fetch the
// document; the payload only says what changed and who changed it.
type notifyPayload struct {
	Date    string `json:"date"`
	Origin  string `json:"origin"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Postgres stores census documents in a JSONB table and streams changes over
// LISTEN/NOTIFY. Each instance represents one client identity.
type Postgres struct {
	db     *sql.DB
	dsn    string
	origin string
	logger *log.Logger
}

// OpenPostgres dials the database, ensures the schema, and returns a store
// bound to the options' origin identity.
func OpenPostgres(opts Options) (*Postgres, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	origin := opts.Origin
	if origin == "" {
		origin = uuid.NewString()
	}

	db, err := sql.Open("postgres", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to remote database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	schema := `
	CREATE TABLE IF NOT EXISTS census_documents (
		date         text PRIMARY KEY,
		last_updated timestamptz NOT NULL,
		origin       text NOT NULL DEFAULT '',
		doc          jsonb NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize remote schema: %w", err)
	}

	return &Postgres{db: db, dsn: opts.DSN, origin: origin, logger: logger}, nil
}

// Origin returns the client identity this store writes with.
func (p *Postgres) Origin() string {
	return p.origin
}

// Close closes the connection pool. Listener connections owned by active
// subscriptions close when their stop functions run.
func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Get(ctx context.Context, date string) (*census.Record, error) {
	var doc []byte
	err := p.db.QueryRowContext(ctx,
		"SELECT doc FROM census_documents WHERE date = $1", date).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", date, err)
	}
	return decodeDoc(doc)
}

func (p *Postgres) Put(ctx context.Context, rec *census.Record, baseline time.Time) error {
	doc, err := encodeDoc(rec)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin write for %s: %w", rec.Date, err)
	}
	defer tx.Rollback()

	// The baseline guard rides inside the upsert: when another client has
	// already advanced last_updated past the baseline, the DO UPDATE arm
	// matches zero rows and the write is rejected.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO census_documents (date, last_updated, origin, doc)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (date) DO UPDATE SET
			last_updated = EXCLUDED.last_updated,
			origin       = EXCLUDED.origin,
			doc          = EXCLUDED.doc
		WHERE census_documents.last_updated <= $5`,
		rec.Date, rec.LastUpdated.UTC(), p.origin, doc, baseline.UTC())
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", rec.Date, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", rec.Date, err)
	}
	if rows == 0 {
		return fmt.Errorf("write for %s rejected: %w", rec.Date, ErrConflict)
	}

	if err := p.notify(ctx, tx, rec.Date, false); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit write for %s: %w", rec.Date, err)
	}
	return nil
}

func (p *Postgres) Patch(ctx context.Context, date string, pt patch.Patch, stamp time.Time) error {
	if err := pt.Validate(); err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin patch for %s: %w", date, err)
	}
	defer tx.Rollback()

	// Row lock so two patches to the same date serialize instead of
	// applying against the same base document.
	var doc []byte
	var current time.Time
	err = tx.QueryRowContext(ctx,
		"SELECT doc, last_updated FROM census_documents WHERE date = $1 FOR UPDATE", date).
		Scan(&doc, &current)
	if err == sql.ErrNoRows {
		return fmt.Errorf("patch for %s: %w", date, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock document %s: %w", date, err)
	}

	// A patch stamped behind a concurrent save keeps the newer stamp; the
	// version clock never moves backwards.
	if current.After(stamp) {
		stamp = current
	}

	doc, err = pt.ApplyJSON(doc)
	if err == nil {
		doc, err = patchStamp(doc, stamp)
	}
	if err != nil {
		return fmt.Errorf("failed to patch document %s: %w", date, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE census_documents
		SET doc = $1, last_updated = $2, origin = $3
		WHERE date = $4`,
		doc, stamp.UTC(), p.origin, date); err != nil {
		return fmt.Errorf("failed to patch document %s: %w", date, err)
	}

	if err := p.notify(ctx, tx, date, false); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit patch for %s: %w", date, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, date string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete for %s: %w", date, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM census_documents WHERE date = $1", date)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", date, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", date, err)
	}
	if rows == 0 {
		// Nothing existed; nothing to announce.
		return nil
	}

	if err := p.notify(ctx, tx, date, true); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete for %s: %w", date, err)
	}
	return nil
}

func (p *Postgres) ListDates(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT date FROM census_documents ORDER BY date DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list remote dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, date)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dates: %w", err)
	}
	return dates, nil
}

// notify queues a change announcement inside the writing transaction, so
// subscribers only hear about committed changes, in commit order.
func (p *Postgres) notify(ctx context.Context, tx *sql.Tx, date string, deleted bool) error {
	payload, err := json.Marshal(notifyPayload{Date: date, Origin: p.origin, Deleted: deleted})
	if err != nil {
		return fmt.Errorf("failed to encode notification for %s: %w", date, err)
	}
	if _, err := tx.ExecContext(ctx,
		"SELECT pg_notify($1, $2)", notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify for %s: %w", date, err)
	}
	return nil
}

func (p *Postgres) Subscribe(ctx context.Context, date string, fn func(Event)) (func(), error) {
	listener := pq.NewListener(p.dsn, 10*time.Second, time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				p.logger.Printf("listener event %d for %s: %v", ev, date, err)
			}
		})
	if err := listener.Listen(notifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen for %s: %w", date, err)
	}

	// Deliver the current document before streaming changes, so the
	// subscriber starts from known state. Changes committed while the
	// snapshot is in flight queue on the listener and replay after it.
	if rec, err := p.Get(ctx, date); err == nil {
		fn(Event{Date: date, Record: rec})
	} else if !errors.Is(err, ErrNotFound) {
		_ = listener.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go p.pump(subCtx, listener, date, fn, done)

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	return stop, nil
}

// pump turns NOTIFY payloads into Events until the subscription stops. The
// payload never carries the document; the pump re-fetches, so a burst of
// notifications collapses toward the latest committed state.
func (p *Postgres) pump(ctx context.Context, listener *pq.Listener, date string, fn func(Event), done chan struct{}) {
	defer close(done)
	defer listener.Close()

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case n := <-listener.Notify:
			if n == nil {
				// Connection reset; pq reconnects and re-listens on
				// its own. Changes committed during the gap surface
				// on the next notification's re-fetch.
				continue
			}
			var payload notifyPayload
			if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
				p.logger.Printf("ignoring malformed notification: %v", err)
				continue
			}
			if payload.Date != date {
				continue
			}

			ev := Event{Date: date, Echo: payload.Origin == p.origin}
			if !payload.Deleted {
				rec, err := p.Get(ctx, date)
				switch {
				case errors.Is(err, ErrNotFound):
					// Deleted between notify and fetch; report as
					// a deletion.
				case err != nil:
					p.logger.Printf("failed to fetch %s after notification: %v", date, err)
					continue
				default:
					ev.Record = rec
				}
			}
			fn(ev)

		case <-ticker.C:
			if err := listener.Ping(); err != nil {
				p.logger.Printf("listener ping for %s failed: %v", date, err)
			}
		}
	}
}
