package wallboard

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"wardsync/internal/census"
	"wardsync/internal/remote"
	"wardsync/internal/repository"
)

// Bridge attaches a repository subscription for one date and turns record
// changes into wallboard broadcasts. It also installs the welcome hook so
// new clients immediately see current occupancy.
type Bridge struct {
	server *Server
	repo   *repository.Repository
	logger *log.Logger

	mu     sync.Mutex
	date   string
	stats  census.Stats
	online bool
	unsub  func()
}

// NewBridge creates a bridge between repo and server.
func NewBridge(server *Server, repo *repository.Repository, logger *log.Logger) *Bridge {
	if logger == nil {
		logger = log.New(log.Writer(), "[wallboard] ", log.LstdFlags)
	}
	b := &Bridge{
		server: server,
		repo:   repo,
		logger: logger,
		online: repo.Online(),
	}
	server.SetWelcome(b.welcome)
	return b
}

// Watch loads the record for date and subscribes to its live updates. A day
// that has no record yet is fine; stats stay zero until it appears.
func (b *Bridge) Watch(ctx context.Context, date string) error {
	if _, err := census.ParseDate(date); err != nil {
		return err
	}

	rec, err := b.repo.GetForDate(ctx, date)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	b.mu.Lock()
	b.date = date
	if rec != nil {
		b.stats = rec.Stats()
	} else {
		b.stats = census.Stats{}
	}
	b.mu.Unlock()

	unsub, err := b.repo.Subscribe(ctx, date, b.handle)
	if err != nil {
		// Local state still serves the board; live updates are absent
		// until the next Watch.
		b.logger.Printf("live subscription for %s unavailable: %v", date, err)
	} else {
		b.mu.Lock()
		b.unsub = unsub
		b.mu.Unlock()
	}

	b.broadcastStats()
	b.broadcastSyncStatus(b.repo.Online())
	return nil
}

// Stop detaches the subscription. The server keeps running; displays just
// stop receiving updates.
func (b *Bridge) Stop() {
	b.mu.Lock()
	unsub := b.unsub
	b.unsub = nil
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Stats returns the latest occupancy snapshot.
func (b *Bridge) Stats() census.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// handle is the subscription callback: one broadcast per record change,
// plus a stats refresh and, when the link state flips, a sync_status.
func (b *Bridge) handle(ev remote.Event) {
	origin := "remote"
	if ev.Echo {
		origin = "echo"
	}

	var stats census.Stats
	if ev.Record != nil {
		stats = ev.Record.Stats()
	}

	b.mu.Lock()
	b.stats = stats
	b.mu.Unlock()

	update := CensusUpdateData{
		Date:    ev.Date,
		Origin:  origin,
		Deleted: ev.Record == nil,
		Stats:   stats,
	}
	if data, err := json.Marshal(update); err == nil {
		b.server.Broadcast(Message{Type: MessageTypeCensusUpdate, Timestamp: time.Now(), Data: data})
	} else {
		b.logger.Printf("failed to marshal census update: %v", err)
	}

	b.broadcastStats()

	if online := b.repo.Online(); b.swapOnline(online) != online {
		b.broadcastSyncStatus(online)
	}
}

// swapOnline stores the new link state and returns the previous one.
func (b *Bridge) swapOnline(online bool) bool {
	b.mu.Lock()
	prev := b.online
	b.online = online
	b.mu.Unlock()
	return prev
}

// welcome builds the first message a connecting client receives: the
// current stats so the board renders without waiting for a change.
func (b *Bridge) welcome() Message {
	data, err := json.Marshal(b.Stats())
	if err != nil {
		return Message{Type: MessageTypeStats, Timestamp: time.Now()}
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (b *Bridge) broadcastStats() {
	data, err := json.Marshal(b.Stats())
	if err != nil {
		b.logger.Printf("failed to marshal stats: %v", err)
		return
	}
	b.server.Broadcast(Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data})
}

func (b *Bridge) broadcastSyncStatus(online bool) {
	b.swapOnline(online)
	data, err := json.Marshal(SyncStatusData{Online: online})
	if err != nil {
		return
	}
	b.server.Broadcast(Message{Type: MessageTypeSyncStatus, Timestamp: time.Now(), Data: data})
}
