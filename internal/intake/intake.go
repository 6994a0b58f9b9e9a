// Package intake imports census records dropped into a spool directory.
//
// The legacy desktop system exports one JSON record per file. The importer:
// 1. Watches the spool directory for created or rewritten *.json files
// 2. Debounces rapid rewrites so half-copied files settle before reading
// 3. Rate-limits imports to keep bulk drops from flooding the remote store
// 4. Saves each record through the Repository: successful imports remove the
//    file, conflicts are logged and leave it in place for inspection
package intake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"wardsync/internal/census"
	"wardsync/internal/repository"
)

// Config holds configuration for the importer.
type Config struct {
	// DebounceInterval is how long a file must sit unchanged before it is
	// read. This batches the write bursts file copies produce.
	DebounceInterval time.Duration

	// ImportRate caps sustained imports per second.
	ImportRate rate.Limit

	// ImportBurst is the rate limiter's burst size.
	ImportBurst int

	// Logger for importer activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
		ImportRate:       rate.Limit(5),
		ImportBurst:      10,
		Logger:           log.New(os.Stderr, "[intake] ", log.LstdFlags),
	}
}

// Stats counts importer outcomes since Start.
type Stats struct {
	// Imported files were saved and removed from the spool.
	Imported int

	// Conflicts were skipped because a newer record already exists; the
	// file stays in the spool.
	Conflicts int

	// Rejected files failed to parse or validate.
	Rejected int

	// Failed imports hit storage errors.
	Failed int
}

// Importer watches a spool directory and feeds valid records into a
// Repository.
type Importer struct {
	repo   *repository.Repository
	dir    string
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> queued at
	changeQueueMu sync.Mutex

	limiter *rate.Limiter

	statsMu sync.Mutex
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an importer over repo watching dir. Use Start() to begin.
func New(repo *repository.Repository, dir string) (*Importer, error) {
	return NewWithConfig(repo, dir, DefaultConfig())
}

// NewWithConfig creates an importer with custom configuration.
func NewWithConfig(repo *repository.Repository, dir string, config *Config) (*Importer, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("spool directory cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[intake] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}
	if config.ImportRate <= 0 {
		config.ImportRate = rate.Limit(5)
	}
	if config.ImportBurst < 1 {
		config.ImportBurst = 10
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Importer{
		repo:        repo,
		dir:         dir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		limiter:     rate.NewLimiter(config.ImportRate, config.ImportBurst),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins watching the spool directory. Files already present are
// queued through the same debounce path as new drops, so a partially copied
// file settles before it is read.
//
// This blocks until ctx is cancelled or Stop is called.
func (im *Importer) Start(ctx context.Context) error {
	im.config.Logger.Printf("Starting importer on %s", im.dir)

	if err := im.sweep(); err != nil {
		return fmt.Errorf("initial sweep failed: %w", err)
	}

	if err := im.watcher.Add(im.dir); err != nil {
		return fmt.Errorf("failed to watch spool directory: %w", err)
	}

	im.wg.Add(2)
	go im.watchFileEvents()
	go im.processChangeQueue()

	select {
	case <-ctx.Done():
		im.config.Logger.Println("Shutdown signal received")
		return im.Stop()
	case <-im.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the importer.
func (im *Importer) Stop() error {
	im.config.Logger.Println("Stopping importer")

	im.cancel()

	if err := im.watcher.Close(); err != nil {
		im.config.Logger.Printf("Error closing watcher: %v", err)
	}

	im.wg.Wait()

	im.config.Logger.Println("Importer stopped")
	return nil
}

// Stats returns a copy of the outcome counters.
func (im *Importer) Stats() Stats {
	im.statsMu.Lock()
	defer im.statsMu.Unlock()
	return im.stats
}

// sweep queues every record file already sitting in the spool.
func (im *Importer) sweep() error {
	entries, err := os.ReadDir(im.dir)
	if err != nil {
		return fmt.Errorf("failed to read spool directory: %w", err)
	}

	queued := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		im.queueChange(filepath.Join(im.dir, entry.Name()))
		queued++
	}
	if queued > 0 {
		im.config.Logger.Printf("Queued %d existing files", queued)
	}
	return nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (im *Importer) watchFileEvents() {
	defer im.wg.Done()

	for {
		select {
		case <-im.ctx.Done():
			return

		case event, ok := <-im.watcher.Events:
			if !ok {
				return
			}

			// Only process .json files
			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				im.queueChange(event.Name)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Removals include our own post-import cleanup.
				im.dropChange(event.Name)
			}

		case err, ok := <-im.watcher.Errors:
			if !ok {
				return
			}
			im.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (im *Importer) queueChange(path string) {
	im.changeQueueMu.Lock()
	defer im.changeQueueMu.Unlock()

	im.changeQueue[path] = time.Now()
}

func (im *Importer) dropChange(path string) {
	im.changeQueueMu.Lock()
	defer im.changeQueueMu.Unlock()

	delete(im.changeQueue, path)
}

// processChangeQueue imports queued files once their debounce settles.
func (im *Importer) processChangeQueue() {
	defer im.wg.Done()

	ticker := time.NewTicker(im.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-im.ctx.Done():
			return

		case <-ticker.C:
			im.processPendingChanges()
		}
	}
}

// processPendingChanges imports files that have been queued for long enough.
// The queue lock is not held across imports; the rate limiter may block.
func (im *Importer) processPendingChanges() {
	im.changeQueueMu.Lock()
	now := time.Now()
	var ripe []string
	for path, queuedAt := range im.changeQueue {
		if now.Sub(queuedAt) < im.config.DebounceInterval {
			continue
		}
		ripe = append(ripe, path)
		delete(im.changeQueue, path)
	}
	im.changeQueueMu.Unlock()

	sort.Strings(ripe)
	for _, path := range ripe {
		if err := im.limiter.Wait(im.ctx); err != nil {
			return
		}
		im.importFile(path)
	}
}

// importFile reads one spooled record and saves it through the repository.
// The record's own lastUpdated is the write baseline, so a file older than
// the stored record loses cleanly instead of clobbering newer edits.
func (im *Importer) importFile(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Removed while queued.
		return
	}

	rec, err := census.ReadRecordFile(path)
	if err != nil {
		im.config.Logger.Printf("Rejecting %s: %v", filepath.Base(path), err)
		im.count(func(s *Stats) { s.Rejected++ })
		return
	}

	_, err = im.repo.Save(im.ctx, rec)
	var conflict *repository.ConflictError
	switch {
	case err == nil:
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			im.config.Logger.Printf("Imported %s but failed to remove %s: %v", rec.Date, filepath.Base(path), rerr)
		}
		im.config.Logger.Printf("Imported %s", rec.Date)
		im.count(func(s *Stats) { s.Imported++ })

	case errors.As(err, &conflict):
		im.config.Logger.Printf("Skipping %s: a newer record already exists", rec.Date)
		im.count(func(s *Stats) { s.Conflicts++ })

	default:
		im.config.Logger.Printf("Failed to import %s: %v", rec.Date, err)
		im.count(func(s *Stats) { s.Failed++ })
	}
}

func (im *Importer) count(update func(*Stats)) {
	im.statsMu.Lock()
	update(&im.stats)
	im.statsMu.Unlock()
}
