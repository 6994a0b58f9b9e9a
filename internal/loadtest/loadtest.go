// Package loadtest exercises the repository layer under concurrent-writer
// contention.
//
// A run simulates W ward clients hammering whole-record saves and partial
// updates at a handful of shared dates through one in-memory remote. It
// measures write latency percentiles, counts baseline conflicts, and then
// verifies last-writer-wins convergence: for every date, the final remote
// document must carry the marker of the newest accepted save and a
// lastUpdated no older than that save's stamp.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"wardsync/internal/cache"
	"wardsync/internal/census"
	"wardsync/internal/patch"
	"wardsync/internal/remote"
	"wardsync/internal/repository"
)

// Writers fight over the marker bed; patches land on a different bed so the
// two write kinds never mask each other.
const (
	markerBed = "R1"
	noteBed   = "R2"
)

// Config controls a contention run.
type Config struct {
	// Dates is how many day records the writers contend over.
	Dates int

	// Writers is the number of concurrent clients, each with its own
	// repository and origin.
	Writers int

	// OpsPerWriter is how many writes each client issues.
	OpsPerWriter int

	// PatchRatio is the fraction of writes issued as partial updates
	// instead of whole-record saves, between 0 and 1.
	PatchRatio float64

	// Seed makes runs reproducible. Zero seeds from the clock.
	Seed int64

	// Logger receives writer errors and divergence diagnostics.
	Logger *log.Logger
}

// DefaultConfig returns settings sized for an interactive smoke run.
func DefaultConfig() *Config {
	return &Config{
		Dates:        3,
		Writers:      8,
		OpsPerWriter: 25,
		PatchRatio:   0.25,
		Logger:       log.New(os.Stderr, "[loadtest] ", log.LstdFlags),
	}
}

// LatencyStats captures write latency metrics from a run.
type LatencyStats struct {
	Min       time.Duration
	Max       time.Duration
	Mean      time.Duration
	P50       time.Duration // median
	P95       time.Duration
	P99       time.Duration
	TotalOps  int
	Durations []time.Duration
}

// String formats the stats as an aligned block for terminal output.
func (s *LatencyStats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write latency:\n")
	fmt.Fprintf(&b, "  Total ops:    %d\n", s.TotalOps)
	fmt.Fprintf(&b, "  Min:          %v\n", s.Min)
	fmt.Fprintf(&b, "  P50 (median): %v\n", s.P50)
	fmt.Fprintf(&b, "  Mean:         %v\n", s.Mean)
	fmt.Fprintf(&b, "  P95:          %v\n", s.P95)
	fmt.Fprintf(&b, "  P99:          %v\n", s.P99)
	fmt.Fprintf(&b, "  Max:          %v", s.Max)
	return b.String()
}

// Result aggregates one contention run.
type Result struct {
	Stats *LatencyStats

	// Saves counts whole-record saves the remote accepted.
	Saves int

	// Patches counts partial updates issued. Partial updates merge
	// field-wise and never conflict.
	Patches int

	// Conflicts counts saves the baseline guard rejected. Conflicts are
	// the point of the exercise, not errors.
	Conflicts int

	// Errors counts hard failures, anything other than a conflict.
	Errors int

	// Dates lists the contended dates.
	Dates []string

	// Divergent lists dates whose final remote document does not match
	// the newest accepted save. Empty after a correct run.
	Divergent []string
}

// Converged reports whether every date ended on its last accepted writer.
func (r *Result) Converged() bool { return len(r.Divergent) == 0 }

// String summarizes the run for terminal output.
func (r *Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Contention run over %d date(s):\n", len(r.Dates))
	fmt.Fprintf(&b, "  Accepted saves:  %d\n", r.Saves)
	fmt.Fprintf(&b, "  Partial updates: %d\n", r.Patches)
	fmt.Fprintf(&b, "  Conflicts:       %d\n", r.Conflicts)
	fmt.Fprintf(&b, "  Errors:          %d\n", r.Errors)
	if r.Converged() {
		fmt.Fprintf(&b, "  Convergence:     ok\n")
	} else {
		fmt.Fprintf(&b, "  Convergence:     DIVERGED on %s\n", strings.Join(r.Divergent, ", "))
	}
	b.WriteString(r.Stats.String())
	return b.String()
}

// acceptedSave records one save the remote accepted.
type acceptedSave struct {
	date   string
	marker string
	stamp  time.Time
}

type writerResult struct {
	durations []time.Duration
	saves     int
	patches   int
	conflicts int
	accepted  []acceptedSave
}

// Run seeds the dates, unleashes the writers, and checks convergence.
func Run(ctx context.Context, cfg *Config) (*Result, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Writers < 1 || cfg.OpsPerWriter < 1 || cfg.Dates < 1 {
		return nil, fmt.Errorf("writers, ops and dates must all be positive")
	}
	if cfg.PatchRatio < 0 || cfg.PatchRatio > 1 {
		return nil, fmt.Errorf("patch ratio must be between 0 and 1")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[loadtest] ", log.LstdFlags)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	hub := remote.NewMemory()
	defer hub.Close()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]string, cfg.Dates)
	for i := range dates {
		dates[i] = base.AddDate(0, 0, i).Format(census.DateLayout)
	}

	seeder := newClient(hub, "seeder", logger)
	defer seeder.Close()
	for _, date := range dates {
		if _, err := seeder.InitializeDay(ctx, date, ""); err != nil {
			return nil, fmt.Errorf("failed to seed %s: %w", date, err)
		}
	}

	resultsChan := make(chan writerResult, cfg.Writers)
	errorsChan := make(chan error, cfg.Writers)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			repo := newClient(hub, fmt.Sprintf("writer-%02d", id), logger)
			defer repo.Close()
			resultsChan <- runWriter(ctx, repo, id, cfg, seed, dates, errorsChan)
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	res := &Result{Dates: dates}
	var durations []time.Duration
	winners := make(map[string]acceptedSave)
	for wr := range resultsChan {
		durations = append(durations, wr.durations...)
		res.Saves += wr.saves
		res.Patches += wr.patches
		res.Conflicts += wr.conflicts
		for _, a := range wr.accepted {
			best, ok := winners[a.date]
			if !ok || a.stamp.After(best.stamp) {
				winners[a.date] = a
			}
		}
	}
	for err := range errorsChan {
		res.Errors++
		logger.Printf("writer failed: %v", err)
	}

	res.Stats = computeLatencyStats(durations)

	verifier := hub.Client("verifier")
	for _, date := range dates {
		final, err := verifier.Get(ctx, date)
		if err != nil {
			res.Divergent = append(res.Divergent, date)
			logger.Printf("failed to read final record for %s: %v", date, err)
			continue
		}
		win, ok := winners[date]
		if !ok {
			// No save was ever accepted for this date, so there is no
			// winner to compare against.
			continue
		}
		if slot := final.Beds[markerBed]; slot == nil || slot.PatientName != win.marker {
			res.Divergent = append(res.Divergent, date)
			logger.Printf("divergence on %s: want marker %q", date, win.marker)
			continue
		}
		if final.LastUpdated.Before(win.stamp) {
			res.Divergent = append(res.Divergent, date)
			logger.Printf("divergence on %s: lastUpdated %v behind winning save %v",
				date, final.LastUpdated, win.stamp)
		}
	}

	return res, nil
}

// newClient builds an isolated repository sharing the run's remote hub, the
// same shape every real client has: private cache, shared authority.
func newClient(hub *remote.Memory, origin string, logger *log.Logger) *repository.Repository {
	return repository.New(repository.Config{
		Local:  cache.NewMemory(),
		Remote: hub.Client(origin),
		Logger: logger,
	})
}

// runWriter issues one client's share of the traffic. A conflict rebases on
// the winner and moves on; any other failure stops the writer.
func runWriter(ctx context.Context, repo *repository.Repository, id int, cfg *Config, seed int64, dates []string, errorsChan chan<- error) writerResult {
	rng := rand.New(rand.NewSource(seed + int64(id)))
	wr := writerResult{durations: make([]time.Duration, 0, cfg.OpsPerWriter)}

	for op := 0; op < cfg.OpsPerWriter; op++ {
		if ctx.Err() != nil {
			errorsChan <- fmt.Errorf("writer %d stopped at op %d: %w", id, op, ctx.Err())
			return wr
		}
		date := dates[rng.Intn(len(dates))]

		if rng.Float64() < cfg.PatchRatio {
			p := patch.Patch{
				"beds." + noteBed + ".notesDayShift": fmt.Sprintf("control w%02d op%04d", id, op),
			}
			start := time.Now()
			_, err := repo.UpdatePartial(ctx, date, p)
			wr.durations = append(wr.durations, time.Since(start))
			if err != nil {
				errorsChan <- fmt.Errorf("writer %d patch on %s: %w", id, date, err)
				return wr
			}
			wr.patches++
			continue
		}

		rec, err := repo.GetForDate(ctx, date)
		if err != nil {
			errorsChan <- fmt.Errorf("writer %d read on %s: %w", id, date, err)
			return wr
		}
		marker := fmt.Sprintf("w%02d-op%04d", id, op)
		slot := rec.Beds[markerBed]
		if slot == nil {
			slot = &census.BedSlot{}
			rec.Beds[markerBed] = slot
		}
		slot.PatientName = marker

		start := time.Now()
		saved, err := repo.Save(ctx, rec)
		wr.durations = append(wr.durations, time.Since(start))

		var conflict *repository.ConflictError
		switch {
		case err == nil:
			wr.saves++
			wr.accepted = append(wr.accepted, acceptedSave{
				date:   date,
				marker: marker,
				stamp:  saved.LastUpdated,
			})
		case errors.As(err, &conflict):
			wr.conflicts++
			if _, rerr := repo.Resync(ctx, date); rerr != nil {
				errorsChan <- fmt.Errorf("writer %d resync on %s: %w", id, date, rerr)
				return wr
			}
		default:
			errorsChan <- fmt.Errorf("writer %d save on %s: %w", id, date, err)
			return wr
		}
	}
	return wr
}

// computeLatencyStats calculates percentiles from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      sum / time.Duration(len(sorted)),
		P50:       sorted[len(sorted)*50/100],
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		TotalOps:  len(sorted),
		Durations: sorted,
	}
}
