package cache

import (
	"context"
	"fmt"
	"sort"

	gocache "github.com/patrickmn/go-cache"

	"wardsync/internal/census"
)

// Memory is an in-process cache tier. It backs demo mode and serves as the
// degraded tier once a persistent cache has failed.
type Memory struct {
	items *gocache.Cache
}

// NewMemory returns an empty in-memory store. Entries never expire; a day's
// snapshot stays valid until overwritten or deleted.
func NewMemory() *Memory {
	return &Memory{items: gocache.New(gocache.NoExpiration, 0)}
}

func (m *Memory) Get(ctx context.Context, date string) (*census.Record, error) {
	v, ok := m.items.Get(date)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*census.Record).Clone(), nil
}

func (m *Memory) Put(ctx context.Context, rec *census.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("cannot cache invalid record: %w", err)
	}
	m.items.Set(rec.Date, rec.Clone(), gocache.NoExpiration)
	return nil
}

func (m *Memory) Delete(ctx context.Context, date string) error {
	m.items.Delete(date)
	return nil
}

func (m *Memory) MostRecentBefore(ctx context.Context, date string) (*census.Record, error) {
	var best string
	for key := range m.items.Items() {
		if key < date && key > best {
			best = key
		}
	}
	if best == "" {
		return nil, ErrNotFound
	}
	return m.Get(ctx, best)
}

func (m *Memory) ListDates(ctx context.Context) ([]string, error) {
	items := m.items.Items()
	dates := make([]string, 0, len(items))
	for key := range items {
		dates = append(dates, key)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates, nil
}

func (m *Memory) Close() error {
	m.items.Flush()
	return nil
}
