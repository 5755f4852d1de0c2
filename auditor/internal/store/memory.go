package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wasteaudit/wasteaudit/pkg/types"
)

// Entry is a classified event together with the time it was last stored.
type Entry struct {
	Event     types.WasteEvent
	UpdatedAt time.Time
}

// Memory is a thread-safe in-memory result store keyed by event ID.
// A background goroutine (Run) periodically evicts entries that have not
// been updated within the configured TTL.
type Memory struct {
	mu   sync.RWMutex
	data map[int64]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// NewMemory creates a Memory store with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		data: make(map[int64]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Store stores or replaces every event of the batch. Events are copied, so
// callers may keep mutating their slice.
func (m *Memory) Store(ctx context.Context, events []types.WasteEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, ev := range events {
		ev.RootCauses = append(types.Causes(nil), ev.RootCauses...)
		m.data[ev.ID] = &Entry{Event: ev, UpdatedAt: now}
	}
	return nil
}

// Get returns the entry for id, or ErrNotFound. The entry may be stale if
// the TTL has elapsed.
func (m *Memory) Get(id int64) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// List returns the live entries for branch ordered by event ID. An empty
// branch lists every branch.
func (m *Memory) List(branch string) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := m.now().Add(-m.ttl)
	out := make([]Entry, 0, len(m.data))
	for _, e := range m.data {
		if !e.UpdatedAt.After(cutoff) {
			continue
		}
		if branch != "" && e.Event.Branch != branch {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Event.ID < out[j].Event.ID })
	return out
}

// SetNotifyError records the outcome of a deferred notification. An empty
// msg clears a previous failure.
func (m *Memory) SetNotifyError(id int64, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[id]
	if !ok {
		return ErrNotFound
	}
	e.Event.NotifyError = msg
	e.UpdatedAt = m.now()
	return nil
}

// Count returns the total number of entries currently held, including stale ones.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (m *Memory) Evict(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-m.ttl)
	removed := 0
	for id, e := range m.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(m.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (m *Memory) Run(ctx context.Context) {
	interval := m.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := m.Evict(now); n > 0 {
				slog.Debug("store: evicted stale results", "count", n)
			}
		}
	}
}
