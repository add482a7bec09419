// Package cache provides TTL-bounded persistence of timeline items with
// background eviction and a change-reactive read.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abelbrown/timeline/internal/logging"
	"github.com/abelbrown/timeline/internal/store"
	"github.com/abelbrown/timeline/internal/timeline"
)

// SweepInterval is the time between expiry sweeps.
const SweepInterval = 60 * time.Second

// recordStore is the slice of the record store the manager needs.
// Interface for dependency injection (testing).
type recordStore interface {
	SaveRecords(records []store.Record) error
	All() ([]store.Record, error)
	Subscribe(ctx context.Context) <-chan struct{}
	DeleteExpired(cutoff time.Time) (int64, error)
	DeleteByID(id string) error
	DeleteAll() error
}

// Manager owns the record store handle. It is the only component that
// mutates the store; readers go through Watch.
//
// The eviction sweep starts at construction and runs for the manager's
// lifetime. It is stopped only by Close, never by consumer cancellation.
type Manager struct {
	store    recordStore
	interval time.Duration

	sweepRunning atomic.Bool // guard: at most one sweep loop at a time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Manager over the given store and starts the eviction sweep.
func New(s *store.Store) *Manager {
	return NewWithStore(s, SweepInterval)
}

// NewWithStore allows injecting a custom store and sweep interval (for testing).
func NewWithStore(s recordStore, interval time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:    s,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
	m.startSweep()
	return m
}

// Close stops the sweep loop and waits for it to exit. It does not close
// the underlying store; the store handle belongs to whoever opened it.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// Write upserts the given items, precomputing each record's expiry. A nil or
// empty slice is a no-op. Errors propagate to the caller; rows upserted
// before a failure are not rolled back.
func (m *Manager) Write(items []timeline.Item) error {
	if len(items) == 0 {
		return nil
	}

	records := make([]store.Record, len(items))
	for i, item := range items {
		records[i] = store.FromItem(item)
	}

	if err := m.store.SaveRecords(records); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	logging.Debug("cached items", "count", len(items))
	return nil
}

// Watch returns a change-reactive feed of the full cached item set, ordered
// by creation time descending. The current set is delivered immediately and
// re-delivered after every store change. Read failures are logged and
// degrade to an empty emission; the channel never closes before ctx does.
func (m *Manager) Watch(ctx context.Context) <-chan []timeline.Item {
	out := make(chan []timeline.Item, 1)
	ticks := m.store.Subscribe(ctx)

	go func() {
		defer close(out)

		if !m.emit(ctx, out) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				if !m.emit(ctx, out) {
					return
				}
			}
		}
	}()

	return out
}

// emit reads the store and delivers the snapshot. Returns false once ctx is
// cancelled.
func (m *Manager) emit(ctx context.Context, out chan<- []timeline.Item) bool {
	records, err := m.store.All()
	if err != nil {
		// Cache reads must never crash a consumer: degrade to empty.
		logging.Error("cache read failed, degrading to empty", "error", err)
		records = nil
	}

	items := make([]timeline.Item, len(records))
	for i, r := range records {
		items[i] = r.Item()
	}

	select {
	case out <- items:
		return true
	case <-ctx.Done():
		return false
	}
}

// Delete removes a single item by id. Deleting an absent id is a no-op.
func (m *Manager) Delete(id timeline.PostID) error {
	if err := m.store.DeleteByID(string(id)); err != nil {
		return fmt.Errorf("cache delete %s: %w", id, err)
	}
	return nil
}

// Clear removes every cached item.
func (m *Manager) Clear() error {
	if err := m.store.DeleteAll(); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// startSweep launches the eviction loop unless one is already running.
func (m *Manager) startSweep() {
	if m.sweepRunning.Swap(true) {
		logging.Debug("sweep loop already running")
		return
	}

	m.wg.Add(1)
	go m.sweepLoop()
}

// sweepLoop deletes expired records every interval. On a failed iteration it
// logs, backs off for twice the interval, and relaunches itself; the sweep
// must never silently stop for the life of the process.
func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	// Sweep immediately so a restart doesn't leave expired rows sitting
	// around for a full interval.
	if err := m.sweepOnce(); err != nil {
		m.restartSweepAfter(err)
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			m.sweepRunning.Store(false)
			return
		case <-ticker.C:
			if err := m.sweepOnce(); err != nil {
				m.restartSweepAfter(err)
				return
			}
		}
	}
}

func (m *Manager) sweepOnce() error {
	deleted, err := m.store.DeleteExpired(time.Now())
	if err != nil {
		return err
	}
	if deleted > 0 {
		logging.Debug("sweep removed expired items", "count", deleted)
	}
	return nil
}

// restartSweepAfter releases the guard, waits a backoff interval, and
// relaunches the sweep loop.
func (m *Manager) restartSweepAfter(err error) {
	logging.Error("sweep iteration failed, restarting after backoff", "error", err)
	m.sweepRunning.Store(false)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		timer := time.NewTimer(2 * m.interval)
		defer timer.Stop()
		select {
		case <-m.ctx.Done():
			return
		case <-timer.C:
			m.startSweep()
		}
	}()
}
