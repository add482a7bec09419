// Package netmon supplies the connectivity signal: a de-duplicated feed of
// Available/Unavailable values that streaming and reconciliation consume.
package netmon

import (
	"context"
	"sync"
)

// Status is the connectivity state.
type Status int

const (
	// Unavailable means the network cannot be reached.
	Unavailable Status = iota
	// Available means the network is reachable.
	Available
)

func (s Status) String() string {
	if s == Available {
		return "available"
	}
	return "unavailable"
}

// Monitor is a push-based connectivity feed. The first value delivered on a
// Watch channel is the current status; subsequent values are changes only.
type Monitor interface {
	Watch(ctx context.Context) <-chan Status
}

// feed is the shared subscriber registry behind the Monitor implementations.
// Emissions are de-duplicated: a status equal to the last published one is
// dropped.
type feed struct {
	mu      sync.Mutex
	current Status
	subs    map[chan Status]struct{}
}

func newFeed(initial Status) *feed {
	return &feed{
		current: initial,
		subs:    make(map[chan Status]struct{}),
	}
}

// publish fans a status change out to all subscribers. Slow subscribers are
// skipped rather than blocking the publisher; Watch channels are buffered so
// this only happens when a consumer has stalled completely.
func (f *feed) publish(s Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s == f.current {
		return
	}
	f.current = s
	for ch := range f.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (f *feed) watch(ctx context.Context) <-chan Status {
	ch := make(chan Status, 4)

	f.mu.Lock()
	ch <- f.current
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, ch)
		f.mu.Unlock()
	}()

	return ch
}

// Manual is a Monitor driven by explicit Set calls. It backs tests and any
// caller that already has its own connectivity source.
type Manual struct {
	feed *feed
}

// NewManual creates a Manual monitor with the given initial status.
func NewManual(initial Status) *Manual {
	return &Manual{feed: newFeed(initial)}
}

// Set publishes a status change. Setting the current status is a no-op.
func (m *Manual) Set(s Status) { m.feed.publish(s) }

// Watch implements Monitor.
func (m *Manual) Watch(ctx context.Context) <-chan Status {
	return m.feed.watch(ctx)
}
