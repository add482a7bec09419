// Package debounce coalesces bursty query edits into a slow feed of
// validated search queries.
package debounce

import (
	"context"
	"time"

	"github.com/abelbrown/timeline/internal/logging"
	"github.com/abelbrown/timeline/internal/timeline"
)

// Delay is the default quiet period before a pending value is committed.
const Delay = 300 * time.Millisecond

// Debouncer holds a single pending query edit and emits it once a quiet
// period has elapsed since the latest submission. New submissions overwrite
// an unconsumed pending value (newest wins, oldest dropped). A value equal
// to the last emitted one is suppressed, as is any non-empty value shorter
// than the minimum query length; the empty string passes through as the
// clear-query sentinel.
type Debouncer struct {
	delay time.Duration
	in    chan string
	out   chan timeline.SearchQuery
}

// New creates a Debouncer with the given quiet period. Call Run to start it.
func New(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = Delay
	}
	return &Debouncer{
		delay: delay,
		in:    make(chan string, 1),
		out:   make(chan timeline.SearchQuery, 1),
	}
}

// Submit records a query edit. Never blocks: an unconsumed earlier
// submission is discarded in favor of this one.
func (d *Debouncer) Submit(query string) {
	for {
		select {
		case d.in <- query:
			return
		default:
			// Slot occupied: drop the stale pending value and retry.
			select {
			case <-d.in:
			default:
			}
		}
	}
}

// Queries is the committed query feed. Closed when Run returns.
func (d *Debouncer) Queries() <-chan timeline.SearchQuery {
	return d.out
}

// Run drives the debounce loop until ctx is cancelled.
func (d *Debouncer) Run(ctx context.Context) {
	defer close(d.out)

	var timer *time.Timer
	var timerC <-chan time.Time
	var pending string
	havePending := false

	var lastEmitted string
	emittedOnce := false

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case s := <-d.in:
			pending = s
			havePending = true
			if timer == nil {
				timer = time.NewTimer(d.delay)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(d.delay)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if !havePending {
				continue
			}
			havePending = false

			if emittedOnce && pending == lastEmitted {
				continue
			}

			q, ok := timeline.NewSearchQuery(pending)
			if !ok {
				logging.Debug("suppressing invalid query", "value", pending)
				continue
			}

			lastEmitted = pending
			emittedOnce = true
			select {
			case d.out <- q:
			case <-ctx.Done():
				return
			}
		}
	}
}
