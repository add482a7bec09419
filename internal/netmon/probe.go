package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/abelbrown/timeline/internal/logging"
)

// probeInterval is the time between reachability probes.
const probeInterval = 5 * time.Second

// probeTimeout bounds a single probe request.
const probeTimeout = 3 * time.Second

// Probe is a Monitor that determines connectivity by periodically issuing a
// HEAD request against a known endpoint. Changes are published only when the
// observed state differs from the last published one, so consumers see a
// de-duplicated feed; the probe interval acts as the debounce window.
type Probe struct {
	url      string
	interval time.Duration
	client   *http.Client
	feed     *feed

	startOnce sync.Once
}

// NewProbe creates a probe monitor against the given URL. The initial state
// is Unavailable until the first probe succeeds.
func NewProbe(url string) *Probe {
	return &Probe{
		url:      url,
		interval: probeInterval,
		client:   &http.Client{Timeout: probeTimeout},
		feed:     newFeed(Unavailable),
	}
}

// Start launches the probe loop. Subsequent calls are no-ops. The loop runs
// until ctx is cancelled.
func (p *Probe) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go p.run(ctx)
	})
}

// Watch implements Monitor.
func (p *Probe) Watch(ctx context.Context) <-chan Status {
	return p.feed.watch(ctx)
}

func (p *Probe) run(ctx context.Context) {
	// Probe immediately so subscribers don't wait a full interval for the
	// first real reading.
	p.feed.publish(p.check(ctx))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.feed.publish(p.check(ctx))
		}
	}
}

func (p *Probe) check(ctx context.Context) Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		logging.Error("probe request construction failed", "url", p.url, "error", err)
		return Unavailable
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Unavailable
	}
	resp.Body.Close()
	return Available
}
