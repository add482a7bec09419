// Package stream provides the server-sent-event client that produces a live
// feed of timeline items for a query, with retrying connect, connectivity
// aware teardown, and per-event parse recovery.
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/abelbrown/timeline/internal/logging"
	"github.com/abelbrown/timeline/internal/netmon"
	"github.com/abelbrown/timeline/internal/retry"
	"github.com/abelbrown/timeline/internal/timeline"
)

// streamPath is the query-scoped streaming endpoint.
const streamPath = "/api/v1/streaming/public"

// connectTimeout bounds connection establishment (dial + response headers).
// There is deliberately no overall request timeout: the stream stays open
// until cancelled or closed by the server.
const connectTimeout = 10 * time.Second

// Config holds the endpoint settings for the streaming client.
type Config struct {
	BaseURL     string
	AccessToken string
}

// Client maintains one server-sent-event connection per Stream call. It owns
// the connection and its parsing state exclusively; items flow out through
// the returned channel and nothing mutable is shared with consumers.
type Client struct {
	cfg     Config
	http    *http.Client
	monitor netmon.Monitor
	policy  retry.Policy
	limiter *rate.Limiter
	states  chan timeline.ConnectionState
}

// New creates a streaming client. The monitor supplies the connectivity
// signal consulted before and during each stream.
func New(cfg Config, monitor netmon.Monitor) *Client {
	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: connectTimeout,
			},
		},
		monitor: monitor,
		policy:  retry.DefaultPolicy(),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		states:  make(chan timeline.ConnectionState, 8),
	}
	c.setState(timeline.StateDisconnected)
	return c
}

// States exposes connection-state transitions: Disconnected (idle) →
// Connected (stream open) → Disconnected (completion, for any reason).
// Delivery is best-effort; a stalled consumer never blocks the stream.
func (c *Client) States() <-chan timeline.ConnectionState {
	return c.states
}

// Stream opens a live feed of items for the given query scope. Both
// returned channels are closed when the stream terminates; the error
// channel carries at most one terminal transport error. Connectivity loss,
// name-resolution failure, graceful server close, and caller cancellation
// all terminate cleanly with no error.
func (c *Client) Stream(ctx context.Context, query string) (<-chan timeline.Item, <-chan error) {
	items := make(chan timeline.Item, 16)
	errs := make(chan error, 1)

	go c.run(ctx, query, items, errs)
	return items, errs
}

func (c *Client) run(ctx context.Context, query string, items chan<- timeline.Item, errs chan<- error) {
	defer close(items)
	defer close(errs)

	statusCh := c.monitor.Watch(ctx)

	// The first value on the feed is the current state; never dial while
	// offline.
	select {
	case <-ctx.Done():
		return
	case status := <-statusCh:
		if status == netmon.Unavailable {
			logging.Debug("network unavailable, not opening stream", "query", query)
			return
		}
	}

	// streamCtx lets the connectivity watcher tear the connection down
	// without cancelling the caller's context.
	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	resp, err := c.connect(streamCtx, query)
	if err != nil {
		if cleanClose(err) {
			logging.Debug("stream open ended cleanly", "query", query, "reason", err)
			return
		}
		logging.Error("stream open failed", "query", query, "error", err)
		errs <- err
		return
	}
	defer resp.Body.Close()

	c.setState(timeline.StateConnected)
	defer c.setState(timeline.StateDisconnected)
	logging.Debug("stream opened", "query", query)

	g, gctx := errgroup.WithContext(streamCtx)

	// Connectivity watcher: a transition to Unavailable cancels the
	// connection. Clean close, not a failure, and no retry.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case status := <-statusCh:
				if status == netmon.Unavailable {
					logging.Debug("network lost, closing stream", "query", query)
					cancelStream()
					return nil
				}
			}
		}
	})

	// Reader: parses events until the body ends or the context cancels.
	g.Go(func() error {
		defer cancelStream() // reader exit ends the watcher too
		return c.readEvents(gctx, resp, query, items)
	})

	if err := g.Wait(); err != nil && !cleanClose(err) {
		logging.Error("stream failed", "query", query, "error", err)
		errs <- err
		return
	}
	logging.Debug("stream closed", "query", query)
}

// connect opens the event-stream connection, retrying transient failures
// under the retry policy. The rate limiter paces repeated opens so a flapping
// endpoint isn't hammered across query changes.
func (c *Client) connect(ctx context.Context, query string) (*http.Response, error) {
	var resp *http.Response
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := c.buildRequest(ctx, query)
		if err != nil {
			return err
		}

		r, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("open stream: %w", err)
		}
		if r.StatusCode != http.StatusOK {
			r.Body.Close()
			return fmt.Errorf("stream endpoint returned %d %s", r.StatusCode, r.Status)
		}

		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) buildRequest(ctx context.Context, query string) (*http.Request, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + streamPath

	q := u.Query()
	q.Set("query", query)
	q.Set("access_token", c.cfg.AccessToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	return req, nil
}

// readEvents scans the SSE wire format: "event:" and "data:" lines
// accumulated until a blank line dispatches the event. Only update events
// are parsed; malformed payloads are logged and skipped, and unrecognized
// event kinds are ignored. A nil return means graceful close.
func (c *Client) readEvents(ctx context.Context, resp *http.Response, query string, items chan<- timeline.Item) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if err := c.dispatch(ctx, eventType, data.String(), query, items); err != nil {
				return err
			}
			eventType = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// id:, retry:, unknown fields - ignored
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

// dispatch forwards one complete event. Returns an error only when the
// context is cancelled; parse failures never terminate the stream.
func (c *Client) dispatch(ctx context.Context, eventType, data, query string, items chan<- timeline.Item) error {
	if eventType != eventUpdate && eventType != eventStatusUpdate {
		if eventType != "" {
			logging.Debug("ignoring event", "type", eventType)
		}
		return nil
	}

	item, err := parseItem(data)
	if err != nil {
		logging.Warn("skipping malformed event", "query", query, "error", err)
		return nil
	}

	select {
	case items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cleanClose reports whether err represents an expected, non-error stream
// termination: caller cancellation, connectivity teardown, or a name
// resolution failure (treated as connectivity loss, per the offline-first
// contract).
func cleanClose(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// setState publishes a connection-state transition without blocking.
func (c *Client) setState(s timeline.ConnectionState) {
	select {
	case c.states <- s:
	default:
	}
}
