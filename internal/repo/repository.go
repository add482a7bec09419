// Package repo is the reconciliation engine: it combines the connectivity
// signal, the cached item set, and the live stream into one continuously
// updated, deduplicated, non-expired timeline view.
package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/abelbrown/timeline/internal/logging"
	"github.com/abelbrown/timeline/internal/netmon"
	"github.com/abelbrown/timeline/internal/timeline"
)

// cacheManager is the slice of the cache manager the repository needs.
// Interface for dependency injection (testing).
type cacheManager interface {
	Write(items []timeline.Item) error
	Watch(ctx context.Context) <-chan []timeline.Item
	Delete(id timeline.PostID) error
}

// streamer produces the live item feed for a query scope.
type streamer interface {
	Stream(ctx context.Context, query string) (<-chan timeline.Item, <-chan error)
}

// Repository produces the caller-facing timeline view.
//
// Per active query the lifecycle is Idle → Streaming → Idle: each Timeline
// call owns one subscription, and the caller enforces latest-query-wins by
// cancelling the previous call's context before starting the next. The
// output channel never terminates because of network failure; it degrades
// to cached data instead.
type Repository struct {
	client  streamer
	cache   cacheManager
	monitor netmon.Monitor

	mu       sync.Mutex
	sessions map[*session]struct{}
}

// New creates a repository over the given collaborators.
func New(client streamer, cache cacheManager, monitor netmon.Monitor) *Repository {
	return &Repository{
		client:   client,
		cache:    cache,
		monitor:  monitor,
		sessions: make(map[*session]struct{}),
	}
}

// Timeline returns a reactive feed of the reconciled item list for the
// query. Cancelling ctx ends the feed and transitively tears down the
// stream subscription; it does not stop the cache manager's sweep.
func (r *Repository) Timeline(ctx context.Context, q timeline.SearchQuery) <-chan []timeline.Item {
	out := make(chan []timeline.Item, 1)
	go r.run(ctx, q, out)
	return out
}

// Delete removes the item from the persisted cache and prunes it from every
// active subscription's live accumulation, so it cannot reappear on the
// next live-feed tick.
func (r *Repository) Delete(id timeline.PostID) error {
	r.mu.Lock()
	for sess := range r.sessions {
		sess.remove(id)
	}
	r.mu.Unlock()

	if err := r.cache.Delete(id); err != nil {
		logging.Error("failed to delete item", "id", id, "error", err)
		return err
	}
	logging.Debug("deleted item", "id", id)
	return nil
}

func (r *Repository) run(ctx context.Context, q timeline.SearchQuery, out chan<- []timeline.Item) {
	defer close(out)

	sess := newSession()
	r.addSession(sess)
	defer r.removeSession(sess)

	statusCh := r.monitor.Watch(ctx)
	cacheCh := r.cache.Watch(ctx)

	// An empty query never opens a stream; the view is cache-driven only.
	var itemCh <-chan timeline.Item
	var errCh <-chan error
	if !q.IsEmpty() {
		itemCh, errCh = r.client.Stream(ctx, q.Value())
	}

	var status netmon.Status
	var cached []timeline.Item
	haveStatus, haveCache := false, false

	// emit recomputes and delivers the merged view once both the
	// connectivity state and the initial cache snapshot are known.
	emit := func() {
		if !haveStatus || !haveCache {
			return
		}
		view := merge(sess, status, cached, time.Now())
		select {
		case out <- view:
		case <-ctx.Done():
		}
	}

	for {
		select {
		case <-ctx.Done():
			return

		case s := <-statusCh:
			status = s
			haveStatus = true
			emit()

		case items, ok := <-cacheCh:
			if !ok {
				cacheCh = nil
				continue
			}
			cached = items
			haveCache = true
			emit()

		case item, ok := <-itemCh:
			if !ok {
				itemCh = nil
				continue
			}
			sess.add(item)
			// Write-through is best-effort: the live view must still
			// update when persistence fails.
			if err := r.cache.Write([]timeline.Item{item}); err != nil {
				logging.Error("write-through caching failed", "id", item.ID, "error", err)
			}
			emit()

		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				logging.Error("stream failed, falling back to cache", "query", q.Value(), "error", err)
				sess.clear()
				emit()
			}
		}
	}
}

// merge builds the reconciled view. Online: live ∪ cached, deduplicated by
// id with the live copy winning (the live copy is strictly newer than any
// cached copy of the same id, since cache rows are write-through copies of
// earlier live emissions). Offline: cached only. Expired items are filtered
// in both modes, and the result is ordered by creation time descending.
func merge(sess *session, status netmon.Status, cached []timeline.Item, now time.Time) []timeline.Item {
	var combined []timeline.Item
	seen := make(map[timeline.PostID]struct{})

	if status == netmon.Available {
		for _, item := range sess.snapshot() {
			if item.Expired(now) {
				continue
			}
			seen[item.ID] = struct{}{}
			combined = append(combined, item)
		}
	}

	for _, item := range cached {
		if item.Expired(now) {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		combined = append(combined, item)
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].CreatedAt.After(combined[j].CreatedAt)
	})
	return combined
}

func (r *Repository) addSession(s *session) {
	r.mu.Lock()
	r.sessions[s] = struct{}{}
	r.mu.Unlock()
}

func (r *Repository) removeSession(s *session) {
	r.mu.Lock()
	delete(r.sessions, s)
	r.mu.Unlock()
}

// session is the per-subscription accumulation of live items observed so
// far. Safe for concurrent use: Delete prunes sessions from the caller's
// goroutine while the combine loop adds to them.
type session struct {
	mu    sync.Mutex
	live  map[timeline.PostID]timeline.Item
	order []timeline.PostID
}

func newSession() *session {
	return &session{live: make(map[timeline.PostID]timeline.Item)}
}

func (s *session) add(item timeline.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.live[item.ID]; !exists {
		s.order = append(s.order, item.ID)
	}
	s.live[item.ID] = item
}

func (s *session) remove(id timeline.PostID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.live[id]; !exists {
		return
	}
	delete(s.live, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *session) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = make(map[timeline.PostID]timeline.Item)
	s.order = nil
}

// snapshot returns the live items in arrival order.
func (s *session) snapshot() []timeline.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]timeline.Item, 0, len(s.order))
	for _, id := range s.order {
		items = append(items, s.live[id])
	}
	return items
}
