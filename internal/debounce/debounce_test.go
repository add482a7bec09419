package debounce

import (
	"context"
	"testing"
	"time"

	"github.com/abelbrown/timeline/internal/timeline"
)

const testDelay = 20 * time.Millisecond

func startDebouncer(t *testing.T) *Debouncer {
	t.Helper()
	d := New(testDelay)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go d.Run(ctx)
	return d
}

func expectQuery(t *testing.T, d *Debouncer, want string) {
	t.Helper()
	select {
	case q := <-d.Queries():
		if q.Value() != want {
			t.Errorf("expected query %q, got %q", want, q.Value())
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for query %q", want)
	}
}

func expectSilence(t *testing.T, d *Debouncer) {
	t.Helper()
	select {
	case q := <-d.Queries():
		t.Errorf("unexpected emission %q", q.Value())
	case <-time.After(5 * testDelay):
	}
}

func TestBurstCoalescesToLatestValue(t *testing.T) {
	d := startDebouncer(t)

	d.Submit("g")
	d.Submit("go")
	d.Submit("gola")
	d.Submit("golang")

	expectQuery(t, d, "golang")
	expectSilence(t, d)
}

func TestDuplicateResubmissionSuppressed(t *testing.T) {
	d := startDebouncer(t)

	d.Submit("golang")
	expectQuery(t, d, "golang")

	d.Submit("golang")
	expectSilence(t, d)
}

func TestEmptyStringPassesThroughAsClear(t *testing.T) {
	d := startDebouncer(t)

	d.Submit("golang")
	expectQuery(t, d, "golang")

	d.Submit("")
	select {
	case q := <-d.Queries():
		if !q.IsEmpty() {
			t.Errorf("expected the empty sentinel, got %q", q.Value())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for clear-query emission")
	}
}

func TestTooShortQueriesSuppressed(t *testing.T) {
	d := startDebouncer(t)

	d.Submit("a")
	expectSilence(t, d)

	// A later valid edit still goes through.
	d.Submit("ab")
	expectQuery(t, d, "ab")
}

func TestSubmitNeverBlocksWithoutConsumer(t *testing.T) {
	d := New(testDelay) // not running

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Submit("query")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked without a running consumer")
	}
}

func TestValidationMatchesSearchQueryRules(t *testing.T) {
	if _, ok := timeline.NewSearchQuery("a"); ok {
		t.Error("single-character query must be rejected")
	}
	if q, ok := timeline.NewSearchQuery(""); !ok || !q.IsEmpty() {
		t.Error("empty string must yield the EMPTY sentinel")
	}
	if q, ok := timeline.NewSearchQuery("ab"); !ok || q.Value() != "ab" {
		t.Error("two-character query must be accepted")
	}
}
