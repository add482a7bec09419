package store

import (
	"context"
	"testing"
	"time"

	"github.com/abelbrown/timeline/internal/timeline"
)

// ts builds a millisecond-precision timestamp, matching storage resolution.
func ts(offset time.Duration) time.Time {
	return time.UnixMilli(1_700_000_000_000).Add(offset)
}

func testRecord(id string, created time.Time) Record {
	return Record{
		ID:                 id,
		Content:            "content for " + id,
		CreatedAt:          created,
		ExpiresAt:          created.Add(timeline.DefaultLifespan),
		AccountUsername:    "user",
		AccountDisplayName: "User",
		AccountAvatar:      "https://example.com/avatar.png",
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndReadOrderedByCreatedDesc(t *testing.T) {
	s := openTestStore(t)

	records := []Record{
		testRecord("oldest", ts(0)),
		testRecord("newest", ts(2*time.Minute)),
		testRecord("middle", ts(time.Minute)),
	}
	if err := s.SaveRecords(records); err != nil {
		t.Fatalf("SaveRecords failed: %v", err)
	}

	got, err := s.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}

	wantOrder := []string{"newest", "middle", "oldest"}
	if len(got) != len(wantOrder) {
		t.Fatalf("expected %d records, got %d", len(wantOrder), len(got))
	}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("position %d: expected %q, got %q", i, id, got[i].ID)
		}
	}
}

func TestSaveRecordsEmptyIsNoop(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveRecords(nil); err != nil {
		t.Fatalf("SaveRecords(nil) failed: %v", err)
	}
	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty store, got %d records", count)
	}
}

func TestUpsertLatestWriteWins(t *testing.T) {
	s := openTestStore(t)

	first := testRecord("post-1", ts(0))
	first.Content = "first version"
	second := testRecord("post-1", ts(time.Second))
	second.Content = "second version"

	if err := s.SaveRecords([]Record{first}); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if err := s.SaveRecords([]Record{second}); err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	got, err := s.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 record after upsert, got %d", len(got))
	}
	if got[0].Content != "second version" {
		t.Errorf("expected latest write to win, got content %q", got[0].Content)
	}
	if !got[0].CreatedAt.Equal(second.CreatedAt) {
		t.Errorf("expected updated created_at %v, got %v", second.CreatedAt, got[0].CreatedAt)
	}
}

func TestDeleteExpiredRemovesOnlyDueRecords(t *testing.T) {
	s := openTestStore(t)

	now := ts(time.Hour)
	past := testRecord("past", now.Add(-10*time.Minute))
	past.ExpiresAt = now.Add(-time.Minute)
	boundary := testRecord("boundary", now.Add(-5*time.Minute))
	boundary.ExpiresAt = now // expiry <= now must be swept
	future := testRecord("future", now)
	future.ExpiresAt = now.Add(time.Minute)

	if err := s.SaveRecords([]Record{past, boundary, future}); err != nil {
		t.Fatalf("SaveRecords failed: %v", err)
	}

	deleted, err := s.DeleteExpired(now)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deletions, got %d", deleted)
	}

	got, err := s.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "future" {
		t.Errorf("expected only the future record to survive, got %+v", got)
	}
}

func TestDeleteByIDIsNoopWhenAbsent(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveRecords([]Record{testRecord("keep", ts(0))}); err != nil {
		t.Fatalf("SaveRecords failed: %v", err)
	}

	if err := s.DeleteByID("missing"); err != nil {
		t.Errorf("deleting an absent id should not error, got %v", err)
	}
	if err := s.DeleteByID("keep"); err != nil {
		t.Errorf("DeleteByID failed: %v", err)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty store, got %d records", count)
	}
}

func TestDeleteAllClearsStore(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveRecords([]Record{testRecord("a", ts(0)), testRecord("b", ts(time.Second))}); err != nil {
		t.Fatalf("SaveRecords failed: %v", err)
	}
	if err := s.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected empty store, got %d records", count)
	}
}

func TestSubscribeReceivesTickOnMutation(t *testing.T) {
	s := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)

	if err := s.SaveRecords([]Record{testRecord("a", ts(0))}); err != nil {
		t.Fatalf("SaveRecords failed: %v", err)
	}

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change tick after save")
	}

	if err := s.DeleteByID("a"); err != nil {
		t.Fatalf("DeleteByID failed: %v", err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change tick after delete")
	}
}

func TestRecordItemRoundTrip(t *testing.T) {
	created := ts(0)
	item := timeline.Item{
		ID:        "post-9",
		Content:   "hello",
		CreatedAt: created,
		Lifespan:  2 * time.Minute,
		Account: timeline.Account{
			Username:    "ada",
			DisplayName: "Ada L",
			Avatar:      "https://example.com/ada.png",
		},
	}

	got := FromItem(item).Item()
	if got.ID != item.ID || got.Content != item.Content {
		t.Errorf("round trip changed identity: %+v", got)
	}
	if !got.CreatedAt.Equal(item.CreatedAt) {
		t.Errorf("round trip changed created time: %v != %v", got.CreatedAt, item.CreatedAt)
	}
	if got.Lifespan != item.Lifespan {
		t.Errorf("round trip changed lifespan: %v != %v", got.Lifespan, item.Lifespan)
	}
	if got.Account != item.Account {
		t.Errorf("round trip changed account: %+v", got.Account)
	}
}

func TestFromItemDefaultsLifespan(t *testing.T) {
	item := timeline.Item{ID: "p", CreatedAt: ts(0)}
	r := FromItem(item)
	if want := item.CreatedAt.Add(timeline.DefaultLifespan); !r.ExpiresAt.Equal(want) {
		t.Errorf("expected default lifespan expiry %v, got %v", want, r.ExpiresAt)
	}
}
