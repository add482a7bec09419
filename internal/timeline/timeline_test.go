package timeline

import (
	"testing"
	"time"
)

func TestNewSearchQuery(t *testing.T) {
	cases := []struct {
		name  string
		input string
		ok    bool
		empty bool
	}{
		{"empty string is the sentinel", "", true, true},
		{"single character rejected", "a", false, false},
		{"minimum length accepted", "ab", true, false},
		{"longer query accepted", "golang", true, false},
		{"whitespace only rejected", "   ", false, false},
		{"single space rejected", " ", false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, ok := NewSearchQuery(tc.input)
			if ok != tc.ok {
				t.Fatalf("NewSearchQuery(%q) ok = %v, want %v", tc.input, ok, tc.ok)
			}
			if !ok {
				return
			}
			if q.IsEmpty() != tc.empty {
				t.Errorf("IsEmpty() = %v, want %v", q.IsEmpty(), tc.empty)
			}
			if !tc.empty && q.Value() != tc.input {
				t.Errorf("Value() = %q, want %q", q.Value(), tc.input)
			}
		})
	}
}

func TestEmptyQuerySentinelEquality(t *testing.T) {
	q, ok := NewSearchQuery("")
	if !ok || q != EmptyQuery {
		t.Error("NewSearchQuery(\"\") must yield the EmptyQuery sentinel")
	}
	if !EmptyQuery.IsEmpty() {
		t.Error("EmptyQuery must report empty")
	}
}

func TestItemExpiry(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	item := Item{ID: "1", CreatedAt: created, Lifespan: time.Minute}

	if got := item.ExpiresAt(); !got.Equal(created.Add(time.Minute)) {
		t.Errorf("ExpiresAt() = %v, want %v", got, created.Add(time.Minute))
	}
	if item.Expired(created.Add(30 * time.Second)) {
		t.Error("item must not be expired before its lifespan elapses")
	}
	// Exactly at the expiry instant the item is still considered fresh.
	if item.Expired(created.Add(time.Minute)) {
		t.Error("item must not be expired exactly at the boundary")
	}
	if !item.Expired(created.Add(time.Minute + time.Nanosecond)) {
		t.Error("item must be expired past the boundary")
	}
}

func TestItemZeroLifespanUsesDefault(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	item := Item{ID: "1", CreatedAt: created}

	if got := item.ExpiresAt(); !got.Equal(created.Add(DefaultLifespan)) {
		t.Errorf("ExpiresAt() = %v, want default lifespan %v", got, created.Add(DefaultLifespan))
	}
}

func TestConnectionKindString(t *testing.T) {
	if Connected.String() != "connected" || Disconnected.String() != "disconnected" {
		t.Error("unexpected kind strings")
	}
	if StateError("boom").Message != "boom" {
		t.Error("StateError must carry the message")
	}
}
