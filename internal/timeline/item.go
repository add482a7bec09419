// Package timeline defines the domain types shared across the application:
// posts, accounts, search queries, and connection state.
package timeline

import "time"

// DefaultLifespan is how long an item stays valid when the source event
// doesn't carry its own lifespan.
const DefaultLifespan = 5 * time.Minute

// PostID uniquely identifies a post. It is the cache key and the
// deduplication key for merged views.
type PostID string

// Account is the post author, denormalized alongside each item.
type Account struct {
	Username    string
	DisplayName string
	Avatar      string
}

// Item is a single timeline post.
type Item struct {
	ID        PostID
	Content   string
	CreatedAt time.Time
	Account   Account
	Lifespan  time.Duration
}

// ExpiresAt returns the absolute time after which the item is stale.
// A zero lifespan falls back to DefaultLifespan.
func (i Item) ExpiresAt() time.Time {
	lifespan := i.Lifespan
	if lifespan <= 0 {
		lifespan = DefaultLifespan
	}
	return i.CreatedAt.Add(lifespan)
}

// Expired reports whether the item is past its lifespan at the given time.
func (i Item) Expired(now time.Time) bool {
	return i.ExpiresAt().Before(now)
}
