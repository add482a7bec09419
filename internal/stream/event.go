package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/abelbrown/timeline/internal/timeline"
)

// Event kinds that carry a timeline item. Everything else is ignored.
const (
	eventUpdate       = "update"
	eventStatusUpdate = "status.update"
)

// eventPayload mirrors the JSON body of an "update" stream event.
type eventPayload struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	CreatedAt string         `json:"created_at"`
	Account   accountPayload `json:"account"`
}

type accountPayload struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
}

// parseItem decodes an event data payload into a domain item. The lifespan
// defaults to timeline.DefaultLifespan; the stream does not carry one.
func parseItem(data string) (timeline.Item, error) {
	var payload eventPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		return timeline.Item{}, fmt.Errorf("decode event payload: %w", err)
	}
	if payload.ID == "" {
		return timeline.Item{}, fmt.Errorf("event payload missing id")
	}

	createdAt, err := time.Parse(time.RFC3339, payload.CreatedAt)
	if err != nil {
		return timeline.Item{}, fmt.Errorf("parse created_at %q: %w", payload.CreatedAt, err)
	}

	return timeline.Item{
		ID:        timeline.PostID(payload.ID),
		Content:   payload.Content,
		CreatedAt: createdAt,
		Lifespan:  timeline.DefaultLifespan,
		Account: timeline.Account{
			Username:    payload.Account.Username,
			DisplayName: payload.Account.DisplayName,
			Avatar:      payload.Account.Avatar,
		},
	}, nil
}
