package notifs

import (
	"context"
	"time"
)

// Notification is a lightweight nudge pushed to a user. These are not
// moderation actions and never touch the action state machine; delivery is
// best-effort and nothing is persisted by this core.
type Notification struct {
	Kind    string    `json:"kind"`
	TopicID string    `json:"topicId,omitempty"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sentAt"`
}

const KindCoolingOff = "cooling_off"

// Notifier delivers a notification to a single user. Implementations decide
// the transport (in-memory for tests, webhook to the realtime gateway, etc).
type Notifier interface {
	Push(ctx context.Context, userID string, note Notification) error
}
