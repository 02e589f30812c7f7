package notifs

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemNotifier keeps per-user inboxes in memory. Used in tests and local dev.
type MemNotifier struct {
	inboxes *xsync.MapOf[string, []Notification]
}

func NewMemNotifier() *MemNotifier {
	return &MemNotifier{
		inboxes: xsync.NewMapOf[string, []Notification](),
	}
}

func (m *MemNotifier) Push(ctx context.Context, userID string, note Notification) error {
	m.inboxes.Compute(userID, func(old []Notification, _ bool) ([]Notification, bool) {
		return append(old, note), false
	})
	return nil
}

// Inbox returns the notifications pushed to a user so far.
func (m *MemNotifier) Inbox(userID string) []Notification {
	notes, _ := m.inboxes.Load(userID)
	return notes
}
