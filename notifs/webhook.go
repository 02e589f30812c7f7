package notifs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/quorum-social/quorum/util"
)

// WebhookNotifier POSTs notifications to the realtime gateway, which owns
// WebSocket fan-out to connected clients.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		Client: util.RobustHTTPClient(),
	}
}

type webhookBody struct {
	UserID string `json:"userId"`
	Notification
}

func (w *WebhookNotifier) Push(ctx context.Context, userID string, note Notification) error {
	body, err := json.Marshal(webhookBody{UserID: userID, Notification: note})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("notification webhook POST failed: status=%d", resp.StatusCode)
	}
	return nil
}
