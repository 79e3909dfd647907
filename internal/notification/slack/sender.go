package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	notificationdomain "github.com/railzwaylabs/subsync/internal/notification/domain"
)

// Sender posts messages to an incoming webhook. Message.To is ignored; the
// webhook decides the channel.
type Sender struct {
	webhookURL string
	client     *http.Client
}

func NewSender(webhookURL string) *Sender {
	return &Sender{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *Sender) Send(ctx context.Context, msg notificationdomain.Message) error {
	if s.webhookURL == "" {
		return fmt.Errorf("%w: missing_webhook_url", notificationdomain.ErrDeliveryFailed)
	}

	text := fmt.Sprintf("*%s*\n%s", msg.Subject, strings.ReplaceAll(msg.HTMLBody, "<br>", "\n"))
	body, err := json.Marshal(map[string]any{"text": text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", notificationdomain.ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: slack_api_error: status=%d", notificationdomain.ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}
