package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Notifier sends alerts to a Telegram chat via the Bot API.
type Notifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
	enabled    bool
	baseURL    string // overridable for testing; defaults to Telegram API
}

// NewNotifier creates a Notifier. Notifications are enabled only when both
// botToken and chatID are non-empty.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken:   botToken,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		enabled:    botToken != "" && chatID != "",
	}
}

// Enabled reports whether the notifier is active.
func (n *Notifier) Enabled() bool { return n.enabled }

// Send posts a message to the configured Telegram chat.
func (n *Notifier) Send(ctx context.Context, msg string) error {
	if !n.enabled {
		return nil
	}

	endpoint := n.baseURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	}
	vals := url.Values{
		"chat_id":    {n.chatID},
		"text":       {msg},
		"parse_mode": {"HTML"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.URL.RawQuery = vals.Encode()

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Description string `json:"description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("notify: telegram %d: %s", resp.StatusCode, body.Description)
	}
	return nil
}

// NotifyEpochClosed sends an epoch close alert.
func (n *Notifier) NotifyEpochClosed(ctx context.Context, poolID uint64, epoch uint32, executed bool) error {
	outcome := "submission period opened"
	if executed {
		outcome = "executed immediately"
	}
	msg := fmt.Sprintf("<b>Epoch Closed</b>\nPool: <code>%d</code>\nEpoch: %d\nOutcome: %s", poolID, epoch, outcome)
	return n.Send(ctx, msg)
}

// NotifyEpochExecuted sends an epoch execution alert.
func (n *Notifier) NotifyEpochExecuted(ctx context.Context, poolID uint64, epoch uint32) error {
	msg := fmt.Sprintf("<b>Epoch Executed</b>\nPool: <code>%d</code>\nEpoch: %d", poolID, epoch)
	return n.Send(ctx, msg)
}

// NotifyStaleValuation alerts that a pool could not close because its
// valuation is missing or too old.
func (n *Notifier) NotifyStaleValuation(ctx context.Context, poolID uint64) error {
	msg := fmt.Sprintf("<b>Stale Valuation</b>\nPool: <code>%d</code>\nEpoch close skipped until a fresh valuation arrives.", poolID)
	return n.Send(ctx, msg)
}

// NotifyCloseFailure sends an alert for an unexpected epoch close error.
func (n *Notifier) NotifyCloseFailure(ctx context.Context, poolID uint64, err error) error {
	msg := fmt.Sprintf("<b>Epoch Close Failed</b>\nPool: <code>%d</code>\nError: %v", poolID, err)
	return n.Send(ctx, msg)
}
