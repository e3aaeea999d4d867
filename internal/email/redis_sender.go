package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// MockEmailTTL is how long captured emails stay readable.
const MockEmailTTL = 5 * time.Minute

// CapturedEmail is the JSON stored for each captured message.
type CapturedEmail struct {
	To         string `json:"to"`
	From       string `json:"from"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	TemplateID string `json:"template_id"`
	SentAt     string `json:"sent_at"`
}

// MockEmailKey is the Redis key of the last message with templateID sent to recipient.
func MockEmailKey(recipient, templateID string) string {
	if templateID == "" {
		templateID = "unknown"
	}
	return fmt.Sprintf("mockemail:%s:%s", strings.ToLower(recipient), templateID)
}

// RedisSender stores emails in Redis instead of sending them, so test
// harnesses can read them back through the service API.
type RedisSender struct {
	client *redis.Client
	from   string
}

// NewRedisSender creates a new RedisSender.
func NewRedisSender(client *redis.Client, from string) *RedisSender {
	return &RedisSender{client: client, from: from}
}

func (s *RedisSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(CapturedEmail{
		To:         strings.Join(msg.To, ", "),
		From:       s.from,
		Subject:    msg.Subject,
		Body:       msg.Body,
		TemplateID: msg.TemplateID,
		SentAt:     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	// One key per recipient so each can be looked up directly.
	for _, to := range msg.To {
		key := MockEmailKey(to, msg.TemplateID)
		if err := s.client.Set(ctx, key, data, MockEmailTTL).Err(); err != nil {
			return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
		}
		slog.Debug("mock email stored", "key", key, "subject", msg.Subject)
	}
	return nil
}

// GetCapturedEmail returns the stored message for key, or redis.Nil when absent.
func GetCapturedEmail(ctx context.Context, client *redis.Client, key string) (*CapturedEmail, error) {
	raw, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var captured CapturedEmail
	if err := json.Unmarshal(raw, &captured); err != nil {
		return nil, fmt.Errorf("corrupt captured email at %s: %w", key, err)
	}
	return &captured, nil
}
