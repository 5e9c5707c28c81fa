package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"catalog-api/internal/config"
	"catalog-api/internal/util"
)

// Message is one outbound email.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
	From     string
	FromName string
}

// Sender delivers a message over some transport. The HTTP provider client
// is the production implementation; tests stub this.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ProviderClient talks to a transactional email provider's HTTP API.
type ProviderClient struct {
	apiURL string
	apiKey string
	client *http.Client
}

func NewProviderClient(cfg *config.Config) *ProviderClient {
	return &ProviderClient{
		apiURL: cfg.Email.APIURL,
		apiKey: cfg.Email.APIKey,
		client: &http.Client{
			Timeout: cfg.Email.Timeout,
		},
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

func (c *ProviderClient) Send(ctx context.Context, msg Message) error {
	from := msg.From
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.From)
	}

	body := sendRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTMLBody,
		Text:    msg.TextBody,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/emails", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("email provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		util.Warn("Email provider rejected message",
			zap.Int("status", resp.StatusCode),
			zap.String("to", msg.To))
		return fmt.Errorf("email provider returned status %d: %s", resp.StatusCode, string(detail))
	}

	return nil
}
