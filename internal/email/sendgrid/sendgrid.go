// Package sendgrid sends emails through the SendGrid v3 mail send API.
package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/krypto"
)

// Settings contains the settings for the SendGrid API.
type Settings struct {
	// APIURL is the base URL, usually https://api.sendgrid.com.
	APIURL *url.URL
	APIKey krypto.Secret
}

// Sender is an email sender that uses the SendGrid API.
type Sender struct {
	client   *http.Client
	settings Settings
}

// NewSender creates a new sender.
func NewSender(client *http.Client, s Settings) *Sender {
	return &Sender{
		client:   client,
		settings: s,
	}
}

type address struct {
	Email string `json:"email"`
}

type personalization struct {
	To []address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type mailJSON struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

// Send sends msg. SendGrid accepts messages with a 202 status.
func (s *Sender) Send(ctx context.Context, msg email.Message) error {
	data := mailJSON{
		Personalizations: []personalization{
			{To: []address{{Email: string(msg.To)}}},
		},
		From:    address{Email: string(msg.From)},
		Subject: msg.Subject,
		// text/plain has to come before text/html.
		Content: []content{{Type: "text/plain", Value: msg.Text}},
	}
	if msg.HTML != "" {
		data.Content = append(data.Content, content{Type: "text/html", Value: msg.HTML})
	}

	var b bytes.Buffer
	err := json.NewEncoder(&b).Encode(data)
	if err != nil {
		return fmt.Errorf("failed to encode email json: %w", err)
	}

	reqURL := s.settings.APIURL.JoinPath("v3", "mail", "send")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), &b)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+string(s.settings.APIKey.SecretValue()))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request did not succeed %d: %s", resp.StatusCode, body)
	}

	return nil
}
