package mailgun

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/krypto"
)

// Settings contains the settings for the Mailgun API.
type Settings struct {
	// APIURL is the base URL, for example https://api.eu.mailgun.net.
	APIURL *url.URL
	Domain string
	APIKey krypto.Secret
}

// Sender is an email sender that sends emails using the Mailgun API.
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

// Send sends an email using the Mailgun messages API.
func (s *Sender) Send(ctx context.Context, msg email.Message) error {
	fields := [][2]string{
		{"from", string(msg.From)},
		{"to", string(msg.To)},
		{"subject", msg.Subject},
		{"text", msg.Text},
	}
	if msg.HTML != "" {
		fields = append(fields, [2]string{"html", msg.HTML})
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		err := w.WriteField(f[0], f[1])
		if err != nil {
			return err
		}
	}

	err := w.Close()
	if err != nil {
		return err
	}

	reqURL := s.settings.APIURL.JoinPath("v3", s.settings.Domain, "messages")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", w.FormDataContentType())
	req.SetBasicAuth("api", string(s.settings.APIKey.SecretValue()))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		resBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request did not succeed %d: %s", resp.StatusCode, resBody)
	}

	return nil
}
