// Package smtp sends emails through an SMTP relay.
package smtp

import (
	"context"
	"fmt"
	"time"

	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/krypto"
	"github.com/wneessen/go-mail"
)

// Settings contains the settings for the SMTP relay.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password krypto.Secret
	// RequireTLS refuses to send over a connection without STARTTLS.
	RequireTLS bool
	Timeout    time.Duration
}

// Sender sends emails over SMTP.
type Sender struct {
	client *mail.Client
}

// NewSender creates a new sender. No connection is made until the first Send.
func NewSender(s Settings) (*Sender, error) {
	policy := mail.TLSOpportunistic
	if s.RequireTLS {
		policy = mail.TLSMandatory
	}

	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithTLSPortPolicy(policy),
	}

	if s.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(s.Timeout))
	}

	if s.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.Username),
			mail.WithPassword(string(s.Password.SecretValue())),
		)
	}

	client, err := mail.NewClient(s.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &Sender{client: client}, nil
}

// Send delivers msg using a new connection to the relay.
func (s *Sender) Send(ctx context.Context, msg email.Message) error {
	m, err := newMsg(msg)
	if err != nil {
		return err
	}

	err = s.client.DialAndSendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func newMsg(msg email.Message) (*mail.Msg, error) {
	m := mail.NewMsg()

	if err := m.From(string(msg.From)); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}

	if err := m.To(string(msg.To)); err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}

	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}

	return m, nil
}
