package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// TemplateElement is used by a renderer to identify the different parts of an email template.
type TemplateElement string

const (
	ElementSubject TemplateElement = "subject"
	ElementBody    TemplateElement = "body"
	// ElementHTML is optional, templates without it produce text-only emails.
	ElementHTML TemplateElement = "html"
)

// Renderer is responsible for rendering email templates.
type Renderer interface {
	Render(w io.Writer, name string, element TemplateElement, data any) error
	Has(name string, element TemplateElement) (bool, error)
}

// Message is a rendered email, ready to be sent.
type Message struct {
	From    Address
	To      Address
	Subject string
	Text    string
	HTML    string
}

// Sender is responsible for actually sending an email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	From Address
}

// Service renders templated emails and hands them to a Sender.
type Service struct {
	renderer Renderer
	sender   Sender
	cfg      ServiceConfig
}

func NewService(renderer Renderer, sender Sender, cfg ServiceConfig) *Service {
	return &Service{
		renderer: renderer,
		sender:   sender,
		cfg:      cfg,
	}
}

// Send renders the template with the given name and data and sends the result to recipient.
func (s *Service) Send(ctx context.Context, name string, recipient Address, data any) error {
	msg := Message{
		From: s.cfg.From,
		To:   recipient,
	}

	var err error
	msg.Subject, err = s.render(name, ElementSubject, data)
	if err != nil {
		return err
	}

	msg.Text, err = s.render(name, ElementBody, data)
	if err != nil {
		return err
	}

	hasHTML, err := s.renderer.Has(name, ElementHTML)
	if err != nil {
		return err
	}

	if hasHTML {
		msg.HTML, err = s.render(name, ElementHTML, data)
		if err != nil {
			return err
		}
	}

	err = s.sender.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send %s email: %w", name, err)
	}

	return nil
}

func (s *Service) render(name string, element TemplateElement, data any) (string, error) {
	var buf bytes.Buffer
	err := s.renderer.Render(&buf, name, element, data)
	if err != nil {
		return "", fmt.Errorf("failed to render %s of %s email: %w", element, name, err)
	}

	return buf.String(), nil
}
