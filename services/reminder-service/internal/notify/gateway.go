// Package notify turns reminder decisions into delivered email. The sweeps
// only pick a TemplateKind and the data; rendering and transport live here.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type TemplateKind string

const (
	AppointmentReminder TemplateKind = "appointment_reminder"
	PaymentReminder     TemplateKind = "payment_reminder"
)

var ErrUnknownTemplate = errors.New("unknown template kind")

// Gateway accepts a notification for delivery.
type Gateway interface {
	Send(ctx context.Context, to string, kind TemplateKind, data map[string]any) error
}

type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// EmailSender is one delivery transport: SMTP, SendGrid, SES or the log stub.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// TemplatedGateway renders kind with data and hands the result to an
// EmailSender. data["client_name"] becomes the recipient display name.
type TemplatedGateway struct {
	sender    EmailSender
	templates *Templates
}

func NewTemplatedGateway(sender EmailSender, templates *Templates) *TemplatedGateway {
	return &TemplatedGateway{sender: sender, templates: templates}
}

func (g *TemplatedGateway) Send(ctx context.Context, to string, kind TemplateKind, data map[string]any) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("notify: empty recipient for %s", kind)
	}
	msg, err := g.templates.Render(kind, data)
	if err != nil {
		return err
	}
	msg.To = to
	if name, ok := data["client_name"].(string); ok {
		msg.ToName = name
	}
	return g.sender.Send(ctx, msg)
}
