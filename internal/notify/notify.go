// Package notify renders RSVP confirmation messages and hands them to a
// Sender for delivery.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Message is one outbound notification.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a message. Implementations must be safe for concurrent
// use; the worker pool calls Send from several goroutines.
type Sender interface {
	Send(ctx context.Context, m *Message) error
}

// SenderFunc adapts a function to the Sender interface
type SenderFunc func(ctx context.Context, m *Message) error

func (f SenderFunc) Send(ctx context.Context, m *Message) error { return f(ctx, m) }

// ConfirmationParams carries everything needed to render a confirmation.
type ConfirmationParams struct {
	To           string `json:"to"`
	GuestName    string `json:"guest_name"`
	EventTitle   string `json:"event_title"`
	Response     string `json:"response"`
	NumAttendees *int64 `json:"num_attendees,omitempty"`
	EditURL      string `json:"edit_url"`
}

// Confirmation renders the confirmation message for a guest.
func Confirmation(p ConfirmationParams) *Message {
	attendees := ""
	if p.NumAttendees != nil && *p.NumAttendees > 0 {
		attendees = fmt.Sprintf("\nNumber of guests: %d", *p.NumAttendees)
	}
	body := fmt.Sprintf(`Hi %s,

Thanks for your RSVP to %s!

Your response: %s%s

To change your RSVP, visit:
%s

This link is unique to you - don't share it with others.

See you there!
`, p.GuestName, p.EventTitle, strings.ToUpper(p.Response), attendees, p.EditURL)
	return &Message{
		To:      p.To,
		Subject: fmt.Sprintf("Your RSVP for %s", p.EventTitle),
		Body:    body,
	}
}

// EditURL builds the self-service link mailed to a guest. The edit token
// rides in the URL fragment, so it never reaches server request logs.
func EditURL(base, invitationToken, editToken string) string {
	return fmt.Sprintf("%s/rsvp/%s#edit=%s", strings.TrimSuffix(base, "/"), invitationToken, editToken)
}

// LogSender writes messages to the log instead of delivering them. Development
// setups without a configured courier use it so the edit link stays reachable.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, m *Message) error {
	s.logger.Info("dev email", "to", m.To, "subject", m.Subject)
	s.logger.Info("dev email body", "body", m.Body)
	return nil
}
