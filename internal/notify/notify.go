// Package notify tells users their generation finished.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"
	"github.com/rs/zerolog"

	"tryon/internal/i18n"
)

// Completion describes a finished task.
type Completion struct {
	Email   string
	Locale  string
	Kind    string
	TaskID  string
	URLs    []string
	Failed  bool
	Message string
}

// Notifier delivers completion notices.
type Notifier interface {
	TaskFinished(ctx context.Context, c Completion) error
}

// Noop drops every notice.
type Noop struct{}

func (Noop) TaskFinished(context.Context, Completion) error { return nil }

// MailerSend sends completion emails through the MailerSend API.
type MailerSend struct {
	client   *mailersend.Mailersend
	fromName string
	from     string
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewMailerSend returns a Noop notifier when apiKey is empty.
func NewMailerSend(apiKey, from, fromName string, logger zerolog.Logger) Notifier {
	if strings.TrimSpace(apiKey) == "" {
		return Noop{}
	}
	return &MailerSend{
		client:   mailersend.NewMailersend(apiKey),
		from:     from,
		fromName: fromName,
		timeout:  5 * time.Second,
		logger:   logger,
	}
}

func (m *MailerSend) TaskFinished(ctx context.Context, c Completion) error {
	if strings.TrimSpace(c.Email) == "" {
		return nil
	}
	subject, text, body := Render(c)

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	msg := m.client.Email.NewMessage()
	msg.SetFrom(mailersend.From{Name: m.fromName, Email: m.from})
	msg.SetRecipients([]mailersend.Recipient{{Email: c.Email}})
	msg.SetSubject(subject)
	msg.SetHTML(body)
	msg.SetText(text)

	if _, err := m.client.Email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send email for task %s: %w", c.TaskID, err)
	}
	m.logger.Debug().Str("task_id", c.TaskID).Msg("completion email sent")
	return nil
}

// Render builds the subject, plain text and HTML bodies for c.
func Render(c Completion) (subject, text, htmlBody string) {
	label := i18n.KindLabel(c.Locale, c.Kind)
	if c.Failed {
		subject = i18n.T(c.Locale, i18n.MsgFailedTitle, label)
		reason := c.Message
		if reason == "" {
			reason = i18n.T(c.Locale, i18n.MsgGenerationFailed)
		}
		text = i18n.T(c.Locale, i18n.MsgFailedBody, label, reason)
		return subject, text, "<p>" + html.EscapeString(text) + "</p>"
	}

	subject = i18n.T(c.Locale, i18n.MsgReadySubject, label)
	text = i18n.T(c.Locale, i18n.MsgReadyBody, label)
	var b strings.Builder
	b.WriteString("<p>" + html.EscapeString(text) + "</p>")
	for _, u := range c.URLs {
		text += "\n" + u
		esc := html.EscapeString(u)
		b.WriteString(`<p><a href="` + esc + `">` + esc + `</a></p>`)
	}
	return subject, text, b.String()
}
