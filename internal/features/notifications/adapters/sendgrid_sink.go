package adapters

import (
	"context"
	"errors"
	"fmt"
	"html"

	"returns-desk/internal/features/notifications/domain"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// ErrNoRecipient is returned when an event has no customer email.
var ErrNoRecipient = errors.New("event has no recipient")

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSink emails the customer about their return request.
type SendGridSink struct {
	client mailSender
	from   string
}

// NewSendGridSink creates a new SendGridSink.
func NewSendGridSink(apiKey, from string) *SendGridSink {
	return &SendGridSink{client: sendgrid.NewSendClient(apiKey), from: from}
}

// Name implements ports.Sink.
func (s *SendGridSink) Name() string { return "sendgrid" }

// Send implements ports.Sink.
func (s *SendGridSink) Send(ctx context.Context, event domain.Event) error {
	if event.Recipient == "" {
		return ErrNoRecipient
	}

	body := event.Body()
	message := mail.NewSingleEmail(
		mail.NewEmail("Returns Desk", s.from),
		event.Subject(),
		mail.NewEmail("", event.Recipient),
		body,
		fmt.Sprintf("<pre>%s</pre>", html.EscapeString(body)),
	)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send error: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send failed: status=%d, body=%s", response.StatusCode, response.Body)
	}
	return nil
}
