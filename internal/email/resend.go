package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/resend/resend-go/v2"
)

// ResendSender отправляет письма через Resend
type ResendSender struct {
	client  *resend.Client
	from    string
	replyTo string
}

// NewResendSender создает отправителя Resend
func NewResendSender(cfg config.EmailConfig) (*ResendSender, error) {
	if cfg.ResendAPIKey == "" {
		return nil, fmt.Errorf("%w: RESEND_API_KEY is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: EMAIL_FROM is required", ErrInvalidConfig)
	}
	return &ResendSender{
		client:  resend.NewClient(cfg.ResendAPIKey),
		from:    cfg.From,
		replyTo: cfg.ReplyTo,
	}, nil
}

func (s *ResendSender) Provider() string { return "resend" }

// Send отправляет письмо
func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	req := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: s.replyTo,
	}
	if msg.Tag != "" {
		req.Tags = []resend.Tag{{Name: "kind", Value: msg.Tag}}
	}
	if _, err := s.client.Emails.SendWithContext(ctx, req); err != nil {
		return errors.Join(ErrFailedToSend, err)
	}
	return nil
}
