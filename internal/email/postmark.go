package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/mrz1836/postmark"
)

// PostmarkSender отправляет письма через Postmark
type PostmarkSender struct {
	client  *postmark.Client
	from    string
	replyTo string
}

// NewPostmarkSender создает отправителя Postmark
func NewPostmarkSender(cfg config.EmailConfig) (*PostmarkSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: POSTMARK_SERVER_TOKEN is required", ErrInvalidConfig)
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("%w: EMAIL_FROM is required", ErrInvalidConfig)
	}
	return &PostmarkSender{
		client:  postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:    cfg.From,
		replyTo: cfg.ReplyTo,
	}, nil
}

func (s *PostmarkSender) Provider() string { return "postmark" }

// Send отправляет письмо. Отслеживание кликов только для HTML.
func (s *PostmarkSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.from,
		ReplyTo:    s.replyTo,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTML,
		TextBody:   msg.Text,
		TrackOpens: true,
		TrackLinks: "HtmlOnly",
	})
	if err != nil {
		return errors.Join(ErrFailedToSend, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSend, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
