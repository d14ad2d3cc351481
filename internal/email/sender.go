// Package email отправляет транзакционные письма и рассылки через Resend или Postmark.
// В разработке письма сохраняются в файлы.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/pkg/logger"
)

var (
	// ErrFailedToSend провайдер не принял письмо
	ErrFailedToSend = errors.New("failed to send email")
	// ErrInvalidMessage письмо не прошло проверку
	ErrInvalidMessage = errors.New("invalid email message")
	// ErrInvalidConfig провайдер настроен неверно
	ErrInvalidConfig = errors.New("invalid email configuration")
)

// Message письмо
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	// Tag вид письма (subscription_activated, outreach, ...), идет в метрики и теги провайдера
	Tag string
}

// Validate проверяет адрес получателя и наличие содержимого
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: invalid recipient %q", ErrInvalidMessage, m.To)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	if m.HTML == "" && m.Text == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}

// Sender отправляет письма
type Sender interface {
	Send(ctx context.Context, msg Message) error
	// Provider имя провайдера для логов и метрик
	Provider() string
}

// NewSender создает отправителя по EMAIL_PROVIDER
func NewSender(cfg config.EmailConfig, log *logger.Logger) (Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case "resend":
		return NewResendSender(cfg)
	case "postmark":
		return NewPostmarkSender(cfg)
	case "", "dev":
		log.Warnw("Email provider is dev, messages are written to disk", "dir", cfg.DevDir)
		return NewDevSender(cfg.DevDir), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
