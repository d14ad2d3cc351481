package service

import (
	"context"
	"strings"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/internal/email"
	"github.com/Dhoini/ekaty/internal/repository"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/google/uuid"
)

// Notifier отправляет пользователям письма об изменениях подписки.
// Ошибки отправки логируются и не возвращаются вызывающему.
type Notifier struct {
	sender     email.Sender
	users      repository.UserRepository
	siteURL    string
	senderName string
	log        *logger.Logger
}

// NewNotifier создает отправителя уведомлений; sender == nil отключает письма
func NewNotifier(sender email.Sender, users repository.UserRepository, app config.AppConfig, emailCfg config.EmailConfig, log *logger.Logger) *Notifier {
	return &Notifier{
		sender:     sender,
		users:      users,
		siteURL:    strings.TrimRight(app.PublicURL, "/"),
		senderName: emailCfg.SenderName,
		log:        log,
	}
}

// Notify отправляет письмо вида kind пользователю userID
func (n *Notifier) Notify(ctx context.Context, kind email.Kind, userID uuid.UUID, vars map[string]string) bool {
	if n == nil || n.sender == nil {
		return false
	}
	user, err := n.users.GetByID(ctx, userID)
	if err != nil {
		n.log.Warnw("Notification recipient not found", "kind", kind, "userID", userID, "error", err)
		return false
	}

	all := map[string]string{
		"name":        firstNonEmpty(user.Name, "there"),
		"site_url":    n.siteURL,
		"account_url": n.siteURL + "/account",
		"sender_name": n.senderName,
	}
	for k, v := range vars {
		all[k] = v
	}

	msg, err := email.Notification(kind, user.Email, all)
	if err != nil {
		n.log.Errorw("Failed to build notification", "kind", kind, "error", err)
		return false
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		n.log.Errorw("Failed to send notification", "kind", kind, "userID", userID, "provider", n.sender.Provider(), "error", err)
		return false
	}
	n.log.Infow("Notification sent", "kind", kind, "userID", userID)
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
