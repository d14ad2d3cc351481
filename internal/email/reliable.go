package email

import (
	"context"
	"errors"
	"time"

	"github.com/Dhoini/ekaty/internal/metrics"
	"github.com/Dhoini/ekaty/internal/resilience"
	"github.com/Dhoini/ekaty/pkg/logger"
)

// ReliableSender повторяет отправку с экспоненциальной задержкой и
// размыкает цепь, если провайдер недоступен
type ReliableSender struct {
	next    Sender
	policy  resilience.RetryPolicy
	breaker *resilience.Breaker
	metrics metrics.IntegrationMetrics
	log     *logger.Logger
}

// NewReliableSender оборачивает отправителя повторами и выключателем
func NewReliableSender(next Sender, policy resilience.RetryPolicy, m metrics.IntegrationMetrics, log *logger.Logger) *ReliableSender {
	if m == nil {
		m = metrics.Nop{}
	}
	return &ReliableSender{
		next:    next,
		policy:  policy,
		breaker: resilience.NewBreaker("email-"+next.Provider(), 5, time.Minute, log),
		metrics: m,
		log:     log,
	}
}

func (s *ReliableSender) Provider() string { return s.next.Provider() }

// Send отправляет письмо. Ошибки проверки письма не повторяются.
func (s *ReliableSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		s.metrics.IncEmail(s.Provider(), msg.Tag, "invalid")
		return err
	}

	start := time.Now()
	err := resilience.Retry(ctx, s.policy, func() error {
		err := s.breaker.Do(func() error { return s.next.Send(ctx, msg) }, nil)
		if errors.Is(err, ErrInvalidMessage) {
			return resilience.Permanent(err)
		}
		return err
	}, func(err error, wait time.Duration) {
		s.log.Warnw("Email send failed, retrying", "provider", s.Provider(), "tag", msg.Tag, "wait", wait, "error", err)
	})
	s.metrics.ObserveExternalCall("email", outcome(err), time.Since(start))
	if err != nil {
		s.metrics.IncEmail(s.Provider(), msg.Tag, "failed")
		s.log.Errorw("Email not delivered", "provider", s.Provider(), "tag", msg.Tag, "error", err)
		return err
	}
	s.metrics.IncEmail(s.Provider(), msg.Tag, "sent")
	return nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
