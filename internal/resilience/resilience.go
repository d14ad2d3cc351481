// Package resilience повторы с экспоненциальной задержкой и автоматический выключатель
// для вызовов внешних сервисов (Places, Anthropic, почтовые провайдеры).
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen выключатель разомкнут, вызов не выполнялся
var ErrCircuitOpen = errors.New("circuit breaker is open")

// RetryPolicy параметры повторов
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy повторы для HTTP API провайдеров
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
	MaxElapsedTime:  time.Minute,
	MaxRetries:      4,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = p.MaxElapsedTime
	bo.Reset()

	var b backoff.BackOff = bo
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

// Permanent помечает ошибку как неповторяемую
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry выполняет op, пока она не завершится успешно, не вернет Permanent
// или не кончатся попытки. Возвращает последнюю ошибку op.
func Retry(ctx context.Context, p RetryPolicy, op func() error, notify func(err error, wait time.Duration)) error {
	var permanent *backoff.PermanentError
	err := backoff.RetryNotify(op, p.backOff(ctx), func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, wait)
		}
	})
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

// Breaker автоматический выключатель вокруг вызовов одного сервиса
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker создает выключатель, размыкающийся после threshold ошибок подряд
func NewBreaker(name string, threshold uint32, openTimeout time.Duration, log *logger.Logger) *Breaker {
	if threshold == 0 {
		threshold = 5
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})}
}

// Do выполняет fn через выключатель. Ошибки, для которых isFailure вернет false,
// не размыкают цепь (например 4xx ответы). isFailure может быть nil.
func (b *Breaker) Do(fn func() error, isFailure func(error) bool) error {
	var callErr error
	_, err := b.cb.Execute(func() (interface{}, error) {
		callErr = fn()
		if callErr != nil && (isFailure == nil || isFailure(callErr)) {
			return nil, callErr
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Permanent(ErrCircuitOpen)
	}
	return callErr
}

// State текущее состояние выключателя
func (b *Breaker) State() string {
	return b.cb.State().String()
}
