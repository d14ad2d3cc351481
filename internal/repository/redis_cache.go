package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/ekaty/internal/config"
	"github.com/Dhoini/ekaty/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префиксы ключей для различных типов данных
	restaurantKeyPrefix = "restaurant:"
	searchKeyPrefix     = "search:"
	searchGenerationKey = "search:generation"
	lockKeyPrefix       = "lock:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// Cache минимальный набор операций кеша, нужный репозиториям и сервисам
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	// SetNX записывает ключ, только если его нет. false означает, что ключ уже занят.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// RedisCacheRepository реализует Cache поверх Redis
type RedisCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

var _ Cache = (*RedisCacheRepository)(nil)

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(cfg config.RedisConfig, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	log.Infow("Connected to Redis successfully", "addr", cfg.Addr)
	return &RedisCacheRepository{
		client: client,
		ttl:    ttl,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// TTL время жизни записей кеша по умолчанию
func (r *RedisCacheRepository) TTL() time.Duration {
	return r.ttl
}

// Ping проверяет доступность Redis
func (r *RedisCacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get читает значение; ok=false если ключа нет
func (r *RedisCacheRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		r.log.Errorw("Error getting value from Redis", "error", err, "key", key)
		return nil, false, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}
	return data, true, nil
}

// Set записывает значение с TTL; ttl <= 0 означает TTL по умолчанию
func (r *RedisCacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.log.Errorw("Failed to cache value in Redis", "error", err, "key", key)
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return nil
}

// Delete удаляет ключи
func (r *RedisCacheRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.Errorw("Failed to delete keys from cache", "error", err, "keys", keys)
		return fmt.Errorf("failed to delete from cache: %w", err)
	}
	return nil
}

// Incr атомарно увеличивает счетчик
func (r *RedisCacheRepository) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return n, nil
}

// SetNX записывает ключ, если его нет
func (r *RedisCacheRepository) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set %s: %w", key, err)
	}
	return ok, nil
}

// WebhookLocker не дает двум репликам обрабатывать одно событие Stripe одновременно
type WebhookLocker struct {
	cache Cache
	ttl   time.Duration
}

// NewWebhookLocker создает блокировку событий поверх кеша
func NewWebhookLocker(cache Cache, ttl time.Duration) *WebhookLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &WebhookLocker{cache: cache, ttl: ttl}
}

// Acquire захватывает блокировку события; false если событие уже обрабатывается
func (l *WebhookLocker) Acquire(ctx context.Context, eventID string) (bool, error) {
	return l.cache.SetNX(ctx, lockKeyPrefix+"webhook:"+eventID, []byte("1"), l.ttl)
}

// Release снимает блокировку события
func (l *WebhookLocker) Release(ctx context.Context, eventID string) error {
	return l.cache.Delete(ctx, lockKeyPrefix+"webhook:"+eventID)
}
