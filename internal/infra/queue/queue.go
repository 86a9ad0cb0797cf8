package queue

import (
	"context"
	"fmt"
	"io"

	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/infra/cache"
	"ai-news-digest/internal/infra/config"
)

const (
	BackendRedis    = "redis"
	BackendRabbitMQ = "rabbitmq"
)

// Open выбирает реализацию очереди по cfg.QueueBackend. Возвращённый io.Closer
// освобождает соединение брокера.
func Open(ctx context.Context, cfg config.AppConfig) (domain.JobQueue, io.Closer, error) {
	switch cfg.QueueBackend {
	case "", BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, nil, fmt.Errorf("queue: REDIS_ADDR is empty")
		}
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("queue: connect redis: %w", err)
		}
		return NewRedisJobQueue(client, cfg.Queues.Jobs), client, nil
	case BackendRabbitMQ:
		q, err := NewRabbitJobQueue(cfg.RabbitURL, cfg.Queues.Jobs)
		if err != nil {
			return nil, nil, fmt.Errorf("queue: %w", err)
		}
		return q, q, nil
	default:
		return nil, nil, fmt.Errorf("queue: unknown backend %q", cfg.QueueBackend)
	}
}
