package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-news-digest/internal/domain"
	"ai-news-digest/internal/infra/metrics"
)

// RedisJobQueue реализует очередь задач на базе Redis lists.
type RedisJobQueue struct {
	client *redis.Client
	key    string
}

var _ domain.JobQueue = (*RedisJobQueue)(nil)

// NewRedisJobQueue создаёт очередь по указанному ключу.
func NewRedisJobQueue(client *redis.Client, key string) *RedisJobQueue {
	return &RedisJobQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisJobQueue) Enqueue(ctx context.Context, job domain.Job) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу. Неуспешное подтверждение возвращает её в очередь.
func (q *RedisJobQueue) Receive(ctx context.Context) (domain.Job, domain.AckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.Job{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.Job{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.Job{}, nil, err
		}
		if len(res) != 2 {
			return domain.Job{}, nil, errors.New("redis queue: unexpected response")
		}
		payload := []byte(res[1])
		job, err := decodeJob(payload)
		if err != nil {
			return domain.Job{}, nil, err
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.requeue(context.Background(), payload)
		}
		return job, ack, nil
	}
}

// requeue возвращает задачу в хвост очереди: Enqueue пишет слева, BRPop читает справа,
// поэтому повтор не обгоняет уже ожидающие задачи.
func (q *RedisJobQueue) requeue(ctx context.Context, payload []byte) error {
	start := time.Now()
	err := q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "requeue", q.key, start, err)
	return err
}

func encodeJob(job domain.Job) ([]byte, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return payload, nil
}

func decodeJob(payload []byte) (domain.Job, error) {
	var job domain.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return domain.Job{}, fmt.Errorf("decode job: %w", err)
	}
	return job, nil
}
