package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"autonews-pipeline/internal/domain"
)

// RedisJobQueue реализует очередь задач конвейера на базе Redis lists.
type RedisJobQueue struct {
	client *redis.Client
	key    string
}

// NewRedisJobQueue создаёт очередь по указанному ключу.
func NewRedisJobQueue(client *redis.Client, key string) *RedisJobQueue {
	return &RedisJobQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisJobQueue) Enqueue(ctx context.Context, job domain.PipelineJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Redis list не умеет nack,
// поэтому подтверждение — no-op: при сбое задача переигрывается планировщиком.
func (q *RedisJobQueue) Receive(ctx context.Context) (domain.PipelineJob, domain.JobAckFunc, error) {
	ack := func(bool) error { return nil }
	for {
		if err := ctx.Err(); err != nil {
			return domain.PipelineJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.PipelineJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.PipelineJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.PipelineJob{}, nil, errors.New("redis queue: unexpected response")
		}
		var job domain.PipelineJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.PipelineJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		return job, ack, nil
	}
}
