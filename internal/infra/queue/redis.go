package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"slack-steward/internal/domain"
)

// RedisEventQueue реализует очередь событий на базе Redis lists.
type RedisEventQueue struct {
	client *redis.Client
	key    string
}

// NewRedisEventQueue создаёт очередь по указанному ключу.
func NewRedisEventQueue(client *redis.Client, key string) *RedisEventQueue {
	return &RedisEventQueue{client: client, key: key}
}

// Enqueue публикует событие в очередь.
func (q *RedisEventQueue) Enqueue(ctx context.Context, ev domain.WorkspaceEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// Pop блокирующе читает событие из очереди.
func (q *RedisEventQueue) Pop(ctx context.Context) (domain.WorkspaceEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.WorkspaceEvent{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.WorkspaceEvent{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.WorkspaceEvent{}, err
		}
		if len(res) != 2 {
			return domain.WorkspaceEvent{}, errors.New("redis queue: unexpected response")
		}
		var ev domain.WorkspaceEvent
		if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
			return domain.WorkspaceEvent{}, fmt.Errorf("decode event: %w", err)
		}
		return ev, nil
	}
}
