package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPollTimeout = 2 * time.Second

// RedisQueue stores JSON events in a Redis list. Consumers move each event to
// a processing list while it is handled so a crashed worker can recover it.
type RedisQueue struct {
	client        *redis.Client
	key           string
	processingKey string
	pollTimeout   time.Duration
	logger        *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewRedisQueue builds a queue on the list named key.
func NewRedisQueue(client *redis.Client, key string, logger *zap.Logger) *RedisQueue {
	if key == "" {
		key = "triage:events"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{
		client:        client,
		key:           key,
		processingKey: key + ":processing",
		pollTimeout:   defaultPollTimeout,
		logger:        logger,
	}
}

func (q *RedisQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Publish pushes event onto the head of the list.
func (q *RedisQueue) Publish(ctx context.Context, event Event) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, raw).Err()
}

// Recover moves events left in the processing list back onto the queue.
// Call it once before consuming.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := q.client.LMove(ctx, q.processingKey, q.key, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// Consume pops events from the tail of the list until ctx is done.
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		if ctx.Err() != nil || q.isClosed() {
			return nil
		}

		raw, err := q.client.BLMove(ctx, q.key, q.processingKey, "RIGHT", "LEFT", q.pollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil
			}
			q.logger.Error("redis queue pop failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(q.pollTimeout):
			}
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			q.logger.Error("dropping undecodable event", zap.String("raw", raw), zap.Error(err))
		} else if err := handler(ctx, event); err != nil {
			q.logger.Warn("event handler failed, requeueing",
				zap.String("event_id", event.ID),
				zap.String("event", string(event.Name)),
				zap.Error(err),
			)
			q.settle(raw, true)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(q.pollTimeout):
			}
			continue
		}
		q.settle(raw, false)
	}
}

// settle drops raw from the processing list, pushing it back onto the head of
// the queue when requeue is set. It uses a fresh context so shutdown does not
// strand the entry.
func (q *RedisQueue) settle(raw string, requeue bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey, 1, raw)
		if requeue {
			pipe.LPush(ctx, q.key, raw)
		}
		return nil
	})
	if err != nil {
		q.logger.Warn("redis queue ack failed", zap.Bool("requeue", requeue), zap.Error(err))
	}
}

// Close stops consumers. The Redis client is owned by the caller.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}
