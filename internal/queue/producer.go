package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, msg ScanMessage) error
}

type redisProducer struct {
	client *redis.Client
	stream string
}

func NewRedisProducer(client *redis.Client, stream string) Producer {
	return &redisProducer{client: client, stream: stream}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg ScanMessage) error {
	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: messageValues(msg.ScanID, msg.TraceID, attempt),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue scan: %w", err)
	}

	slog.InfoContext(ctx, "enqueued scan", "scan_id", msg.ScanID, "attempt", attempt)
	return nil
}
