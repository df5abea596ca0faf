package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"transcription-service/internal/entity"
)

const (
	DefaultEventChannel = "transcription:events"
	statusKeyPrefix     = "transcription:job:"
)

// RedisPublisher fans job events out on a pub/sub channel and keeps the
// latest event per job under a key with a TTL, so other processes can
// observe jobs without polling this one.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	ttl     time.Duration
}

func NewRedisPublisher(rdb *redis.Client, channel string, ttl time.Duration) *RedisPublisher {
	if channel == "" {
		channel = DefaultEventChannel
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisPublisher{rdb: rdb, channel: channel, ttl: ttl}
}

func StatusKey(id uuid.UUID) string {
	return statusKeyPrefix + id.String()
}

// Publish: PUBLISH + SET в одной MULTI/EXEC транзакции.
func (p *RedisPublisher) Publish(ctx context.Context, ev entity.JobEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	pipe := p.rdb.TxPipeline()
	pipe.Publish(ctx, p.channel, payload)
	pipe.Set(ctx, StatusKey(ev.JobID), payload, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish job event: %w", err)
	}
	return nil
}
