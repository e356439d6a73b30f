package notifier

import (
	"context"
	"fmt"

	commonredis "frostbase-alarm/common/redis"
	"frostbase-alarm/internal/models"

	"github.com/go-redis/redis/v8"
)

// StreamNotifier 写入 Redis Streams，供下游服务消费
type StreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamNotifier(client *redis.Client, stream string, maxLen int64) *StreamNotifier {
	return &StreamNotifier{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamNotifier) Notify(ctx context.Context, n models.Notification) error {
	if _, err := commonredis.PublishJSONToStream(ctx, s.client, s.stream, s.maxLen, n); err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", s.stream, err)
	}
	return nil
}

// Close Redis 客户端由 service 统一关闭
func (s *StreamNotifier) Close() error { return nil }
