package redis

import (
	"context"
	"fmt"
	"time"

	"frostbase-alarm/common/config"

	"github.com/go-redis/redis/v8"
)

// Connect 创建客户端并 PING；不可达时关闭客户端返回错误
// 超时偏短：Redis 只承担快照缓存和报警流，不可用时服务降级运行
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		MaxRetries:   1,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
