package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"frostbase-alarm/internal/models"

	"go.uber.org/zap"
)

// SnapshotCache 显示层快照缓存（frostbase:truck:<id>:snapshot）
type SnapshotCache struct {
	kv        KVStore
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewSnapshotCache 创建快照缓存
func NewSnapshotCache(kv KVStore, keyPrefix string, ttl time.Duration, logger *zap.Logger) *SnapshotCache {
	return &SnapshotCache{
		kv:        kv,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

// Key 构建缓存键
func (c *SnapshotCache) Key(truckID string) string {
	return fmt.Sprintf("%s%s:snapshot", c.keyPrefix, truckID)
}

// Publish 写入快照（设置 TTL，monitor 停止后快照自然过期）
func (c *SnapshotCache) Publish(ctx context.Context, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := c.Key(snap.TruckID)
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		return fmt.Errorf("failed to set snapshot cache: %w", err)
	}

	c.logger.Debug("Updated snapshot cache",
		zap.String("truck_id", snap.TruckID),
		zap.String("key", key),
	)

	return nil
}

// Get 读取快照
func (c *SnapshotCache) Get(ctx context.Context, truckID string) (*models.Snapshot, error) {
	val, err := c.kv.Get(ctx, c.Key(truckID))
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, fmt.Errorf("snapshot not found for truck %s: %w", truckID, ErrCacheMiss)
		}
		return nil, fmt.Errorf("failed to get snapshot cache: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}
