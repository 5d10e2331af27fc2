package status

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix 状态键前缀
const DefaultPrefix = "sitecrawl:status:"

// RedisStore 将运行状态以JSON形式写入Redis, 键为 prefix+runID
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore 创建Redis状态存储
func NewRedisStore(addr, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Key 返回runID对应的Redis键
func (s *RedisStore) Key(runID string) string {
	return s.prefix + runID
}

// Ping 检查Redis连通性
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭Redis客户端
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// SetStatus 实现Store接口
func (s *RedisStore) SetStatus(ctx context.Context, status models.CrawlStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.Key(status.RunID), payload, s.ttl).Err()
}

// GetStatus 实现Store接口
func (s *RedisStore) GetStatus(ctx context.Context, runID string) (models.CrawlStatus, bool, error) {
	val, err := s.client.Get(ctx, s.Key(runID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CrawlStatus{}, false, nil
		}
		return models.CrawlStatus{}, false, err
	}

	var status models.CrawlStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return models.CrawlStatus{}, false, err
	}
	return status, true, nil
}
