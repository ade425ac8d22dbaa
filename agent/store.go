package agent

import (
	"context"
	"time"

	"github.com/BaSui01/appflow/internal/cache"
)

// cacheStore 将缓存管理器适配为 TaskStore，未命中折算为 ok=false。
type cacheStore struct {
	manager *cache.Manager
}

// NewCacheStore 基于缓存管理器构造任务存储。
func NewCacheStore(manager *cache.Manager) TaskStore {
	return &cacheStore{manager: manager}
}

func (s *cacheStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.manager.Get(ctx, key)
	if cache.IsCacheMiss(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *cacheStore) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.manager.SetEx(ctx, key, value, ttl)
}
