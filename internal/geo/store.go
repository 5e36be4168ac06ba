package geo

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
)

// RedisStore persists geo records in redis, one string key per IP, no TTL.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects a store to the redis instance at addr.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Ping verifies the redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, ip string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, key(ip)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Put(ctx context.Context, ip, value string) error {
	return s.rdb.Set(ctx, key(ip), value, 0).Err()
}

func key(ip string) string {
	return "geo:" + ip
}

// MemoryStore is an in-process Store used in tests and when no cache
// address is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, ip string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.entries[ip]
	return val, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, ip, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ip] = value
	return nil
}
