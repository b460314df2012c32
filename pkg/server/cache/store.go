package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/StrathCole/marketpulse/pkg/config"
	"github.com/StrathCole/marketpulse/pkg/server/sources"
)

// Store is a second cache tier that survives restarts
type Store interface {
	Save(ctx context.Context, key string, frag sources.Fragment, ttl time.Duration) error
	Load(ctx context.Context, key string) (sources.Fragment, bool, error)
}

// RedisStore keeps successful fragments as JSON under <prefix><key>
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// OpenRedis connects to Redis and verifies the connection with a ping
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Save stores frag with the given expiry
func (s *RedisStore) Save(ctx context.Context, key string, frag sources.Fragment, ttl time.Duration) error {
	data, err := json.Marshal(frag)
	if err != nil {
		return fmt.Errorf("failed to marshal fragment: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Load returns the stored fragment, or false when the key is absent
func (s *RedisStore) Load(ctx context.Context, key string) (sources.Fragment, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return sources.Fragment{}, false, nil
	}
	if err != nil {
		return sources.Fragment{}, false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	var frag sources.Fragment
	if err := json.Unmarshal(data, &frag); err != nil {
		return sources.Fragment{}, false, fmt.Errorf("failed to unmarshal fragment %s: %w", key, err)
	}
	if !frag.OK() {
		return sources.Fragment{}, false, nil
	}
	return frag, true, nil
}
