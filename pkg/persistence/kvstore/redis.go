package kvstore

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr   string
	Prefix string
	// Client overrides Addr when set.
	Client redis.UniversalClient
}

// RedisStore keeps values as plain Redis strings under Prefix+key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

var _ Store = &RedisStore{}

// NewRedisStore connects and pings the server so a bad address fails at
// startup rather than on the first lookup.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := opts.Client
	owned := false
	if client == nil {
		addr := strings.TrimSpace(opts.Addr)
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{Addr: addr})
		owned = true
	}
	if ctx == nil {
		ctx = context.Background()
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if owned {
			_ = client.Close()
		}
		return nil, errors.Wrap(err, "redis kv store: ping")
	}
	return &RedisStore{client: client, prefix: opts.Prefix, owned: owned}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.client == nil {
		return "", false, errors.New("redis kv store: client is nil")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return "", false, errors.Wrap(err, "redis kv store")
	}
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis kv store: get")
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value string) error {
	if s == nil || s.client == nil {
		return errors.New("redis kv store: client is nil")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return errors.Wrap(err, "redis kv store")
	}
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return errors.Wrap(err, "redis kv store: set")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return errors.New("redis kv store: client is nil")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return errors.Wrap(err, "redis kv store")
	}
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Wrap(err, "redis kv store: delete")
	}
	return nil
}

// Close only closes clients the store created itself.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}
