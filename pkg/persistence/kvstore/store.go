// Package kvstore provides the small durable key-value capability the client
// keeps its local state in (currently the recent search log).
package kvstore

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// Store is a string key-value store. Get reports whether the key exists.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
	KindRedis  = "redis"
)

// Settings selects and configures a Store implementation.
type Settings struct {
	Kind string `yaml:"kind"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// RedisAddr is host:port of the Redis server.
	RedisAddr string `yaml:"redis_addr"`
	// RedisPrefix namespaces keys so several clients can share one server.
	RedisPrefix string `yaml:"redis_prefix"`
}

// Open builds the Store described by s.
func Open(ctx context.Context, s Settings) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "", KindSQLite:
		dsn, err := SQLiteDSNForFile(s.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(dsn)
	case KindMemory:
		return NewMemoryStore(), nil
	case KindRedis:
		return NewRedisStore(ctx, RedisOptions{Addr: s.RedisAddr, Prefix: s.RedisPrefix})
	default:
		return nil, errors.Errorf("unknown store kind %q", s.Kind)
	}
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("key is empty")
	}
	return key, nil
}
