package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// DefaultRedisPrefix namespaces token keys in a shared Redis.
const DefaultRedisPrefix = "gosession:token:"

// RedisStore keeps the record in Redis under prefix+key. The key TTL follows the
// token expiry so abandoned sessions disappear without a sweeper.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	key    string
}

// NewRedisStore opens a Redis-backed store. An empty prefix selects
// DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix, key string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis store requires a client")
	}
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, key: key}, nil
}

func (s *RedisStore) Key() string { return s.key }

func (s *RedisStore) redisKey() string { return s.prefix + s.key }

func (s *RedisStore) Load(ctx context.Context) (Record, error) {
	data, err := s.client.Get(ctx, s.redisKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return Record{}, err
	}
	if rec.Expired(time.Now()) {
		if err := s.Clear(ctx); err != nil {
			return Record{}, fmt.Errorf("cleanup expired token record: %w", err)
		}
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if !rec.TokenExpiry.IsZero() {
		ttl = time.Until(rec.TokenExpiry)
		if ttl <= 0 {
			return errors.New("token record is expired")
		}
	}
	if err := s.client.Set(ctx, s.redisKey(), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.redisKey()).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
