package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configures NewRedisClient.
type RedisOptions struct {
	Mode       string // single|sentinel|cluster
	Addrs      []string
	MasterName string
	Password   string
	DB         int
	MaxRetries int
}

// NewRedisClient builds a universal client for single, sentinel or cluster
// deployments and pings it.
func NewRedisClient(ctx context.Context, o RedisOptions) (redis.UniversalClient, error) {
	if len(o.Addrs) == 0 {
		return nil, errors.New("session: redis addrs required")
	}
	opts := &redis.UniversalOptions{
		Addrs:      o.Addrs,
		Password:   o.Password,
		DB:         o.DB,
		MaxRetries: o.MaxRetries,
	}
	switch o.Mode {
	case "", "single", "cluster":
	case "sentinel":
		if o.MasterName == "" {
			return nil, errors.New("session: redis sentinel mode requires master name")
		}
		opts.MasterName = o.MasterName
	default:
		return nil, fmt.Errorf("session: unsupported redis mode %q", o.Mode)
	}
	client := redis.NewUniversalClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("session: redis ping %v: %w", o.Addrs, err)
	}
	return client, nil
}

// RedisStore keeps entries in Redis under Prefix.
type RedisStore struct {
	Client redis.UniversalClient
	Prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{Client: client, Prefix: prefix}
}

func (s *RedisStore) key(k string) string { return s.Prefix + k }

func (s *RedisStore) Put(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.Client.Set(ctx, s.key(key), data, ttl).Err()
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, data []byte, ttl time.Duration) (bool, error) {
	return s.Client.SetNX(ctx, s.key(key), data, ttl).Result()
}

func (s *RedisStore) Take(ctx context.Context, key string) ([]byte, error) {
	b, err := s.Client.GetDel(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
