package session_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/lti-platform/pkg/platform/session"
)

func exercise(t *testing.T, s session.Store) {
	t.Helper()
	ctx := context.Background()
	key := "state:" + uuid.NewString()

	require.NoError(t, s.Put(ctx, key, []byte("v1"), time.Minute))
	got, err := s.Take(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got))

	_, err = s.Take(ctx, key)
	assert.ErrorIs(t, err, session.ErrNotFound, "second take fails")

	ok, err := s.PutIfAbsent(ctx, key, []byte("a"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.PutIfAbsent(ctx, key, []byte("b"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err = s.Take(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))
}

func TestMemoryStore(t *testing.T) {
	exercise(t, session.NewMemoryStore())
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	s := session.NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("x"), time.Second))
	now = now.Add(2 * time.Second)
	_, err := s.Take(ctx, "k")
	assert.ErrorIs(t, err, session.ErrNotFound)

	ok, err := s.PutIfAbsent(ctx, "k", []byte("y"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired entry does not block")
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := session.NewRedisClient(ctx, session.RedisOptions{Addrs: strings.Split(addr, ",")})
	require.NoError(t, err)
	defer client.Close()
	exercise(t, session.NewRedisStore(client, "lti-platform-test:"))
}

func TestNewRedisClientValidation(t *testing.T) {
	_, err := session.NewRedisClient(context.Background(), session.RedisOptions{})
	assert.Error(t, err)
	_, err = session.NewRedisClient(context.Background(), session.RedisOptions{Addrs: []string{"x:1"}, Mode: "sentinel"})
	assert.Error(t, err)
	_, err = session.NewRedisClient(context.Background(), session.RedisOptions{Addrs: []string{"x:1"}, Mode: "ring"})
	assert.Error(t, err)
}
