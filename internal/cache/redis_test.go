package cache

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// unreachable returns a client whose every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisRevocationStore_ExpiredSessionSkipsWrite(t *testing.T) {
	t.Parallel()

	s := NewRedisRevocationStore(unreachable(t))
	err := s.MarkRevoked(context.Background(), uuid.Must(uuid.NewV4()), time.Now().Add(-time.Minute))
	require.NoError(t, err, "no round-trip expected for an already-expired session")
}

func TestRedisRevocationStore_PropagatesErrors(t *testing.T) {
	t.Parallel()

	s := NewRedisRevocationStore(unreachable(t))
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	require.Error(t, s.MarkRevoked(ctx, id, time.Now().Add(time.Hour)))
	revoked, err := s.IsRevoked(ctx, id)
	require.Error(t, err)
	require.False(t, revoked)
}

func TestConnect_BadURL(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), "redis://:bad@@host:notaport/0")
	require.Error(t, err)
}

func TestNop(t *testing.T) {
	t.Parallel()

	var s RevocationStore = Nop{}
	id := uuid.Must(uuid.NewV4())
	require.NoError(t, s.MarkRevoked(context.Background(), id, time.Now().Add(time.Hour)))
	revoked, err := s.IsRevoked(context.Background(), id)
	require.NoError(t, err)
	require.False(t, revoked)
}
