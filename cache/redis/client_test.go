package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMini(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewCache_Ping(t *testing.T) {
	mr, _ := newMini(t)
	c, err := NewCache(Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	_, err = NewCache(Config{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestRedisCache_HashAndSet(t *testing.T) {
	mr, client := newMini(t)
	c := NewCacheFromClient(client)
	ctx := context.Background()

	require.NoError(t, c.HSet(ctx, "h", "conn-1", "alice"))
	v, err := c.HGet(ctx, "h", "conn-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	require.NoError(t, c.HDel(ctx, "h", "conn-1"))
	_, err = c.HGet(ctx, "h", "conn-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.SAdd(ctx, "s", "a", "b"))
	require.NoError(t, c.Expire(ctx, "s", time.Minute))
	members, err := c.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	mr.FastForward(2 * time.Minute)
	members, err = c.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestRedisPubSub(t *testing.T) {
	_, client := newMini(t)
	ps := NewPubSubFromClient(client)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "relay")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "relay", "hello"))

	select {
	case msg := <-ch:
		assert.Equal(t, "relay", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}
