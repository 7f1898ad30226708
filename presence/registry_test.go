package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	cacheredis "github.com/kasuganosora/teamlink/server/cache/redis"
	"github.com/kasuganosora/teamlink/server/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newNop() *zap.Logger {
	l, _ := zap.NewDevelopment()
	return l
}

type registryFactory func(t *testing.T) Registry

func factories() map[string]registryFactory {
	return map[string]registryFactory{
		"memory": func(t *testing.T) Registry { return NewMemoryRegistry(newNop()) },
		"local_cache": func(t *testing.T) Registry {
			c, _ := testutil.SetupTestCache(t)
			return NewCacheRegistry(c, time.Hour, newNop())
		},
		"redis": func(t *testing.T) Registry {
			mr := miniredis.RunT(t)
			client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewCacheRegistry(cacheredis.NewCacheFromClient(client), time.Hour, newNop())
		},
	}
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	for name, newRegistry := range factories() {
		t.Run(name, func(t *testing.T) {
			r := newRegistry(t)

			r.Register("alice", "c1")
			r.Register("alice", "c2")
			r.Register("alice", "c1") // idempotent
			assert.ElementsMatch(t, []string{"c1", "c2"}, r.ConnectionsFor("alice"))

			r.Unregister("c1")
			assert.Equal(t, []string{"c2"}, r.ConnectionsFor("alice"))

			r.Unregister("c1") // absent: no-op
			r.Unregister("c2")
			assert.Empty(t, r.ConnectionsFor("alice"))
			assert.Empty(t, r.ConnectionsFor("nobody"))
		})
	}
}

func TestRegistry_ConnectionBelongsToOneUser(t *testing.T) {
	for name, newRegistry := range factories() {
		t.Run(name, func(t *testing.T) {
			r := newRegistry(t)

			r.Register("alice", "c1")
			r.Register("bob", "c1")
			assert.Empty(t, r.ConnectionsFor("alice"))
			assert.Equal(t, []string{"c1"}, r.ConnectionsFor("bob"))
		})
	}
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewMemoryRegistry(newNop())
	r.Register("alice", "c1")

	snap := r.ConnectionsFor("alice")
	snap[0] = "mutated"
	assert.Equal(t, []string{"c1"}, r.ConnectionsFor("alice"))
}

func TestMemoryRegistry_Concurrent(t *testing.T) {
	r := NewMemoryRegistry(newNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			r.Register("alice", conn)
			_ = r.ConnectionsFor("alice")
			if i%2 == 0 {
				r.Unregister(conn)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.ConnectionsFor("alice"), 25)
	assert.Equal(t, 1, r.OnlineUsers())
}

func TestCacheRegistry_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	r := NewCacheRegistry(cacheredis.NewCacheFromClient(client), time.Minute, newNop())
	r.Register("alice", "c1")
	require.Equal(t, []string{"c1"}, r.ConnectionsFor("alice"))

	mr.FastForward(2 * time.Minute)
	assert.Empty(t, r.ConnectionsFor("alice"))
}

func TestCacheRegistry_ConnectionsExpireIndependently(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	r := NewCacheRegistry(cacheredis.NewCacheFromClient(client), time.Minute, newNop())
	r.Register("alice", "c1")
	mr.FastForward(40 * time.Second)
	r.Register("alice", "c2")
	mr.FastForward(40 * time.Second)

	// c1 lapsed; c2 kept the user's set alive.
	assert.Equal(t, []string{"c2"}, r.ConnectionsFor("alice"))

	for i := 0; i < 3; i++ {
		mr.FastForward(40 * time.Second)
		r.Refresh("alice", "c2")
	}
	assert.Equal(t, []string{"c2"}, r.ConnectionsFor("alice"))

	r.Unregister("c2")
	assert.Empty(t, r.ConnectionsFor("alice"))
}
