package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kasuganosora/teamlink/server/apperr"
	cacheredis "github.com/kasuganosora/teamlink/server/cache/redis"
	"github.com/kasuganosora/teamlink/server/presence"
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

type fakeConn struct {
	id, user string
	mu       sync.Mutex
	got      [][]byte
	closed   bool
}

func (c *fakeConn) ConnectionID() string { return c.id }
func (c *fakeConn) UserID() string       { return c.user }

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) Deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.got = append(c.got, data)
	return true
}

func (c *fakeConn) packets() []Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Packet, 0, len(c.got))
	for _, raw := range c.got {
		var p Packet
		_ = json.Unmarshal(raw, &p)
		out = append(out, p)
	}
	return out
}

type staticVerifier map[string]string

func (v staticVerifier) Verify(token string) (string, error) {
	if u, ok := v[token]; ok {
		return u, nil
	}
	return "", errors.New("bad token")
}

func TestAuthenticate(t *testing.T) {
	g := New(presence.NewMemoryRegistry(newNop()), staticVerifier{"good": "alice"}, newNop())

	req := httptest.NewRequest("GET", "/ws?token=good", nil)
	uid, err := g.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)

	req = httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Authorization", "Bearer good")
	uid, err = g.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "alice", uid)

	_, err = g.Authenticate(httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))

	_, err = g.Authenticate(httptest.NewRequest("GET", "/ws?token=forged", nil))
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
}

func TestPublish_FansOutToEverySession(t *testing.T) {
	g := New(presence.NewMemoryRegistry(newNop()), staticVerifier{}, newNop())
	c1 := &fakeConn{id: "c1", user: "alice"}
	c2 := &fakeConn{id: "c2", user: "alice"}
	c3 := &fakeConn{id: "c3", user: "bob"}
	g.Connect(c1)
	g.Connect(c2)
	g.Connect(c3)
	assert.Equal(t, 3, g.LocalConnections())

	g.Publish(context.Background(), "alice", EventChatMessage, map[string]string{"content": "hi"})

	for _, c := range []*fakeConn{c1, c2} {
		pkts := c.packets()
		require.Len(t, pkts, 1)
		assert.Equal(t, EventChatMessage, pkts[0].Type)
		assert.JSONEq(t, `{"content":"hi"}`, string(pkts[0].Payload))
	}
	assert.Empty(t, c3.packets())
}

func TestPublish_OfflineAndDisconnected(t *testing.T) {
	g := New(presence.NewMemoryRegistry(newNop()), staticVerifier{}, newNop())

	// Offline user: no-op.
	g.Publish(context.Background(), "ghost", EventFriendRequest, nil)

	c := &fakeConn{id: "c1", user: "alice"}
	g.Connect(c)
	g.Disconnect("c1")
	g.Disconnect("c1") // idempotent
	assert.Equal(t, 0, g.LocalConnections())

	g.Publish(context.Background(), "alice", EventFriendRequest, nil)
	assert.Empty(t, c.packets())

	// A closed but still registered connection drops silently.
	closed := &fakeConn{id: "c2", user: "alice", closed: true}
	g.Connect(closed)
	g.Publish(context.Background(), "alice", EventFriendRequest, nil)
	assert.Empty(t, closed.packets())
}

func TestPublish_ConcurrentWithConnect(t *testing.T) {
	g := New(presence.NewMemoryRegistry(newNop()), staticVerifier{}, newNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			c := &fakeConn{id: string(rune('a' + i)), user: "alice"}
			g.Connect(c)
			g.Disconnect(c.id)
		}(i)
		go func() {
			defer wg.Done()
			g.Publish(ctx, "alice", EventChatMessage, "x")
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, g.LocalConnections())
}

func TestRelay_DeliversAcrossInstances(t *testing.T) {
	c, ps := testutil.SetupTestCache(t)
	shared := presence.NewCacheRegistry(c, time.Hour, newNop())

	a := New(shared, staticVerifier{}, newNop(), WithRelay(ps))
	b := New(shared, staticVerifier{}, newNop(), WithRelay(ps))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { _ = b.Run(ctx); close(done) }()

	bob := &fakeConn{id: "bob-conn", user: "bob"}
	b.Connect(bob)

	// Give Run time to subscribe before publishing from the other instance.
	require.Eventually(t, func() bool {
		a.Publish(ctx, "bob", EventTeamMessage, map[string]int{"n": 1})
		return len(bob.packets()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	pkts := bob.packets()
	assert.Equal(t, EventTeamMessage, pkts[0].Type)

	cancel()
	<-done
}

func TestHeartbeat_KeepsSharedPresenceAlive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	reg := presence.NewCacheRegistry(cacheredis.NewCacheFromClient(client), time.Minute, newNop())
	g := New(reg, staticVerifier{}, newNop())
	ctx := context.Background()

	bob := &fakeConn{id: "bob-conn", user: "bob"}
	g.Connect(bob)

	// Well past the TTL in total, but never longer than it between beats.
	for i := 0; i < 4; i++ {
		mr.FastForward(40 * time.Second)
		g.Heartbeat(bob)
	}
	g.Publish(ctx, "bob", EventChatMessage, map[string]string{"content": "hi"})
	require.Len(t, bob.packets(), 1)

	// Without heartbeats the entry lapses.
	mr.FastForward(2 * time.Minute)
	assert.Empty(t, reg.ConnectionsFor("bob"))

	// A heartbeat after expiry re-creates it.
	g.Heartbeat(bob)
	assert.Equal(t, []string{"bob-conn"}, reg.ConnectionsFor("bob"))

	// Heartbeats for connections this gateway does not hold are ignored.
	g.Disconnect(bob.id)
	g.Heartbeat(bob)
	assert.Empty(t, reg.ConnectionsFor("bob"))
}
