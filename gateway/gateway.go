// Package gateway keeps the live connections of this instance and pushes
// server events to every connection of a user.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kasuganosora/teamlink/server/apperr"
	"github.com/kasuganosora/teamlink/server/cache"
	"github.com/kasuganosora/teamlink/server/presence"
	"go.uber.org/zap"
)

// RelayChannel carries packets for connections held by other instances.
const RelayChannel = "gateway:relay"

// Verifier checks a bearer token and returns the user it was issued to.
type Verifier interface {
	Verify(token string) (userID string, err error)
}

type relayEnvelope struct {
	ConnID string          `json:"conn_id"`
	Data   json.RawMessage `json:"data"`
}

// Gateway is safe for concurrent use.
type Gateway struct {
	registry presence.Registry
	verifier Verifier
	relay    cache.PubSub
	logger   *zap.Logger

	conns sync.Map // connID → Conn
	count atomic.Int64
}

type Option func(*Gateway)

// WithRelay forwards events for connections that are not local over ps.
// Needed when several instances share a cache-backed registry.
func WithRelay(ps cache.PubSub) Option {
	return func(g *Gateway) { g.relay = ps }
}

func New(registry presence.Registry, verifier Verifier, logger *zap.Logger, opts ...Option) *Gateway {
	g := &Gateway{registry: registry, verifier: verifier, logger: logger}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Authenticate extracts the bearer token from the ?token= query parameter
// or the Authorization header and verifies it.
func (g *Gateway) Authenticate(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		}
	}
	if token == "" {
		return "", apperr.Unauthorizedf("missing token")
	}
	userID, err := g.verifier.Verify(token)
	if err != nil {
		return "", apperr.Wrap(apperr.Unauthorized, err, "invalid token")
	}
	if userID == "" {
		return "", apperr.Unauthorizedf("invalid token")
	}
	return userID, nil
}

// Connect makes c reachable through Publish.
func (g *Gateway) Connect(c Conn) {
	if _, loaded := g.conns.LoadOrStore(c.ConnectionID(), c); !loaded {
		g.count.Add(1)
	}
	g.registry.Register(c.UserID(), c.ConnectionID())
	g.logger.Info("connection registered",
		zap.String("user_id", c.UserID()),
		zap.String("conn_id", c.ConnectionID()))
}

// Disconnect forgets the connection. Unknown ids are ignored.
func (g *Gateway) Disconnect(connID string) {
	if _, ok := g.conns.LoadAndDelete(connID); ok {
		g.count.Add(-1)
	}
	g.registry.Unregister(connID)
	g.logger.Info("connection unregistered", zap.String("conn_id", connID))
}

// Heartbeat keeps c's presence alive. Transports call it whenever the
// client proves it is still there.
func (g *Gateway) Heartbeat(c Conn) {
	if _, ok := g.conns.Load(c.ConnectionID()); !ok {
		return
	}
	g.registry.Refresh(c.UserID(), c.ConnectionID())
}

// OnlineUsers reports the number of distinct online users when the
// registry can count them.
func (g *Gateway) OnlineUsers() (int, bool) {
	if r, ok := g.registry.(interface{ OnlineUsers() int }); ok {
		return r.OnlineUsers(), true
	}
	return 0, false
}

// LocalConnections is the number of connections held by this instance.
func (g *Gateway) LocalConnections() int {
	return int(g.count.Load())
}

// Publish sends event to every connection of userID. Delivery is best
// effort: offline users, dropped packets and relay failures are only logged.
func (g *Gateway) Publish(ctx context.Context, userID, event string, payload interface{}) {
	connIDs := g.registry.ConnectionsFor(userID)
	if len(connIDs) == 0 {
		return
	}
	data, err := encode(event, payload)
	if err != nil {
		g.logger.Error("encode event", zap.String("event", event), zap.Error(err))
		return
	}
	for _, id := range connIDs {
		if v, ok := g.conns.Load(id); ok {
			if !v.(Conn).Deliver(data) {
				g.logger.Debug("event dropped",
					zap.String("event", event),
					zap.String("user_id", userID),
					zap.String("conn_id", id))
			}
			continue
		}
		if g.relay == nil {
			continue
		}
		env, _ := json.Marshal(relayEnvelope{ConnID: id, Data: data})
		if err := g.relay.Publish(ctx, RelayChannel, string(env)); err != nil {
			g.logger.Warn("relay publish failed",
				zap.String("event", event),
				zap.String("conn_id", id),
				zap.Error(err))
		}
	}
}

// Run delivers relayed packets to local connections until ctx is done.
// It returns immediately when no relay is configured.
func (g *Gateway) Run(ctx context.Context) error {
	if g.relay == nil {
		return nil
	}
	ch, cancel, err := g.relay.Subscribe(ctx, RelayChannel)
	if err != nil {
		return err
	}
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				g.logger.Warn("malformed relay message", zap.Error(err))
				continue
			}
			if v, ok := g.conns.Load(env.ConnID); ok {
				v.(Conn).Deliver(env.Data)
			}
		}
	}
}

// CloseAll closes every local connection.
func (g *Gateway) CloseAll() {
	g.conns.Range(func(_, v interface{}) bool {
		v.(Conn).Close()
		return true
	})
}

func encode(event string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Packet{Type: event, Payload: raw})
}
