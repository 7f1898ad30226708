package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/kasuganosora/teamlink/server/api/rest"
	apisse "github.com/kasuganosora/teamlink/server/api/sse"
	apows "github.com/kasuganosora/teamlink/server/api/ws"
	"github.com/kasuganosora/teamlink/server/cache"
	"github.com/kasuganosora/teamlink/server/config"
	"github.com/kasuganosora/teamlink/server/gateway"
	"github.com/kasuganosora/teamlink/server/messaging"
	mw "github.com/kasuganosora/teamlink/server/middleware"
	"github.com/kasuganosora/teamlink/server/notification"
	"github.com/kasuganosora/teamlink/server/presence"
	"github.com/kasuganosora/teamlink/server/scheduler"
	"github.com/kasuganosora/teamlink/server/social"
	"github.com/kasuganosora/teamlink/server/store"
	"github.com/kasuganosora/teamlink/server/sweeper"
	"github.com/kasuganosora/teamlink/server/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const testSecret = "integration-test-secret"

// Options lets tests share infrastructure between several servers.
type Options struct {
	DB       *gorm.DB
	Registry presence.Registry
	Relay    cache.PubSub
}

// TestServer wraps a real HTTP server with all subsystems wired together.
type TestServer struct {
	DB      *gorm.DB
	Store   *store.Store
	Gateway *gateway.Gateway
	Sweeper *sweeper.Sweeper
	Server  *httptest.Server
	URL     string // http://127.0.0.1:<port>
	WSURL   string // ws://127.0.0.1:<port>/ws
}

// NewTestServer creates a fully wired server backed by in-memory SQLite and
// an in-process presence registry.
func NewTestServer(t *testing.T) *TestServer {
	return NewTestServerWith(t, Options{})
}

// NewTestServerWith mirrors the dependency wiring in main.go.
func NewTestServerWith(t *testing.T, opts Options) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db := opts.DB
	if db == nil {
		db = testutil.SetupTestDB(t)
	}
	registry := opts.Registry
	if registry == nil {
		registry = presence.NewMemoryRegistry(logger)
	}
	st := store.New(db)
	verifier := mw.NewJWTVerifier(testSecret)

	var gwOpts []gateway.Option
	if opts.Relay != nil {
		gwOpts = append(gwOpts, gateway.WithRelay(opts.Relay))
	}
	gw := gateway.New(registry, verifier, logger, gwOpts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = gw.Run(ctx) }()

	sched := scheduler.New(logger)
	socialSvc := social.NewService(st, gw, nil, logger)
	msgSvc := messaging.NewService(st, gw, config.MessagingConfig{}, logger)
	sw := sweeper.New(st, sched, gw, nil, config.SweeperConfig{}, logger)

	wsRouter := apows.NewRouter(logger)
	apows.NewHandlers(msgSvc, logger).RegisterHandlers(wsRouter)

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger), mw.ErrorHandler(logger))
	r.Use(mw.RateLimit(rate.Limit(1000), 2000))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	apirest.Register(r, apirest.Handlers{
		Social:        apirest.NewSocialHandler(socialSvc),
		Teams:         apirest.NewTeamHandler(socialSvc),
		Chat:          apirest.NewChatHandler(msgSvc),
		Notifications: apirest.NewNotificationHandler(notification.NewService(st)),
		Admin:         apirest.NewAdminHandler(gw, sched, sw, logger),
	}, verifier, config.ServerConfig{AdminKey: "admin"})

	wsH := apows.NewHandler(gw, config.SecurityConfig{}, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)
	r.GET("/events", apisse.NewHandler(gw, logger).ServeSSE)

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		gw.CloseAll()
		server.Close()
		cancel()
		sched.Stop()
	})

	return &TestServer{
		DB:      db,
		Store:   st,
		Gateway: gw,
		Sweeper: sw,
		Server:  server,
		URL:     server.URL,
		WSURL:   "ws" + server.URL[len("http"):] + "/ws",
	}
}

// Token issues a bearer token for userID.
func Token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := mw.GenerateToken(userID, testSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body as userID.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}, userID string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+Token(t, userID))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// Uses a background readLoop so a read timeout never poisons the connection.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// Packet is a decoded server packet.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ConnectWS dials the WS endpoint as userID.
func (ts *TestServer) ConnectWS(t *testing.T, userID string) *WSClient {
	t.Helper()
	before := ts.Gateway.LocalConnections()
	conn, resp, err := websocket.DefaultDialer.Dial(ts.WSURL+"?token="+Token(t, userID), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	t.Cleanup(func() { _ = conn.Close() })

	// Connect runs after the upgrade; wait until the gateway knows the user.
	require.Eventually(t, func() bool {
		return ts.Gateway.LocalConnections() > before
	}, 2*time.Second, 5*time.Millisecond)
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a packet with the next seq and returns that seq.
func (wc *WSClient) Send(msgType string, payload interface{}) uint64 {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	raw, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	data, err := json.Marshal(Packet{Seq: seq, Type: msgType, Payload: raw})
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
	return seq
}

// RecvAny reads one packet, returning an error on timeout or read failure.
func (wc *WSClient) RecvAny(timeout time.Duration) (*Packet, error) {
	select {
	case res := <-wc.readCh:
		if res.err != nil {
			return nil, res.err
		}
		var pkt Packet
		if err := json.Unmarshal(res.data, &pkt); err != nil {
			return nil, err
		}
		return &pkt, nil
	case <-time.After(timeout):
		return nil, errTimeout
	}
}

type timeoutError struct{}

func (timeoutError) Error() string { return "read timeout" }

var errTimeout error = timeoutError{}

// RecvType reads packets until one with the given type arrives.
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) *Packet {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		pkt, err := wc.RecvAny(remaining)
		if err != nil {
			wc.t.Fatalf("WS recv failed while waiting for %q: %v", msgType, err)
		}
		if pkt.Type == msgType {
			return pkt
		}
	}
	wc.t.Fatalf("timed out waiting for message type %q", msgType)
	return nil
}

// ExpectNone asserts that no packet arrives within d.
func (wc *WSClient) ExpectNone(d time.Duration) {
	wc.t.Helper()
	if pkt, err := wc.RecvAny(d); err == nil {
		wc.t.Fatalf("unexpected packet %q: %s", pkt.Type, pkt.Payload)
	}
}

// Decode unmarshals the packet payload.
func (p *Packet) Decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(p.Payload, v), "payload: %s", p.Payload)
}
