// Package sse streams gateway events to clients that cannot hold a
// WebSocket. The stream is receive-only; writes go through the REST API.
package sse

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/teamlink/server/gateway"
	"go.uber.org/zap"
)

const (
	keepaliveInterval = 30 * time.Second
	sendBufSize       = 64
)

// Handler handles the SSE endpoint.
type Handler struct {
	gw     *gateway.Gateway
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(gw *gateway.Gateway, logger *zap.Logger) *Handler {
	return &Handler{gw: gw, logger: logger}
}

// stream is a gateway connection backed by an SSE response.
type stream struct {
	id     string
	userID string
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *stream) ConnectionID() string { return s.id }
func (s *stream) UserID() string       { return s.userID }

func (s *stream) Deliver(data []byte) bool {
	select {
	case s.ch <- data:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

func (s *stream) Close() {
	s.once.Do(func() { close(s.done) })
}

// ServeSSE handles GET /events?token=<jwt>. Every gateway event for the user
// is written as an SSE event named after the packet type.
func (h *Handler) ServeSSE(c *gin.Context) {
	userID, err := h.gw.Authenticate(c.Request)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	s := &stream{
		id:     uuid.NewString(),
		userID: userID,
		ch:     make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
	}
	h.gw.Connect(s)
	defer h.gw.Disconnect(s.id)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"conn_id\":%q}\n\n", s.id)
	c.Writer.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-s.ch:
			var pkt gateway.Packet
			if err := json.Unmarshal(data, &pkt); err != nil {
				h.logger.Warn("sse: undecodable packet", zap.Error(err))
				continue
			}
			payload := pkt.Payload
			if len(payload) == 0 {
				payload = json.RawMessage("{}")
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", pkt.Type, payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()
			h.gw.Heartbeat(s)

		case <-s.done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
