package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/teamlink/server/config"
	"github.com/kasuganosora/teamlink/server/gateway"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /ws.
type Handler struct {
	gw       *gateway.Gateway
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(gw *gateway.Gateway, sec config.SecurityConfig, router *Router, logger *zap.Logger) *Handler {
	h := &Handler{
		gw:     gw,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	return h
}

// ServeWS handles GET /ws?token=<jwt> (or an Authorization: Bearer header).
func (h *Handler) ServeWS(c *gin.Context) {
	userID, err := h.gw.Authenticate(c.Request)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Warn("ws upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	sess := gateway.NewSession(userID, conn, h.logger)
	h.gw.Connect(sess)
	h.readPump(sess)
}

// readPump reads messages from the WebSocket connection and dispatches them
// until the connection closes.
func (h *Handler) readPump(s *gateway.Session) {
	defer func() {
		s.Close()
		h.gw.Disconnect(s.ConnectionID())
	}()

	conn := s.Conn()
	conn.SetReadLimit(64 << 10)
	s.ExtendReadDeadline()
	conn.SetPongHandler(func(string) error {
		s.ExtendReadDeadline()
		h.gw.Heartbeat(s)
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.String("user_id", s.UserID()),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		s.ExtendReadDeadline()
		h.router.Dispatch(s, raw)
	}
}
