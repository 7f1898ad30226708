package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadline  = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Conn is a live connection the gateway can deliver to.
type Conn interface {
	ConnectionID() string
	UserID() string
	// Deliver queues an encoded packet. It returns false if the packet was
	// dropped because the connection is closed or backed up.
	Deliver(data []byte) bool
	Close()
}

// Session is a WebSocket connection of an authenticated user.
type Session struct {
	id     string
	userID string
	conn   *websocket.Conn

	sendChan  chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// lastSeq is the highest inbound seq seen. Only the read pump touches it.
	lastSeq uint64

	logger *zap.Logger
}

// NewSession wraps conn and starts its write goroutine.
func NewSession(userID string, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		id:       uuid.NewString(),
		userID:   userID,
		conn:     conn,
		sendChan: make(chan []byte, sendChanBuf),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go s.writePump()
	return s
}

func (s *Session) ConnectionID() string  { return s.id }
func (s *Session) UserID() string        { return s.userID }
func (s *Session) Conn() *websocket.Conn { return s.conn }

// writePump drains sendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.conn.Close()
	for {
		select {
		case data := <-s.sendChan:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.String("user_id", s.userID),
					zap.String("conn_id", s.id),
					zap.Error(err))
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *Session) Deliver(data []byte) bool {
	if s.IsClosed() {
		return false
	}
	select {
	case s.sendChan <- data:
		return true
	case <-s.done:
		return false
	default:
		s.logger.Warn("send channel full, dropping packet",
			zap.String("user_id", s.userID),
			zap.String("conn_id", s.id))
		return false
	}
}

// Send encodes pkt and delivers it.
func (s *Session) Send(pkt *Packet) bool {
	data, err := json.Marshal(pkt)
	if err != nil {
		return false
	}
	return s.Deliver(data)
}

// Close signals the writePump to shut down. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) IsClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// AcceptSeq records an inbound seq and reports whether it is new. Seq 0
// disables the check.
func (s *Session) AcceptSeq(seq uint64) bool {
	if seq == 0 {
		return true
	}
	if seq <= s.lastSeq {
		return false
	}
	s.lastSeq = seq
	return true
}

// ExtendReadDeadline pushes the read deadline out by the idle timeout.
func (s *Session) ExtendReadDeadline() {
	_ = s.conn.SetReadDeadline(time.Now().Add(readDeadline))
}
