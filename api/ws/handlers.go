package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kasuganosora/teamlink/server/messaging"
	"go.uber.org/zap"
)

// Inbound message types.
const (
	MsgPing     = "ping"
	MsgChatOpen = "chat:open"
	MsgChatSend = "chat:send"
	MsgChatRead = "chat:read"
	MsgTeamSend = "team:send"
	MsgTeamRead = "team:read"
)

// Reply types.
const (
	MsgPong       = "pong"
	MsgChatOpened = "chat:opened"
	MsgReadAck    = "read:ack"
)

// Handlers serves the messaging operations over the socket.
type Handlers struct {
	msg    *messaging.Service
	logger *zap.Logger
}

func NewHandlers(msg *messaging.Service, logger *zap.Logger) *Handlers {
	return &Handlers{msg: msg, logger: logger}
}

// RegisterHandlers registers all message handlers on the router.
func (h *Handlers) RegisterHandlers(r *Router) {
	r.On(MsgPing, h.HandlePing)
	r.On(MsgChatOpen, h.HandleChatOpen)
	r.On(MsgChatSend, h.HandleChatSend)
	r.On(MsgChatRead, h.HandleChatRead)
	r.On(MsgTeamSend, h.HandleTeamSend)
	r.On(MsgTeamRead, h.HandleTeamRead)
}

type pingReq struct {
	TS int64 `json:"ts"`
}

// HandlePing echoes the client timestamp so it can measure latency.
func (h *Handlers) HandlePing(ctx context.Context, c Client, payload json.RawMessage) error {
	var req pingReq
	_ = json.Unmarshal(payload, &req)
	return reply(ctx, c, MsgPong, map[string]int64{
		"ts":        req.TS,
		"server_ts": time.Now().UnixMilli(),
	})
}

type chatOpenReq struct {
	UserID string `json:"user_id" validate:"required"`
}

func (h *Handlers) HandleChatOpen(ctx context.Context, c Client, payload json.RawMessage) error {
	var req chatOpenReq
	if err := decode(payload, &req); err != nil {
		return err
	}
	chat, err := h.msg.GetOrCreateChat(ctx, c.UserID(), req.UserID)
	if err != nil {
		return err
	}
	return reply(ctx, c, MsgChatOpened, chat)
}

type chatSendReq struct {
	ChatID  int64  `json:"chat_id" validate:"required,gt=0"`
	Content string `json:"content" validate:"required"`
}

// HandleChatSend stores the message; the service pushes chat:message:sent
// back to the sender's connections.
func (h *Handlers) HandleChatSend(ctx context.Context, c Client, payload json.RawMessage) error {
	var req chatSendReq
	if err := decode(payload, &req); err != nil {
		return err
	}
	_, err := h.msg.SendChatMessage(ctx, req.ChatID, c.UserID(), req.Content)
	return err
}

type chatReadReq struct {
	ChatID int64 `json:"chat_id" validate:"required,gt=0"`
}

type readAck struct {
	ChatID int64 `json:"chat_id,omitempty"`
	TeamID int64 `json:"team_id,omitempty"`
	Count  int64 `json:"count"`
}

func (h *Handlers) HandleChatRead(ctx context.Context, c Client, payload json.RawMessage) error {
	var req chatReadReq
	if err := decode(payload, &req); err != nil {
		return err
	}
	n, err := h.msg.MarkChatRead(ctx, req.ChatID, c.UserID())
	if err != nil {
		return err
	}
	return reply(ctx, c, MsgReadAck, readAck{ChatID: req.ChatID, Count: n})
}

type teamSendReq struct {
	TeamID  int64  `json:"team_id" validate:"required,gt=0"`
	Content string `json:"content" validate:"required"`
}

func (h *Handlers) HandleTeamSend(ctx context.Context, c Client, payload json.RawMessage) error {
	var req teamSendReq
	if err := decode(payload, &req); err != nil {
		return err
	}
	_, err := h.msg.SendTeamMessage(ctx, req.TeamID, c.UserID(), req.Content)
	return err
}

type teamReadReq struct {
	TeamID int64 `json:"team_id" validate:"required,gt=0"`
}

func (h *Handlers) HandleTeamRead(ctx context.Context, c Client, payload json.RawMessage) error {
	var req teamReadReq
	if err := decode(payload, &req); err != nil {
		return err
	}
	n, err := h.msg.MarkTeamRead(ctx, req.TeamID, c.UserID())
	if err != nil {
		return err
	}
	return reply(ctx, c, MsgReadAck, readAck{TeamID: req.TeamID, Count: n})
}
