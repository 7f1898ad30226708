package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/teamlink/server/messaging"
	mw "github.com/kasuganosora/teamlink/server/middleware"
)

// ChatHandler handles direct and team chat REST endpoints.
type ChatHandler struct {
	msg *messaging.Service
}

func NewChatHandler(msg *messaging.Service) *ChatHandler {
	return &ChatHandler{msg: msg}
}

type contentReq struct {
	Content string `json:"content" binding:"required"`
}

// page reads ?limit=&offset=; the service applies defaults and bounds.
func page(c *gin.Context) (limit, offset int, ok bool) {
	if limit, ok = queryInt(c, "limit", 0); !ok {
		return 0, 0, false
	}
	offset, ok = queryInt(c, "offset", 0)
	return limit, offset, ok
}

// Open handles POST /api/chats.
func (h *ChatHandler) Open(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	chat, err := h.msg.GetOrCreateChat(c.Request.Context(), mw.GetUserID(c), req.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// List handles GET /api/chats.
func (h *ChatHandler) List(c *gin.Context) {
	chats, err := h.msg.ListChats(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// Messages handles GET /api/chats/:id/messages.
func (h *ChatHandler) Messages(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	limit, offset, ok := page(c)
	if !ok {
		return
	}
	msgs, err := h.msg.GetChatMessages(c.Request.Context(), id, mw.GetUserID(c), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Send handles POST /api/chats/:id/messages.
func (h *ChatHandler) Send(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req contentReq
	if !bind(c, &req) {
		return
	}
	msg, err := h.msg.SendChatMessage(c.Request.Context(), id, mw.GetUserID(c), req.Content)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead handles POST /api/chats/:id/read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	n, err := h.msg.MarkChatRead(c.Request.Context(), id, mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// Unread handles GET /api/chats/:id/unread.
func (h *ChatHandler) Unread(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	n, err := h.msg.UnreadChatCount(c.Request.Context(), id, mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

// TeamMessages handles GET /api/teams/:id/messages.
func (h *ChatHandler) TeamMessages(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	limit, offset, ok := page(c)
	if !ok {
		return
	}
	msgs, err := h.msg.GetTeamMessages(c.Request.Context(), id, mw.GetUserID(c), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// TeamSend handles POST /api/teams/:id/messages.
func (h *ChatHandler) TeamSend(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req contentReq
	if !bind(c, &req) {
		return
	}
	msg, err := h.msg.SendTeamMessage(c.Request.Context(), id, mw.GetUserID(c), req.Content)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// TeamMarkRead handles POST /api/teams/:id/read.
func (h *ChatHandler) TeamMarkRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	n, err := h.msg.MarkTeamRead(c.Request.Context(), id, mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": n})
}

// TeamUnread handles GET /api/teams/:id/unread.
func (h *ChatHandler) TeamUnread(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	n, err := h.msg.UnreadTeamCount(c.Request.Context(), id, mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}
