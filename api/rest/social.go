package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/teamlink/server/middleware"
	"github.com/kasuganosora/teamlink/server/social"
)

// SocialHandler handles profile and friend REST endpoints.
type SocialHandler struct {
	svc *social.Service
}

func NewSocialHandler(svc *social.Service) *SocialHandler {
	return &SocialHandler{svc: svc}
}

// Me handles GET /api/me.
func (h *SocialHandler) Me(c *gin.Context) {
	u, err := h.svc.GetUser(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// UpdateMe handles PUT /api/me.
func (h *SocialHandler) UpdateMe(c *gin.Context) {
	var req struct {
		DisplayName string  `json:"display_name" binding:"required,max=64"`
		PhotoURL    *string `json:"photo_url" binding:"omitempty,url,max=512"`
	}
	if !bind(c, &req) {
		return
	}
	u, err := h.svc.SyncProfile(c.Request.Context(), mw.GetUserID(c), req.DisplayName, req.PhotoURL)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// GetUser handles GET /api/users/:id.
func (h *SocialHandler) GetUser(c *gin.Context) {
	u, err := h.svc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ListFriends handles GET /api/friends.
func (h *SocialHandler) ListFriends(c *gin.Context) {
	friends, err := h.svc.ListFriends(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// ListRequests handles GET /api/friends/requests?direction=incoming|outgoing.
func (h *SocialHandler) ListRequests(c *gin.Context) {
	dir := c.DefaultQuery("direction", social.DirectionIncoming)
	reqs, err := h.svc.ListRequests(c.Request.Context(), mw.GetUserID(c), dir)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// SendFriendRequest handles POST /api/friends/requests.
func (h *SocialHandler) SendFriendRequest(c *gin.Context) {
	var req struct {
		ToUserID string `json:"to_user_id" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	fr, err := h.svc.SendFriendRequest(c.Request.Context(), mw.GetUserID(c), req.ToUserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, fr)
}

// BulkSendFriendRequests handles POST /api/friends/requests/bulk.
func (h *SocialHandler) BulkSendFriendRequests(c *gin.Context) {
	created, err := h.svc.BulkSendFriendRequests(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": created, "count": len(created)})
}

// RespondToFriendRequest handles POST /api/friends/requests/:id/respond.
func (h *SocialHandler) RespondToFriendRequest(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	fr, err := h.svc.RespondToFriendRequest(c.Request.Context(), id, mw.GetUserID(c), req.Action)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, fr)
}
