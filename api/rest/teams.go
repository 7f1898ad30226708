package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/teamlink/server/middleware"
	"github.com/kasuganosora/teamlink/server/social"
)

// TeamHandler handles team and invitation REST endpoints.
type TeamHandler struct {
	svc *social.Service
}

func NewTeamHandler(svc *social.Service) *TeamHandler {
	return &TeamHandler{svc: svc}
}

// Create handles POST /api/teams.
func (h *TeamHandler) Create(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	team, err := h.svc.CreateTeam(c.Request.Context(), mw.GetUserID(c), req.Name)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, team)
}

// List handles GET /api/teams.
func (h *TeamHandler) List(c *gin.Context) {
	teams, err := h.svc.ListTeams(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teams": teams})
}

// Members handles GET /api/teams/:id/members.
func (h *TeamHandler) Members(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	members, err := h.svc.TeamMembers(c.Request.Context(), id, mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// Join handles POST /api/teams/:id/join.
func (h *TeamHandler) Join(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	inv, err := h.svc.RequestToJoin(c.Request.Context(), mw.GetUserID(c), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// Invite handles POST /api/teams/:id/invitations.
func (h *TeamHandler) Invite(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	inv, err := h.svc.InviteToTeam(c.Request.Context(), mw.GetUserID(c), id, req.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

// ListInvitations handles GET /api/invitations.
func (h *TeamHandler) ListInvitations(c *gin.Context) {
	invs, err := h.svc.ListInvitations(c.Request.Context(), mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invitations": invs})
}

// Accept handles POST /api/invitations/:id/accept.
func (h *TeamHandler) Accept(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	inv, err := h.svc.AcceptInvitation(c.Request.Context(), id, mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// Reject handles POST /api/invitations/:id/reject.
func (h *TeamHandler) Reject(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	inv, err := h.svc.RejectInvitation(c.Request.Context(), id, mw.GetUserID(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

// Cancel handles DELETE /api/invitations/:id.
func (h *TeamHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.CancelInvitation(c.Request.Context(), id, mw.GetUserID(c)); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
