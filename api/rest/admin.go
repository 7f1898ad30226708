package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/teamlink/server/gateway"
	"github.com/kasuganosora/teamlink/server/scheduler"
	"github.com/kasuganosora/teamlink/server/sweeper"
	"go.uber.org/zap"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	gw      *gateway.Gateway
	sched   *scheduler.Scheduler
	sweeper *sweeper.Sweeper
	started time.Time
	logger  *zap.Logger
}

func NewAdminHandler(gw *gateway.Gateway, sched *scheduler.Scheduler, sw *sweeper.Sweeper, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{gw: gw, sched: sched, sweeper: sw, started: time.Now(), logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	m := gin.H{
		"connections":     h.gw.LocalConnections(),
		"scheduler_tasks": h.sched.ListTickers(),
		"uptime_s":        int64(time.Since(h.started).Seconds()),
	}
	// Shared registries cannot count users cheaply.
	if n, ok := h.gw.OnlineUsers(); ok {
		m["online_users"] = n
	}
	c.JSON(http.StatusOK, m)
}

// ListSchedulerTasks returns every registered ticker task with its run stats.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.Tasks()})
}

// RunSweeper retires expired tournaments now. When the periodic sweep is
// registered the run is queued behind it; otherwise one batch runs inline.
// POST /api/admin/sweeper/run
func (h *AdminHandler) RunSweeper(c *gin.Context) {
	if h.sweeper.Trigger() {
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
		return
	}
	res := h.sweeper.RunOnce(c.Request.Context())
	h.logger.Info("manual tournament sweep",
		zap.Int("scanned", res.Scanned),
		zap.Int("deleted", res.Deleted),
		zap.Int("failed", res.Failed))
	c.JSON(http.StatusOK, gin.H{"queued": false, "result": res})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "unavailable", "message": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid admin key"})
			return
		}
		c.Next()
	}
}
