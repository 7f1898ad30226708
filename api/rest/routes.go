package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/teamlink/server/config"
	mw "github.com/kasuganosora/teamlink/server/middleware"
)

// Handlers groups every REST handler so main and the integration harness
// register the same routes.
type Handlers struct {
	Social        *SocialHandler
	Teams         *TeamHandler
	Chat          *ChatHandler
	Notifications *NotificationHandler
	Admin         *AdminHandler
}

// Register mounts the /api routes on r. User routes require a bearer token
// accepted by verifier; admin routes require the admin key and, when
// configured, a whitelisted source address.
func Register(r gin.IRouter, h Handlers, verifier mw.TokenVerifier, srv config.ServerConfig) {
	api := r.Group("/api")

	user := api.Group("", mw.Auth(verifier))
	{
		user.GET("/me", h.Social.Me)
		user.PUT("/me", h.Social.UpdateMe)
		user.GET("/users/:id", h.Social.GetUser)

		user.GET("/friends", h.Social.ListFriends)
		user.GET("/friends/requests", h.Social.ListRequests)
		user.POST("/friends/requests", h.Social.SendFriendRequest)
		user.POST("/friends/requests/bulk", h.Social.BulkSendFriendRequests)
		user.POST("/friends/requests/:id/respond", h.Social.RespondToFriendRequest)

		user.GET("/teams", h.Teams.List)
		user.POST("/teams", h.Teams.Create)
		user.GET("/teams/:id/members", h.Teams.Members)
		user.POST("/teams/:id/join", h.Teams.Join)
		user.POST("/teams/:id/invitations", h.Teams.Invite)
		user.GET("/teams/:id/messages", h.Chat.TeamMessages)
		user.POST("/teams/:id/messages", h.Chat.TeamSend)
		user.POST("/teams/:id/read", h.Chat.TeamMarkRead)
		user.GET("/teams/:id/unread", h.Chat.TeamUnread)

		user.GET("/invitations", h.Teams.ListInvitations)
		user.POST("/invitations/:id/accept", h.Teams.Accept)
		user.POST("/invitations/:id/reject", h.Teams.Reject)
		user.DELETE("/invitations/:id", h.Teams.Cancel)

		user.GET("/chats", h.Chat.List)
		user.POST("/chats", h.Chat.Open)
		user.GET("/chats/:id/messages", h.Chat.Messages)
		user.POST("/chats/:id/messages", h.Chat.Send)
		user.POST("/chats/:id/read", h.Chat.MarkRead)
		user.GET("/chats/:id/unread", h.Chat.Unread)

		user.GET("/notifications", h.Notifications.List)
		user.GET("/notifications/unread", h.Notifications.UnreadCount)
		user.POST("/notifications/read-all", h.Notifications.MarkAllRead)
		user.POST("/notifications/:id/read", h.Notifications.MarkRead)
	}

	if h.Admin != nil {
		admin := api.Group("/admin", mw.IPWhitelist(srv.AdminIPs), AdminAuth(srv.AdminKey))
		admin.GET("/metrics", h.Admin.Metrics)
		admin.GET("/scheduler", h.Admin.ListSchedulerTasks)
		admin.POST("/sweeper/run", h.Admin.RunSweeper)
	}
}
