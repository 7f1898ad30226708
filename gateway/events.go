package gateway

// Events pushed to clients.
const (
	EventFriendRequest     = "friend:request"
	EventFriendRequestSent = "friend:request:sent"
	EventFriendResponded   = "friend:responded"

	EventChatMessage     = "chat:message"
	EventChatMessageSent = "chat:message:sent"
	EventChatRead        = "chat:read"

	EventTeamMessage     = "team:message"
	EventTeamMessageSent = "team:message:sent"

	EventTeamInvitation          = "team:invitation"
	EventTeamInvitationResponded = "team:invitation:responded"
	EventTeamInvitationCancelled = "team:invitation:cancelled"

	EventTournamentDeleted = "tournament:deleted"

	// EventError answers an inbound packet whose handler failed.
	EventError = "error"
)
