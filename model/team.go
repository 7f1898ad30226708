package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

type TeamRole = int

const (
	TeamRoleOwner  TeamRole = 1
	TeamRoleMember TeamRole = 2
)

type Team struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	OwnerID   string    `gorm:"size:64;not null;index" json:"owner_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TeamMember exists only for the owner and accepted members.
type TeamMember struct {
	TeamID   int64     `gorm:"primaryKey" json:"team_id"`
	UserID   string    `gorm:"primaryKey;size:64;index:idx_member_user" json:"user_id"`
	Role     int       `gorm:"default:2" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

type InvitationKind string

const (
	// InvitationJoin is a user asking to join a team; addressed to the owner.
	InvitationJoin InvitationKind = "JOIN"
	// InvitationInvite is the owner inviting a user.
	InvitationInvite InvitationKind = "INVITE"
)

// Invitation covers both join requests and invites. CandidateID is the user
// who would become a member; one row exists per (team, candidate).
type Invitation struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind        InvitationKind `gorm:"size:16;not null" json:"kind"`
	FromUserID  string         `gorm:"column:from_user_id;size:64;not null;index" json:"from_user_id"`
	ToUserID    string         `gorm:"column:to_user_id;size:64;not null;index" json:"to_user_id"`
	TeamID      int64          `gorm:"not null;uniqueIndex:idx_invitation_candidate,priority:1" json:"team_id"`
	CandidateID string         `gorm:"size:64;not null;uniqueIndex:idx_invitation_candidate,priority:2" json:"candidate_id"`
	Status      RequestStatus  `gorm:"size:16;not null;index" json:"status"`
	SentAt      time.Time      `json:"sent_at"`
	RespondedAt *time.Time     `json:"responded_at,omitempty"`
}

func (i *Invitation) BeforeSave(*gorm.DB) error {
	if i.Kind != InvitationJoin && i.Kind != InvitationInvite {
		return fmt.Errorf("invalid invitation kind %q", i.Kind)
	}
	if !i.Status.Valid() {
		return fmt.Errorf("invalid invitation status %q", i.Status)
	}
	return nil
}
