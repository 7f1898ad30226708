package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// FriendRequest is a directed request. There is at most one row per
// (from, to); sending again revives it.
type FriendRequest struct {
	ID         int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	FromUserID string        `gorm:"column:from_user_id;size:64;not null;uniqueIndex:idx_friend_req_pair,priority:1" json:"from_user_id"`
	ToUserID   string        `gorm:"column:to_user_id;size:64;not null;uniqueIndex:idx_friend_req_pair,priority:2;index:idx_friend_req_to" json:"to_user_id"`
	Status     RequestStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (r *FriendRequest) BeforeSave(*gorm.DB) error {
	if r.FromUserID == r.ToUserID {
		return fmt.Errorf("friend request to self")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("invalid friend request status %q", r.Status)
	}
	return nil
}

// Friendship is the canonical undirected edge: UserAID < UserBID.
type Friendship struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserAID   string    `gorm:"column:user_a_id;size:64;not null;uniqueIndex:idx_friendship_pair,priority:1" json:"user_a_id"`
	UserBID   string    `gorm:"column:user_b_id;size:64;not null;uniqueIndex:idx_friendship_pair,priority:2;index:idx_friendship_b" json:"user_b_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (f *Friendship) BeforeSave(*gorm.DB) error {
	if f.UserAID >= f.UserBID {
		return fmt.Errorf("friendship pair not canonical: %q >= %q", f.UserAID, f.UserBID)
	}
	return nil
}

// Other returns the counterpart of userID in the friendship.
func (f *Friendship) Other(userID string) string {
	if f.UserAID == userID {
		return f.UserBID
	}
	return f.UserAID
}

// CanonicalPair orders two user ids so the smaller comes first.
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func NewFriendship(a, b string) *Friendship {
	x, y := CanonicalPair(a, b)
	return &Friendship{UserAID: x, UserBID: y}
}
