package model

import "time"

// Chat is a direct conversation between exactly two users, stored in
// canonical order.
type Chat struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserAID   string    `gorm:"column:user_a_id;size:64;not null;uniqueIndex:idx_chat_pair,priority:1" json:"user_a_id"`
	UserBID   string    `gorm:"column:user_b_id;size:64;not null;uniqueIndex:idx_chat_pair,priority:2;index:idx_chat_b" json:"user_b_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Chat) Has(userID string) bool {
	return c.UserAID == userID || c.UserBID == userID
}

func (c *Chat) Other(userID string) string {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

type ChatMessage struct {
	ID       int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID   int64      `gorm:"not null;index:idx_chat_msg,priority:1" json:"chat_id"`
	SenderID string     `gorm:"size:64;not null" json:"sender_id"`
	Content  string     `gorm:"type:text;not null" json:"content"`
	SentAt   time.Time  `gorm:"index:idx_chat_msg,priority:2" json:"sent_at"`
	ReadAt   *time.Time `json:"read_at,omitempty"`
}

type TeamMessage struct {
	ID       int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	TeamID   int64      `gorm:"not null;index:idx_team_msg,priority:1" json:"team_id"`
	SenderID string     `gorm:"size:64;not null" json:"sender_id"`
	Content  string     `gorm:"type:text;not null" json:"content"`
	SentAt   time.Time  `gorm:"index:idx_team_msg,priority:2" json:"sent_at"`
	ReadAt   *time.Time `json:"read_at,omitempty"`
}
