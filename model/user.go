package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a member of the platform. Ids are opaque strings issued by the
// identity provider; locally created users get a random uuid.
type User struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	DisplayName string    `gorm:"size:64;not null" json:"display_name"`
	PhotoURL    *string   `gorm:"size:512" json:"photo_url,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
