package model

import "time"

type Tournament struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title     string    `gorm:"size:128;not null" json:"title"`
	StartDate time.Time `gorm:"not null;index" json:"start_date"`
	CreatorID string    `gorm:"size:64;not null;index" json:"creator_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TournamentTeam is a team's registration in a tournament.
type TournamentTeam struct {
	TournamentID int64     `gorm:"primaryKey" json:"tournament_id"`
	TeamID       int64     `gorm:"primaryKey" json:"team_id"`
	RegisteredAt time.Time `gorm:"autoCreateTime" json:"registered_at"`
}
