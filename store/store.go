// Package store holds the typed repositories over the relational database.
// A Store is bound either to the root *gorm.DB or to an open transaction;
// repositories obtained from a transactional Store run inside it.
package store

import (
	"context"
	"errors"

	"github.com/kasuganosora/teamlink/server/model"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = gorm.ErrRecordNotFound
	ErrDuplicate = gorm.ErrDuplicatedKey
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB { return s.db }

// Tx runs fn inside a transaction. Only the Store passed to fn may be used
// until it returns; with SQLite's single connection the outer Store would
// block.
func (s *Store) Tx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Users() UserRepo                   { return UserRepo{db: s.db} }
func (s *Store) FriendRequests() FriendRequestRepo { return FriendRequestRepo{db: s.db} }
func (s *Store) Friendships() FriendshipRepo       { return FriendshipRepo{db: s.db} }
func (s *Store) Teams() TeamRepo                   { return TeamRepo{db: s.db} }
func (s *Store) Invitations() InvitationRepo       { return InvitationRepo{db: s.db} }
func (s *Store) Chats() ChatRepo                   { return ChatRepo{db: s.db} }
func (s *Store) Tournaments() TournamentRepo       { return TournamentRepo{db: s.db} }
func (s *Store) Notifications() NotificationRepo   { return NotificationRepo{db: s.db} }

func (s *Store) ChatMessages() MessageRepo[model.ChatMessage] {
	return MessageRepo[model.ChatMessage]{db: s.db, parentCol: "chat_id"}
}

func (s *Store) TeamMessages() MessageRepo[model.TeamMessage] {
	return MessageRepo[model.TeamMessage]{db: s.db, parentCol: "team_id"}
}

// IsNotFound reports whether err is a missing-row error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsDuplicate reports whether err is a unique-constraint violation.
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicate) }
