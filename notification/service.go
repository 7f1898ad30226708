// Package notification serves the durable per-user notifications written by
// background jobs.
package notification

import (
	"context"

	"github.com/kasuganosora/teamlink/server/apperr"
	"github.com/kasuganosora/teamlink/server/model"
	"github.com/kasuganosora/teamlink/server/store"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	switch {
	case limit <= 0:
		limit = defaultLimit
	case limit > maxLimit:
		limit = maxLimit
	}
	return s.store.Notifications().List(ctx, userID, unreadOnly, limit)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.store.Notifications().CountUnread(ctx, userID)
}

// MarkRead marks one notification read. Marking it again is a no-op.
func (s *Service) MarkRead(ctx context.Context, id int64, userID string) error {
	n, err := s.store.Notifications().Get(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			return apperr.NotFoundf("notification %d not found", id)
		}
		return err
	}
	if n.UserID != userID {
		return apperr.Forbiddenf("notification %d belongs to another user", id)
	}
	_, err = s.store.Notifications().MarkRead(ctx, userID, id)
	return err
}

// MarkAllRead marks every unread notification of the user and returns how
// many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.Notifications().MarkRead(ctx, userID)
}
