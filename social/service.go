// Package social implements friend requests, friendships, teams and team
// invitations.
package social

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/teamlink/server/apperr"
	"github.com/kasuganosora/teamlink/server/audit"
	"github.com/kasuganosora/teamlink/server/model"
	"github.com/kasuganosora/teamlink/server/store"
	"go.uber.org/zap"
)

// Publisher pushes an event to every live connection of a user.
type Publisher interface {
	Publish(ctx context.Context, userID, event string, payload interface{})
}

type Service struct {
	store  *store.Store
	pub    Publisher
	audit  *audit.Service
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires the relationship engine. auditSvc may be nil.
func NewService(st *store.Store, pub Publisher, auditSvc *audit.Service, logger *zap.Logger) *Service {
	return &Service{
		store:  st,
		pub:    pub,
		audit:  auditSvc,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// notFound turns a missing-row error into a NotFound error naming what was
// looked up; other errors pass through.
func notFound(err error, format string, args ...interface{}) error {
	if store.IsNotFound(err) {
		return apperr.NotFoundf(format, args...)
	}
	return err
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	ok, err := s.store.Users().Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFoundf("user %s not found", userID)
	}
	return nil
}

// SyncProfile stores the profile the identity provider reports for userID.
func (s *Service) SyncProfile(ctx context.Context, userID, displayName string, photoURL *string) (*model.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, apperr.Validationf("display name must not be empty")
	}
	if utf8.RuneCountInString(displayName) > 64 {
		return nil, apperr.Validationf("display name exceeds 64 characters")
	}
	u := &model.User{ID: userID, DisplayName: displayName, PhotoURL: photoURL}
	if err := s.store.Users().Upsert(ctx, u); err != nil {
		return nil, err
	}
	return s.store.Users().Get(ctx, userID)
}

func (s *Service) GetUser(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user %s not found", userID)
	}
	return u, nil
}
