// Package messaging stores direct and team chat messages and pushes them to
// the participants.
package messaging

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/teamlink/server/apperr"
	"github.com/kasuganosora/teamlink/server/config"
	"github.com/kasuganosora/teamlink/server/gateway"
	"github.com/kasuganosora/teamlink/server/model"
	"github.com/kasuganosora/teamlink/server/store"
	"go.uber.org/zap"
)

// Publisher pushes an event to every live connection of a user.
type Publisher interface {
	Publish(ctx context.Context, userID, event string, payload interface{})
}

// ReadReceipt is the payload of chat:read.
type ReadReceipt struct {
	ChatID   int64     `json:"chat_id"`
	ReaderID string    `json:"reader_id"`
	Count    int64     `json:"count"`
	ReadAt   time.Time `json:"read_at"`
}

type Service struct {
	store  *store.Store
	pub    Publisher
	cfg    config.MessagingConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewService(st *store.Store, pub Publisher, cfg config.MessagingConfig, logger *zap.Logger) *Service {
	if cfg.MaxContentLen <= 0 {
		cfg.MaxContentLen = 2000
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 50
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	return &Service{
		store:  st,
		pub:    pub,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func notFound(err error, format string, args ...interface{}) error {
	if store.IsNotFound(err) {
		return apperr.NotFoundf(format, args...)
	}
	return err
}

func (s *Service) content(raw string) (string, error) {
	c := strings.TrimSpace(raw)
	if c == "" {
		return "", apperr.Validationf("message content must not be empty")
	}
	if utf8.RuneCountInString(c) > s.cfg.MaxContentLen {
		return "", apperr.Validationf("message content exceeds %d characters", s.cfg.MaxContentLen)
	}
	return c, nil
}

func (s *Service) page(limit, offset int) (int, error) {
	if offset < 0 {
		return 0, apperr.Validationf("offset must not be negative")
	}
	switch {
	case limit <= 0:
		limit = s.cfg.DefaultPageSize
	case limit > s.cfg.MaxPageSize:
		limit = s.cfg.MaxPageSize
	}
	return limit, nil
}

// GetOrCreateChat returns the direct chat between a and b, creating it on
// first use.
func (s *Service) GetOrCreateChat(ctx context.Context, a, b string) (*model.Chat, error) {
	if a == b {
		return nil, apperr.Validationf("cannot open a chat with yourself")
	}
	ok, err := s.store.Users().Exists(ctx, b)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFoundf("user %s not found", b)
	}

	chat, err := s.store.Chats().FindPair(ctx, a, b)
	if err == nil {
		return chat, nil
	}
	if !store.IsNotFound(err) {
		return nil, err
	}
	chat, err = s.store.Chats().Create(ctx, a, b)
	if store.IsDuplicate(err) {
		// Lost the race to the other participant.
		return s.store.Chats().FindPair(ctx, a, b)
	}
	return chat, err
}

// ListChats returns the user's direct chats, most recently active first.
func (s *Service) ListChats(ctx context.Context, userID string) ([]model.Chat, error) {
	return s.store.Chats().ListFor(ctx, userID)
}

func (s *Service) participantChat(ctx context.Context, chatID int64, userID string) (*model.Chat, error) {
	chat, err := s.store.Chats().Get(ctx, chatID)
	if err != nil {
		return nil, notFound(err, "chat %d not found", chatID)
	}
	if !chat.Has(userID) {
		return nil, apperr.Forbiddenf("not a participant of chat %d", chatID)
	}
	return chat, nil
}

func (s *Service) memberTeam(ctx context.Context, teamID int64, userID string) error {
	if _, err := s.store.Teams().Get(ctx, teamID); err != nil {
		return notFound(err, "team %d not found", teamID)
	}
	ok, err := s.store.Teams().IsMember(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Forbiddenf("not a member of team %d", teamID)
	}
	return nil
}

// SendChatMessage appends a message to a direct chat.
func (s *Service) SendChatMessage(ctx context.Context, chatID int64, sender, raw string) (*model.ChatMessage, error) {
	content, err := s.content(raw)
	if err != nil {
		return nil, err
	}
	chat, err := s.participantChat(ctx, chatID, sender)
	if err != nil {
		return nil, err
	}

	msg := &model.ChatMessage{ChatID: chat.ID, SenderID: sender, Content: content, SentAt: s.now()}
	err = s.store.Tx(ctx, func(tx *store.Store) error {
		if err := tx.ChatMessages().Create(ctx, msg); err != nil {
			return err
		}
		return tx.Chats().Touch(ctx, chat.ID, msg.SentAt)
	})
	if err != nil {
		return nil, err
	}

	s.pub.Publish(ctx, chat.Other(sender), gateway.EventChatMessage, msg)
	s.pub.Publish(ctx, sender, gateway.EventChatMessageSent, msg)
	return msg, nil
}

// SendTeamMessage appends a message to a team chat.
func (s *Service) SendTeamMessage(ctx context.Context, teamID int64, sender, raw string) (*model.TeamMessage, error) {
	content, err := s.content(raw)
	if err != nil {
		return nil, err
	}
	if err := s.memberTeam(ctx, teamID, sender); err != nil {
		return nil, err
	}

	msg := &model.TeamMessage{TeamID: teamID, SenderID: sender, Content: content, SentAt: s.now()}
	err = s.store.Tx(ctx, func(tx *store.Store) error {
		return tx.TeamMessages().Create(ctx, msg)
	})
	if err != nil {
		return nil, err
	}

	members, err := s.store.Teams().MemberIDs(ctx, teamID)
	if err != nil {
		// The message is stored; members will see it on their next fetch.
		s.logger.Warn("team message fan-out skipped",
			zap.Int64("team_id", teamID),
			zap.Int64("message_id", msg.ID),
			zap.Error(err))
	}
	for _, uid := range members {
		if uid != sender {
			s.pub.Publish(ctx, uid, gateway.EventTeamMessage, msg)
		}
	}
	s.pub.Publish(ctx, sender, gateway.EventTeamMessageSent, msg)
	return msg, nil
}

// GetChatMessages returns one page of a chat in chronological order. The
// page skips the newest offset messages.
func (s *Service) GetChatMessages(ctx context.Context, chatID int64, userID string, limit, offset int) ([]model.ChatMessage, error) {
	limit, err := s.page(limit, offset)
	if err != nil {
		return nil, err
	}
	if _, err := s.participantChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.store.ChatMessages().Page(ctx, chatID, limit, offset)
}

func (s *Service) GetTeamMessages(ctx context.Context, teamID int64, userID string, limit, offset int) ([]model.TeamMessage, error) {
	limit, err := s.page(limit, offset)
	if err != nil {
		return nil, err
	}
	if err := s.memberTeam(ctx, teamID, userID); err != nil {
		return nil, err
	}
	return s.store.TeamMessages().Page(ctx, teamID, limit, offset)
}

// MarkChatRead marks the counterpart's unread messages as read and returns
// how many changed.
func (s *Service) MarkChatRead(ctx context.Context, chatID int64, userID string) (int64, error) {
	chat, err := s.participantChat(ctx, chatID, userID)
	if err != nil {
		return 0, err
	}
	at := s.now()
	n, err := s.store.ChatMessages().MarkRead(ctx, chatID, userID, at)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.pub.Publish(ctx, chat.Other(userID), gateway.EventChatRead, ReadReceipt{
			ChatID:   chatID,
			ReaderID: userID,
			Count:    n,
			ReadAt:   at,
		})
	}
	return n, nil
}

func (s *Service) MarkTeamRead(ctx context.Context, teamID int64, userID string) (int64, error) {
	if err := s.memberTeam(ctx, teamID, userID); err != nil {
		return 0, err
	}
	return s.store.TeamMessages().MarkRead(ctx, teamID, userID, s.now())
}

func (s *Service) UnreadChatCount(ctx context.Context, chatID int64, userID string) (int64, error) {
	if _, err := s.participantChat(ctx, chatID, userID); err != nil {
		return 0, err
	}
	return s.store.ChatMessages().CountUnread(ctx, chatID, userID)
}

func (s *Service) UnreadTeamCount(ctx context.Context, teamID int64, userID string) (int64, error) {
	if err := s.memberTeam(ctx, teamID, userID); err != nil {
		return 0, err
	}
	return s.store.TeamMessages().CountUnread(ctx, teamID, userID)
}
