package store

import (
	"context"
	"time"

	"github.com/kasuganosora/teamlink/server/model"
	"gorm.io/gorm"
)

type ChatRepo struct{ db *gorm.DB }

func (r ChatRepo) Get(ctx context.Context, id int64) (*model.Chat, error) {
	var c model.Chat
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r ChatRepo) FindPair(ctx context.Context, a, b string) (*model.Chat, error) {
	x, y := model.CanonicalPair(a, b)
	var c model.Chat
	err := r.db.WithContext(ctx).Where("user_a_id = ? AND user_b_id = ?", x, y).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts the chat for a and b in canonical order. A concurrent
// creator makes this fail with ErrDuplicate.
func (r ChatRepo) Create(ctx context.Context, a, b string) (*model.Chat, error) {
	x, y := model.CanonicalPair(a, b)
	c := &model.Chat{UserAID: x, UserBID: y}
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

func (r ChatRepo) Touch(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Chat{}).
		Where("id = ?", id).UpdateColumn("updated_at", at).Error
}

// ListFor returns the user's chats, most recently active first.
func (r ChatRepo) ListFor(ctx context.Context, userID string) ([]model.Chat, error) {
	chats := make([]model.Chat, 0)
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Order("updated_at DESC, id DESC").
		Find(&chats).Error
	return chats, err
}

// MessageRepo stores the messages of one kind of parent (chat or team).
type MessageRepo[M any] struct {
	db        *gorm.DB
	parentCol string
}

func (r MessageRepo[M]) Create(ctx context.Context, m *M) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// Page returns up to limit messages of the parent, skipping the newest
// offset ones, in chronological order.
func (r MessageRepo[M]) Page(ctx context.Context, parentID int64, limit, offset int) ([]M, error) {
	msgs := make([]M, 0, limit)
	err := r.db.WithContext(ctx).
		Where(r.parentCol+" = ?", parentID).
		Order("sent_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead stamps read_at on every unread message of the parent not sent
// by readerID.
func (r MessageRepo[M]) MarkRead(ctx context.Context, parentID int64, readerID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(new(M)).
		Where(r.parentCol+" = ? AND sender_id <> ? AND read_at IS NULL", parentID, readerID).
		UpdateColumn("read_at", at)
	return res.RowsAffected, res.Error
}

func (r MessageRepo[M]) CountUnread(ctx context.Context, parentID int64, readerID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(new(M)).
		Where(r.parentCol+" = ? AND sender_id <> ? AND read_at IS NULL", parentID, readerID).
		Count(&n).Error
	return n, err
}
