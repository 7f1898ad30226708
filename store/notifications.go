package store

import (
	"context"

	"github.com/kasuganosora/teamlink/server/model"
	"gorm.io/gorm"
)

type NotificationRepo struct{ db *gorm.DB }

func (r NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r NotificationRepo) Get(ctx context.Context, id int64) (*model.Notification, error) {
	var n model.Notification
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func (r NotificationRepo) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	ns := make([]model.Notification, 0)
	err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&ns).Error
	return ns, err
}

func (r NotificationRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).Count(&n).Error
	return n, err
}

// MarkRead flips unread notifications of the user to read. With no ids it
// marks all of them.
func (r NotificationRepo) MarkRead(ctx context.Context, userID string, ids ...int64) (int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false)
	if len(ids) > 0 {
		q = q.Where("id IN ?", ids)
	}
	res := q.UpdateColumn("is_read", true)
	return res.RowsAffected, res.Error
}
