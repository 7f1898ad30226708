package store

import (
	"context"

	"github.com/kasuganosora/teamlink/server/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepo struct{ db *gorm.DB }

func (r UserRepo) Create(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

// Upsert inserts the user or refreshes the profile fields of an existing row.
func (r UserRepo) Upsert(ctx context.Context, u *model.User) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "photo_url"}),
	}).Create(u).Error
}

func (r UserRepo) Get(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r UserRepo) Exists(ctx context.Context, id string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// ListIDs returns every user id except the given one.
func (r UserRepo) ListIDs(ctx context.Context, except string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id <> ?", except).Order("id").Pluck("id", &ids).Error
	return ids, err
}

func (r UserRepo) ListByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	users := make([]model.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("display_name").Find(&users).Error
	return users, err
}
