package store

import (
	"context"
	"time"

	"github.com/kasuganosora/teamlink/server/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FriendRequestRepo struct{ db *gorm.DB }

func (r FriendRequestRepo) Get(ctx context.Context, id int64) (*model.FriendRequest, error) {
	var req model.FriendRequest
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r FriendRequestRepo) FindPair(ctx context.Context, from, to string) (*model.FriendRequest, error) {
	var req model.FriendRequest
	err := r.db.WithContext(ctx).
		Where("from_user_id = ? AND to_user_id = ?", from, to).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Create inserts a new directed request. A concurrent sender of the same
// (from, to) request makes this fail with ErrDuplicate.
func (r FriendRequestRepo) Create(ctx context.Context, req *model.FriendRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// Reissue moves request id from status from to to and restamps it as sent
// at. It returns zero rows if the status changed in the meantime.
func (r FriendRequestRepo) Reissue(ctx context.Context, id int64, from, to model.RequestStatus, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(map[string]interface{}{"status": to, "created_at": at, "updated_at": at})
	return res.RowsAffected, res.Error
}

// SetStatus moves request id from one status to another. It returns the
// number of rows changed, which is zero if the row was not in status from.
func (r FriendRequestRepo) SetStatus(ctx context.Context, id int64, from, to model.RequestStatus) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(map[string]interface{}{"status": to, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// AcceptBetween flips every PENDING request between a and b, in either
// direction, to ACCEPTED.
func (r FriendRequestRepo) AcceptBetween(ctx context.Context, a, b string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("status = ?", model.StatusPending).
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)", a, b, b, a).
		UpdateColumns(map[string]interface{}{"status": model.StatusAccepted, "updated_at": time.Now().UTC()})
	return res.RowsAffected, res.Error
}

// ListPending returns the user's pending requests, incoming or outgoing,
// newest first.
func (r FriendRequestRepo) ListPending(ctx context.Context, userID string, incoming bool) ([]model.FriendRequest, error) {
	col := "from_user_id"
	if incoming {
		col = "to_user_id"
	}
	reqs := make([]model.FriendRequest, 0)
	err := r.db.WithContext(ctx).
		Where(col+" = ? AND status = ?", userID, model.StatusPending).
		Order("created_at DESC, id DESC").
		Find(&reqs).Error
	return reqs, err
}

// PendingTargets returns the recipients of from's outgoing PENDING requests.
func (r FriendRequestRepo) PendingTargets(ctx context.Context, from string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("from_user_id = ? AND status = ?", from, model.StatusPending).
		Pluck("to_user_id", &ids).Error
	return ids, err
}

type FriendshipRepo struct{ db *gorm.DB }

// Ensure inserts the canonical friendship for a and b unless it already
// exists. created is false when another writer got there first.
func (r FriendshipRepo) Ensure(ctx context.Context, a, b string) (created bool, err error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model.NewFriendship(a, b))
	return res.RowsAffected == 1, res.Error
}

func (r FriendshipRepo) Exists(ctx context.Context, a, b string) (bool, error) {
	x, y := model.CanonicalPair(a, b)
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Friendship{}).
		Where("user_a_id = ? AND user_b_id = ?", x, y).
		Count(&n).Error
	return n > 0, err
}

// FriendIDs returns the counterpart of every friendship the user is part of.
func (r FriendshipRepo) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	rows := make([]model.Friendship, 0)
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? OR user_b_id = ?", userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].Other(userID))
	}
	return ids, nil
}
