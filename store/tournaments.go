package store

import (
	"context"
	"time"

	"github.com/kasuganosora/teamlink/server/model"
	"gorm.io/gorm"
)

type TournamentRepo struct{ db *gorm.DB }

func (r TournamentRepo) Create(ctx context.Context, t *model.Tournament) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r TournamentRepo) Register(ctx context.Context, tournamentID, teamID int64) error {
	return r.db.WithContext(ctx).
		Create(&model.TournamentTeam{TournamentID: tournamentID, TeamID: teamID}).Error
}

// ListExpired returns up to limit tournaments whose start date is before now,
// oldest first.
func (r TournamentRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]model.Tournament, error) {
	ts := make([]model.Tournament, 0)
	err := r.db.WithContext(ctx).
		Where("start_date < ?", now).
		Order("start_date, id").
		Limit(limit).
		Find(&ts).Error
	return ts, err
}

func (r TournamentRepo) DeleteRegistrations(ctx context.Context, tournamentID int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("tournament_id = ?", tournamentID).
		Delete(&model.TournamentTeam{})
	return res.RowsAffected, res.Error
}

// DeleteExpired removes the tournament only if it is still expired at now.
func (r TournamentRepo) DeleteExpired(ctx context.Context, id int64, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND start_date < ?", id, now).
		Delete(&model.Tournament{})
	return res.RowsAffected, res.Error
}

func (r TournamentRepo) Exists(ctx context.Context, id int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Tournament{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r TournamentRepo) CountRegistrations(ctx context.Context, tournamentID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.TournamentTeam{}).
		Where("tournament_id = ?", tournamentID).Count(&n).Error
	return n, err
}
