package store

import (
	"context"
	"time"

	"github.com/kasuganosora/teamlink/server/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TeamRepo struct{ db *gorm.DB }

func (r TeamRepo) Create(ctx context.Context, t *model.Team) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r TeamRepo) Get(ctx context.Context, id int64) (*model.Team, error) {
	var t model.Team
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// AddMember inserts the membership row; an existing row is left untouched.
func (r TeamRepo) AddMember(ctx context.Context, teamID int64, userID string, role model.TeamRole) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.TeamMember{TeamID: teamID, UserID: userID, Role: role})
	return res.RowsAffected == 1, res.Error
}

func (r TeamRepo) IsMember(ctx context.Context, teamID int64, userID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.TeamMember{}).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r TeamRepo) MemberIDs(ctx context.Context, teamID int64) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.TeamMember{}).
		Where("team_id = ?", teamID).Order("joined_at").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r TeamRepo) Members(ctx context.Context, teamID int64) ([]model.TeamMember, error) {
	members := make([]model.TeamMember, 0)
	err := r.db.WithContext(ctx).Where("team_id = ?", teamID).Order("joined_at").Find(&members).Error
	return members, err
}

func (r TeamRepo) ListForUser(ctx context.Context, userID string) ([]model.Team, error) {
	teams := make([]model.Team, 0)
	err := r.db.WithContext(ctx).
		Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.user_id = ?", userID).
		Order("teams.id").
		Find(&teams).Error
	return teams, err
}

type InvitationRepo struct{ db *gorm.DB }

func (r InvitationRepo) Get(ctx context.Context, id int64) (*model.Invitation, error) {
	var inv model.Invitation
	if err := r.db.WithContext(ctx).First(&inv, id).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r InvitationRepo) FindByCandidate(ctx context.Context, teamID int64, candidateID string) (*model.Invitation, error) {
	var inv model.Invitation
	err := r.db.WithContext(ctx).
		Where("team_id = ? AND candidate_id = ?", teamID, candidateID).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r InvitationRepo) Create(ctx context.Context, inv *model.Invitation) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

// Revive reuses a terminal row for a new attempt. It returns zero rows
// affected if the row is PENDING.
func (r InvitationRepo) Revive(ctx context.Context, id int64, inv *model.Invitation) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Invitation{}).
		Where("id = ? AND status <> ?", id, model.StatusPending).
		UpdateColumns(map[string]interface{}{
			"kind":         inv.Kind,
			"from_user_id": inv.FromUserID,
			"to_user_id":   inv.ToUserID,
			"status":       model.StatusPending,
			"sent_at":      inv.SentAt,
			"responded_at": nil,
		})
	return res.RowsAffected, res.Error
}

// Respond sets a terminal status on a PENDING invitation. Zero rows
// affected means the invitation was no longer PENDING.
func (r InvitationRepo) Respond(ctx context.Context, id int64, to model.RequestStatus, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Invitation{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		UpdateColumns(map[string]interface{}{"status": to, "responded_at": at})
	return res.RowsAffected, res.Error
}

// DeletePending removes a PENDING invitation.
func (r InvitationRepo) DeletePending(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Delete(&model.Invitation{})
	return res.RowsAffected, res.Error
}

// ListPendingFor returns PENDING invitations the user sent or received.
func (r InvitationRepo) ListPendingFor(ctx context.Context, userID string) ([]model.Invitation, error) {
	invs := make([]model.Invitation, 0)
	err := r.db.WithContext(ctx).
		Where("status = ?", model.StatusPending).
		Where("to_user_id = ? OR from_user_id = ?", userID, userID).
		Order("sent_at DESC, id DESC").
		Find(&invs).Error
	return invs, err
}
