package social

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/teamlink/server/apperr"
	"github.com/kasuganosora/teamlink/server/audit"
	"github.com/kasuganosora/teamlink/server/gateway"
	"github.com/kasuganosora/teamlink/server/model"
	"github.com/kasuganosora/teamlink/server/store"
)

const maxTeamNameLen = 64

// CreateTeam creates a team owned by owner and enrols the owner as its
// first member.
func (s *Service) CreateTeam(ctx context.Context, owner, name string) (*model.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validationf("team name must not be empty")
	}
	if utf8.RuneCountInString(name) > maxTeamNameLen {
		return nil, apperr.Validationf("team name exceeds %d characters", maxTeamNameLen)
	}

	team := &model.Team{Name: name, OwnerID: owner}
	err := s.store.Tx(ctx, func(tx *store.Store) error {
		if err := tx.Teams().Create(ctx, team); err != nil {
			if store.IsDuplicate(err) {
				return apperr.Conflictf("team name %q is taken", name)
			}
			return err
		}
		_, err := tx.Teams().AddMember(ctx, team.ID, owner, model.TeamRoleOwner)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Entry{
		UserID: owner,
		Action: "team.create",
		Target: fmt.Sprintf("team:%d", team.ID),
		Detail: map[string]string{"name": name},
	})
	return team, nil
}

// ListTeams returns the teams the user belongs to.
func (s *Service) ListTeams(ctx context.Context, userID string) ([]model.Team, error) {
	return s.store.Teams().ListForUser(ctx, userID)
}

// TeamMembers returns a team's members; only members may list them.
func (s *Service) TeamMembers(ctx context.Context, teamID int64, userID string) ([]model.TeamMember, error) {
	if _, err := s.store.Teams().Get(ctx, teamID); err != nil {
		return nil, notFound(err, "team %d not found", teamID)
	}
	ok, err := s.store.Teams().IsMember(ctx, teamID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Forbiddenf("not a member of team %d", teamID)
	}
	return s.store.Teams().Members(ctx, teamID)
}

// RequestToJoin asks the team owner to let userID join.
func (s *Service) RequestToJoin(ctx context.Context, userID string, teamID int64) (*model.Invitation, error) {
	team, err := s.store.Teams().Get(ctx, teamID)
	if err != nil {
		return nil, notFound(err, "team %d not found", teamID)
	}
	if err := s.requireNonMember(ctx, teamID, userID); err != nil {
		return nil, err
	}
	return s.sendInvitation(ctx, &model.Invitation{
		Kind:        model.InvitationJoin,
		FromUserID:  userID,
		ToUserID:    team.OwnerID,
		TeamID:      teamID,
		CandidateID: userID,
	})
}

// InviteToTeam lets the team owner invite invitee.
func (s *Service) InviteToTeam(ctx context.Context, ownerID string, teamID int64, invitee string) (*model.Invitation, error) {
	team, err := s.store.Teams().Get(ctx, teamID)
	if err != nil {
		return nil, notFound(err, "team %d not found", teamID)
	}
	if team.OwnerID != ownerID {
		return nil, apperr.Forbiddenf("only the owner can invite to team %d", teamID)
	}
	if invitee == ownerID {
		return nil, apperr.Validationf("cannot invite yourself")
	}
	if err := s.requireUser(ctx, invitee); err != nil {
		return nil, err
	}
	if err := s.requireNonMember(ctx, teamID, invitee); err != nil {
		return nil, err
	}
	return s.sendInvitation(ctx, &model.Invitation{
		Kind:        model.InvitationInvite,
		FromUserID:  ownerID,
		ToUserID:    invitee,
		TeamID:      teamID,
		CandidateID: invitee,
	})
}

func (s *Service) requireNonMember(ctx context.Context, teamID int64, userID string) error {
	member, err := s.store.Teams().IsMember(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if member {
		return apperr.Conflictf("user %s is already a member of team %d", userID, teamID)
	}
	return nil
}

// sendInvitation stores inv as PENDING. A terminal row for the same
// candidate and team is revived; a PENDING one is a Conflict.
func (s *Service) sendInvitation(ctx context.Context, inv *model.Invitation) (*model.Invitation, error) {
	inv.Status = model.StatusPending
	inv.SentAt = s.now()

	var saved *model.Invitation
	err := s.store.Tx(ctx, func(tx *store.Store) error {
		existing, err := tx.Invitations().FindByCandidate(ctx, inv.TeamID, inv.CandidateID)
		switch {
		case store.IsNotFound(err):
			if err := tx.Invitations().Create(ctx, inv); err != nil {
				if store.IsDuplicate(err) {
					return apperr.Conflictf("an invitation for this team is already pending")
				}
				return err
			}
			saved = inv
			return nil
		case err != nil:
			return err
		}

		if _, err := existing.Status.Reissue(); err != nil {
			return apperr.Conflictf("an invitation for this team is already pending")
		}
		n, err := tx.Invitations().Revive(ctx, existing.ID, inv)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.Conflictf("an invitation for this team is already pending")
		}
		saved, err = tx.Invitations().Get(ctx, existing.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.pub.Publish(ctx, saved.ToUserID, gateway.EventTeamInvitation, saved)
	return saved, nil
}

// AcceptInvitation accepts a PENDING invitation addressed to responder and
// adds the candidate to the team.
func (s *Service) AcceptInvitation(ctx context.Context, invitationID int64, responder string) (*model.Invitation, error) {
	inv, err := s.addressedInvitation(ctx, invitationID, responder)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	var updated *model.Invitation
	err = s.store.Tx(ctx, func(tx *store.Store) error {
		n, err := tx.Invitations().Respond(ctx, inv.ID, model.StatusAccepted, s.now())
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.Validationf("invitation %d is no longer pending", inv.ID)
		}
		if _, err := tx.Teams().AddMember(ctx, inv.TeamID, inv.CandidateID, model.TeamRoleMember); err != nil {
			return err
		}
		updated, err = tx.Invitations().Get(ctx, inv.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishResponded(ctx, updated)
	s.audit.Log(ctx, audit.Entry{
		UserID:   responder,
		Action:   "team.invitation.accept",
		Target:   fmt.Sprintf("team:%d", updated.TeamID),
		Detail:   map[string]interface{}{"invitation_id": updated.ID, "member": updated.CandidateID},
		Duration: time.Since(start),
	})
	return updated, nil
}

// RejectInvitation rejects a PENDING invitation addressed to responder.
func (s *Service) RejectInvitation(ctx context.Context, invitationID int64, responder string) (*model.Invitation, error) {
	inv, err := s.addressedInvitation(ctx, invitationID, responder)
	if err != nil {
		return nil, err
	}
	n, err := s.store.Invitations().Respond(ctx, inv.ID, model.StatusRejected, s.now())
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.Validationf("invitation %d is no longer pending", inv.ID)
	}
	updated, err := s.store.Invitations().Get(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	s.publishResponded(ctx, updated)
	return updated, nil
}

func (s *Service) addressedInvitation(ctx context.Context, id int64, responder string) (*model.Invitation, error) {
	inv, err := s.store.Invitations().Get(ctx, id)
	if err != nil {
		return nil, notFound(err, "invitation %d not found", id)
	}
	if inv.ToUserID != responder {
		return nil, apperr.Forbiddenf("invitation %d is not addressed to you", id)
	}
	if inv.Status != model.StatusPending {
		return nil, apperr.Validationf("invitation %d is %s", id, inv.Status)
	}
	return inv, nil
}

func (s *Service) publishResponded(ctx context.Context, inv *model.Invitation) {
	s.pub.Publish(ctx, inv.FromUserID, gateway.EventTeamInvitationResponded, inv)
	s.pub.Publish(ctx, inv.ToUserID, gateway.EventTeamInvitationResponded, inv)
}

// CancelInvitation withdraws a PENDING invitation; only its sender may.
func (s *Service) CancelInvitation(ctx context.Context, invitationID int64, userID string) error {
	inv, err := s.store.Invitations().Get(ctx, invitationID)
	if err != nil {
		return notFound(err, "invitation %d not found", invitationID)
	}
	if inv.FromUserID != userID {
		return apperr.Forbiddenf("only the sender can cancel invitation %d", invitationID)
	}
	if inv.Status != model.StatusPending {
		return apperr.Validationf("invitation %d is %s", invitationID, inv.Status)
	}
	n, err := s.store.Invitations().DeletePending(ctx, inv.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.Validationf("invitation %d is no longer pending", invitationID)
	}
	s.pub.Publish(ctx, inv.ToUserID, gateway.EventTeamInvitationCancelled, inv)
	return nil
}

// ListInvitations returns the PENDING invitations the user sent or received.
func (s *Service) ListInvitations(ctx context.Context, userID string) ([]model.Invitation, error) {
	return s.store.Invitations().ListPendingFor(ctx, userID)
}
