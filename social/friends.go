package social

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kasuganosora/teamlink/server/apperr"
	"github.com/kasuganosora/teamlink/server/audit"
	"github.com/kasuganosora/teamlink/server/gateway"
	"github.com/kasuganosora/teamlink/server/model"
	"github.com/kasuganosora/teamlink/server/store"
	"go.uber.org/zap"
)

const (
	ActionAccept  = "accept"
	ActionDecline = "decline"

	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// FriendResponse is the payload of friend:responded.
type FriendResponse struct {
	Request  *model.FriendRequest `json:"request"`
	Accepted bool                 `json:"accepted"`
}

// SendFriendRequest creates or revives the PENDING request from → to.
func (s *Service) SendFriendRequest(ctx context.Context, from, to string) (*model.FriendRequest, error) {
	if from == to {
		return nil, apperr.Validationf("cannot send a friend request to yourself")
	}
	if err := s.requireUser(ctx, to); err != nil {
		return nil, err
	}
	friends, err := s.store.Friendships().Exists(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, apperr.Conflictf("already friends")
	}

	req, err := s.sendRequest(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.publishRequest(ctx, req)
	return req, nil
}

// sendRequest creates the directed request, or moves the existing row
// through RequestStatus.Resend so that one row per (from, to) is kept.
func (s *Service) sendRequest(ctx context.Context, from, to string) (*model.FriendRequest, error) {
	var saved *model.FriendRequest
	err := s.store.Tx(ctx, func(tx *store.Store) error {
		now := s.now()
		existing, err := tx.FriendRequests().FindPair(ctx, from, to)
		switch {
		case store.IsNotFound(err):
			req := &model.FriendRequest{
				FromUserID: from,
				ToUserID:   to,
				Status:     model.StatusPending,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := tx.FriendRequests().Create(ctx, req); err != nil {
				if store.IsDuplicate(err) {
					return apperr.Conflictf("friend request is already being sent")
				}
				return err
			}
			saved = req
			return nil
		case err != nil:
			return err
		}

		next, err := existing.Status.Resend()
		if err != nil {
			return apperr.Wrap(apperr.Conflict, err, "friend request already accepted")
		}
		n, err := tx.FriendRequests().Reissue(ctx, existing.ID, existing.Status, next, now)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.Conflictf("friend request changed concurrently")
		}
		saved, err = tx.FriendRequests().Get(ctx, existing.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Service) publishRequest(ctx context.Context, req *model.FriendRequest) {
	s.pub.Publish(ctx, req.ToUserID, gateway.EventFriendRequest, req)
	s.pub.Publish(ctx, req.FromUserID, gateway.EventFriendRequestSent, req)
}

func normalizeAction(action string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionAccept:
		return ActionAccept, nil
	case ActionDecline, "reject":
		return ActionDecline, nil
	}
	return "", apperr.Validationf("unknown action %q", action)
}

// RespondToFriendRequest accepts or declines a request addressed to
// responder. Accepting creates the friendship and settles PENDING requests
// in both directions in one transaction; accepting twice is a no-op.
func (s *Service) RespondToFriendRequest(ctx context.Context, requestID int64, responder, action string) (*model.FriendRequest, error) {
	act, err := normalizeAction(action)
	if err != nil {
		return nil, err
	}
	req, err := s.store.FriendRequests().Get(ctx, requestID)
	if err != nil {
		return nil, notFound(err, "friend request %d not found", requestID)
	}
	if req.ToUserID != responder {
		return nil, apperr.Forbiddenf("friend request %d is not addressed to you", requestID)
	}

	if act == ActionDecline {
		return s.declineFriendRequest(ctx, req)
	}
	return s.acceptFriendRequest(ctx, req)
}

func (s *Service) declineFriendRequest(ctx context.Context, req *model.FriendRequest) (*model.FriendRequest, error) {
	if _, err := req.Status.Reject(); err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "request is not pending")
	}
	n, err := s.store.FriendRequests().SetStatus(ctx, req.ID, model.StatusPending, model.StatusRejected)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperr.Validationf("request is no longer pending")
	}
	updated, err := s.store.FriendRequests().Get(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	s.pub.Publish(ctx, updated.FromUserID, gateway.EventFriendResponded, FriendResponse{Request: updated})
	return updated, nil
}

func (s *Service) acceptFriendRequest(ctx context.Context, req *model.FriendRequest) (*model.FriendRequest, error) {
	if _, err := req.Status.Accept(); err != nil {
		return nil, apperr.Wrap(apperr.Validation, err, "request was declined")
	}
	start := time.Now()

	var updated *model.FriendRequest
	err := s.store.Tx(ctx, func(tx *store.Store) error {
		// Flip first so the rows are locked before the status is checked.
		if _, err := tx.FriendRequests().AcceptBetween(ctx, req.FromUserID, req.ToUserID); err != nil {
			return err
		}
		cur, err := tx.FriendRequests().Get(ctx, req.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusAccepted {
			return apperr.Validationf("request is %s", cur.Status)
		}
		if _, err := tx.Friendships().Ensure(ctx, req.FromUserID, req.ToUserID); err != nil {
			return err
		}
		updated = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	payload := FriendResponse{Request: updated, Accepted: true}
	s.pub.Publish(ctx, updated.FromUserID, gateway.EventFriendResponded, payload)
	s.pub.Publish(ctx, updated.ToUserID, gateway.EventFriendResponded, payload)
	s.audit.Log(ctx, audit.Entry{
		UserID:   updated.ToUserID,
		Action:   "friend.accept",
		Target:   fmt.Sprintf("friend_request:%d", updated.ID),
		Detail:   map[string]string{"from": updated.FromUserID},
		Duration: time.Since(start),
	})
	return updated, nil
}

// BulkSendFriendRequests sends a request to every user who is neither a
// friend nor already holding a PENDING request from the sender. Targets are
// processed one by one; on failure the requests created so far are returned
// together with the error.
func (s *Service) BulkSendFriendRequests(ctx context.Context, from string) ([]model.FriendRequest, error) {
	all, err := s.store.Users().ListIDs(ctx, from)
	if err != nil {
		return nil, err
	}
	friends, err := s.store.Friendships().FriendIDs(ctx, from)
	if err != nil {
		return nil, err
	}
	pending, err := s.store.FriendRequests().PendingTargets(ctx, from)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]struct{}, len(friends)+len(pending))
	for _, id := range friends {
		skip[id] = struct{}{}
	}
	for _, id := range pending {
		skip[id] = struct{}{}
	}

	created := make([]model.FriendRequest, 0, len(all))
	for _, to := range all {
		if _, ok := skip[to]; ok {
			continue
		}
		req, err := s.sendRequest(ctx, from, to)
		if err != nil {
			s.logger.Warn("bulk friend request stopped",
				zap.String("from", from),
				zap.String("to", to),
				zap.Int("created", len(created)),
				zap.Error(err))
			return created, err
		}
		s.publishRequest(ctx, req)
		created = append(created, *req)
	}
	return created, nil
}

// ListFriends returns the users the given user is friends with.
func (s *Service) ListFriends(ctx context.Context, userID string) ([]model.User, error) {
	ids, err := s.store.Friendships().FriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.Users().ListByIDs(ctx, ids)
}

// ListRequests returns the user's PENDING requests in one direction.
func (s *Service) ListRequests(ctx context.Context, userID, direction string) ([]model.FriendRequest, error) {
	switch direction {
	case DirectionIncoming:
		return s.store.FriendRequests().ListPending(ctx, userID, true)
	case DirectionOutgoing:
		return s.store.FriendRequests().ListPending(ctx, userID, false)
	}
	return nil, apperr.Validationf("direction must be %q or %q", DirectionIncoming, DirectionOutgoing)
}
