// Package sweeper periodically retires tournaments whose start date has
// passed and tells their creators.
package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/teamlink/server/audit"
	"github.com/kasuganosora/teamlink/server/config"
	"github.com/kasuganosora/teamlink/server/gateway"
	"github.com/kasuganosora/teamlink/server/model"
	"github.com/kasuganosora/teamlink/server/scheduler"
	"github.com/kasuganosora/teamlink/server/store"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// TaskName is the scheduler task the sweeper registers.
const TaskName = "tournament_expiry"

var errSkipped = errors.New("tournament no longer expired")

// Publisher pushes an event to every live connection of a user.
type Publisher interface {
	Publish(ctx context.Context, userID, event string, payload interface{})
}

// Result summarises one sweep.
type Result struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Deleted is the payload of tournament:deleted.
type Deleted struct {
	TournamentID int64     `json:"tournament_id"`
	Title        string    `json:"title"`
	StartDate    time.Time `json:"start_date"`
	Teams        int64     `json:"teams"`
	Notification int64     `json:"notification_id"`
}

type Sweeper struct {
	store  *store.Store
	sched  *scheduler.Scheduler
	pub    Publisher
	audit  *audit.Service
	cfg    config.SweeperConfig
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func New(st *store.Store, sched *scheduler.Scheduler, pub Publisher, auditSvc *audit.Service,
	cfg config.SweeperConfig, logger *zap.Logger, opts ...Option) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	s := &Sweeper{
		store:  st,
		sched:  sched,
		pub:    pub,
		audit:  auditSvc,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start registers the periodic sweep; the first run happens immediately.
func (s *Sweeper) Start() {
	s.sched.AddTicker(TaskName, s.cfg.Interval, func(ctx context.Context) {
		s.RunOnce(ctx)
	}, scheduler.Immediately())
}

// Trigger asks for a sweep outside the regular schedule. It reports false
// when the sweeper is not running.
func (s *Sweeper) Trigger() bool {
	return s.sched.Trigger(TaskName)
}

// Stop removes the periodic sweep. It is safe to call when Start was not.
func (s *Sweeper) Stop() {
	s.sched.Remove(TaskName)
}

// RunOnce deletes up to one batch of expired tournaments. A failure on one
// tournament is logged and counted; the rest of the batch still runs.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	now := s.now().UTC()
	var res Result

	expired, err := s.store.Tournaments().ListExpired(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("list expired tournaments", zap.Error(err))
		return res
	}
	res.Scanned = len(expired)

	for i := range expired {
		if ctx.Err() != nil {
			s.logger.Warn("tournament sweep interrupted",
				zap.Int("remaining", len(expired)-i),
				zap.Error(ctx.Err()))
			break
		}
		deleted, err := s.retire(ctx, &expired[i], now)
		switch {
		case err != nil:
			res.Failed++
			s.logger.Error("retire tournament",
				zap.Int64("tournament_id", expired[i].ID),
				zap.Error(err))
		case deleted:
			res.Deleted++
		}
	}

	if res.Scanned > 0 {
		s.logger.Info("tournament sweep finished",
			zap.Int("scanned", res.Scanned),
			zap.Int("deleted", res.Deleted),
			zap.Int("failed", res.Failed))
	}
	return res
}

// retire removes one tournament and notifies its creator. It reports false
// when the tournament was already gone or no longer expired.
func (s *Sweeper) retire(ctx context.Context, t *model.Tournament, now time.Time) (bool, error) {
	start := time.Now()
	payload := Deleted{TournamentID: t.ID, Title: t.Title, StartDate: t.StartDate}

	err := s.store.Tx(ctx, func(tx *store.Store) error {
		teams, err := tx.Tournaments().DeleteRegistrations(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("delete registrations: %w", err)
		}
		n, err := tx.Tournaments().DeleteExpired(ctx, t.ID, now)
		if err != nil {
			return fmt.Errorf("delete tournament: %w", err)
		}
		if n == 0 {
			return errSkipped
		}
		payload.Teams = teams

		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		note := &model.Notification{
			UserID:  t.CreatorID,
			Type:    model.NotificationTournamentDeleted,
			Title:   "Tournament removed",
			Message: fmt.Sprintf("Your tournament %q was removed because its start date has passed.", t.Title),
			Payload: datatypes.JSON(raw),
		}
		if err := tx.Notifications().Create(ctx, note); err != nil {
			return fmt.Errorf("create notification: %w", err)
		}
		payload.Notification = note.ID
		return nil
	})
	if errors.Is(err, errSkipped) {
		return false, nil
	}
	if err != nil {
		s.audit.Log(ctx, audit.Entry{
			Action:   "tournament.expire",
			Target:   fmt.Sprintf("tournament:%d", t.ID),
			Error:    err,
			Duration: time.Since(start),
		})
		return false, err
	}

	s.pub.Publish(ctx, t.CreatorID, gateway.EventTournamentDeleted, payload)
	s.audit.Log(ctx, audit.Entry{
		Action:   "tournament.expire",
		Target:   fmt.Sprintf("tournament:%d", t.ID),
		Detail:   payload,
		Duration: time.Since(start),
	})
	return true, nil
}
