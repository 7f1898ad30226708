// Package audit writes audit log rows asynchronously in batches.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/teamlink/server/middleware"
	"github.com/kasuganosora/teamlink/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	queueSize     = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// Entry holds one audit event to be logged.
type Entry struct {
	TraceID  string // taken from the context when empty
	UserID   string // empty for system actions
	Action   string
	Target   string
	Detail   interface{}
	Error    error
	Duration time.Duration
}

// Service logs audit entries asynchronously in batches. A nil *Service
// discards entries, so callers may treat auditing as optional.
type Service struct {
	db      *gorm.DB
	ch      chan *model.AuditLog
	stopCh  chan struct{}
	stopped atomic.Bool
	once    sync.Once
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// New creates a new audit Service and starts its background worker.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues an audit entry for async DB write. It never blocks.
func (svc *Service) Log(ctx context.Context, e Entry) {
	if svc == nil || svc.stopped.Load() {
		return
	}
	record := &model.AuditLog{
		TraceID:    e.TraceID,
		Action:     e.Action,
		Target:     e.Target,
		DurationMs: int(e.Duration.Milliseconds()),
	}
	if record.TraceID == "" {
		record.TraceID = middleware.TraceIDFromContext(ctx)
	}
	if e.UserID != "" {
		uid := e.UserID
		record.UserID = &uid
	}
	if e.Detail != nil {
		if raw, err := json.Marshal(e.Detail); err == nil {
			record.Detail = datatypes.JSON(raw)
		}
	}
	if e.Error != nil {
		record.Error = e.Error.Error()
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", e.Action))
	}
}

// Stop flushes remaining entries and shuts down the worker. It returns when
// the worker has finished or ctx is done, whichever comes first.
func (svc *Service) Stop(ctx context.Context) {
	if svc == nil {
		return
	}
	svc.once.Do(func() {
		svc.stopped.Store(true)
		close(svc.stopCh)
	})
	done := make(chan struct{})
	go func() {
		svc.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		svc.logger.Warn("audit stop timed out, entries may be lost")
	}
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.CreateInBatches(&batch, batchSize).Error; err != nil {
			svc.logger.Error("audit batch write failed",
				zap.Int("entries", len(batch)),
				zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			// Drain remaining entries.
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
