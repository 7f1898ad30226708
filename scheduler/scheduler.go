package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFn is the function signature for scheduled tasks. The context is
// cancelled when the task is removed, the scheduler stops, or the run
// exceeds its timeout.
type TaskFn func(ctx context.Context)

// Scheduler manages named periodic tasks. Runs of one task never overlap:
// each task runs on its own goroutine and ticks that arrive while a run is in
// progress are dropped.
type Scheduler struct {
	mu      sync.Mutex
	tickers map[string]*tickerEntry
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

type tickerEntry struct {
	name     string
	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
	trigger  chan struct{}

	mu      sync.Mutex
	lastRun time.Time
	runs    int64
	running bool
}

// TaskInfo describes a registered task.
type TaskInfo struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	LastRun  time.Time     `json:"last_run"`
	Runs     int64         `json:"runs"`
	Running  bool          `json:"running"`
}

type tickerOptions struct {
	immediate bool
	timeout   time.Duration
}

// Option configures AddTicker.
type Option func(*tickerOptions)

// Immediately runs the task once right after registration, before the first tick.
func Immediately() Option {
	return func(o *tickerOptions) { o.immediate = true }
}

// WithTimeout bounds every run. The default is one interval.
func WithTimeout(d time.Duration) Option {
	return func(o *tickerOptions) { o.timeout = d }
}

// New creates a new Scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tickers: make(map[string]*tickerEntry),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddTicker registers a task to run on a fixed interval.
// If a task with the same name exists, it is replaced.
func (s *Scheduler) AddTicker(name string, interval time.Duration, fn TaskFn, opts ...Option) {
	o := tickerOptions{timeout: interval}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tickers[name]; ok {
		close(old.stopCh)
		delete(s.tickers, name)
	}

	entry := &tickerEntry{
		name:     name,
		interval: interval,
		ticker:   time.NewTicker(interval),
		stopCh:   make(chan struct{}),
		trigger:  make(chan struct{}, 1),
	}
	s.tickers[name] = entry

	go s.loop(entry, fn, o)
	s.logger.Info("scheduler task registered",
		zap.String("name", name),
		zap.Duration("interval", interval),
		zap.Bool("immediate", o.immediate))
}

func (s *Scheduler) loop(e *tickerEntry, fn TaskFn, o tickerOptions) {
	defer e.ticker.Stop()

	// Cancelled when the entry is removed or the scheduler stops.
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go func() {
		select {
		case <-e.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if o.immediate {
		s.run(ctx, e, fn, o.timeout)
	}
	for {
		select {
		case <-e.ticker.C:
		case <-e.trigger:
		case <-ctx.Done():
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.run(ctx, e, fn, o.timeout)
	}
}

func (s *Scheduler) run(ctx context.Context, e *tickerEntry, fn TaskFn, timeout time.Duration) {
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler task panicked",
				zap.String("task", e.name),
				zap.Any("recover", r))
		}
		e.mu.Lock()
		e.running = false
		e.lastRun = time.Now()
		e.runs++
		e.mu.Unlock()
	}()
	fn(runCtx)
}

// Trigger asks the named task to run as soon as its current run, if any,
// finishes. It reports false if no such task exists.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	entry, ok := s.tickers[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case entry.trigger <- struct{}{}:
	default: // a run is already pending
	}
	return true
}

// Remove stops and removes a task by name. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tickers[name]; ok {
		close(entry.stopCh)
		delete(s.tickers, name)
		s.logger.Info("scheduler task removed", zap.String("name", name))
	}
}

// Stop stops all tasks and cancels runs in progress.
func (s *Scheduler) Stop() {
	s.cancel()
}

// ListTickers returns the names of all registered tasks, sorted.
func (s *Scheduler) ListTickers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tickers))
	for name := range s.tickers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tasks returns a snapshot of every registered task, sorted by name.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	entries := make([]*tickerEntry, 0, len(s.tickers))
	for _, e := range s.tickers {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]TaskInfo, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, TaskInfo{
			Name:     e.name,
			Interval: e.interval,
			LastRun:  e.lastRun,
			Runs:     e.runs,
			Running:  e.running,
		})
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
