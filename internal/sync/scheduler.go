package sync

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Notifier receives engine events for fan-out (status websocket, UI). The
// payload is a *ProgressReport or *PullReport depending on the event.
type Notifier func(event string, payload interface{})

// Scheduler runs periodic sync passes in agent mode: upload whatever is
// dirty, then pull. A tick that lands while a sync is still running is
// skipped, not queued.
type Scheduler struct {
	engine  *Engine
	spec    string
	log     *zap.Logger
	notify  Notifier
	timeout time.Duration
	cron    *cron.Cron
}

// NewScheduler creates a Scheduler with a cron spec like "@every 30m".
func NewScheduler(engine *Engine, spec string, timeout time.Duration, log *zap.Logger, notify Notifier) *Scheduler {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		engine:  engine,
		spec:    spec,
		log:     log,
		notify:  notify,
		timeout: timeout,
	}
}

// Start begins the periodic schedule.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, s.run); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.String("spec", s.spec))
	return nil
}

// Stop halts the schedule and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	progress, err := s.engine.UploadAll(ctx)
	if errors.Is(err, ErrSyncInFlight) {
		s.log.Debug("tick skipped, sync already running")
		return
	}
	if err != nil {
		s.log.Warn("scheduled upload failed", zap.Error(err))
	}
	if progress != nil {
		s.emit("upload", progress)
	}
	if err != nil {
		return
	}

	pull, err := s.engine.Pull(ctx, PullOptions{})
	if err != nil && !errors.Is(err, ErrUploadsPending) && !errors.Is(err, ErrSyncInFlight) {
		s.log.Warn("scheduled pull failed", zap.Error(err))
	}
	if pull != nil {
		s.emit("pull", pull)
	}
}

func (s *Scheduler) emit(event string, payload interface{}) {
	if s.notify != nil {
		s.notify(event, payload)
	}
}
