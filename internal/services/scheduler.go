package services

import (
	"context"
	"time"

	"admissions-go/internal/config"
	"admissions-go/internal/models"
	"admissions-go/internal/repository"

	"go.uber.org/zap"
)

// Scheduler runs the autonomous call sweep on a ticker. The interval is
// fixed at start; the on/off switch, test type and batch size are read on
// every tick.
type Scheduler struct {
	log          *zap.Logger
	conf         config.Source
	attendees    *repository.AttendeeRepository
	orchestrator *Orchestrator
	interval     time.Duration
}

func NewScheduler(conf config.Source, attendees *repository.AttendeeRepository, orchestrator *Orchestrator, log *zap.Logger) *Scheduler {
	return &Scheduler{
		log:          log.Named("scheduler"),
		conf:         conf,
		attendees:    attendees,
		orchestrator: orchestrator,
		interval:     config.Timeout(conf().Nurture.SweepIntervalSecs, 30*time.Second),
	}
}

// Start runs the sweep in a goroutine until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("Starting auto-call scheduler...", zap.Duration("interval", s.interval))
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.log.Info("Auto-call scheduler stopped")
				return
			case <-ticker.C:
				s.RunSweep(ctx)
			}
		}
	}()
}

// RunSweep auto-calls every eligible attendee once. It returns how many
// calls were placed.
func (s *Scheduler) RunSweep(ctx context.Context) int {
	conf := s.conf().Nurture
	if !conf.AutoCall {
		return 0
	}
	batch := conf.SweepBatch
	if batch <= 0 {
		batch = 20
	}
	pending, err := s.attendees.PendingAutoCalls(ctx, models.ParseTestType(conf.AutoCallTestType), batch)
	if err != nil {
		s.log.Error("Failed to list attendees for auto call", zap.Error(err))
		return 0
	}
	s.log.Debug("Running auto-call sweep", zap.Int("pending", len(pending)))

	placed := 0
	for _, a := range pending {
		res, err := s.orchestrator.AutoCall(ctx, a.ID)
		if err != nil {
			s.log.Warn("Auto call failed", zap.String("attendee_id", a.ID), zap.Error(err))
			continue
		}
		if !res.AlreadyCalled {
			placed++
		}
	}
	return placed
}
