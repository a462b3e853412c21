package tracker

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Ropaxyz/CostcoUKTracker/services/settings"
	"github.com/Ropaxyz/CostcoUKTracker/services/tracker/db"
)

const (
	historyRetention = 365 * 24 * time.Hour
	runRetention     = 30 * 24 * time.Hour
	cleanupInterval  = 24 * time.Hour
)

type SchedulerOptions struct {
	// TickInterval sets how often the due check wakes. Products are
	// fetched on their own effective intervals, the tick only sets the
	// granularity. Defaults to one minute.
	TickInterval time.Duration
}

// Scheduler drives the poll loop: wake, find due products, process
// them sequentially with pacing, record the run.
type Scheduler struct {
	service  Service
	settings settings.Service
	tick     time.Duration

	jitter func() float64
	unit   func() float64
	sleep  func(context.Context, time.Duration)

	mu     sync.Mutex
	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(service Service, settingsService settings.Service, options SchedulerOptions) *Scheduler {
	tick := options.TickInterval
	if tick <= 0 {
		tick = time.Minute
	}
	return &Scheduler{
		service:  service,
		settings: settingsService,
		tick:     tick,
		jitter:   func() float64 { return 0.8 + rand.Float64()*0.4 },
		unit:     rand.Float64,
		sleep:    sleepContext,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
	slog.InfoContext(ctx, "scheduler started")
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// RunNow triggers one poll cycle immediately, recording a run even
// when nothing is due.
func (s *Scheduler) RunNow(ctx context.Context) error {
	return s.runCycle(ctx, true)
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	poll := time.NewTicker(s.tick)
	defer poll.Stop()
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			err := s.runCycle(ctx, false)
			if err != nil {
				slog.ErrorContext(ctx, "poll cycle failed", "error", err)
			}
		case <-cleanup.C:
			err := s.service.CleanupHistory(ctx, historyRetention, runRetention)
			if err != nil {
				slog.ErrorContext(ctx, "history cleanup failed", "error", err)
			}
		}
	}
}

// runCycle is the whole run lifecycle. recordIdle forces a run record
// even when no product is due, which manual triggers want and the
// automatic tick does not.
func (s *Scheduler) runCycle(ctx context.Context, recordIdle bool) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, span := tracer.Start(ctx, "runCycle")
	defer span.End()

	config, err := s.settings.Snapshot(ctx)
	if err != nil {
		return err
	}
	// The kill switch is honored here only. A cycle already past this
	// point runs to completion even if the switch flips mid-run.
	if config.KillSwitch {
		slog.WarnContext(ctx, "kill switch active, skipping poll")
		return nil
	}

	products, err := s.service.ListActiveProducts(ctx)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		if recordIdle {
			slog.InfoContext(ctx, "no products to check")
		}
		return nil
	}

	var due []db.Product
	for _, product := range products {
		if dueForPoll(product, config, time.Now(), s.jitter()) {
			due = append(due, product)
		}
	}
	if len(due) == 0 && !recordIdle {
		return nil
	}

	runID, err := s.service.qry.CreateSchedulerRun(ctx, db.CreateSchedulerRunParams{
		RunStartedAt: time.Now().Unix(),
		Status:       db.RUN_STATUS_RUNNING,
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "starting poll cycle",
		"due", len(due), "active", len(products))

	var checked, updated, errorCount int64
	for _, product := range due {
		if ctx.Err() != nil {
			break
		}
		if checked > 0 {
			s.sleep(ctx, pacingDelay(config.SafeMode, s.unit()))
		}
		outcome, err := s.service.ProcessProduct(ctx, product)
		if err != nil {
			errorCount++
			slog.ErrorContext(ctx, "error polling product",
				"item_number", product.ItemNumber, "error", err)
			continue
		}
		checked++
		if outcome.Changed {
			updated++
		}
		if outcome.ErrorSeen {
			errorCount++
		}
	}

	status := db.RUN_STATUS_COMPLETED
	if errorCount > 0 {
		status = db.RUN_STATUS_COMPLETED_WITH_ERRORS
	}
	err = s.service.qry.CompleteSchedulerRun(ctx, db.CompleteSchedulerRunParams{
		RunCompletedAt:  sql.NullInt64{Int64: time.Now().Unix(), Valid: true},
		ProductsChecked: checked,
		ProductsUpdated: updated,
		ErrorsCount:     errorCount,
		Status:          status,
		ID:              runID,
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "poll cycle complete",
		"checked", checked, "updated", updated, "errors", errorCount)
	return nil
}

// dueForPoll decides whether enough time has passed since the last
// check. The jitter factor stretches or shrinks the interval so polls
// never land on an exact clockwork pattern.
func dueForPoll(product db.Product, config settings.Config, now time.Time, jitter float64) bool {
	if !product.LastCheckedAt.Valid {
		return true
	}
	var override int64
	if product.PollIntervalMinutes.Valid {
		override = product.PollIntervalMinutes.Int64
	}
	interval := float64(config.EffectiveIntervalMinutes(override)) * jitter
	elapsed := now.Sub(time.Unix(product.LastCheckedAt.Int64, 0)).Minutes()
	return elapsed >= interval
}

// pacingDelay spreads requests out between products, 2..8s in safe
// mode and 0.5..2s otherwise. unit is a uniform sample from [0,1).
func pacingDelay(safeMode bool, unit float64) time.Duration {
	if safeMode {
		return time.Duration((2 + unit*6) * float64(time.Second))
	}
	return time.Duration((0.5 + unit*1.5) * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
