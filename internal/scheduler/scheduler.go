// Package scheduler drives the epoch lifecycle on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/trancheworks/pool-engine/internal/notify"
	"github.com/trancheworks/pool-engine/internal/pool"
	"github.com/trancheworks/pool-engine/internal/recorder"
)

// Scheduler closes and executes pool epochs on a fixed cadence.
type Scheduler struct {
	cron     *cron.Cron
	engine   *pool.Engine
	store    *pool.Store
	rec      recorder.Recorder
	notifier *notify.Notifier
	log      *zap.Logger
}

// New creates a Scheduler over every pool held by the store.
func New(engine *pool.Engine, store *pool.Store, rec recorder.Recorder, notifier *notify.Notifier, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		engine:   engine,
		store:    store,
		rec:      rec,
		notifier: notifier,
		log:      log,
	}
}

// Register wires the close and execute tasks. Both specs use the
// six-field cron format with a leading seconds column.
func (s *Scheduler) Register(closeSpec, executeSpec string) error {
	if _, err := s.cron.AddFunc(closeSpec, s.closeTask); err != nil {
		return fmt.Errorf("register close task: %w", err)
	}
	if _, err := s.cron.AddFunc(executeSpec, s.executeTask); err != nil {
		return fmt.Errorf("register execute task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info("scheduler stopped")
}

// RunCloseNow runs the close task immediately (for manual trigger).
func (s *Scheduler) RunCloseNow() { s.closeTask() }

func (s *Scheduler) closeTask() {
	for _, id := range s.store.PoolIDs() {
		res, err := s.engine.CloseEpoch(id)
		switch {
		case err == nil:
		case errors.Is(err, pool.ErrMinEpochTimeHasNotPassed),
			errors.Is(err, pool.ErrInSubmissionPeriod):
			continue
		case errors.Is(err, pool.ErrNoNAV), errors.Is(err, pool.ErrNAVTooOld):
			s.log.Warn("epoch close skipped, stale valuation",
				zap.Uint64("pool", uint64(id)), zap.Error(err))
			s.notify(s.notifier.NotifyStaleValuation(context.Background(), uint64(id)))
			continue
		default:
			s.log.Error("epoch close failed",
				zap.Uint64("pool", uint64(id)), zap.Error(err))
			s.notify(s.notifier.NotifyCloseFailure(context.Background(), uint64(id), err))
			continue
		}

		s.log.Info("epoch closed",
			zap.Uint64("pool", uint64(id)),
			zap.Uint32("epoch", res.Epoch),
			zap.Bool("executed", res.Executed))
		s.notify(s.notifier.NotifyEpochClosed(context.Background(), uint64(id), res.Epoch, res.Executed))
		s.record(recorder.EpochEvent{
			PoolID:    uint64(id),
			Epoch:     res.Epoch,
			Kind:      recorder.KindClosed,
			Timestamp: time.Now(),
		})
		kind := recorder.KindSubmissionOpened
		if res.Executed {
			kind = recorder.KindExecuted
		}
		s.record(recorder.EpochEvent{
			PoolID:    uint64(id),
			Epoch:     res.Epoch,
			Kind:      kind,
			Timestamp: time.Now(),
		})
	}
}

func (s *Scheduler) executeTask() {
	for _, id := range s.store.PoolIDs() {
		info, ok := s.store.EpochExecution(id)
		if !ok {
			continue
		}
		err := s.engine.ExecuteEpoch(id)
		switch {
		case err == nil:
		case errors.Is(err, pool.ErrNoSolutionAvailable),
			errors.Is(err, pool.ErrChallengeTimeHasNotPassed),
			errors.Is(err, pool.ErrNotInSubmissionPeriod):
			continue
		default:
			s.log.Error("epoch execute failed",
				zap.Uint64("pool", uint64(id)), zap.Error(err))
			continue
		}

		s.log.Info("epoch executed",
			zap.Uint64("pool", uint64(id)),
			zap.Uint32("epoch", info.Epoch))
		s.notify(s.notifier.NotifyEpochExecuted(context.Background(), uint64(id), info.Epoch))
		s.record(recorder.EpochEvent{
			PoolID:    uint64(id),
			Epoch:     info.Epoch,
			Kind:      recorder.KindExecuted,
			Timestamp: time.Now(),
		})
	}
}

func (s *Scheduler) record(ev recorder.EpochEvent) {
	if err := s.rec.Record(ev); err != nil {
		s.log.Error("record epoch event", zap.Error(err))
	}
}

func (s *Scheduler) notify(err error) {
	if err != nil {
		s.log.Warn("notify", zap.Error(err))
	}
}
