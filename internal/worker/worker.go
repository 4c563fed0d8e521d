// Package worker drives sync passes on a timer, on remote change events and
// on local writes.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tokostok/backend/internal/broker"
	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/syncer"
)

// Syncer runs sync passes. repository.Set implements it.
type Syncer interface {
	SyncAll(ctx context.Context, s *syncer.Synchronizer) ([]syncer.Outcome, error)
	SyncKind(ctx context.Context, s *syncer.Synchronizer, kind domain.Kind) (syncer.Outcome, error)
}

type SyncWorker struct {
	set      Syncer
	sync     *syncer.Synchronizer
	interval time.Duration
	deviceID string
	local    store.DB
	logger   *zap.Logger

	group    singleflight.Group
	triggers chan domain.Kind
	wg       sync.WaitGroup
}

type Option func(*SyncWorker)

// WithLocalChanges triggers a pass for a kind after each local commit that
// touched it.
func WithLocalChanges(db store.DB) Option {
	return func(w *SyncWorker) { w.local = db }
}

func WithDeviceID(id string) Option {
	return func(w *SyncWorker) { w.deviceID = id }
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *SyncWorker) { w.logger = logger }
}

func New(set Syncer, s *syncer.Synchronizer, interval time.Duration, opts ...Option) *SyncWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	w := &SyncWorker{
		set:      set,
		sync:     s,
		interval: interval,
		logger:   zap.NewNop(),
		triggers: make(chan domain.Kind, 32),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Trigger queues a pass for kind. Triggers beyond the queue are dropped;
// the next tick covers them.
func (w *SyncWorker) Trigger(kind domain.Kind) {
	select {
	case w.triggers <- kind:
	default:
		w.logger.Debug("sync trigger dropped", zap.Stringer("kind", kind))
	}
}

// HandleVersionChanged is a broker.VersionHandler. Events caused by this
// device's own pushes are ignored.
func (w *SyncWorker) HandleVersionChanged(_ context.Context, event broker.VersionChanged) error {
	if w.deviceID != "" && event.Origin == w.deviceID {
		return nil
	}
	w.Trigger(event.Kind)
	return nil
}

// SyncNow runs a full round. Concurrent callers share one round.
func (w *SyncWorker) SyncNow(ctx context.Context) ([]syncer.Outcome, error) {
	v, err, shared := w.group.Do("all", func() (any, error) {
		return w.set.SyncAll(ctx, w.sync)
	})
	if shared {
		w.logger.Debug("joined running sync round")
	}
	outcomes, _ := v.([]syncer.Outcome)
	return outcomes, err
}

func (w *SyncWorker) syncKind(ctx context.Context, kind domain.Kind) {
	_, err, _ := w.group.Do(kind.Name(), func() (any, error) {
		return w.set.SyncKind(ctx, w.sync, kind)
	})
	w.report(err)
}

// Run syncs everything once, then on every tick and trigger until ctx ends.
// It waits for in-flight passes before returning.
func (w *SyncWorker) Run(ctx context.Context) error {
	defer w.wg.Wait()

	if w.local != nil {
		for _, kind := range domain.Kinds() {
			w.watchLocal(ctx, kind)
		}
	}

	_, err := w.SyncNow(ctx)
	w.report(err)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, err := w.SyncNow(ctx)
			w.report(err)
		case kind := <-w.triggers:
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.syncKind(ctx, kind)
			}()
		}
	}
}

func (w *SyncWorker) watchLocal(ctx context.Context, kind domain.Kind) {
	changes, cancel := w.local.Subscribe(kind)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				w.Trigger(kind)
			}
		}
	}()
}

// report only summarizes; each failed pass was already logged by the
// synchronizer.
func (w *SyncWorker) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	case syncer.Skippable(err):
		w.logger.Debug("sync postponed", zap.Error(err))
	default:
		w.logger.Error("sync failed", zap.Error(err))
	}
}
