// Package syncer reconciles one entity kind at a time between the local
// store and the remote backend, last version timestamp wins.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/metrics"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/telemetry"
	"tokostok/backend/internal/xid"
)

// ErrRemote marks a pass that failed on the remote side. Such passes are
// retried on the next trigger.
var ErrRemote = errors.New("remote sync failed")

// Skippable reports whether err only postpones convergence: the remote was
// unreachable or a local write raced the pull.
func Skippable(err error) bool {
	return errors.Is(err, ErrRemote) || errors.Is(err, store.ErrVersionConflict)
}

type Synchronizer struct {
	logger      *zap.Logger
	callTimeout time.Duration
}

// New returns a Synchronizer that bounds each remote read by callTimeout
// (zero leaves them bounded only by the pass context).
func New(logger *zap.Logger, callTimeout time.Duration) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{logger: logger, callTimeout: callTimeout}
}

type Outcome struct {
	PassID    string
	Kind      domain.Kind
	Direction Direction
	Deleted   int
	Saved     int
}

// Run performs one pass for kind: read both versions, stop if converged,
// otherwise read both snapshots, plan, and apply the plan to the older side.
func Run[T domain.Entity[T]](ctx context.Context, s *Synchronizer, kind domain.Kind, local Endpoint[T], remote Endpoint[T]) (Outcome, error) {
	out := Outcome{PassID: xid.New("sync"), Kind: kind}
	logger := s.logger.With(zap.String("pass_id", out.PassID), zap.Stringer("kind", kind))

	ctx, span := telemetry.StartSpan(ctx, "sync."+strings.ToLower(kind.Name()))
	defer span.End()
	span.SetAttributes(
		attribute.String("sync.pass_id", out.PassID),
		attribute.String("sync.kind", kind.Name()),
	)

	start := time.Now()
	defer func() {
		metrics.SyncPassDuration.WithLabelValues(kind.Name()).Observe(time.Since(start).Seconds())
	}()

	var localSide, remoteSide Side[T]

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		version, ok, err := local.Version(gctx)
		if err != nil {
			return fmt.Errorf("read local %s version: %w", kind, err)
		}
		localSide.Version, localSide.Present = version, ok
		return nil
	})
	g.Go(func() error {
		return s.remote(gctx, func(ctx context.Context) error {
			version, ok, err := remote.Version(ctx)
			if err != nil {
				return fmt.Errorf("read remote %s version: %w", kind, err)
			}
			remoteSide.Version, remoteSide.Present = version, ok
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return out, s.fail(span, logger, kind, err)
	}

	out.Direction = Decide(localSide.Version, localSide.Present, remoteSide.Version, remoteSide.Present)
	span.SetAttributes(attribute.String("sync.direction", out.Direction.String()))
	if out.Direction == DirectionNone {
		metrics.SyncPassesTotal.WithLabelValues(kind.Name(), out.Direction.String()).Inc()
		logger.Debug("sync converged", zap.String("timestamp", localSide.Version.Timestamp))
		return out, nil
	}

	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := local.Snapshot(gctx)
		if err != nil {
			return fmt.Errorf("read local %s rows: %w", kind, err)
		}
		localSide.Rows = rows
		return nil
	})
	g.Go(func() error {
		return s.remote(gctx, func(ctx context.Context) error {
			rows, err := remote.Snapshot(ctx)
			if err != nil {
				return fmt.Errorf("read remote %s rows: %w", kind, err)
			}
			remoteSide.Rows = rows
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return out, s.fail(span, logger, kind, err)
	}

	plan := Reconcile(localSide, remoteSide)
	out.Direction = plan.Direction

	var err error
	switch plan.Direction {
	case DirectionPush:
		if err = remote.Apply(ctx, plan); err != nil {
			err = fmt.Errorf("%w: push %s: %w", ErrRemote, kind, err)
		}
	case DirectionPull:
		if err = local.Apply(ctx, plan); err != nil {
			err = fmt.Errorf("pull %s: %w", kind, err)
		}
	}
	if err != nil {
		return out, s.fail(span, logger, kind, err)
	}

	out.Deleted, out.Saved = len(plan.DeleteIDs), len(plan.Save)
	metrics.SyncPassesTotal.WithLabelValues(kind.Name(), plan.Direction.String()).Inc()
	metrics.SyncRowsTotal.WithLabelValues(kind.Name(), "delete").Add(float64(out.Deleted))
	metrics.SyncRowsTotal.WithLabelValues(kind.Name(), "save").Add(float64(out.Saved))
	logger.Info("sync applied",
		zap.Stringer("direction", plan.Direction),
		zap.Int("deleted", out.Deleted),
		zap.Int("saved", out.Saved),
		zap.String("version", plan.Version.Timestamp),
	)
	return out, nil
}

func (s *Synchronizer) remote(ctx context.Context, call func(ctx context.Context) error) error {
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	if err := call(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRemote, err)
	}
	return nil
}

func (s *Synchronizer) fail(span trace.Span, logger *zap.Logger, kind domain.Kind, err error) error {
	reason := "local"
	switch {
	case errors.Is(err, ErrRemote):
		reason = "remote"
	case errors.Is(err, store.ErrVersionConflict):
		reason = "conflict"
	}
	metrics.SyncFailuresTotal.WithLabelValues(kind.Name(), reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)

	if Skippable(err) {
		logger.Warn("sync pass skipped", zap.String("reason", reason), zap.Error(err))
	} else {
		logger.Error("sync pass failed", zap.Error(err))
	}
	return err
}
