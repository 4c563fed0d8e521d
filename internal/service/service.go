package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"tokostok/backend/internal/cache"
	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/metrics"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/telemetry"
)

type deviceContextKey struct{}

func WithDevice(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, deviceID)
}

func DeviceFromContext(ctx context.Context) (string, bool) {
	device, ok := ctx.Value(deviceContextKey{}).(string)
	return device, ok && device != ""
}

// VersionPublisher announces version rewrites to other devices.
type VersionPublisher interface {
	PublishVersionChanged(ctx context.Context, version domain.DataVersion, origin string) error
}

type NoopPublisher struct{}

func (NoopPublisher) PublishVersionChanged(context.Context, domain.DataVersion, string) error {
	return nil
}

// Service is the remote side of the sync contract. Row writes are raw: they
// never touch version rows, which the pushing device writes last.
type Service struct {
	db       store.DB
	versions cache.VersionCache
	cacheTTL time.Duration
	events   VersionPublisher
	logger   *zap.Logger
}

func New(db store.DB, versions cache.VersionCache, cacheTTL time.Duration, events VersionPublisher, logger *zap.Logger) *Service {
	if versions == nil {
		versions = cache.NoopVersionCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if events == nil {
		events = NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       db,
		versions: versions,
		cacheTTL: cacheTTL,
		events:   events,
		logger:   logger,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.View(ctx, func(tx store.Tx) error {
		_, err := tx.Versions().Get(ctx, domain.KindProduct)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})
}

// Version returns the kind's version row, or ErrNotFound when no device has
// pushed it yet.
func (s *Service) Version(ctx context.Context, kind domain.Kind) (domain.DataVersion, error) {
	if !kind.Valid() {
		return domain.DataVersion{}, fmt.Errorf("%w: unknown kind %d", store.ErrInvalidTransaction, int(kind))
	}

	cached, ok, err := s.versions.Get(ctx, kind)
	if err != nil {
		s.logger.Warn("version cache read failed", zap.Stringer("kind", kind), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	var version domain.DataVersion
	err = s.db.View(ctx, func(tx store.Tx) error {
		var err error
		version, err = tx.Versions().Get(ctx, kind)
		return err
	})
	if err != nil {
		return domain.DataVersion{}, err
	}

	if err := s.versions.Set(ctx, version, s.cacheTTL); err != nil {
		s.logger.Warn("version cache write failed", zap.Stringer("kind", kind), zap.Error(err))
	}
	return version, nil
}

// PutVersion overwrites the kind's version row and announces it.
func (s *Service) PutVersion(ctx context.Context, version domain.DataVersion) (domain.DataVersion, error) {
	if !version.ID.Valid() {
		return domain.DataVersion{}, fmt.Errorf("%w: unknown kind %d", store.ErrInvalidTransaction, int(version.ID))
	}
	if version.Timestamp == "" {
		return domain.DataVersion{}, fmt.Errorf("%w: version timestamp is required", store.ErrInvalidTransaction)
	}
	version.Name = version.ID.Name()
	version.Generation = 0

	ctx, span := telemetry.StartSpan(ctx, "service.put_version")
	defer span.End()
	span.SetAttributes(attribute.String("sync.kind", version.ID.Name()))

	var written domain.DataVersion
	err := s.db.Update(ctx, func(tx store.Tx) error {
		var err error
		written, err = tx.Versions().Put(ctx, version)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return domain.DataVersion{}, err
	}
	metrics.VersionWritesTotal.WithLabelValues(version.ID.Name()).Inc()

	if err := s.versions.Set(ctx, written, s.cacheTTL); err != nil {
		s.logger.Warn("version cache write failed", zap.Stringer("kind", version.ID), zap.Error(err))
		_ = s.versions.Invalidate(ctx, version.ID)
	}

	origin, _ := DeviceFromContext(ctx)
	if err := s.events.PublishVersionChanged(ctx, written, origin); err != nil {
		s.logger.Warn("version event not published", zap.Stringer("kind", version.ID), zap.Error(err))
	}

	s.logger.Info("version written",
		zap.Stringer("kind", written.ID),
		zap.String("timestamp", written.Timestamp),
		zap.String("device", origin),
	)
	return written, nil
}

// InsertSaleItems upserts every sale together with its stock row and
// delivery in one transaction. Stock quantities are taken as sent.
func (s *Service) InsertSaleItems(ctx context.Context, items []domain.SaleItems) error {
	for _, item := range items {
		if item.Sale.ID < 1 {
			return fmt.Errorf("%w: sale id is required", store.ErrInvalidTransaction)
		}
		if item.StockItem != nil && item.StockItem.ID < 1 {
			return fmt.Errorf("%w: stock item id is required", store.ErrInvalidTransaction)
		}
		if item.Delivery != nil && item.Delivery.ID < 1 {
			return fmt.Errorf("%w: delivery id is required", store.ErrInvalidTransaction)
		}
	}

	ctx, span := telemetry.StartSpan(ctx, "service.insert_sale_items")
	defer span.End()
	span.SetAttributes(attribute.Int("sale.items", len(items)))

	return s.db.Update(ctx, func(tx store.Tx) error {
		for _, item := range items {
			if _, err := tx.Sales().Insert(ctx, store.WithID(item.Sale.ID), item.Sale); err != nil {
				return fmt.Errorf("sale %d: %w", item.Sale.ID, err)
			}
			if item.StockItem != nil {
				if _, err := tx.StockItems().Insert(ctx, store.WithID(item.StockItem.ID), *item.StockItem); err != nil {
					return fmt.Errorf("stock %d: %w", item.StockItem.ID, err)
				}
			}
			if item.Delivery != nil {
				if _, err := tx.Deliveries().Insert(ctx, store.WithID(item.Delivery.ID), *item.Delivery); err != nil {
					return fmt.Errorf("delivery %d: %w", item.Delivery.ID, err)
				}
			}
		}
		return nil
	})
}
