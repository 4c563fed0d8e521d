package cache

import (
	"context"
	"time"

	"tokostok/backend/internal/domain"
)

// VersionCache holds the per-kind version rows devices poll on every sync
// pass. Set never replaces a cached row whose generation is the same or
// higher, so a slow miss fill cannot overwrite a newer write.
type VersionCache interface {
	Get(ctx context.Context, kind domain.Kind) (domain.DataVersion, bool, error)
	Set(ctx context.Context, version domain.DataVersion, ttl time.Duration) error
	Invalidate(ctx context.Context, kind domain.Kind) error
}

type NoopVersionCache struct{}

func (NoopVersionCache) Get(_ context.Context, _ domain.Kind) (domain.DataVersion, bool, error) {
	return domain.DataVersion{}, false, nil
}

func (NoopVersionCache) Set(_ context.Context, _ domain.DataVersion, _ time.Duration) error {
	return nil
}

func (NoopVersionCache) Invalidate(_ context.Context, _ domain.Kind) error {
	return nil
}
