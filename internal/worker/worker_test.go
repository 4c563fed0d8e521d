package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tokostok/backend/internal/broker"
	"tokostok/backend/internal/domain"
	"tokostok/backend/internal/store"
	"tokostok/backend/internal/store/memory"
	"tokostok/backend/internal/syncer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingSyncer struct {
	mu    sync.Mutex
	all   int
	kinds []domain.Kind
	block chan struct{}
}

func (c *countingSyncer) SyncAll(ctx context.Context, _ *syncer.Synchronizer) ([]syncer.Outcome, error) {
	c.mu.Lock()
	c.all++
	block := c.block
	c.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

func (c *countingSyncer) SyncKind(_ context.Context, _ *syncer.Synchronizer, kind domain.Kind) (syncer.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
	return syncer.Outcome{Kind: kind}, nil
}

func (c *countingSyncer) counts() (int, []domain.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.all, append([]domain.Kind(nil), c.kinds...)
}

func runWorker(t *testing.T, w *SyncWorker) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatalf("worker did not stop")
		}
	}
}

func TestRunSyncsAtStartAndOnTicks(t *testing.T) {
	fake := &countingSyncer{}
	stop := runWorker(t, New(fake, syncer.New(nil, 0), 10*time.Millisecond))

	require.Eventually(t, func() bool {
		all, _ := fake.counts()
		return all >= 3
	}, 2*time.Second, 5*time.Millisecond)
	stop()
}

func TestTriggerRunsSingleKind(t *testing.T) {
	fake := &countingSyncer{}
	w := New(fake, syncer.New(nil, 0), time.Hour)
	stop := runWorker(t, w)

	w.Trigger(domain.KindSale)
	require.Eventually(t, func() bool {
		_, kinds := fake.counts()
		return len(kinds) == 1
	}, 2*time.Second, 5*time.Millisecond)
	stop()

	_, kinds := fake.counts()
	assert.Equal(t, []domain.Kind{domain.KindSale}, kinds)
}

func TestOwnVersionEventsAreIgnored(t *testing.T) {
	fake := &countingSyncer{}
	w := New(fake, syncer.New(nil, 0), time.Hour, WithDeviceID("kasir-01"))

	own := broker.NewVersionChanged(domain.NewVersion(domain.KindProduct, "t"), "kasir-01")
	require.NoError(t, w.HandleVersionChanged(context.Background(), own))
	assert.Len(t, w.triggers, 0)

	other := broker.NewVersionChanged(domain.NewVersion(domain.KindProduct, "t"), "gudang-02")
	require.NoError(t, w.HandleVersionChanged(context.Background(), other))
	require.Len(t, w.triggers, 1)
	assert.Equal(t, domain.KindProduct, <-w.triggers)
}

func TestLocalWritesTriggerPass(t *testing.T) {
	db := memory.New()
	defer db.Close()
	fake := &countingSyncer{}
	w := New(fake, syncer.New(nil, 0), time.Hour, WithLocalChanges(db))
	stop := runWorker(t, w)

	require.Eventually(t, func() bool {
		all, _ := fake.counts()
		return all == 1
	}, 2*time.Second, 5*time.Millisecond)

	catalogs := store.NewEntityStore[domain.Catalog](db, domain.KindCatalog, nil)
	_, err := catalogs.Insert(context.Background(), store.AsNew(), domain.Catalog{Title: "Laskar Pelangi"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, kinds := fake.counts()
		return len(kinds) > 0 && kinds[0] == domain.KindCatalog
	}, 2*time.Second, 5*time.Millisecond)
	stop()
}

func TestConcurrentSyncNowSharesRound(t *testing.T) {
	fake := &countingSyncer{block: make(chan struct{})}
	w := New(fake, syncer.New(nil, 0), time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.SyncNow(context.Background())
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool {
		all, _ := fake.counts()
		return all == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(fake.block)
	wg.Wait()

	all, _ := fake.counts()
	assert.Equal(t, 1, all)
}

func TestTriggerDropsWhenQueueFull(t *testing.T) {
	w := New(&countingSyncer{}, syncer.New(nil, 0), time.Hour)
	for i := 0; i < cap(w.triggers)+5; i++ {
		w.Trigger(domain.KindProduct)
	}
	assert.Len(t, w.triggers, cap(w.triggers))
}
