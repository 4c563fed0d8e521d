package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"tokostok/backend/internal/domain"
)

// Notifier fans change signals out to subscribers of a kind. Backends embed
// it and call Publish after commit.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[domain.Kind]map[int]chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[domain.Kind]map[int]chan struct{})}
}

func (n *Notifier) Subscribe(kind domain.Kind) (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	ch := make(chan struct{}, 1)
	if n.subs[kind] == nil {
		n.subs[kind] = make(map[int]chan struct{})
	}
	n.subs[kind][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs[kind], id)
		})
	}
}

func (n *Notifier) Publish(kinds ...domain.Kind) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, kind := range kinds {
		for _, ch := range n.subs[kind] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// Watch emits query's result now and again after every change to kind,
// until ctx ends. The first value is computed before Watch returns, so a
// failing initial query is reported directly; later failures close the
// channel.
func Watch[V any](ctx context.Context, db DB, kind domain.Kind, logger *zap.Logger, query func(ctx context.Context) (V, error)) (<-chan V, error) {
	changes, cancel := db.Subscribe(kind)

	first, err := query(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan V, 1)
	out <- first

	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
			}

			value, err := query(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("watch query failed", zap.Stringer("kind", kind), zap.Error(err))
				}
				return
			}

			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// First takes exactly one emission from a watch and stops observing.
func First[V any](ctx context.Context, watch func(ctx context.Context) (<-chan V, error)) (V, error) {
	var zero V
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := watch(ctx)
	if err != nil {
		return zero, err
	}
	select {
	case value, ok := <-ch:
		if !ok {
			return zero, context.Canceled
		}
		return value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
