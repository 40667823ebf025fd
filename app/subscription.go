package app

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/CrestNiraj12/rantfeed/domain"
)

// fetchFunc loads a snapshot and a fingerprint identifying its content.
type fetchFunc[T any] func(ctx context.Context) (T, string, error)

type snapshot[T any] struct {
	val T
	err error
}

// Subscription is a live sequence of snapshots produced by one goroutine.
// The first snapshot is produced immediately, later ones only when the
// fingerprint changes. A fetch error is delivered once and ends the
// subscription.
type Subscription[T any] struct {
	ch     chan snapshot[T]
	done   chan struct{}
	cancel context.CancelFunc
}

func newSubscription[T any](ctx context.Context, fetch fetchFunc[T], wake func(context.Context) <-chan struct{}, poll time.Duration) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		ch:     make(chan snapshot[T]),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go s.run(ctx, fetch, wake, poll)
	return s
}

func (s *Subscription[T]) run(ctx context.Context, fetch fetchFunc[T], wake func(context.Context) <-chan struct{}, poll time.Duration) {
	defer close(s.done)

	var changes <-chan struct{}
	if wake != nil {
		changes = wake(ctx)
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var last string
	first := true
	for {
		val, fingerprint, err := fetch(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.deliver(ctx, snapshot[T]{err: err})
			}
			return
		}
		if first || fingerprint != last {
			if !s.deliver(ctx, snapshot[T]{val: val}) {
				return
			}
			first, last = false, fingerprint
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-changes:
			if !ok {
				changes = nil
			}
		}
	}
}

func (s *Subscription[T]) deliver(ctx context.Context, snap snapshot[T]) bool {
	select {
	case s.ch <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

// Next blocks until the next snapshot. It returns domain.ErrSubscriptionClosed
// once the subscription ended.
func (s *Subscription[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case snap := <-s.ch:
		return snap.val, snap.err
	case <-s.done:
		return zero, domain.ErrSubscriptionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// All iterates snapshots until the subscription ends, ctx is done, or the
// loop breaks. A terminal error is yielded once as the final element.
func (s *Subscription[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			val, err := s.Next(ctx)
			if errors.Is(err, domain.ErrSubscriptionClosed) {
				return
			}
			if !yield(val, err) || err != nil {
				return
			}
		}
	}
}

// Close stops the producer and waits for it to exit. It is safe to call
// more than once.
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}
