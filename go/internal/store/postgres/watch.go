package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mcdev12/focushub/go/internal/store"
	"github.com/rs/zerolog/log"
)

// snapshotFunc reads the current full state and returns a closure that
// delivers it, so the query runs outside the subscription's delivery lock.
type snapshotFunc func(ctx context.Context) (func(), error)

// watch LISTENs on channel with a dedicated connection, delivers an initial
// snapshot, then re-reads and redelivers the full state on every NOTIFY.
func (s *Store) watch(ctx context.Context, channel string, snapshot snapshotFunc) (store.Subscription, error) {
	wctx, cancel := context.WithCancel(ctx)

	conn, err := s.pool.Acquire(wctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(wctx, "LISTEN "+channel); err != nil {
		conn.Release()
		cancel()
		return nil, fmt.Errorf("listen on %s: %w", channel, err)
	}

	sub := &subscription{
		cancel: cancel,
		errCh:  make(chan error, 1),
	}

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		defer conn.Release()

		deliverSnapshot := func() bool {
			deliver, err := snapshot(wctx)
			if err != nil {
				if wctx.Err() != nil {
					return false
				}
				log.Error().Err(err).Str("channel", channel).Msg("snapshot query failed")
				sub.fail(&store.SubscriptionError{Source: channel, Err: err})
				return false
			}
			sub.deliver(deliver)
			return true
		}

		if !deliverSnapshot() {
			return
		}

		for {
			if _, err := conn.Conn().WaitForNotification(wctx); err != nil {
				if wctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				log.Error().Err(err).Str("channel", channel).Msg("notification wait failed")
				sub.fail(&store.SubscriptionError{Source: channel, Err: err})
				return
			}
			if !deliverSnapshot() {
				return
			}
		}
	}()

	return sub, nil
}

// subscription implements store.Subscription for LISTEN/NOTIFY watches.
type subscription struct {
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
	errCh  chan error

	deliverMu sync.Mutex
	closed    bool
}

func (sub *subscription) deliver(fn func()) {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()
	if sub.closed {
		return
	}
	fn()
}

func (sub *subscription) fail(err error) {
	select {
	case sub.errCh <- err:
	default:
	}
}

// Unsubscribe implements store.Subscription.
func (sub *subscription) Unsubscribe() {
	sub.once.Do(sub.cancel)

	sub.deliverMu.Lock()
	sub.closed = true
	sub.deliverMu.Unlock()

	sub.wg.Wait()
}

// Err implements store.Subscription.
func (sub *subscription) Err() <-chan error { return sub.errCh }
