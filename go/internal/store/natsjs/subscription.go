package natsjs

import "sync"

// subscription implements store.Subscription for JetStream watches. Callbacks
// run under deliverMu, so Unsubscribe (which takes the same lock) cannot
// return while a callback is in flight.
type subscription struct {
	store  *Store
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	errCh  chan error
	onStop func()

	deliverMu sync.Mutex
	closed    bool
}

func newSubscription(s *Store) *subscription {
	sub := &subscription{
		store: s,
		done:  make(chan struct{}),
		errCh: make(chan error, 1),
	}
	s.addErrSub(sub.errCh)
	return sub
}

// deliver invokes fn unless the subscription is already closed.
func (sub *subscription) deliver(fn func()) {
	sub.deliverMu.Lock()
	defer sub.deliverMu.Unlock()
	if sub.closed {
		return
	}
	fn()
}

// fail surfaces a terminal watch failure, once.
func (sub *subscription) fail(err error) {
	select {
	case sub.errCh <- err:
	default:
	}
}

// Unsubscribe implements store.Subscription.
func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.done)
		if sub.onStop != nil {
			sub.onStop()
		}
	})

	sub.deliverMu.Lock()
	sub.closed = true
	sub.deliverMu.Unlock()

	sub.wg.Wait()
	sub.store.removeErrSub(sub.errCh)
}

// Err implements store.Subscription.
func (sub *subscription) Err() <-chan error { return sub.errCh }
