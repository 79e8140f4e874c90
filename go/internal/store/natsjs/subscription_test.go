package natsjs

import (
	"errors"
	"testing"
)

var errTest = errors.New("watch failed")

func TestUnsubscribeDeregistersErrorChannel(t *testing.T) {
	s := &Store{errSubs: make(map[chan error]struct{})}

	sub := newSubscription(s)
	s.errMu.Lock()
	registered := len(s.errSubs)
	s.errMu.Unlock()
	if registered != 1 {
		t.Fatalf("registered error channels = %d, want 1", registered)
	}

	sub.Unsubscribe()

	s.errMu.Lock()
	remaining := len(s.errSubs)
	s.errMu.Unlock()
	if remaining != 0 {
		t.Fatalf("error channels after Unsubscribe = %d, want 0", remaining)
	}

	// A dropped error must not reach a released subscription.
	s.fanOutError(errTest)
	select {
	case err := <-sub.Err():
		t.Fatalf("received %v after Unsubscribe", err)
	default:
	}
}

func TestDeliverStopsAfterUnsubscribe(t *testing.T) {
	s := &Store{errSubs: make(map[chan error]struct{})}

	sub := newSubscription(s)
	delivered := 0
	sub.deliver(func() { delivered++ })
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}

	sub.Unsubscribe()
	sub.deliver(func() { delivered++ })
	if delivered != 1 {
		t.Fatalf("delivered after Unsubscribe = %d, want 1", delivered)
	}
}
