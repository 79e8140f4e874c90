package memory

import (
	"sync"

	"github.com/mcdev12/focushub/go/internal/models"
)

// watcher delivers snapshots to one subscriber on its own goroutine. It keeps
// a single pending slot per kind: a snapshot written while the subscriber is
// busy replaces the previous pending one (latest wins), so a slow callback
// never blocks writers and never sees snapshots out of order.
type watcher struct {
	presenceFn func([]models.PresenceRecord)
	messageFn  func([]models.Message)
	remove     func(*watcher)

	mu              sync.Mutex
	pendingPresence []models.PresenceRecord
	pendingMessages []models.Message
	hasPresence     bool
	hasMessages     bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	errc chan error
}

func newWatcher(presenceFn func([]models.PresenceRecord), messageFn func([]models.Message), remove func(*watcher)) *watcher {
	w := &watcher{
		presenceFn: presenceFn,
		messageFn:  messageFn,
		remove:     remove,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		errc:       make(chan error, 1),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *watcher) offer(records []models.PresenceRecord, msgs []models.Message) {
	w.mu.Lock()
	if records != nil {
		w.pendingPresence = records
		w.hasPresence = true
	}
	if msgs != nil {
		w.pendingMessages = msgs
		w.hasMessages = true
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
			w.mu.Lock()
			records, hasRecords := w.pendingPresence, w.hasPresence
			msgs, hasMsgs := w.pendingMessages, w.hasMessages
			w.pendingPresence, w.hasPresence = nil, false
			w.pendingMessages, w.hasMessages = nil, false
			w.mu.Unlock()

			if hasRecords && w.presenceFn != nil {
				w.presenceFn(records)
			}
			if hasMsgs && w.messageFn != nil {
				w.messageFn(msgs)
			}
		}
	}
}

// stop halts delivery and waits for any in-flight callback to return.
func (w *watcher) stop() {
	w.once.Do(func() {
		close(w.done)
	})
	w.wg.Wait()
}

// Unsubscribe implements store.Subscription.
func (w *watcher) Unsubscribe() {
	if w.remove != nil {
		w.remove(w)
	}
	w.stop()
}

// Err implements store.Subscription. The in-process channel cannot fail, so
// the channel never delivers.
func (w *watcher) Err() <-chan error { return w.errc }
