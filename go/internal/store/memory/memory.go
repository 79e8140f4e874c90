// Package memory implements the store contract in process memory. It backs
// single-process deployments and is the store double every test runs against.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/store"
)

// ErrClosed is returned for writes against a closed store.
var ErrClosed = errors.New("memory store is closed")

// Store keeps presence records and the message log under one mutex and fans
// full snapshots out to watchers. Timestamps come from the injected clock so
// tests can pin them.
type Store struct {
	clock clockwork.Clock

	mu       sync.Mutex
	closed   bool
	presence map[string]models.PresenceRecord
	messages []models.Message
	nextSeq  uint64

	presenceWatchers map[*watcher]struct{}
	messageWatchers  map[*watcher]struct{}
}

// New creates a store on the real clock.
func New() *Store {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock creates a store whose write timestamps come from clock.
func NewWithClock(clock clockwork.Clock) *Store {
	return &Store{
		clock:            clock,
		presence:         make(map[string]models.PresenceRecord),
		presenceWatchers: make(map[*watcher]struct{}),
		messageWatchers:  make(map[*watcher]struct{}),
	}
}

// UpsertPresence implements store.PresenceStore.
func (s *Store) UpsertPresence(ctx context.Context, rec models.PresenceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	rec.LastUpdated = s.clock.Now()
	s.presence[rec.ParticipantID] = rec

	snapshot := s.presenceSnapshotLocked()
	for w := range s.presenceWatchers {
		w.offer(snapshot, nil)
	}
	return nil
}

// WatchPresence implements store.PresenceStore. The initial snapshot is
// delivered before any subsequent change.
func (s *Store) WatchPresence(ctx context.Context, fn func(records []models.PresenceRecord)) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	w := newWatcher(fn, nil, func(w *watcher) {
		s.mu.Lock()
		delete(s.presenceWatchers, w)
		s.mu.Unlock()
	})
	s.presenceWatchers[w] = struct{}{}
	w.offer(s.presenceSnapshotLocked(), nil)
	return w, nil
}

// AppendMessage implements store.MessageStore.
func (s *Store) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.Message{}, ErrClosed
	}

	s.nextSeq++
	msg.Seq = s.nextSeq
	msg.Timestamp = s.clock.Now()
	s.messages = append(s.messages, msg)

	snapshot := s.messageSnapshotLocked()
	for w := range s.messageWatchers {
		w.offer(nil, snapshot)
	}
	return msg, nil
}

// WatchMessages implements store.MessageStore.
func (s *Store) WatchMessages(ctx context.Context, fn func(msgs []models.Message)) (store.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	w := newWatcher(nil, fn, func(w *watcher) {
		s.mu.Lock()
		delete(s.messageWatchers, w)
		s.mu.Unlock()
	})
	s.messageWatchers[w] = struct{}{}
	w.offer(nil, s.messageSnapshotLocked())
	return w, nil
}

// Close stops all watchers and rejects further writes.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	watchers := make([]*watcher, 0, len(s.presenceWatchers)+len(s.messageWatchers))
	for w := range s.presenceWatchers {
		watchers = append(watchers, w)
	}
	for w := range s.messageWatchers {
		watchers = append(watchers, w)
	}
	s.presenceWatchers = make(map[*watcher]struct{})
	s.messageWatchers = make(map[*watcher]struct{})
	s.mu.Unlock()

	for _, w := range watchers {
		w.stop()
	}
	return nil
}

func (s *Store) presenceSnapshotLocked() []models.PresenceRecord {
	records := make([]models.PresenceRecord, 0, len(s.presence))
	for _, rec := range s.presence {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ParticipantID < records[j].ParticipantID
	})
	return records
}

func (s *Store) messageSnapshotLocked() []models.Message {
	msgs := make([]models.Message, len(s.messages))
	copy(msgs, s.messages)
	return msgs
}
