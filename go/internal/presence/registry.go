// Package presence maintains one participant's view of the room's presence
// registry: it publishes that participant's record and watches the merged
// record set of everyone.
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/store"
	"github.com/rs/zerolog/log"
)

// SnapshotFunc receives the complete current presence set, sorted by
// participant ID, on every change to any record.
type SnapshotFunc func(records []models.PresenceRecord)

// ErrorFunc receives asynchronous failures: *store.WriteError for rejected
// publishes, *store.SubscriptionError when the watch channel dies.
type ErrorFunc func(err error)

const (
	writeQueueSize      = 64
	defaultWriteTimeout = 10 * time.Second
)

// Registry serializes presence publishes through a single writer goroutine,
// preserving the order transitions occur in, and fans watch snapshots through
// to the subscriber. Publish is fire-and-forget: failures surface on the
// error callback, never on the caller.
type Registry struct {
	store        store.PresenceStore
	onError      ErrorFunc
	writeCh      chan models.PresenceRecord
	writeTimeout time.Duration
}

// NewRegistry creates a registry over st. onError may be nil, in which case
// failures are only logged.
func NewRegistry(st store.PresenceStore, onError ErrorFunc) *Registry {
	return &Registry{
		store:        st,
		onError:      onError,
		writeCh:      make(chan models.PresenceRecord, writeQueueSize),
		writeTimeout: defaultWriteTimeout,
	}
}

// Run drains the write queue until ctx is cancelled. Callers run it on its
// own goroutine; publishes enqueued before Run starts are not lost.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-r.writeCh:
			wctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
			err := r.store.UpsertPresence(wctx, rec)
			cancel()
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().
					Err(err).
					Str("participant_id", rec.ParticipantID).
					Str("status", string(rec.Status)).
					Msg("presence upsert rejected by store")
				r.reportError(&store.WriteError{Op: "presence upsert", Err: err})
			}
		}
	}
}

// Publish enqueues a full replacement of the participant's record and returns
// immediately. The store assigns the record's timestamp at write time.
func (r *Registry) Publish(participantID, nickname string, status models.Status) {
	rec := models.PresenceRecord{
		ParticipantID: participantID,
		Nickname:      nickname,
		Status:        status,
	}
	select {
	case r.writeCh <- rec:
	default:
		log.Warn().
			Str("participant_id", participantID).
			Msg("presence write queue full, dropping publish")
		r.reportError(&store.WriteError{Op: "presence upsert", Err: errors.New("write queue full")})
	}
}

// Subscribe registers fn for full presence snapshots and routes a terminal
// watch failure to the error callback. Unsubscribing the returned handle
// stops delivery immediately.
func (r *Registry) Subscribe(ctx context.Context, fn SnapshotFunc) (store.Subscription, error) {
	sub, err := r.store.WatchPresence(ctx, fn)
	if err != nil {
		return nil, err
	}
	go r.watchErrors(ctx, sub)
	return sub, nil
}

func (r *Registry) watchErrors(ctx context.Context, sub store.Subscription) {
	select {
	case <-ctx.Done():
	case err, ok := <-sub.Err():
		if !ok || err == nil {
			return
		}
		log.Error().Err(err).Msg("presence watch failed")
		var subErr *store.SubscriptionError
		if !errors.As(err, &subErr) {
			err = &store.SubscriptionError{Source: "presence", Err: err}
		}
		r.reportError(err)
	}
}

func (r *Registry) reportError(err error) {
	if r.onError != nil {
		r.onError(err)
	}
}
