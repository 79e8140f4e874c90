// Package store defines the contract a backing data service must satisfy for
// the room to work: a keyed container with upsert + notify-on-change for
// presence, and an append-only log with notify-on-insert for messages. Any
// real-time store that can implement these two primitives plugs in here; the
// memory, natsjs and postgres subpackages each provide one.
package store

import (
	"context"

	"github.com/mcdev12/focushub/go/internal/models"
)

// Subscription is the handle returned by a watch. Unsubscribe stops delivery
// and releases the underlying resources; it blocks until any in-flight
// callback has returned, so no callback fires after it returns. It must not
// be called from inside the watch callback.
type Subscription interface {
	Unsubscribe()

	// Err delivers at most one terminal failure of the notification channel
	// itself (connectivity loss and the like). The watch is dead once an
	// error arrives; observers keep their last-known snapshot.
	Err() <-chan error
}

// PresenceStore is the keyed presence container. Each participant owns the
// record under its own ID and fully replaces it on every write.
type PresenceStore interface {
	// UpsertPresence writes rec under rec.ParticipantID, overwriting any
	// prior record. The store assigns LastUpdated; the value on rec is
	// ignored.
	UpsertPresence(ctx context.Context, rec models.PresenceRecord) error

	// WatchPresence invokes fn with the complete current record set, sorted
	// by participant ID, once immediately and then after every change to any
	// record. Snapshots are never partial; intermediate snapshots may be
	// coalesced for slow consumers but are never reordered.
	WatchPresence(ctx context.Context, fn func(records []models.PresenceRecord)) (Subscription, error)
}

// MessageStore is the append-only message log.
type MessageStore interface {
	// AppendMessage appends msg and returns the stored copy with Seq and
	// Timestamp assigned by the store. Text validation is the caller's job.
	AppendMessage(ctx context.Context, msg models.Message) (models.Message, error)

	// WatchMessages invokes fn with the complete message sequence in
	// ascending Seq order, once immediately and then after every append by
	// any participant.
	WatchMessages(ctx context.Context, fn func(msgs []models.Message)) (Subscription, error)
}

// Store is a full backing store for one room.
type Store interface {
	PresenceStore
	MessageStore
	Close() error
}
