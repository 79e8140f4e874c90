// Package feed is one participant's handle on the room's append-only chat
// log: it validates and appends that participant's messages and watches the
// full ordered sequence.
package feed

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/store"
	"github.com/rs/zerolog/log"
)

// MaxTextLen is the upper bound on message text length in characters (not
// bytes), enforced client-side.
const MaxTextLen = 500

var (
	// ErrEmptyText rejects an empty message. Validation failures have no
	// side effect; nothing reaches the store.
	ErrEmptyText = errors.New("message text is empty")

	// ErrTextTooLong rejects text over MaxTextLen characters.
	ErrTextTooLong = errors.New("message text exceeds 500 characters")
)

// SnapshotFunc receives the complete message sequence in ascending order on
// every append by any participant.
type SnapshotFunc func(msgs []models.Message)

// ErrorFunc receives asynchronous failures, same contract as presence.ErrorFunc.
type ErrorFunc func(err error)

const (
	appendQueueSize     = 64
	defaultWriteTimeout = 10 * time.Second
)

// Feed appends on behalf of one participant. Appends are serialized through
// a single writer goroutine so two messages from the same participant are
// observed by everyone in send order. The message is never echoed locally
// before the store acknowledges it; the sender sees it in the next delivered
// snapshot, which also makes deduplication unnecessary.
type Feed struct {
	store         store.MessageStore
	participantID string
	nickname      string
	onError       ErrorFunc
	appendCh      chan models.Message
	writeTimeout  time.Duration
}

// NewFeed creates a feed handle for the given participant identity.
func NewFeed(st store.MessageStore, participantID, nickname string, onError ErrorFunc) *Feed {
	return &Feed{
		store:         st,
		participantID: participantID,
		nickname:      nickname,
		onError:       onError,
		appendCh:      make(chan models.Message, appendQueueSize),
		writeTimeout:  defaultWriteTimeout,
	}
}

// Run drains the append queue until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-f.appendCh:
			wctx, cancel := context.WithTimeout(ctx, f.writeTimeout)
			stored, err := f.store.AppendMessage(wctx, msg)
			cancel()
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				log.Error().
					Err(err).
					Str("participant_id", msg.ParticipantID).
					Msg("message append rejected by store")
				f.reportError(&store.WriteError{Op: "message append", Err: err})
				continue
			}
			log.Debug().
				Uint64("seq", stored.Seq).
				Str("participant_id", stored.ParticipantID).
				Msg("message appended")
		}
	}
}

// Append trims and validates text, then enqueues the append. A validation
// error is returned synchronously and nothing is written; store rejections
// surface later on the error callback so the caller can keep its input and
// retry.
func (f *Feed) Append(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxTextLen {
		return ErrTextTooLong
	}

	msg := models.Message{
		ParticipantID: f.participantID,
		Nickname:      f.nickname,
		Text:          text,
	}
	select {
	case f.appendCh <- msg:
	default:
		log.Warn().
			Str("participant_id", f.participantID).
			Msg("message append queue full, dropping send")
		f.reportError(&store.WriteError{Op: "message append", Err: errors.New("append queue full")})
	}
	return nil
}

// Subscribe registers fn for full feed snapshots and routes a terminal watch
// failure to the error callback.
func (f *Feed) Subscribe(ctx context.Context, fn SnapshotFunc) (store.Subscription, error) {
	sub, err := f.store.WatchMessages(ctx, fn)
	if err != nil {
		return nil, err
	}
	go f.watchErrors(ctx, sub)
	return sub, nil
}

func (f *Feed) watchErrors(ctx context.Context, sub store.Subscription) {
	select {
	case <-ctx.Done():
	case err, ok := <-sub.Err():
		if !ok || err == nil {
			return
		}
		log.Error().Err(err).Msg("message watch failed")
		var subErr *store.SubscriptionError
		if !errors.As(err, &subErr) {
			err = &store.SubscriptionError{Source: "messages", Err: err}
		}
		f.reportError(err)
	}
}

func (f *Feed) reportError(err error) {
	if f.onError != nil {
		f.onError(err)
	}
}
