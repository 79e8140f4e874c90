// Package session composes the timer, presence registry and message feed
// into one participant's room session. The session is the sole owner of the
// participant identity and the countdown; the registry and feed sit over
// shared store-backed state no single process owns.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/feed"
	"github.com/mcdev12/focushub/go/internal/focustimer"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/presence"
	"github.com/mcdev12/focushub/go/internal/store"
	"github.com/rs/zerolog/log"
)

// ErrEmptyNickname rejects a join with an empty (or all-whitespace) nickname.
var ErrEmptyNickname = errors.New("nickname is empty")

// TimerFunc receives the timer rendering for the presentation layer on every
// tick and transition.
type TimerFunc func(display string, phase focustimer.Phase, remaining int)

// Config carries the presentation callbacks and tuning for one session. All
// callbacks are optional; nil callbacks drop their updates. Callbacks are
// invoked from internal goroutines and must not block for long.
type Config struct {
	// Clock drives the countdown; nil means the real clock.
	Clock clockwork.Clock

	// TimerDuration overrides the 25-minute focus block; zero keeps it.
	TimerDuration time.Duration

	// OnPresence receives the full presence set on every change.
	OnPresence presence.SnapshotFunc

	// OnMessages receives the full message sequence on every append.
	OnMessages feed.SnapshotFunc

	// OnTimer receives the MM:SS display on every tick and transition.
	OnTimer TimerFunc

	// OnNotice receives asynchronous failures: *store.WriteError and
	// *store.SubscriptionError. Notices are informational; the session
	// stays alive.
	OnNotice func(err error)
}

// Session is one participant's live membership in the room.
type Session struct {
	id       string
	nickname string

	registry *presence.Registry
	feed     *feed.Feed
	timer    *focustimer.Countdown

	cancel      context.CancelFunc
	presenceSub store.Subscription
	messageSub  store.Subscription
}

// Join validates the nickname, mints a participant identity, publishes the
// initial "active" record and subscribes to presence and the feed. The
// returned session must be released with Leave.
func Join(ctx context.Context, st store.Store, nickname string, cfg Config) (*Session, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, ErrEmptyNickname
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:       uuid.New().String(),
		nickname: nickname,
		cancel:   cancel,
	}

	s.registry = presence.NewRegistry(st, cfg.OnNotice)
	s.feed = feed.NewFeed(st, s.id, nickname, cfg.OnNotice)
	go s.registry.Run(sctx)
	go s.feed.Run(sctx)

	timerOpts := []focustimer.Option{}
	if cfg.Clock != nil {
		timerOpts = append(timerOpts, focustimer.WithClock(cfg.Clock))
	}
	if cfg.TimerDuration > 0 {
		timerOpts = append(timerOpts, focustimer.WithDuration(cfg.TimerDuration))
	}
	if cfg.OnTimer != nil {
		timerOpts = append(timerOpts, focustimer.WithDisplay(func(display string, phase focustimer.Phase, remaining int) {
			cfg.OnTimer(display, phase, remaining)
		}))
	}
	s.timer = focustimer.New(func(status models.Status) {
		s.registry.Publish(s.id, s.nickname, status)
	}, timerOpts...)

	// The participant enters the room as "active" before observing anyone.
	s.registry.Publish(s.id, nickname, models.StatusActive)

	presenceFn := cfg.OnPresence
	if presenceFn == nil {
		presenceFn = func([]models.PresenceRecord) {}
	}
	presenceSub, err := s.registry.Subscribe(sctx, presenceFn)
	if err != nil {
		cancel()
		return nil, err
	}
	s.presenceSub = presenceSub

	messagesFn := cfg.OnMessages
	if messagesFn == nil {
		messagesFn = func([]models.Message) {}
	}
	messageSub, err := s.feed.Subscribe(sctx, messagesFn)
	if err != nil {
		presenceSub.Unsubscribe()
		cancel()
		return nil, err
	}
	s.messageSub = messageSub

	log.Info().
		Str("participant_id", s.id).
		Str("nickname", nickname).
		Msg("participant joined")
	return s, nil
}

// ID returns the participant identity, immutable for the session's lifetime.
func (s *Session) ID() string { return s.id }

// Nickname returns the self-asserted nickname.
func (s *Session) Nickname() string { return s.nickname }

// SendMessage appends text to the room feed. Validation errors come back
// synchronously; store rejections arrive later on the notice callback.
func (s *Session) SendMessage(text string) error {
	return s.feed.Append(text)
}

// StartFocus starts the countdown and publishes "focused".
func (s *Session) StartFocus() { s.timer.Start() }

// PauseFocus pauses a running countdown and publishes "active".
func (s *Session) PauseFocus() { s.timer.Pause() }

// ResetFocus returns the countdown to idle and publishes "active".
func (s *Session) ResetFocus() { s.timer.Reset() }

// TimerDisplay returns the current MM:SS rendering.
func (s *Session) TimerDisplay() string { return s.timer.Display() }

// TimerPhase returns the countdown phase.
func (s *Session) TimerPhase() focustimer.Phase { return s.timer.Phase() }

// TimerRemaining returns the remaining whole seconds.
func (s *Session) TimerRemaining() int { return s.timer.Remaining() }

// Leave stops the countdown and both subscriptions. No callback fires after
// Leave returns. The presence record is intentionally left behind: the room
// has no coordinator to expire it, so departed participants linger with
// their last status and timestamp.
func (s *Session) Leave() {
	s.timer.Close()
	if s.presenceSub != nil {
		s.presenceSub.Unsubscribe()
	}
	if s.messageSub != nil {
		s.messageSub.Unsubscribe()
	}
	s.cancel()
	log.Info().
		Str("participant_id", s.id).
		Str("nickname", s.nickname).
		Msg("participant left")
}
