package gateway

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/focushub/go/internal/focustimer"
	"github.com/mcdev12/focushub/go/internal/models"
)

// Event is the envelope for every frame the gateway pushes to a client.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventType identifies the payload carried by an Event.
type EventType string

const (
	EventTypeJoined   EventType = "joined"
	EventTypePresence EventType = "presence"
	EventTypeFeed     EventType = "feed"
	EventTypeTimer    EventType = "timer"
	EventTypeNotice   EventType = "notice"
	EventTypeError    EventType = "error"
)

// JoinedPayload acknowledges a join and hands the client its identity.
type JoinedPayload struct {
	ParticipantID string `json:"participant_id"`
	Nickname      string `json:"nickname"`
	TimerDisplay  string `json:"timer_display"`
}

// PresencePayload carries the complete current presence set.
type PresencePayload struct {
	Records []models.PresenceRecord `json:"records"`
}

// FeedPayload carries the complete ordered message sequence.
type FeedPayload struct {
	Messages []models.Message `json:"messages"`
}

// TimerPayload carries the client's own timer rendering.
type TimerPayload struct {
	Display   string           `json:"display"`
	Phase     focustimer.Phase `json:"phase"`
	Remaining int              `json:"remaining_seconds"`
}

// NoticePayload reports a non-fatal store failure: a rejected write or a dead
// watch. The client should show a degraded-mode indicator, not disconnect.
type NoticePayload struct {
	Kind   string `json:"kind"` // "write" or "subscription"
	Detail string `json:"detail"`
}

// ErrorPayload reports a rejected client command, e.g. message validation.
type ErrorPayload struct {
	Detail string `json:"detail"`
}

// Command is a frame received from a client.
type Command struct {
	Type     CommandType `json:"type"`
	Nickname string      `json:"nickname,omitempty"`
	Text     string      `json:"text,omitempty"`
}

// CommandType identifies a client command.
type CommandType string

const (
	CommandJoin    CommandType = "join"
	CommandMessage CommandType = "message"
	CommandStart   CommandType = "start"
	CommandPause   CommandType = "pause"
	CommandReset   CommandType = "reset"
)

func newEvent(t EventType, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{Type: t, Timestamp: time.Now(), Data: data}, nil
}
