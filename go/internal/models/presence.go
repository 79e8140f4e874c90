package models

import "time"

// Status is the focus state a participant advertises to the room.
// It is derived from the participant's local countdown, never set directly.
type Status string

const (
	StatusActive  Status = "active"  // timer idle or paused
	StatusFocused Status = "focused" // timer running
	StatusBreak   Status = "break"   // timer expired
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusFocused, StatusBreak:
		return true
	}
	return false
}

// PresenceRecord is the latest known state of one participant. Exactly one
// record exists per participant ID; every publish fully replaces the previous
// record. LastUpdated is assigned by the store at write time, not by the
// client clock.
type PresenceRecord struct {
	ParticipantID string    `json:"participant_id"`
	Nickname      string    `json:"nickname"`
	Status        Status    `json:"status"`
	LastUpdated   time.Time `json:"last_updated"`
}
