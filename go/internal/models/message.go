package models

import "time"

// Message is one immutable entry in the room's append-only chat feed.
// Seq and Timestamp are assigned by the store: Seq is the monotonic ordering
// key every observer sorts by, Timestamp the store's wall-clock time of the
// write. Ties in wall-clock time are broken by Seq (arrival order).
type Message struct {
	Seq           uint64    `json:"seq"`
	ParticipantID string    `json:"participant_id"`
	Nickname      string    `json:"nickname"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
}
