package store

import "fmt"

// WriteError reports a presence upsert or message append the store rejected.
// It reaches the initiating caller asynchronously via its notice callback;
// the session survives and the caller may retry.
type WriteError struct {
	Op  string // "presence upsert" or "message append"
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store write failed (%s): %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SubscriptionError reports the failure of a watch's notification channel.
// The session keeps displaying its last-known state in degraded mode.
type SubscriptionError struct {
	Source string // "presence" or "messages"
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("store subscription failed (%s): %v", e.Source, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
