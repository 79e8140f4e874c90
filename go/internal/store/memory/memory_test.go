package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/models"
)

func TestUpsertOverwritesRecord(t *testing.T) {
	fake := clockwork.NewFakeClock()
	st := NewWithClock(fake)
	defer st.Close()
	ctx := context.Background()

	snaps := make(chan []models.PresenceRecord, 16)
	sub, err := st.WatchPresence(ctx, func(r []models.PresenceRecord) { snaps <- r })
	if err != nil {
		t.Fatalf("WatchPresence: %v", err)
	}
	defer sub.Unsubscribe()

	if got := recvPresence(t, snaps); len(got) != 0 {
		t.Fatalf("initial snapshot has %d records, want 0", len(got))
	}

	rec := models.PresenceRecord{ParticipantID: "p1", Nickname: "Ava", Status: models.StatusActive}
	if err := st.UpsertPresence(ctx, rec); err != nil {
		t.Fatalf("UpsertPresence: %v", err)
	}
	got := recvPresence(t, snaps)
	if len(got) != 1 || got[0].Status != models.StatusActive {
		t.Fatalf("snapshot = %+v, want one active record", got)
	}
	if !got[0].LastUpdated.Equal(fake.Now()) {
		t.Fatalf("LastUpdated = %v, want clock time %v", got[0].LastUpdated, fake.Now())
	}

	// A second upsert for the same participant replaces, never duplicates.
	fake.Advance(time.Minute)
	rec.Status = models.StatusFocused
	if err := st.UpsertPresence(ctx, rec); err != nil {
		t.Fatalf("UpsertPresence: %v", err)
	}
	got = waitForPresence(t, snaps, func(r []models.PresenceRecord) bool {
		return len(r) == 1 && r[0].Status == models.StatusFocused
	})
	if !got[0].LastUpdated.Equal(fake.Now()) {
		t.Fatalf("LastUpdated not refreshed: %v", got[0].LastUpdated)
	}
}

func TestPresenceSnapshotSortedByParticipant(t *testing.T) {
	st := New()
	defer st.Close()
	ctx := context.Background()

	for _, id := range []string{"p3", "p1", "p2"} {
		rec := models.PresenceRecord{ParticipantID: id, Nickname: id, Status: models.StatusActive}
		if err := st.UpsertPresence(ctx, rec); err != nil {
			t.Fatalf("UpsertPresence(%s): %v", id, err)
		}
	}

	snaps := make(chan []models.PresenceRecord, 16)
	sub, err := st.WatchPresence(ctx, func(r []models.PresenceRecord) { snaps <- r })
	if err != nil {
		t.Fatalf("WatchPresence: %v", err)
	}
	defer sub.Unsubscribe()

	got := recvPresence(t, snaps)
	if len(got) != 3 {
		t.Fatalf("initial snapshot has %d records, want 3", len(got))
	}
	for i, want := range []string{"p1", "p2", "p3"} {
		if got[i].ParticipantID != want {
			t.Fatalf("snapshot[%d] = %s, want %s", i, got[i].ParticipantID, want)
		}
	}
}

func TestAppendAssignsSequence(t *testing.T) {
	fake := clockwork.NewFakeClock()
	st := NewWithClock(fake)
	defer st.Close()
	ctx := context.Background()

	m1, err := st.AppendMessage(ctx, models.Message{ParticipantID: "p1", Nickname: "Ava", Text: "hi"})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if m1.Seq != 1 {
		t.Fatalf("first seq = %d, want 1", m1.Seq)
	}
	if !m1.Timestamp.Equal(fake.Now()) {
		t.Fatalf("timestamp = %v, want clock time %v", m1.Timestamp, fake.Now())
	}

	m2, err := st.AppendMessage(ctx, models.Message{ParticipantID: "p2", Nickname: "Bo", Text: "hey"})
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if m2.Seq != 2 {
		t.Fatalf("second seq = %d, want 2", m2.Seq)
	}
}

func TestWatchMessagesDeliversOrderedLog(t *testing.T) {
	st := New()
	defer st.Close()
	ctx := context.Background()

	snaps := make(chan []models.Message, 16)
	sub, err := st.WatchMessages(ctx, func(m []models.Message) { snaps <- m })
	if err != nil {
		t.Fatalf("WatchMessages: %v", err)
	}
	defer sub.Unsubscribe()

	texts := []string{"one", "two", "three"}
	for _, text := range texts {
		msg := models.Message{ParticipantID: "p1", Nickname: "Ava", Text: text}
		if _, err := st.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("AppendMessage(%s): %v", text, err)
		}
	}

	// Bursts may coalesce into one delivery; only the final state is promised.
	got := waitForMessages(t, snaps, func(m []models.Message) bool { return len(m) == 3 })
	for i, want := range texts {
		if got[i].Text != want {
			t.Fatalf("snapshot[%d].Text = %q, want %q", i, got[i].Text, want)
		}
		if got[i].Seq != uint64(i+1) {
			t.Fatalf("snapshot[%d].Seq = %d, want %d", i, got[i].Seq, i+1)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	st := New()
	defer st.Close()
	ctx := context.Background()

	snaps := make(chan []models.PresenceRecord, 16)
	sub, err := st.WatchPresence(ctx, func(r []models.PresenceRecord) { snaps <- r })
	if err != nil {
		t.Fatalf("WatchPresence: %v", err)
	}
	recvPresence(t, snaps)
	sub.Unsubscribe()

	rec := models.PresenceRecord{ParticipantID: "p1", Nickname: "Ava", Status: models.StatusActive}
	if err := st.UpsertPresence(ctx, rec); err != nil {
		t.Fatalf("UpsertPresence: %v", err)
	}
	select {
	case got := <-snaps:
		t.Fatalf("received snapshot after Unsubscribe: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	st := New()
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	ctx := context.Background()

	rec := models.PresenceRecord{ParticipantID: "p1", Nickname: "Ava", Status: models.StatusActive}
	if err := st.UpsertPresence(ctx, rec); !errors.Is(err, ErrClosed) {
		t.Fatalf("UpsertPresence after Close: %v, want ErrClosed", err)
	}
	if _, err := st.AppendMessage(ctx, models.Message{Text: "hi"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("AppendMessage after Close: %v, want ErrClosed", err)
	}
	if _, err := st.WatchPresence(ctx, func([]models.PresenceRecord) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("WatchPresence after Close: %v, want ErrClosed", err)
	}
	if _, err := st.WatchMessages(ctx, func([]models.Message) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("WatchMessages after Close: %v, want ErrClosed", err)
	}
}

func TestCancelledContextRejectsWrite(t *testing.T) {
	st := New()
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := models.PresenceRecord{ParticipantID: "p1", Nickname: "Ava", Status: models.StatusActive}
	if err := st.UpsertPresence(ctx, rec); !errors.Is(err, context.Canceled) {
		t.Fatalf("UpsertPresence with cancelled ctx: %v, want context.Canceled", err)
	}
}

func recvPresence(t *testing.T, ch <-chan []models.PresenceRecord) []models.PresenceRecord {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for presence snapshot")
		return nil
	}
}

func waitForPresence(t *testing.T, ch <-chan []models.PresenceRecord, ok func([]models.PresenceRecord) bool) []models.PresenceRecord {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching presence snapshot")
			return nil
		}
	}
}

func waitForMessages(t *testing.T, ch <-chan []models.Message, ok func([]models.Message) bool) []models.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if ok(s) {
				return s
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching message snapshot")
			return nil
		}
	}
}
