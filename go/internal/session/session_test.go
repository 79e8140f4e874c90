package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/feed"
	"github.com/mcdev12/focushub/go/internal/focustimer"
	"github.com/mcdev12/focushub/go/internal/models"
	"github.com/mcdev12/focushub/go/internal/store/memory"
)

func TestJoinRejectsEmptyNickname(t *testing.T) {
	st := memory.New()
	defer st.Close()

	for _, nickname := range []string{"", "   ", "\t\n"} {
		if _, err := Join(context.Background(), st, nickname, Config{}); !errors.Is(err, ErrEmptyNickname) {
			t.Fatalf("Join(%q) = %v, want ErrEmptyNickname", nickname, err)
		}
	}
}

func TestJoinPublishesActiveAndMintsIdentity(t *testing.T) {
	st := memory.New()
	defer st.Close()

	snaps := make(chan []models.PresenceRecord, 32)
	ava, err := Join(context.Background(), st, "  Ava  ", Config{
		Clock:      clockwork.NewFakeClock(),
		OnPresence: func(recs []models.PresenceRecord) { snaps <- recs },
	})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer ava.Leave()

	if ava.Nickname() != "Ava" {
		t.Fatalf("nickname = %q, want trimmed %q", ava.Nickname(), "Ava")
	}
	if ava.ID() == "" {
		t.Fatal("participant ID is empty")
	}
	if got := ava.TimerPhase(); got != focustimer.PhaseIdle {
		t.Fatalf("timer phase = %q, want idle", got)
	}
	if got := ava.TimerDisplay(); got != "25:00" {
		t.Fatalf("timer display = %q, want 25:00", got)
	}

	got := waitForPresence(t, snaps, func(recs []models.PresenceRecord) bool {
		return len(recs) == 1 && recs[0].ParticipantID == ava.ID()
	})
	if got[0].Status != models.StatusActive {
		t.Fatalf("initial status = %q, want active", got[0].Status)
	}
	if got[0].Nickname != "Ava" {
		t.Fatalf("stored nickname = %q, want Ava", got[0].Nickname)
	}
}

func TestTwoParticipantsSeeEachOther(t *testing.T) {
	st := memory.New()
	defer st.Close()

	avaSnaps := make(chan []models.PresenceRecord, 32)
	ava, err := Join(context.Background(), st, "Ava", Config{
		Clock:      clockwork.NewFakeClock(),
		OnPresence: func(recs []models.PresenceRecord) { avaSnaps <- recs },
	})
	if err != nil {
		t.Fatalf("Join Ava: %v", err)
	}
	defer ava.Leave()

	boSnaps := make(chan []models.PresenceRecord, 32)
	bo, err := Join(context.Background(), st, "Bo", Config{
		Clock:      clockwork.NewFakeClock(),
		OnPresence: func(recs []models.PresenceRecord) { boSnaps <- recs },
	})
	if err != nil {
		t.Fatalf("Join Bo: %v", err)
	}
	defer bo.Leave()

	bothActive := func(recs []models.PresenceRecord) bool {
		if len(recs) != 2 {
			return false
		}
		return recs[0].Status == models.StatusActive && recs[1].Status == models.StatusActive
	}
	waitForPresence(t, avaSnaps, bothActive)
	waitForPresence(t, boSnaps, bothActive)

	// Ava starting her block flips only her record, and Bo observes it.
	ava.StartFocus()
	waitForPresence(t, boSnaps, func(recs []models.PresenceRecord) bool {
		if len(recs) != 2 {
			return false
		}
		var avaFocused, boActive bool
		for _, rec := range recs {
			switch rec.ParticipantID {
			case ava.ID():
				avaFocused = rec.Status == models.StatusFocused
			case bo.ID():
				boActive = rec.Status == models.StatusActive
			}
		}
		return avaFocused && boActive
	})
}

func TestSendMessageReachesAllParticipants(t *testing.T) {
	st := memory.New()
	defer st.Close()

	avaMsgs := make(chan []models.Message, 32)
	ava, err := Join(context.Background(), st, "Ava", Config{
		Clock:      clockwork.NewFakeClock(),
		OnMessages: func(msgs []models.Message) { avaMsgs <- msgs },
	})
	if err != nil {
		t.Fatalf("Join Ava: %v", err)
	}
	defer ava.Leave()

	boMsgs := make(chan []models.Message, 32)
	bo, err := Join(context.Background(), st, "Bo", Config{
		Clock:      clockwork.NewFakeClock(),
		OnMessages: func(msgs []models.Message) { boMsgs <- msgs },
	})
	if err != nil {
		t.Fatalf("Join Bo: %v", err)
	}
	defer bo.Leave()

	if err := ava.SendMessage("hi Bo"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	check := func(msgs []models.Message) bool {
		return len(msgs) == 1 && msgs[0].Text == "hi Bo" && msgs[0].ParticipantID == ava.ID()
	}
	// The sender sees the message the same way everyone else does: via the
	// store snapshot, never a local echo.
	waitForMessages(t, avaMsgs, check)
	waitForMessages(t, boMsgs, check)
}

func TestSendMessageValidation(t *testing.T) {
	st := memory.New()
	defer st.Close()

	ava, err := Join(context.Background(), st, "Ava", Config{Clock: clockwork.NewFakeClock()})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer ava.Leave()

	if err := ava.SendMessage(""); !errors.Is(err, feed.ErrEmptyText) {
		t.Fatalf("SendMessage(\"\") = %v, want ErrEmptyText", err)
	}
}

func TestTimerControlsDrivePresence(t *testing.T) {
	st := memory.New()
	defer st.Close()

	snaps := make(chan []models.PresenceRecord, 32)
	ava, err := Join(context.Background(), st, "Ava", Config{
		Clock:      clockwork.NewFakeClock(),
		OnPresence: func(recs []models.PresenceRecord) { snaps <- recs },
	})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	defer ava.Leave()

	statusIs := func(want models.Status) func([]models.PresenceRecord) bool {
		return func(recs []models.PresenceRecord) bool {
			return len(recs) == 1 && recs[0].Status == want
		}
	}

	ava.StartFocus()
	if got := ava.TimerPhase(); got != focustimer.PhaseRunning {
		t.Fatalf("phase after start = %q", got)
	}
	waitForPresence(t, snaps, statusIs(models.StatusFocused))

	ava.PauseFocus()
	if got := ava.TimerPhase(); got != focustimer.PhasePaused {
		t.Fatalf("phase after pause = %q", got)
	}
	waitForPresence(t, snaps, statusIs(models.StatusActive))

	ava.ResetFocus()
	if got := ava.TimerRemaining(); got != focustimer.DefaultDurationSeconds {
		t.Fatalf("remaining after reset = %d", got)
	}
}

func TestLeaveStopsCallbacksAndKeepsRecord(t *testing.T) {
	st := memory.New()
	defer st.Close()

	snaps := make(chan []models.PresenceRecord, 32)
	ava, err := Join(context.Background(), st, "Ava", Config{
		Clock:      clockwork.NewFakeClock(),
		OnPresence: func(recs []models.PresenceRecord) { snaps <- recs },
	})
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	waitForPresence(t, snaps, func(recs []models.PresenceRecord) bool { return len(recs) == 1 })

	ava.Leave()
	drainPresence(snaps)

	// A write after Leave must not reach the departed session's callback.
	rec := models.PresenceRecord{ParticipantID: "p-other", Nickname: "Bo", Status: models.StatusActive}
	if err := st.UpsertPresence(context.Background(), rec); err != nil {
		t.Fatalf("UpsertPresence: %v", err)
	}
	select {
	case got := <-snaps:
		t.Fatalf("received snapshot after Leave: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}

	// The departed participant's record lingers: no coordinator exists to
	// expire it.
	check := make(chan []models.PresenceRecord, 8)
	sub, err := st.WatchPresence(context.Background(), func(recs []models.PresenceRecord) { check <- recs })
	if err != nil {
		t.Fatalf("WatchPresence: %v", err)
	}
	defer sub.Unsubscribe()
	got := waitForPresence(t, check, func(recs []models.PresenceRecord) bool { return len(recs) == 2 })
	found := false
	for _, rec := range got {
		if rec.ParticipantID == ava.ID() {
			found = true
		}
	}
	if !found {
		t.Fatal("departed participant's record was removed")
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

func drainPresence(ch <-chan []models.PresenceRecord) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
