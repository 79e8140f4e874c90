// Package focustimer holds the per-participant countdown that drives the
// status a participant publishes to the room: focused while the clock runs,
// break once it expires, active otherwise.
package focustimer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focushub/go/internal/models"
)

// DefaultDurationSeconds is the length of one focus block (25 minutes).
const DefaultDurationSeconds = 25 * 60

// Phase is the countdown's lifecycle state.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhasePaused  Phase = "paused"
	PhaseExpired Phase = "expired"
)

// PublishFunc receives the status derived from a transition. It is invoked
// before the transition call returns and must not call back into the
// countdown; enqueue-and-return implementations are expected.
type PublishFunc func(status models.Status)

// DisplayFunc receives the MM:SS rendering of the remaining time on every
// tick and transition. Same re-entrancy rule as PublishFunc.
type DisplayFunc func(display string, phase Phase, remaining int)

// Countdown is a single participant's timer. One tick fires per elapsed
// second while running; ticks are driven by a single goroutine, so no two
// ticks are ever in flight at once. Pause, Reset and Close stop the tick
// loop before they return.
type Countdown struct {
	clock           clockwork.Clock
	publish         PublishFunc
	display         DisplayFunc
	durationSeconds int

	mu        sync.Mutex
	phase     Phase
	remaining int
	cancel    context.CancelFunc
	loopDone  chan struct{}
}

// Option configures a Countdown.
type Option func(*Countdown)

// WithClock substitutes the clock, usually a fake one in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Countdown) { c.clock = clock }
}

// WithDuration overrides the default 25-minute block length.
func WithDuration(d time.Duration) Option {
	return func(c *Countdown) { c.durationSeconds = int(d / time.Second) }
}

// WithDisplay registers a display callback.
func WithDisplay(fn DisplayFunc) Option {
	return func(c *Countdown) { c.display = fn }
}

// New creates an idle countdown at the full duration. publish may be nil.
func New(publish PublishFunc, opts ...Option) *Countdown {
	c := &Countdown{
		clock:           clockwork.NewRealClock(),
		publish:         publish,
		durationSeconds: DefaultDurationSeconds,
		phase:           PhaseIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.durationSeconds <= 0 {
		c.durationSeconds = DefaultDurationSeconds
	}
	c.remaining = c.durationSeconds
	return c
}

// Start moves Idle or Paused to Running and publishes "focused". Calling it
// in any other phase, including Expired, is a no-op; an expired countdown
// must be Reset first.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseIdle && c.phase != PhasePaused {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.phase = PhaseRunning
	c.cancel = cancel
	c.loopDone = done
	go c.run(ctx, done)

	c.publishLocked(models.StatusFocused)
	c.displayLocked()
}

// Pause moves Running to Paused, keeps the remaining time and publishes
// "active". No-op in any other phase.
func (c *Countdown) Pause() {
	c.mu.Lock()
	if c.phase != PhaseRunning {
		c.mu.Unlock()
		return
	}
	c.phase = PhasePaused
	cancel, done := c.cancel, c.loopDone
	c.cancel, c.loopDone = nil, nil

	c.publishLocked(models.StatusActive)
	c.displayLocked()
	c.mu.Unlock()

	stopLoop(cancel, done)
}

// Reset returns to Idle at the full duration from any phase and always
// publishes "active".
func (c *Countdown) Reset() {
	c.mu.Lock()
	c.phase = PhaseIdle
	c.remaining = c.durationSeconds
	cancel, done := c.cancel, c.loopDone
	c.cancel, c.loopDone = nil, nil

	c.publishLocked(models.StatusActive)
	c.displayLocked()
	c.mu.Unlock()

	stopLoop(cancel, done)
}

// Close stops the tick loop without publishing. The countdown is not usable
// afterwards other than reading its state.
func (c *Countdown) Close() {
	c.mu.Lock()
	if c.phase == PhaseRunning {
		c.phase = PhasePaused
	}
	cancel, done := c.cancel, c.loopDone
	c.cancel, c.loopDone = nil, nil
	c.mu.Unlock()

	stopLoop(cancel, done)
}

// Phase returns the current phase.
func (c *Countdown) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Remaining returns the remaining whole seconds.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Display returns the MM:SS rendering of the remaining time.
func (c *Countdown) Display() string {
	return FormatSeconds(c.Remaining())
}

// Status returns the presence status the current phase maps to.
func (c *Countdown) Status() models.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return statusFor(c.phase)
}

func statusFor(p Phase) models.Status {
	switch p {
	case PhaseRunning:
		return models.StatusFocused
	case PhaseExpired:
		return models.StatusBreak
	default:
		return models.StatusActive
	}
}

// FormatSeconds renders whole seconds as MM:SS.
func FormatSeconds(secs int) string {
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// run fires one tick per elapsed second until cancelled or expired.
func (c *Countdown) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		timer := c.clock.NewTimer(time.Second)
		select {
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			return
		case <-timer.Chan():
			if !c.tick() {
				return
			}
		}
	}
}

// tick decrements the remaining time and reports whether the loop should
// keep going. At zero the countdown expires and publishes "break".
func (c *Countdown) tick() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseRunning {
		// A pause or reset won the race; the loop is already being stopped.
		return false
	}

	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.phase = PhaseExpired
		c.publishLocked(models.StatusBreak)
		c.displayLocked()
		return false
	}

	c.displayLocked()
	return true
}

func (c *Countdown) publishLocked(status models.Status) {
	if c.publish != nil {
		c.publish(status)
	}
}

func (c *Countdown) displayLocked() {
	if c.display != nil {
		c.display(FormatSeconds(c.remaining), c.phase, c.remaining)
	}
}

// stopLoop cancels a tick loop and waits for it to exit, so no tick can fire
// after the transition that stopped it returns.
func stopLoop(cancel context.CancelFunc, done chan struct{}) {
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// stopAndDrainTimer safely stops a timer and drains its channel to prevent
// goroutine leaks, per the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
