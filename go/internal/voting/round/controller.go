package round

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/livevote/go/internal/voting/events"
	"github.com/rs/zerolog/log"
)

// ErrStopped is returned when a command is submitted after Run has returned
var ErrStopped = errors.New("round controller stopped")

const commandBufferSize = 256

// Broadcaster delivers an event to every connected viewer
type Broadcaster interface {
	Broadcast(event events.Event)
}

// Broadcasters fans an event out to several sinks, in order
type Broadcasters []Broadcaster

func (bs Broadcasters) Broadcast(event events.Event) {
	for _, b := range bs {
		b.Broadcast(event)
	}
}

// Metrics receives round lifecycle observations
type Metrics interface {
	RoundStarted()
	RoundEnded(winner string)
	RoundReset()
	VoteRecorded(err error)
}

type noopMetrics struct{}

func (noopMetrics) RoundStarted() {}
func (noopMetrics) RoundEnded(string) {}
func (noopMetrics) RoundReset() {}
func (noopMetrics) VoteRecorded(error) {}

// Controller owns the live round. All state changes run on the goroutine
// executing Run, one command at a time, so no lock guards the state.
type Controller struct {
	clock   clockwork.Clock
	bus     Broadcaster
	metrics Metrics

	state State

	// pending end-of-round timer for the current round, if any
	pending *pendingEnd

	cmdCh    chan command
	expiryCh chan uint64
	done     chan struct{}
}

type command struct {
	fn   func()
	done chan struct{}
}

type pendingEnd struct {
	seq    uint64
	timer  clockwork.Timer
	cancel chan struct{}
}

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces the real clock, typically with a clockwork.FakeClock in tests
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithMetrics attaches a metrics recorder
func WithMetrics(m Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// NewController creates an idle controller that emits events on bus
func NewController(bus Broadcaster, opts ...Option) *Controller {
	c := &Controller{
		clock:    clockwork.NewRealClock(),
		bus:      bus,
		metrics:  noopMetrics{},
		state:    newState(),
		cmdCh:    make(chan command, commandBufferSize),
		expiryCh: make(chan uint64, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes commands and timer expiries until ctx is cancelled
func (c *Controller) Run(ctx context.Context) error {
	log.Info().Msg("round controller started")
	defer func() {
		c.cancelPending()
		close(c.done)
		log.Info().Msg("round controller stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-c.cmdCh:
			cmd.fn()
			close(cmd.done)
		case seq := <-c.expiryCh:
			c.expire(seq)
		}
	}
}

// do runs fn on the controller goroutine and waits for it to finish
func (c *Controller) do(ctx context.Context, fn func()) error {
	cmd := command{fn: fn, done: make(chan struct{})}

	select {
	case c.cmdCh <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}

	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		select {
		case <-cmd.done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// StartRound opens a new round, replacing whatever round was running
func (c *Controller) StartRound(ctx context.Context, cmd events.StartRound) error {
	params := ParamsFromCommand(cmd)
	return c.do(ctx, func() {
		c.startRound(params)
	})
}

// Vote records a vote. A non-nil error explains why the vote was ignored;
// callers must not relay it to the voter.
func (c *Controller) Vote(ctx context.Context, voterID, choice string) error {
	var voteErr error
	if err := c.do(ctx, func() {
		voteErr = c.recordVote(voterID, choice)
	}); err != nil {
		return err
	}
	return voteErr
}

// EndRound closes the active round immediately. It is a no-op when idle.
func (c *Controller) EndRound(ctx context.Context) error {
	return c.do(ctx, c.endRound)
}

// Reset forces the idle defaults and broadcasts the full state
func (c *Controller) Reset(ctx context.Context) error {
	return c.do(ctx, c.reset)
}

// Snapshot returns the current state message
func (c *Controller) Snapshot(ctx context.Context) (events.State, error) {
	var snap events.State
	err := c.do(ctx, func() {
		snap = c.state.Snapshot()
	})
	return snap, err
}

// Sync runs fn on the controller goroutine with the current state. Nothing
// is broadcast while fn runs, so a connection registered inside fn sees the
// snapshot before any later event.
func (c *Controller) Sync(ctx context.Context, fn func(events.State)) error {
	return c.do(ctx, func() {
		fn(c.state.Snapshot())
	})
}

func (c *Controller) startRound(p StartParams) {
	c.state.begin(c.clock.Now(), p)
	seq := c.state.Seq

	log.Info().
		Uint64("round_seq", seq).
		Str("choice_id", c.state.ChoiceID).
		Str("label_a", c.state.LabelA).
		Str("label_b", c.state.LabelB).
		Dur("duration", p.Duration).
		Msg("round started")

	c.metrics.RoundStarted()
	c.bus.Broadcast(events.RoundStarted{
		Type:      events.EventTypeRoundStarted,
		ChoiceID:  c.state.ChoiceID,
		LabelA:    c.state.LabelA,
		LabelB:    c.state.LabelB,
		EndTimeMs: c.state.EndTimeMs(),
		A:         c.state.A,
		B:         c.state.B,
	})

	c.scheduleEnd(seq, p.Duration+EndGrace)
}

func (c *Controller) recordVote(voterID, choice string) error {
	normalized, err := c.state.RecordVote(c.clock.Now(), voterID, choice)
	c.metrics.VoteRecorded(err)
	if err != nil {
		log.Debug().
			Err(err).
			Str("voter_id", voterID).
			Str("choice", choice).
			Uint64("round_seq", c.state.Seq).
			Msg("vote ignored")
		return err
	}

	log.Debug().
		Str("voter_id", voterID).
		Str("choice", normalized).
		Uint64("a", c.state.A).
		Uint64("b", c.state.B).
		Msg("vote accepted")

	c.bus.Broadcast(events.VoteUpdate{
		Type:      events.EventTypeVoteUpdate,
		ChoiceID:  c.state.ChoiceID,
		A:         c.state.A,
		B:         c.state.B,
		EndTimeMs: c.state.EndTimeMs(),
	})
	return nil
}

func (c *Controller) endRound() {
	if !c.state.Active {
		return
	}
	c.state.Active = false
	c.cancelPending()

	winner := Winner(c.state.A, c.state.B)

	log.Info().
		Uint64("round_seq", c.state.Seq).
		Str("choice_id", c.state.ChoiceID).
		Uint64("a", c.state.A).
		Uint64("b", c.state.B).
		Int("voters", c.state.Voters()).
		Str("winner", winner).
		Msg("round ended")

	c.metrics.RoundEnded(winner)
	c.bus.Broadcast(events.RoundEnded{
		Type:     events.EventTypeRoundEnded,
		ChoiceID: c.state.ChoiceID,
		A:        c.state.A,
		B:        c.state.B,
		Winner:   winner,
	})
}

func (c *Controller) reset() {
	c.cancelPending()
	c.state.reset()

	log.Info().Uint64("round_seq", c.state.Seq).Msg("round state reset")

	c.metrics.RoundReset()
	c.bus.Broadcast(c.state.Snapshot())
}

// expire handles a fired end-of-round timer. Timers of superseded rounds
// carry an old seq and are ignored.
func (c *Controller) expire(seq uint64) {
	if !c.state.Active || seq != c.state.Seq {
		log.Debug().
			Uint64("timer_seq", seq).
			Uint64("round_seq", c.state.Seq).
			Bool("active", c.state.Active).
			Msg("stale round timer ignored")
		return
	}
	c.endRound()
}

// scheduleEnd arms a one-shot timer that hands seq back to the Run loop
func (c *Controller) scheduleEnd(seq uint64, d time.Duration) {
	c.cancelPending()

	p := &pendingEnd{
		seq:    seq,
		timer:  c.clock.NewTimer(d),
		cancel: make(chan struct{}),
	}
	c.pending = p

	go func(p *pendingEnd) {
		select {
		case <-p.timer.Chan():
			select {
			case c.expiryCh <- p.seq:
			case <-p.cancel:
			case <-c.done:
			}
		case <-p.cancel:
		case <-c.done:
		}
	}(p)

	log.Debug().
		Uint64("round_seq", seq).
		Dur("after", d).
		Msg("scheduled round end check")
}

// cancelPending stops the current round timer, if any
func (c *Controller) cancelPending() {
	if c.pending == nil {
		return
	}
	stopAndDrainTimer(c.pending.timer)
	close(c.pending.cancel)
	c.pending = nil
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
