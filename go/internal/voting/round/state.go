package round

import (
	"strings"
	"time"

	"github.com/mcdev12/livevote/go/internal/voting/events"
)

const (
	MinDuration     = 1 * time.Second
	MaxDuration     = 60 * time.Second
	DefaultDuration = 10 * time.Second

	// EndGrace is added to the round duration before the deferred end check fires
	EndGrace = 120 * time.Millisecond

	DefaultLabelA = "A"
	DefaultLabelB = "B"
)

// State is the single live round. Only the Controller goroutine touches it.
type State struct {
	Active   bool
	EndTime  time.Time
	ChoiceID string
	LabelA   string
	LabelB   string

	// Seq increases on every started round; deferred end checks compare against it
	Seq uint64

	Tally
}

func newState() State {
	return State{
		LabelA: DefaultLabelA,
		LabelB: DefaultLabelB,
		Tally:  newTally(),
	}
}

// StartParams are the normalized inputs of a round start
type StartParams struct {
	ChoiceID string
	LabelA   string
	LabelB   string
	Duration time.Duration
}

// ParamsFromCommand applies defaults, clamping and case folding to a startRound command
func ParamsFromCommand(cmd events.StartRound) StartParams {
	p := StartParams{
		LabelA:   DefaultLabelA,
		LabelB:   DefaultLabelB,
		Duration: DefaultDuration,
	}
	if cmd.ChoiceID != nil {
		p.ChoiceID = strings.ToUpper(*cmd.ChoiceID)
	}
	if cmd.LabelA != nil {
		p.LabelA = *cmd.LabelA
	}
	if cmd.LabelB != nil {
		p.LabelB = *cmd.LabelB
	}
	if cmd.DurationMs != nil {
		p.Duration = ClampDuration(*cmd.DurationMs)
	}
	return p
}

// ClampDuration converts milliseconds to a duration within [MinDuration, MaxDuration]
func ClampDuration(ms int64) time.Duration {
	switch {
	case ms < MinDuration.Milliseconds():
		return MinDuration
	case ms > MaxDuration.Milliseconds():
		return MaxDuration
	default:
		return time.Duration(ms) * time.Millisecond
	}
}

// begin moves the state into Active for a new round
func (s *State) begin(now time.Time, p StartParams) {
	s.Tally.clear()
	s.ChoiceID = p.ChoiceID
	s.LabelA = p.LabelA
	s.LabelB = p.LabelB
	s.EndTime = now.Add(p.Duration)
	s.Active = true
	s.Seq++
}

// reset returns to idle defaults. Seq is kept so it stays monotonic.
func (s *State) reset() {
	seq := s.Seq
	*s = newState()
	s.Seq = seq
}

// EndTimeMs is the round end as Unix milliseconds, zero when unset
func (s *State) EndTimeMs() int64 {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.UnixMilli()
}

// Snapshot renders the full state message
func (s *State) Snapshot() events.State {
	return events.State{
		Type:        events.EventTypeState,
		RoundActive: s.Active,
		EndTimeMs:   s.EndTimeMs(),
		ChoiceID:    s.ChoiceID,
		LabelA:      s.LabelA,
		LabelB:      s.LabelB,
		A:           s.A,
		B:           s.B,
	}
}
