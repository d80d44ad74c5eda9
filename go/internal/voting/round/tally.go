package round

import (
	"errors"
	"strings"
	"time"

	"github.com/mcdev12/livevote/go/internal/voting/events"
)

// Vote rejection reasons. None of them is ever reported back to the voter.
var (
	ErrRoundInactive = errors.New("round is not active")
	ErrVotingClosed  = errors.New("voting window has closed")
	ErrMissingVoter  = errors.New("voter id is required")
	ErrDuplicateVote = errors.New("voter already voted this round")
	ErrInvalidChoice = errors.New("choice must be A or B")
)

// Tally holds the two counters and the voters seen this round
type Tally struct {
	A uint64
	B uint64

	voted map[string]struct{}
}

func newTally() Tally {
	return Tally{voted: make(map[string]struct{})}
}

func (t *Tally) clear() {
	t.A = 0
	t.B = 0
	t.voted = make(map[string]struct{})
}

// HasVoted reports whether voterID already voted this round
func (t *Tally) HasVoted(voterID string) bool {
	_, ok := t.voted[voterID]
	return ok
}

// Voters is the number of distinct voters accepted this round
func (t *Tally) Voters() int {
	return len(t.voted)
}

// RecordVote applies one vote at time now and returns the normalized choice
func (s *State) RecordVote(now time.Time, voterID, rawChoice string) (string, error) {
	if !s.Active {
		return "", ErrRoundInactive
	}
	if now.After(s.EndTime) {
		return "", ErrVotingClosed
	}
	if voterID == "" {
		return "", ErrMissingVoter
	}
	if s.HasVoted(voterID) {
		return "", ErrDuplicateVote
	}

	choice := strings.ToUpper(rawChoice)
	switch choice {
	case events.WinnerA:
		s.A++
	case events.WinnerB:
		s.B++
	default:
		return "", ErrInvalidChoice
	}

	s.voted[voterID] = struct{}{}
	return choice, nil
}

// Winner decides the outcome of a round from its final counts
func Winner(a, b uint64) string {
	switch {
	case a == b:
		return events.WinnerTie
	case a > b:
		return events.WinnerA
	default:
		return events.WinnerB
	}
}
