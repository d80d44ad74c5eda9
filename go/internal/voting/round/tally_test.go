package round

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func activeState(now time.Time) State {
	s := newState()
	s.begin(now, StartParams{LabelA: "A", LabelB: "B", Duration: 5 * time.Second})
	return s
}

func TestRecordVote(t *testing.T) {
	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		setup      func(s *State)
		at         time.Time
		voter      string
		choice     string
		wantChoice string
		wantErr    error
	}{
		{name: "accepts A", at: now, voter: "v1", choice: "A", wantChoice: "A"},
		{name: "accepts lowercase b", at: now, voter: "v1", choice: "b", wantChoice: "B"},
		{name: "accepts at end time", at: now.Add(5 * time.Second), voter: "v1", choice: "A", wantChoice: "A"},
		{
			name:    "inactive round",
			setup:   func(s *State) { s.Active = false },
			at:      now,
			voter:   "v1",
			choice:  "A",
			wantErr: ErrRoundInactive,
		},
		{name: "after end time", at: now.Add(5*time.Second + time.Millisecond), voter: "v1", choice: "A", wantErr: ErrVotingClosed},
		{name: "missing voter", at: now, voter: "", choice: "A", wantErr: ErrMissingVoter},
		{
			name:    "duplicate voter",
			setup:   func(s *State) { s.RecordVote(now, "v1", "B") },
			at:      now,
			voter:   "v1",
			choice:  "A",
			wantErr: ErrDuplicateVote,
		},
		{name: "invalid choice", at: now, voter: "v1", choice: "C", wantErr: ErrInvalidChoice},
		{name: "empty choice", at: now, voter: "v1", choice: "", wantErr: ErrInvalidChoice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := activeState(now)
			if tt.setup != nil {
				tt.setup(&s)
			}
			a, b := s.A, s.B

			got, err := s.RecordVote(tt.at, tt.voter, tt.choice)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("RecordVote() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if s.A != a || s.B != b {
					t.Fatalf("rejected vote changed counts: a=%d b=%d", s.A, s.B)
				}
				return
			}
			if got != tt.wantChoice {
				t.Fatalf("RecordVote() = %q, want %q", got, tt.wantChoice)
			}
			if !s.HasVoted(tt.voter) {
				t.Fatal("voter not recorded")
			}
		})
	}
}

func TestRecordVoteInvalidChoiceDoesNotConsumeVote(t *testing.T) {
	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	s := activeState(now)

	if _, err := s.RecordVote(now, "v1", "maybe"); !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("expected ErrInvalidChoice, got %v", err)
	}
	if _, err := s.RecordVote(now, "v1", "a"); err != nil {
		t.Fatalf("retry after invalid choice: %v", err)
	}
	if s.A != 1 {
		t.Fatalf("a = %d, want 1", s.A)
	}
}

func TestRecordVoteCountsDistinctVoters(t *testing.T) {
	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	s := activeState(now)

	submitted := map[string]struct{}{}
	accepted := 0
	for i := 0; i < 200; i++ {
		voter := fmt.Sprintf("v%d", i%37)
		choice := "A"
		if i%3 == 0 {
			choice = "b"
		}
		submitted[voter] = struct{}{}
		if _, err := s.RecordVote(now, voter, choice); err == nil {
			accepted++
		}
	}

	if total := s.A + s.B; total != uint64(accepted) {
		t.Fatalf("a+b = %d, accepted = %d", total, accepted)
	}
	if accepted != len(submitted) {
		t.Fatalf("accepted %d votes from %d distinct voters", accepted, len(submitted))
	}
	if s.Voters() != accepted {
		t.Fatalf("voters = %d, want %d", s.Voters(), accepted)
	}
}

func TestWinner(t *testing.T) {
	tests := []struct {
		a, b uint64
		want string
	}{
		{a: 3, b: 3, want: "TIE"},
		{a: 5, b: 2, want: "A"},
		{a: 1, b: 4, want: "B"},
		{a: 0, b: 0, want: "TIE"},
	}

	for _, tt := range tests {
		if got := Winner(tt.a, tt.b); got != tt.want {
			t.Errorf("Winner(%d, %d) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}
