package events

// CommandType identifies an inbound message sent by a client
type CommandType string

const (
	CommandStartRound CommandType = "startRound"
	CommandVote       CommandType = "vote"
	CommandReset      CommandType = "reset"
)

// StartRound is sent by the host device to open a round.
// Nil fields fall back to the controller defaults.
type StartRound struct {
	Type       CommandType `json:"type"`
	ChoiceID   *string     `json:"choiceId,omitempty"`
	LabelA     *string     `json:"labelA,omitempty"`
	LabelB     *string     `json:"labelB,omitempty"`
	DurationMs *int64      `json:"durationMs,omitempty"`
}

// Vote is sent by an audience device
type Vote struct {
	Type    CommandType `json:"type"`
	VoterID string      `json:"voterId"`
	Choice  string      `json:"choice"`
}

// Reset forces the show back to idle
type Reset struct {
	Type CommandType `json:"type"`
}
