package events

import (
	"encoding/json"
	"fmt"
)

// EventType identifies an outbound message sent to connected clients
type EventType string

const (
	EventTypeState        EventType = "state"
	EventTypeRoundStarted EventType = "roundStarted"
	EventTypeVoteUpdate   EventType = "voteUpdate"
	EventTypeRoundEnded   EventType = "roundEnded"
)

// Winner values carried by RoundEnded
const (
	WinnerA   = "A"
	WinnerB   = "B"
	WinnerTie = "TIE"
)

// Event is implemented by every outbound message
type Event interface {
	EventType() EventType
}

// State is the full round snapshot, sent on connect and after a reset
type State struct {
	Type        EventType `json:"type"`
	RoundActive bool      `json:"roundActive"`
	EndTimeMs   int64     `json:"endTimeMs"`
	ChoiceID    string    `json:"choiceId"`
	LabelA      string    `json:"labelA"`
	LabelB      string    `json:"labelB"`
	A           uint64    `json:"a"`
	B           uint64    `json:"b"`
}

// RoundStarted announces a new round
type RoundStarted struct {
	Type      EventType `json:"type"`
	ChoiceID  string    `json:"choiceId"`
	LabelA    string    `json:"labelA"`
	LabelB    string    `json:"labelB"`
	EndTimeMs int64     `json:"endTimeMs"`
	A         uint64    `json:"a"`
	B         uint64    `json:"b"`
}

// VoteUpdate carries the tallies after an accepted vote
type VoteUpdate struct {
	Type      EventType `json:"type"`
	ChoiceID  string    `json:"choiceId"`
	A         uint64    `json:"a"`
	B         uint64    `json:"b"`
	EndTimeMs int64     `json:"endTimeMs"`
}

// RoundEnded carries the final tallies and the winner
type RoundEnded struct {
	Type     EventType `json:"type"`
	ChoiceID string    `json:"choiceId"`
	A        uint64    `json:"a"`
	B        uint64    `json:"b"`
	Winner   string    `json:"winner"`
}

func (State) EventType() EventType        { return EventTypeState }
func (RoundStarted) EventType() EventType { return EventTypeRoundStarted }
func (VoteUpdate) EventType() EventType   { return EventTypeVoteUpdate }
func (RoundEnded) EventType() EventType   { return EventTypeRoundEnded }

// Decode parses an outbound message into its concrete type
func Decode(data []byte) (Event, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("unmarshal event type: %w", err)
	}

	switch head.Type {
	case EventTypeState:
		var e State
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil

	case EventTypeRoundStarted:
		var e RoundStarted
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil

	case EventTypeVoteUpdate:
		var e VoteUpdate
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil

	case EventTypeRoundEnded:
		var e RoundEnded
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", head.Type)
	}
}
