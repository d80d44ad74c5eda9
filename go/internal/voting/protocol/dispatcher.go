// Package protocol turns inbound WebSocket frames into round commands.
//
// Frames are JSON objects with a string "type". Anything that does not parse,
// is not an object, or names an unknown type is dropped without a reply.
// Field types are probed with gjson so loosely typed clients are tolerated:
// string fields accept numbers and booleans in their textual form, and any
// other type falls back to the field default.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/mcdev12/livevote/go/internal/voting/events"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownType = errors.New("unknown message type")
)

// durations beyond this are saturated before conversion; the controller clamps further
const maxDurationMs = 1 << 53

// RoundCommands is the part of the round controller the dispatcher drives
type RoundCommands interface {
	StartRound(ctx context.Context, cmd events.StartRound) error
	Vote(ctx context.Context, voterID, choice string) error
	Reset(ctx context.Context) error
}

// Metrics receives dispatch observations
type Metrics interface {
	MessageReceived(cmd events.CommandType)
	MessageDropped(reason string)
}

type noopMetrics struct{}

func (noopMetrics) MessageReceived(events.CommandType) {}
func (noopMetrics) MessageDropped(string) {}

// Dispatcher routes parsed commands to the round controller
type Dispatcher struct {
	rounds  RoundCommands
	metrics Metrics
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(rounds RoundCommands, metrics Metrics) *Dispatcher {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Dispatcher{
		rounds:  rounds,
		metrics: metrics,
	}
}

// Dispatch handles one inbound frame. The returned error is for logging only
// and is never sent back to the client.
func (d *Dispatcher) Dispatch(ctx context.Context, frame []byte) error {
	cmd, err := Parse(frame)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ErrUnknownType) {
			reason = "unknown_type"
		}
		d.metrics.MessageDropped(reason)
		log.Debug().Err(err).Int("size", len(frame)).Msg("dropping inbound frame")
		return err
	}

	switch c := cmd.(type) {
	case events.StartRound:
		d.metrics.MessageReceived(events.CommandStartRound)
		return d.rounds.StartRound(ctx, c)
	case events.Vote:
		d.metrics.MessageReceived(events.CommandVote)
		return d.rounds.Vote(ctx, c.VoterID, c.Choice)
	case events.Reset:
		d.metrics.MessageReceived(events.CommandReset)
		return d.rounds.Reset(ctx)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownType, cmd)
	}
}

// Parse decodes a frame into events.StartRound, events.Vote or events.Reset
func Parse(frame []byte) (any, error) {
	if !gjson.ValidBytes(frame) {
		return nil, ErrMalformed
	}
	msg := gjson.ParseBytes(frame)
	if !msg.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	typ := msg.Get("type")
	if typ.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing type", ErrUnknownType)
	}

	switch events.CommandType(typ.Str) {
	case events.CommandStartRound:
		return events.StartRound{
			Type:       events.CommandStartRound,
			ChoiceID:   stringField(msg.Get("choiceId")),
			LabelA:     stringField(msg.Get("labelA")),
			LabelB:     stringField(msg.Get("labelB")),
			DurationMs: millisField(msg.Get("durationMs")),
		}, nil

	case events.CommandVote:
		return events.Vote{
			Type:    events.CommandVote,
			VoterID: stringValue(msg.Get("voterId")),
			Choice:  stringValue(msg.Get("choice")),
		}, nil

	case events.CommandReset:
		return events.Reset{Type: events.CommandReset}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ.Str)
	}
}

// stringField returns nil when the field is absent or cannot be read as text
func stringField(r gjson.Result) *string {
	switch r.Type {
	case gjson.String:
		s := r.Str
		return &s
	case gjson.Number:
		s := strconv.FormatFloat(r.Num, 'f', -1, 64)
		return &s
	case gjson.True, gjson.False:
		s := strconv.FormatBool(r.Type == gjson.True)
		return &s
	default:
		return nil
	}
}

func stringValue(r gjson.Result) string {
	if s := stringField(r); s != nil {
		return *s
	}
	return ""
}

func millisField(r gjson.Result) *int64 {
	if r.Type != gjson.Number {
		return nil
	}
	ms := math.Max(-maxDurationMs, math.Min(maxDurationMs, r.Num))
	v := int64(ms)
	return &v
}
