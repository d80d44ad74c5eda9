package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mcdev12/livevote/go/clients/livevote_client"
	"github.com/mcdev12/livevote/go/internal/voting/events"
)

type fakeClient struct {
	incoming  []events.Event
	started   []livevote_client.StartRoundOptions
	votes     [][2]string
	resets    int
	connected bool
	closed    bool
}

func (f *fakeClient) Connect(context.Context) (events.State, error) {
	f.connected = true
	return events.State{Type: events.EventTypeState, LabelA: "A", LabelB: "B"}, nil
}

func (f *fakeClient) Next(ctx context.Context) (events.Event, error) {
	if len(f.incoming) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	e := f.incoming[0]
	f.incoming = f.incoming[1:]
	return e, nil
}

func (f *fakeClient) StartRound(opts livevote_client.StartRoundOptions) error {
	f.started = append(f.started, opts)
	return nil
}

func (f *fakeClient) Vote(voterID, choice string) error {
	f.votes = append(f.votes, [2]string{voterID, choice})
	return nil
}

func (f *fakeClient) Reset() error {
	f.resets++
	return nil
}

func (f *fakeClient) State(context.Context) (events.State, error) {
	return events.State{Type: events.EventTypeState, RoundActive: true, A: 4}, nil
}

func (f *fakeClient) Stats(context.Context) (livevote_client.Stats, error) {
	return livevote_client.Stats{TotalConnections: 12}, nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestRunStart(t *testing.T) {
	client := &fakeClient{incoming: []events.Event{
		events.VoteUpdate{Type: events.EventTypeVoteUpdate},
		events.RoundStarted{Type: events.EventTypeRoundStarted, ChoiceID: "Q1", LabelA: "Cake", LabelB: "Pie"},
	}}
	var out bytes.Buffer

	err := run(context.Background(), client, "start", []string{"-choice", "q1", "-a", "Cake", "-b", "Pie", "-duration", "5s"}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := livevote_client.StartRoundOptions{ChoiceID: "q1", LabelA: "Cake", LabelB: "Pie", Duration: 5 * time.Second}
	if len(client.started) != 1 || client.started[0] != want {
		t.Fatalf("started = %+v", client.started)
	}
	if !strings.Contains(out.String(), `"type":"roundStarted"`) || strings.Contains(out.String(), "voteUpdate") {
		t.Fatalf("output = %s", out.String())
	}
	if !client.closed {
		t.Fatal("client not closed")
	}
}

func TestRunVoteWithoutUpdate(t *testing.T) {
	client := &fakeClient{}
	var out bytes.Buffer

	err := run(context.Background(), client, "vote", []string{"-voter", "v1", "-choice", "A", "-wait", "10ms"}, &out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(client.votes) != 1 || client.votes[0] != [2]string{"v1", "A"} {
		t.Fatalf("votes = %+v", client.votes)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output %s", out.String())
	}
}

func TestRunVoteRequiresFlags(t *testing.T) {
	err := run(context.Background(), &fakeClient{}, "vote", []string{"-voter", "v1"}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRunReset(t *testing.T) {
	client := &fakeClient{incoming: []events.Event{events.State{Type: events.EventTypeState}}}
	var out bytes.Buffer

	if err := run(context.Background(), client, "reset", nil, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if client.resets != 1 || !strings.Contains(out.String(), `"type":"state"`) {
		t.Fatalf("resets = %d, output = %s", client.resets, out.String())
	}
}

func TestRunStateAndStats(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), &fakeClient{}, "state", nil, &out); err != nil {
		t.Fatalf("state: %v", err)
	}
	if !strings.Contains(out.String(), `"roundActive":true`) {
		t.Fatalf("state output = %s", out.String())
	}

	out.Reset()
	if err := run(context.Background(), &fakeClient{}, "stats", nil, &out); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if strings.TrimSpace(out.String()) != `{"total_connections":12}` {
		t.Fatalf("stats output = %s", out.String())
	}
}

func TestRunWatchStopsOnCancel(t *testing.T) {
	client := &fakeClient{incoming: []events.Event{
		events.RoundEnded{Type: events.EventTypeRoundEnded, Winner: "TIE"},
	}}
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := run(ctx, client, "watch", nil, &out)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("watch: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], `"winner":"TIE"`) {
		t.Fatalf("watch output = %q", lines)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if err := run(context.Background(), &fakeClient{}, "explode", nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected error")
	}
}
