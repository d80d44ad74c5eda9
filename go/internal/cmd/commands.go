package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/mcdev12/livevote/go/clients/livevote_client"
	"github.com/mcdev12/livevote/go/internal/voting/events"
	"github.com/rs/zerolog/log"
)

// voteClient is the part of the livevote client the commands use
type voteClient interface {
	Connect(ctx context.Context) (events.State, error)
	Next(ctx context.Context) (events.Event, error)
	StartRound(opts livevote_client.StartRoundOptions) error
	Vote(voterID, choice string) error
	Reset() error
	State(ctx context.Context) (events.State, error)
	Stats(ctx context.Context) (livevote_client.Stats, error)
	Close() error
}

func run(ctx context.Context, client voteClient, command string, args []string, out io.Writer) error {
	enc := json.NewEncoder(out)

	switch command {
	case "start":
		fs := flag.NewFlagSet("start", flag.ContinueOnError)
		choice := fs.String("choice", "", "choice ID shown to viewers")
		labelA := fs.String("a", "", "label for option A")
		labelB := fs.String("b", "", "label for option B")
		duration := fs.Duration("duration", 0, "round length, clamped by the server to 1s..60s")
		wait := fs.Duration("wait", 3*time.Second, "how long to wait for the server to confirm")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return sendAndAwait(ctx, client, enc, *wait, events.EventTypeRoundStarted, func() error {
			return client.StartRound(livevote_client.StartRoundOptions{
				ChoiceID: *choice,
				LabelA:   *labelA,
				LabelB:   *labelB,
				Duration: *duration,
			})
		})

	case "vote":
		fs := flag.NewFlagSet("vote", flag.ContinueOnError)
		voter := fs.String("voter", "", "voter ID")
		choice := fs.String("choice", "", "A or B")
		wait := fs.Duration("wait", time.Second, "how long to wait for a tally update")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *voter == "" || *choice == "" {
			return errors.New("vote requires -voter and -choice")
		}
		err := sendAndAwait(ctx, client, enc, *wait, events.EventTypeVoteUpdate, func() error {
			return client.Vote(*voter, *choice)
		})
		if errors.Is(err, context.DeadlineExceeded) {
			// votes are never acknowledged; silence means it did not count
			log.Warn().Str("voter_id", *voter).Msg("no tally update seen, vote may have been ignored")
			return nil
		}
		return err

	case "reset":
		fs := flag.NewFlagSet("reset", flag.ContinueOnError)
		wait := fs.Duration("wait", 3*time.Second, "how long to wait for the server to confirm")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return sendAndAwait(ctx, client, enc, *wait, events.EventTypeState, client.Reset)

	case "state":
		state, err := client.State(ctx)
		if err != nil {
			return err
		}
		return enc.Encode(state)

	case "stats":
		stats, err := client.Stats(ctx)
		if err != nil {
			return err
		}
		return enc.Encode(stats)

	case "watch":
		return watch(ctx, client, enc)

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// sendAndAwait connects, runs send and prints the first event of type want
func sendAndAwait(ctx context.Context, client voteClient, enc *json.Encoder, wait time.Duration, want events.EventType, send func() error) error {
	if _, err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	if err := send(); err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	for {
		event, err := client.Next(waitCtx)
		if err != nil {
			return err
		}
		if event.EventType() == want {
			return enc.Encode(event)
		}
		log.Debug().Str("event_type", string(event.EventType())).Msg("skipping event")
	}
}

// watch prints every event until ctx is cancelled
func watch(ctx context.Context, client voteClient, enc *json.Encoder) error {
	state, err := client.Connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := enc.Encode(state); err != nil {
		return err
	}

	for {
		event, err := client.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := enc.Encode(event); err != nil {
			return err
		}
	}
}
