package livevote_client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/livevote/go/clients"
	"github.com/mcdev12/livevote/go/internal/voting/events"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrClosed           = errors.New("connection closed")
)

// LiveVoteClient talks to a livevote server: commands and live events over
// the WebSocket, snapshots and stats over HTTP
type LiveVoteClient struct {
	*clients.BaseClient

	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	incoming chan events.Event
	closed   chan struct{}
	readErr  error

	writeMu sync.Mutex
}

// StartRoundOptions describes a round to start. Zero fields are left out so
// the server defaults apply.
type StartRoundOptions struct {
	ChoiceID string
	LabelA   string
	LabelB   string
	Duration time.Duration
}

// Stats is the /ws/stats response
type Stats struct {
	TotalConnections int `json:"total_connections"`
}

func NewLiveVoteClient(baseURL string) *LiveVoteClient {
	return &LiveVoteClient{
		BaseClient: clients.NewBaseClient(baseURL),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// WebSocketURL derives the WebSocket endpoint from the base URL
func (c *LiveVoteClient) WebSocketURL() (string, error) {
	u, err := url.Parse(c.BaseURL())
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	u.Path = WebSocketEndpoint
	return u.String(), nil
}

// Connect opens the WebSocket and returns the state snapshot the server
// sends to every new connection
func (c *LiveVoteClient) Connect(ctx context.Context) (events.State, error) {
	wsURL, err := c.WebSocketURL()
	if err != nil {
		return events.State{}, err
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return events.State{}, ErrAlreadyConnected
	}
	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.mu.Unlock()
		return events.State{}, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}
	c.conn = conn
	c.incoming = make(chan events.Event, 64)
	c.closed = make(chan struct{})
	c.readErr = nil
	c.mu.Unlock()

	go c.readLoop(conn, c.incoming, c.closed)

	log.Debug().Str("url", wsURL).Msg("connected to livevote server")

	event, err := c.Next(ctx)
	if err != nil {
		c.Close()
		return events.State{}, fmt.Errorf("failed to read initial state: %w", err)
	}
	state, ok := event.(events.State)
	if !ok {
		c.Close()
		return events.State{}, fmt.Errorf("expected initial state, got %s", event.EventType())
	}
	return state, nil
}

func (c *LiveVoteClient) readLoop(conn *websocket.Conn, incoming chan<- events.Event, closed <-chan struct{}) {
	defer close(incoming)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		event, err := events.Decode(data)
		if err != nil {
			log.Debug().Err(err).Msg("skipping undecodable server message")
			continue
		}

		select {
		case incoming <- event:
		case <-closed:
			return
		}
	}
}

// Next waits for the next server event
func (c *LiveVoteClient) Next(ctx context.Context) (events.Event, error) {
	c.mu.Lock()
	incoming := c.incoming
	c.mu.Unlock()
	if incoming == nil {
		return nil, ErrNotConnected
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case event, ok := <-incoming:
		if !ok {
			c.mu.Lock()
			err := c.readErr
			c.mu.Unlock()
			if err == nil {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return event, nil
	}
}

// StartRound asks the server to open a new round
func (c *LiveVoteClient) StartRound(opts StartRoundOptions) error {
	cmd := events.StartRound{Type: events.CommandStartRound}
	if opts.ChoiceID != "" {
		cmd.ChoiceID = &opts.ChoiceID
	}
	if opts.LabelA != "" {
		cmd.LabelA = &opts.LabelA
	}
	if opts.LabelB != "" {
		cmd.LabelB = &opts.LabelB
	}
	if opts.Duration > 0 {
		ms := opts.Duration.Milliseconds()
		cmd.DurationMs = &ms
	}
	return c.send(cmd)
}

// Vote casts one vote. The server never acknowledges it; watch for a
// voteUpdate to see whether it counted.
func (c *LiveVoteClient) Vote(voterID, choice string) error {
	return c.send(events.Vote{
		Type:    events.CommandVote,
		VoterID: voterID,
		Choice:  choice,
	})
}

// Reset forces the show back to idle
func (c *LiveVoteClient) Reset() error {
	return c.send(events.Reset{Type: events.CommandReset})
}

func (c *LiveVoteClient) send(cmd any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	return nil
}

// State fetches the current snapshot over HTTP
func (c *LiveVoteClient) State(ctx context.Context) (events.State, error) {
	var state events.State
	if err := c.GetJSON(ctx, StateEndpoint, &state); err != nil {
		return events.State{}, fmt.Errorf("failed to get round state: %w", err)
	}
	return state, nil
}

// Stats fetches connection statistics over HTTP
func (c *LiveVoteClient) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := c.GetJSON(ctx, StatsEndpoint, &stats); err != nil {
		return Stats{}, fmt.Errorf("failed to get connection stats: %w", err)
	}
	return stats, nil
}

// Close sends a close frame and releases the WebSocket
func (c *LiveVoteClient) Close() error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	close(closed)

	c.writeMu.Lock()
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()

	return conn.Close()
}
