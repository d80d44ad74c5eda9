package gateway

import (
	"encoding/json"
	"testing"

	"github.com/mcdev12/livevote/go/internal/voting/events"
)

type broadcastCount struct {
	eventType          events.EventType
	delivered, dropped int
}

type recordingMetrics struct {
	opened, closed int
	broadcasts     []broadcastCount
}

func (m *recordingMetrics) ConnectionOpened() { m.opened++ }
func (m *recordingMetrics) ConnectionClosed() { m.closed++ }
func (m *recordingMetrics) EventBroadcast(eventType events.EventType, delivered, dropped int) {
	m.broadcasts = append(m.broadcasts, broadcastCount{eventType, delivered, dropped})
}

// pumpless builds a registered connection with no socket behind it
func pumpless(cm *ConnectionManager, id string, buffer int) *Connection {
	c := &Connection{
		ID:      id,
		send:    make(chan []byte, buffer),
		manager: cm,
		closed:  make(chan struct{}),
	}
	cm.registerConnection(c)
	return c
}

func TestBroadcastIsBestEffort(t *testing.T) {
	m := &recordingMetrics{}
	cm := NewConnectionManager(DefaultConnectionConfig(), m)

	fast := pumpless(cm, "fast", 4)
	slow := pumpless(cm, "slow", 1)
	gone := pumpless(cm, "gone", 4)
	close(gone.closed)

	update := events.VoteUpdate{Type: events.EventTypeVoteUpdate, ChoiceID: "Q", A: 1}
	cm.Broadcast(update)
	cm.Broadcast(update)

	if len(fast.send) != 2 {
		t.Fatalf("fast connection got %d messages, want 2", len(fast.send))
	}
	if len(slow.send) != 1 {
		t.Fatalf("slow connection got %d messages, want 1", len(slow.send))
	}
	if len(gone.send) != 0 {
		t.Fatalf("closed connection got %d messages", len(gone.send))
	}

	want := []broadcastCount{
		{events.EventTypeVoteUpdate, 2, 0},
		{events.EventTypeVoteUpdate, 1, 1},
	}
	if len(m.broadcasts) != len(want) {
		t.Fatalf("broadcasts = %+v", m.broadcasts)
	}
	for i := range want {
		if m.broadcasts[i] != want[i] {
			t.Fatalf("broadcast %d = %+v, want %+v", i, m.broadcasts[i], want[i])
		}
	}

	var decoded events.VoteUpdate
	if err := json.Unmarshal(<-fast.send, &decoded); err != nil || decoded != update {
		t.Fatalf("queued payload = %+v, err = %v", decoded, err)
	}
}

func TestRegisterSkipsClosedConnection(t *testing.T) {
	m := &recordingMetrics{}
	cm := NewConnectionManager(DefaultConnectionConfig(), m)

	c := &Connection{ID: "dead", send: make(chan []byte, 1), manager: cm, closed: make(chan struct{})}
	close(c.closed)
	cm.registerConnection(c)

	if cm.ConnectionCount() != 0 || m.opened != 0 {
		t.Fatalf("closed connection was registered")
	}
}

func TestUnregisterOnce(t *testing.T) {
	m := &recordingMetrics{}
	cm := NewConnectionManager(DefaultConnectionConfig(), m)

	c := pumpless(cm, "c1", 1)
	cm.unregisterConnection(c)
	cm.unregisterConnection(c)

	if m.opened != 1 || m.closed != 1 {
		t.Fatalf("opened = %d, closed = %d", m.opened, m.closed)
	}
}

func TestUpgradeRequiresAttach(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	if err := cm.UpgradeConnection(nil, nil); err == nil {
		t.Fatal("expected error from unattached manager")
	}
}
