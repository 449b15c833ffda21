package events

import (
	"sync"
	"testing"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
)

// mockSubscriber implements Subscriber for testing.
type mockSubscriber struct {
	mu       sync.Mutex
	events   []Event
	isClosed bool
}

func (m *mockSubscriber) Receive(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockSubscriber) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isClosed
}

func (m *mockSubscriber) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func TestBusEmitToPlayer(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}

	player := gamedb.DBRef(1)
	bus.Subscribe(player, sub)

	ev := Event{
		Type:   EvDelivery,
		Player: player,
		Source: player,
		Text:   "Hello world",
	}
	bus.Emit(ev)

	events := sub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Text != "Hello world" {
		t.Errorf("expected text %q, got %q", "Hello world", events[0].Text)
	}
	if events[0].Type != EvDelivery {
		t.Errorf("expected type EvDelivery, got %v", events[0].Type)
	}
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)

	player := gamedb.DBRef(5)
	ev := Event{Type: EvBoard, Player: player, Data: map[string]any{"board": "Public"}, Text: "test msg"}
	bus.Emit(ev)

	events := global.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 global event, got %d", len(events))
	}
	if events[0].Data["board"] != "Public" {
		t.Errorf("expected board %q, got %v", "Public", events[0].Data["board"])
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	player := gamedb.DBRef(1)

	bus.Subscribe(player, sub)
	bus.Unsubscribe(player, sub)

	bus.Emit(Event{Type: EvText, Player: player, Text: "should not arrive"})

	if len(sub.Events()) != 0 {
		t.Error("expected no events after unsubscribe")
	}
}

func TestBusClosedSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{isClosed: true}
	player := gamedb.DBRef(1)

	bus.Subscribe(player, sub)
	bus.Emit(Event{Type: EvText, Player: player, Text: "no delivery"})

	if len(sub.Events()) != 0 {
		t.Error("closed subscriber should not receive events")
	}
}

// roomWith builds a database with room #0 holding players #1 and #2.
func roomWith(t *testing.T) *gamedb.Database {
	t.Helper()
	db := gamedb.NewDatabase()
	db.Put(&gamedb.Object{DBRef: 0, Type: gamedb.TypeRoom, Location: gamedb.Nothing})
	db.Put(&gamedb.Object{DBRef: 1, Type: gamedb.TypePlayer, Location: 0})
	db.Put(&gamedb.Object{DBRef: 2, Type: gamedb.TypePlayer, Location: 0})
	db.Put(&gamedb.Object{DBRef: 3, Type: gamedb.TypePlayer, Location: 5})
	return db
}

func TestBusEmitToRoom(t *testing.T) {
	db := roomWith(t)
	bus := NewBus()
	sub1 := &mockSubscriber{}
	sub2 := &mockSubscriber{}
	elsewhere := &mockSubscriber{}
	bus.Subscribe(1, sub1)
	bus.Subscribe(2, sub2)
	bus.Subscribe(3, elsewhere)

	ev := Event{Type: EvDelivery, Source: 1, Text: "A courier arrives"}
	bus.EmitToRoom(db, 0, ev)

	if len(sub1.Events()) != 1 {
		t.Errorf("player 1: expected 1 event, got %d", len(sub1.Events()))
	}
	if len(sub2.Events()) != 1 {
		t.Errorf("player 2: expected 1 event, got %d", len(sub2.Events()))
	}
	if len(elsewhere.Events()) != 0 {
		t.Errorf("player in another room got %d events", len(elsewhere.Events()))
	}
	if got := sub2.Events()[0]; got.Player != 2 || got.Room != 0 {
		t.Errorf("event not addressed to player: %+v", got)
	}
}

func TestBusEmitToRoomExcept(t *testing.T) {
	db := roomWith(t)
	bus := NewBus()
	sub1 := &mockSubscriber{}
	sub2 := &mockSubscriber{}
	bus.Subscribe(1, sub1)
	bus.Subscribe(2, sub2)

	ev := Event{Type: EvDelivery, Source: 1, Text: "Hello others"}
	bus.EmitToRoomExcept(db, 0, func(ref gamedb.DBRef) bool { return ref == 1 }, ev)

	if len(sub1.Events()) != 0 {
		t.Errorf("player 1 (excluded): expected 0 events, got %d", len(sub1.Events()))
	}
	if len(sub2.Events()) != 1 {
		t.Errorf("player 2: expected 1 event, got %d", len(sub2.Events()))
	}
}

func TestBusCleanup(t *testing.T) {
	bus := NewBus()
	active := &mockSubscriber{}
	closed := &mockSubscriber{isClosed: true}
	player := gamedb.DBRef(1)

	bus.Subscribe(player, active)
	bus.Subscribe(player, closed)
	bus.SubscribeGlobal(&mockSubscriber{isClosed: true})

	bus.Cleanup()

	if bus.PlayerSubscribers(player) != 1 {
		t.Errorf("expected 1 active subscriber, got %d", bus.PlayerSubscribers(player))
	}
}

func TestEventTypeString(t *testing.T) {
	tests := []struct {
		t    EventType
		want string
	}{
		{EvText, "text"},
		{EvConnect, "connect"},
		{EvDelivery, "delivery"},
		{EvStaff, "staff"},
		{EventType(999), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}
