package events

import (
	"sync"
	"testing"

	"github.com/google/uuid"
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

	player := uuid.New()
	bus.Subscribe(player, sub)

	bus.EmitToPlayer(player, Event{Type: EvChat, Source: player, Text: "Hello world"})

	events := sub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Text != "Hello world" {
		t.Errorf("expected text %q, got %q", "Hello world", events[0].Text)
	}
	if events[0].Type != EvChat || events[0].Player != player {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestBusOtherPlayerNotReached(t *testing.T) {
	bus := NewBus()
	a, b := &mockSubscriber{}, &mockSubscriber{}
	pa, pb := uuid.New(), uuid.New()
	bus.Subscribe(pa, a)
	bus.Subscribe(pb, b)

	bus.Emit(Event{Type: EvTell, Player: pa, Text: "psst"})

	if len(a.Events()) != 1 || len(b.Events()) != 0 {
		t.Errorf("a=%d b=%d", len(a.Events()), len(b.Events()))
	}
}

func TestBusGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)

	bus.Emit(Event{Type: EvChat, Player: uuid.New(), Channel: "global", Text: "test msg"})

	events := global.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 global event, got %d", len(events))
	}
	if events[0].Channel != "global" {
		t.Errorf("expected channel %q, got %q", "global", events[0].Channel)
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	keep := &mockSubscriber{}
	player := uuid.New()

	bus.Subscribe(player, sub)
	bus.Subscribe(player, keep)
	bus.Unsubscribe(player, sub)

	bus.Emit(Event{Type: EvText, Player: player, Text: "only keep"})

	if len(sub.Events()) != 0 {
		t.Error("expected no events after unsubscribe")
	}
	if len(keep.Events()) != 1 {
		t.Error("remaining subscriber should still receive events")
	}
}

func TestBusClosedSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{isClosed: true}
	player := uuid.New()

	bus.Subscribe(player, sub)
	bus.Emit(Event{Type: EvText, Player: player, Text: "no delivery"})

	if len(sub.Events()) != 0 {
		t.Error("closed subscriber should not receive events")
	}
}

func TestBusBroadcast(t *testing.T) {
	bus := NewBus()
	p1, p2 := uuid.New(), uuid.New()
	sub1, sub2, global := &mockSubscriber{}, &mockSubscriber{}, &mockSubscriber{}
	bus.Subscribe(p1, sub1)
	bus.Subscribe(p2, sub2)
	bus.SubscribeGlobal(global)

	bus.Broadcast(p1, Event{Type: EvConnect, Source: p1, SourceName: "Steve", Text: "Steve has connected."})

	if len(sub1.Events()) != 0 {
		t.Errorf("excluded player got %d events", len(sub1.Events()))
	}
	got := sub2.Events()
	if len(got) != 1 || got[0].Player != p2 {
		t.Errorf("player 2 events = %+v", got)
	}
	if g := global.Events(); len(g) != 1 || g[0].Player != uuid.Nil {
		t.Errorf("global events = %+v", g)
	}
}

func TestBusCleanup(t *testing.T) {
	bus := NewBus()
	active := &mockSubscriber{}
	closed := &mockSubscriber{isClosed: true}
	player := uuid.New()

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
		{EvChat, "chat"},
		{EvSpy, "spy"},
		{EvNotify, "notify"},
		{EventType(999), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("EventType(%d).String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}
