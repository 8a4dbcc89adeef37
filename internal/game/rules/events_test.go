package rules

import "testing"

func TestEventBusSubscribeTyped(t *testing.T) {
	bus := NewEventBus()

	damaged := 0
	gold := 0

	handle1 := bus.SubscribeTyped(EventCardDamaged, func(e Event) {
		damaged++
	})
	bus.SubscribeTyped(EventGoldChanged, func(e Event) {
		gold++
	})

	bus.Publish(NewTeamEvent(EventCardDamaged, "g1", "p1", 1, 3))
	if damaged != 1 || gold != 0 {
		t.Fatalf("expected damaged=1 gold=0, got damaged=%d gold=%d", damaged, gold)
	}

	bus.Publish(NewEvent(EventGoldChanged, "g1", "p1"))
	if gold != 1 {
		t.Fatalf("expected gold count 1, got %d", gold)
	}

	bus.Unsubscribe(handle1)
	bus.Publish(NewTeamEvent(EventCardDamaged, "g1", "p1", 1, 4))
	if damaged != 1 {
		t.Fatalf("expected damaged count still 1 after unsubscribe, got %d", damaged)
	}
}

func TestEventBusSubscribeAll(t *testing.T) {
	bus := NewEventBus()

	var seen []EventType
	handle := bus.Subscribe(func(e Event) {
		seen = append(seen, e.Type)
	})

	bus.Publish(NewEvent(EventSageSelected, "g1", "p1"))
	bus.Publish(NewEvent(EventTeamJoined, "g1", "p1"))
	bus.Publish(NewEvent(EventGameWon, "g1", "p1"))
	if len(seen) != 3 {
		t.Fatalf("expected 3 events, got %d", len(seen))
	}

	bus.Unsubscribe(handle)
	bus.Publish(NewEvent(EventGameWon, "g1", "p1"))
	if len(seen) != 3 {
		t.Fatalf("expected no delivery after unsubscribe, got %d events", len(seen))
	}
}

func TestNilListenersIgnored(t *testing.T) {
	bus := NewEventBus()
	if h := bus.Subscribe(nil); h != -1 {
		t.Fatalf("expected -1 handle for nil listener, got %d", h)
	}
	if h := bus.SubscribeTyped(EventGameWon, nil); h != -1 {
		t.Fatalf("expected -1 handle for nil typed listener, got %d", h)
	}

	var nilBus *EventBus
	nilBus.Publish(NewEvent(EventGameWon, "g1", ""))
}

func TestNewEventPopulatesIdentity(t *testing.T) {
	a := NewEvent(EventTurnStarted, "g1", "p1")
	b := NewEvent(EventTurnStarted, "g1", "p1")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected unique event IDs, got %q and %q", a.ID, b.ID)
	}
	if a.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}

	evt := NewTeamEvent(EventCardDestroyed, "g1", "p1", 2, 8)
	if evt.Team != 2 || len(evt.Slots) != 1 || evt.Slots[0] != 8 {
		t.Fatalf("unexpected team event %+v", evt)
	}
}
