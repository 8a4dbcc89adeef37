package rules

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType indicates the category of an outbound game notification.
type EventType string

const (
	// Lobby and setup events
	EventSageSelected      EventType = "SAGE_SELECTED"
	EventAllSagesSelected  EventType = "ALL_SAGES_SELECTED"
	EventTeamJoined        EventType = "TEAM_JOINED"
	EventTeamsCleared      EventType = "TEAMS_CLEARED"
	EventReadyToggled      EventType = "READY_TOGGLED"
	EventWarriorsChosen    EventType = "WARRIORS_CHOSEN"
	EventWarriorsSwapped   EventType = "WARRIORS_SWAPPED"
	EventSetupComplete     EventType = "SETUP_COMPLETE"
	EventStartingCardsDone EventType = "STARTING_CARDS_PLACED"

	// Turn events
	EventPhaseChanged EventType = "PHASE_CHANGED"
	EventTurnStarted  EventType = "TURN_STARTED"
	EventTurnWaiting  EventType = "TURN_WAITING"
	EventDayBreak     EventType = "DAY_BREAK_CARDS"

	// Board events
	EventCardDamaged   EventType = "CARD_DAMAGED"
	EventCardDestroyed EventType = "CARD_DESTROYED"
	EventCardMoved     EventType = "CARD_MOVED"
	EventCardsSwapped  EventType = "CARDS_SWAPPED"
	EventCountersAdded EventType = "COUNTERS_ADDED"
	EventCardDrawn     EventType = "CARD_DRAWN"

	// Economy events
	EventGoldChanged EventType = "GOLD_CHANGED"
	EventCardBought  EventType = "CARD_BOUGHT"
	EventCardSold    EventType = "CARD_SOLD"
	EventShopRefresh EventType = "SHOP_REFRESHED"

	// End of game
	EventGameWon EventType = "GAME_WON"
)

// Event is plain data describing a change that already happened. Consumers must not
// assume delivery order across games.
type Event struct {
	Type      EventType         `json:"type"`
	ID        string            `json:"id"`
	GameID    string            `json:"game_id"`
	PlayerID  string            `json:"player_id,omitempty"`
	Team      int               `json:"team"`
	Slots     []int             `json:"slots,omitempty"`
	Amount    int               `json:"amount,omitempty"`
	Card      string            `json:"card,omitempty"`
	Phase     Phase             `json:"phase,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle, typed or not.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	if bus == nil {
		return
	}
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		listener(event)
	}
	for _, listener := range bus.typedListeners[event.Type] {
		listener.Callback(event)
	}
}

// NewEvent creates an event with its ID and timestamp populated.
func NewEvent(eventType EventType, gameID, playerID string) Event {
	return Event{
		Type:      eventType,
		ID:        uuid.NewString(),
		GameID:    gameID,
		PlayerID:  playerID,
		Timestamp: time.Now().UTC(),
	}
}

// NewTeamEvent creates an event about slots on one team's battlefield.
func NewTeamEvent(eventType EventType, gameID, playerID string, team int, slots ...int) Event {
	evt := NewEvent(eventType, gameID, playerID)
	evt.Team = team
	evt.Slots = slots
	return evt
}
