package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sagebattle/sage-server-go/internal/config"
	"github.com/sagebattle/sage-server-go/internal/game/rules"
	"go.uber.org/zap"
)

const (
	sendBufferSize   = 256
	eventBufferSize  = 1024
	maxMessageSize   = 4096
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	defaultWriteWait = 10 * time.Second
)

// WSMessage is the envelope for every frame in both directions. Clients send
// {"type":"subscribe","game_id":...,"player_id":...}; the hub answers with "subscribed"
// and then relays "event" frames.
type WSMessage struct {
	Type     string `json:"type"`
	GameID   string `json:"game_id,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// Client is one WebSocket connection. gameID and playerID are owned by the hub loop.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	gameID   string
	playerID string
}

type subscription struct {
	client   *Client
	gameID   string
	playerID string
}

// personalEvents are delivered only to the player they name. Connections without a
// player ID (spectators) see everything.
var personalEvents = map[rules.EventType]bool{
	rules.EventTurnStarted: true,
	rules.EventTurnWaiting: true,
}

// Hub relays game events from the bus to the WebSocket clients watching each game.
type Hub struct {
	upgrader   websocket.Upgrader
	writeWait  time.Duration
	bus        *rules.EventBus
	handle     int
	logger     *zap.Logger
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	subscribe  chan subscription
	events     chan rules.Event
	done       chan struct{}
}

// NewHub creates a hub and subscribes it to bus. Run must be called to deliver events.
func NewHub(cfg config.WebSocketConfig, bus *rules.EventBus, logger *zap.Logger) *Hub {
	h := &Hub{
		writeWait:  cfg.WriteTimeout,
		bus:        bus,
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		subscribe:  make(chan subscription),
		events:     make(chan rules.Event, eventBufferSize),
		done:       make(chan struct{}),
	}
	if h.writeWait <= 0 {
		h.writeWait = defaultWriteWait
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	h.handle = bus.Subscribe(h.publish)
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// publish is the bus listener. The bus calls it synchronously from inside a game, so it
// never blocks; events are dropped when the hub falls behind.
func (h *Hub) publish(evt rules.Event) {
	select {
	case h.events <- evt:
	default:
		h.logger.Warn("websocket hub backlog full, event dropped",
			zap.String("game_id", evt.GameID),
			zap.String("type", string(evt.Type)))
	}
}

// Run delivers events until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	defer h.bus.Unsubscribe(h.handle)
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Debug("websocket client registered",
				zap.String("game_id", client.gameID),
				zap.String("player_id", client.playerID))
			if client.gameID != "" {
				h.deliver(client, WSMessage{Type: "subscribed", GameID: client.gameID, PlayerID: client.playerID})
			}

		case client := <-h.unregister:
			h.remove(client)

		case sub := <-h.subscribe:
			if !h.clients[sub.client] {
				continue
			}
			sub.client.gameID = sub.gameID
			sub.client.playerID = sub.playerID
			h.deliver(sub.client, WSMessage{Type: "subscribed", GameID: sub.gameID, PlayerID: sub.playerID})

		case evt := <-h.events:
			for client := range h.clients {
				if client.gameID != evt.GameID {
					continue
				}
				if personalEvents[evt.Type] && client.playerID != "" && client.playerID != evt.PlayerID {
					continue
				}
				h.deliver(client, WSMessage{Type: "event", GameID: evt.GameID, Data: evt})
			}

		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return nil
		}
	}
}

// deliver queues msg for client; a client whose buffer is full is disconnected.
func (h *Hub) deliver(client *Client, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal websocket message", zap.Error(err))
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("websocket client too slow, disconnecting", zap.String("player_id", client.playerID))
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// ServeHTTP upgrades the request. The game to watch can be given up front with the
// game_id and player_id query parameters or later with a subscribe frame.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		gameID:   r.URL.Query().Get("game_id"),
		playerID: r.URL.Query().Get("player_id"),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

func (h *Hub) readPump(c *Client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type != "subscribe" || msg.GameID == "" {
			h.logger.Debug("ignoring websocket message", zap.ByteString("message", message))
			continue
		}
		select {
		case h.subscribe <- subscription{client: c, gameID: msg.GameID, playerID: msg.PlayerID}:
		case <-h.done:
			return
		}
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
