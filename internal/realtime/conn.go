package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"radboard/internal/domain"
	"radboard/internal/eventbus"
	"radboard/internal/infra"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second

	maxControlMessageSize = 512
)

var broadcastTopics = []domain.Topic{
	domain.TopicJobUpdated,
	domain.TopicPostCreated,
	domain.TopicCommentAdded,
	domain.TopicReactionAdded,
}

// AttachBus subscribes the registry to every client-facing topic on the bus.
// Cancel the returned subscription on shutdown.
func AttachBus(bus *eventbus.Bus, reg *Registry) *eventbus.Subscription {
	return bus.Subscribe(broadcastTopics, "", reg.Broadcast)
}

// controlMessage is the only client-to-server frame: join or leave a scope.
type controlMessage struct {
	Action string `json:"action"`
	Scope  string `json:"scope"`
}

type ackMessage struct {
	Topic  domain.Topic `json:"topic"`
	Action string       `json:"action"`
	Scope  string       `json:"scope"`
	OK     bool         `json:"ok"`
}

// Handler upgrades HTTP requests to WebSocket connections and bridges them
// to the registry.
type Handler struct {
	reg      *Registry
	logger   infra.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs the WebSocket endpoint handler.
func NewHandler(reg *Registry, logger infra.Logger) *Handler {
	return &Handler{
		reg:    reg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth and origin policy belong to the excluded session layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws: upgrade failed")
		return
	}
	client := h.reg.Connect()
	h.logger.Debug().Str("connection_id", client.ID).Msg("ws: connected")

	ctx, cancel := context.WithCancel(r.Context())
	go h.writeLoop(ctx, ws, client)
	h.readLoop(ws, client)

	cancel()
	h.reg.Disconnect(client.ID)
	_ = ws.Close()
	h.logger.Debug().Str("connection_id", client.ID).Msg("ws: disconnected")
}

// readLoop consumes join/leave control messages until the peer goes away.
func (h *Handler) readLoop(ws *websocket.Conn, client *Client) {
	ws.SetReadLimit(maxControlMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Scope == "" {
			continue
		}
		var opErr error
		switch msg.Action {
		case "join":
			opErr = h.reg.Join(client.ID, msg.Scope)
		case "leave":
			opErr = h.reg.Leave(client.ID, msg.Scope)
		default:
			continue
		}
		client.push(domain.Event{
			Topic: "ack",
			Scope: msg.Scope,
			Payload: ackMessage{
				Topic:  "ack",
				Action: msg.Action,
				Scope:  msg.Scope,
				OK:     opErr == nil,
			},
		})
	}
}

// writeLoop drains the client's queue onto the socket and keeps the
// connection alive with pings.
func (h *Handler) writeLoop(ctx context.Context, ws *websocket.Conn, client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	events := make(chan domain.Event)
	go func() {
		defer close(events)
		for {
			evt, ok := client.Receive(ctx)
			if !ok {
				return
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(evt); err != nil {
				h.logger.Debug().Err(err).Str("connection_id", client.ID).Msg("ws: write failed")
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
