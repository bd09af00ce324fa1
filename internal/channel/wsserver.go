package channel

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSHandler bridges websocket connections onto a Hub. Each connection
// becomes one hub client; a dropped connection closes its hub channel,
// which withdraws presence and emits leave/sync to the remaining peers.
type WSHandler struct {
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *Hub, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			// Clients are trusted; the server carries no credentials.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	key := req.URL.Query().Get("client_id")
	if key == "" {
		key = uuid.New().String()
	}

	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	ch := h.hub.Channel(key)
	var writeMu sync.Mutex
	send := func(ev Event) {
		writeMu.Lock()
		defer writeMu.Unlock()
		f := frame{
			Type:      ev.Kind,
			Key:       ev.Key,
			Sender:    ev.Sender,
			Event:     ev.Event,
			Payload:   ev.Payload,
			Presences: ev.Presences,
		}
		if err := conn.WriteJSON(f); err != nil {
			h.logger.Warn("failed to push event", "client", key, "err", err)
		}
	}

	if err := ch.Subscribe(send); err != nil {
		h.logger.Warn("subscribe rejected", "client", key, "err", err)
		conn.Close()
		return
	}
	h.logger.Info("client connected", "client", key)

	defer func() {
		ch.Close()
		conn.Close()
		h.logger.Info("client disconnected", "client", key)
	}()

	ctx := req.Context()
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case "track":
			if err := ch.Track(ctx, f.State); err != nil {
				h.logger.Warn("track failed", "client", key, "err", err)
			}
		case "untrack":
			if err := ch.Untrack(ctx); err != nil {
				h.logger.Warn("untrack failed", "client", key, "err", err)
			}
		case "broadcast":
			if err := ch.Broadcast(ctx, f.Event, f.Payload); err != nil {
				h.logger.Warn("broadcast failed", "client", key, "err", err)
			}
		default:
			h.logger.Warn("unknown frame type", "client", key, "type", f.Type)
		}
	}
}
