package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oggyb/campus-connect/internal/auth"
	svcErr "github.com/oggyb/campus-connect/internal/errors"
	"github.com/oggyb/campus-connect/internal/presence"
	"github.com/oggyb/campus-connect/internal/service/dispatch"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384
)

// Authentication happens before the upgrade, so any origin may connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// serveWS upgrades the request and runs the event channel for the caller.
// Frames in both directions are the JSON command and event shapes shared
// with the gRPC stream.
func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserID(r.Context())
	if !ok {
		writeError(w, svcErr.Unauthenticated("authentication required"))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", "user_id", uid, "err", err)
		return
	}

	client := presence.NewClient(uid, h.appCtx.Config.Messaging.OutboxSize)
	if err := h.appCtx.Dispatcher.Connect(client); err != nil {
		h.log.Error("register websocket client", "user_id", uid, "err", err)
		_ = conn.Close()
		return
	}
	log := h.log.With("user_id", uid, "conn_id", client.ID(), "transport", "ws")
	log.Debug("websocket connected")

	go h.writePump(conn, client)
	h.readPump(r, conn, client)

	h.appCtx.Dispatcher.Disconnect(client)
	client.Close()
	log.Debug("websocket disconnected")
}

// readPump turns inbound frames into commands. Replies go through the client
// outbox so writePump stays the only writer on the connection.
func (h *Handler) readPump(r *http.Request, conn *websocket.Conn, client *presence.Client) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read failed", "user_id", client.UserID(), "err", err)
			}
			return
		}

		var cmd dispatch.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			client.Deliver(malformedCommand())
			continue
		}
		client.Deliver(h.appCtx.Dispatcher.HandleCommand(r.Context(), client, cmd))
	}
}

// writePump drains the outbox onto the connection and keeps it alive with
// pings until the client is closed.
func (h *Handler) writePump(conn *websocket.Conn, client *presence.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case ev := <-client.Outbox():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func malformedCommand() presence.Event {
	ev, _ := presence.NewEvent(presence.EventError, "", dispatch.ErrorPayload{
		Code:    svcErr.KindInvalidArgument.String(),
		Message: "malformed command",
	})
	return ev
}
