package ws

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Nguyeniris123/jobchat/internal/auth"
	"github.com/Nguyeniris123/jobchat/internal/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The store credential in the query string is the real gate; the
	// origin check stays open for the app webviews.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// frame is the single outbound envelope. Snapshot frames always carry
// the full list, never a delta.
type frame struct {
	Type      string             `json:"type"` // "messages", "rooms", "warning", "error", "ack"
	Messages  []chat.Message     `json:"messages,omitempty"`
	Rooms     []chat.RoomSummary `json:"rooms,omitempty"`
	MessageID string             `json:"message_id,omitempty"`
	Error     string             `json:"error,omitempty"`
	Retryable bool               `json:"retryable,omitempty"`
}

// inbound is what a room socket accepts from the screen.
type inbound struct {
	Text string `json:"text"`
}

type Handler struct {
	channel   *chat.Channel
	directory *chat.Directory
}

func NewHandler(channel *chat.Channel, directory *chat.Directory) *Handler {
	return &Handler{channel: channel, directory: directory}
}

// ServeRoom streams full message snapshots for one room and accepts
// sends over the same socket. The subscription lives exactly as long
// as the connection: the read loop blocking below keeps the request
// context alive, and its cancellation on disconnect unsubscribes.
func (h *Handler) ServeRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	roomID := chi.URLParam(r, "roomID")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := newClient(conn)
	go c.writePump()

	unsubscribe, err := h.channel.Subscribe(r.Context(), roomID, identity.ParticipantID,
		func(msgs []chat.Message) {
			c.enqueue(marshalFrame(frame{Type: "messages", Messages: msgs}))
		},
		func(subErr error) {
			// The subscription is dead; tell the screen so it can
			// offer a retry, then drop the socket.
			c.enqueue(marshalFrame(frame{Type: "error", Error: subErr.Error(), Retryable: true}))
			c.close()
		},
	)
	if err != nil {
		c.enqueue(marshalFrame(frame{Type: "error", Error: err.Error(), Retryable: !errors.Is(err, chat.ErrNotAParticipant)}))
		c.close()
		return
	}
	defer unsubscribe()

	c.readLoop(func(payload []byte) {
		var in inbound
		if err := json.Unmarshal(payload, &in); err != nil {
			c.enqueue(marshalFrame(frame{Type: "error", Error: "malformed frame"}))
			return
		}
		msgID, err := h.channel.Send(r.Context(), roomID, identity.ParticipantID, in.Text, identity.Role)
		if err != nil {
			c.enqueue(marshalFrame(frame{Type: "error", Error: err.Error()}))
			return
		}
		c.enqueue(marshalFrame(frame{Type: "ack", MessageID: msgID}))
	})
}

// ServeDirectory streams full room-summary snapshots for the caller.
// Degraded-mode fallback arrives as a "warning" frame, never as an
// error.
func (h *Handler) ServeDirectory(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := newClient(conn)
	go c.writePump()

	unsubscribe, err := h.directory.SubscribeRooms(r.Context(), identity.ParticipantID, identity.Role,
		func(rooms []chat.RoomSummary) {
			c.enqueue(marshalFrame(frame{Type: "rooms", Rooms: rooms}))
		},
		func(warn error) {
			c.enqueue(marshalFrame(frame{Type: "warning", Error: warn.Error()}))
		},
		func(dirErr error) {
			c.enqueue(marshalFrame(frame{Type: "error", Error: dirErr.Error(), Retryable: true}))
			c.close()
		},
	)
	if err != nil {
		c.enqueue(marshalFrame(frame{Type: "error", Error: err.Error(), Retryable: true}))
		c.close()
		return
	}
	defer unsubscribe()

	c.readLoop(nil)
}

func marshalFrame(f frame) []byte {
	data, err := json.Marshal(f)
	if err != nil {
		log.Error().Err(err).Msg("frame marshal failed")
		return []byte(`{"type":"error","error":"internal"}`)
	}
	return data
}
