package chat

import "time"

// Role tags a participant with the side of the marketplace they joined
// from. It is informational only: room identity never depends on it.
type Role string

const (
	RoleInitiator   Role = "initiator"   // recruiter side
	RoleCounterpart Role = "counterpart" // candidate side
)

// Room is the shared chat context between exactly two participants,
// optionally scoped to a context id such as a job posting. The
// last-message fields are denormalized for list views and are updated
// best-effort after every send (last-writer-wins, see Channel.Send).
type Room struct {
	ID            string    `json:"id"`
	InitiatorID   string    `json:"initiator_id"`
	CounterpartID string    `json:"counterpart_id"`
	ContextID     string    `json:"context_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitzero"`
	LastSenderID  string    `json:"last_sender_id,omitempty"`
}

// Membership is the per-(room, participant) record that scopes access
// to a room. It must exist before any message traffic; the bootstrapper
// recreates it when missing.
type Membership struct {
	RoomID        string    `json:"room_id"`
	ParticipantID string    `json:"participant_id"`
	Role          Role      `json:"role"`
	JoinedAt      time.Time `json:"joined_at"`
	LastReadAt    time.Time `json:"last_read_at,omitzero"`
}

// Message belongs to exactly one room. CreatedAt is assigned by the
// store, never by the client, and is monotonic within a room. Read is
// flipped once, by the reader, and messages are never deleted.
type Message struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderID   string    `json:"sender_id"`
	SenderRole Role      `json:"sender_role"`
	Text       string    `json:"text"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// RoomSummary is the derived row for directory list views. It is never
// persisted; the aggregator recomputes it on every refresh.
type RoomSummary struct {
	RoomID          string    `json:"room_id"`
	ContextID       string    `json:"context_id,omitempty"`
	CounterpartID   string    `json:"counterpart_id"`
	CounterpartName string    `json:"counterpart_name,omitempty"`
	LastMessage     string    `json:"last_message,omitempty"`
	LastMessageAt   time.Time `json:"last_message_at,omitzero"`
	UnreadCount     int       `json:"unread_count"`
}
