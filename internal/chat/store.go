package chat

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by store point reads for absent documents.
	ErrNotFound = errors.New("document not found")

	// ErrMissingIndex is returned by QueryRoomsByParticipant when the
	// backend cannot serve the compound filter+order plan. It is the
	// one failure the directory recovers from automatically, so it
	// must stay distinguishable from generic query errors.
	ErrMissingIndex = errors.New("no index for compound room query")
)

// Store is the document-store contract the sync core is written
// against. It is deliberately narrow: point document read/write,
// collection queries, change-signal subscriptions, and server-assigned
// write timestamps. Anything offering those four primitives can back
// the core; one backend is chosen at composition time, never per call
// site.
//
// Watch channels carry change signals, not payloads: a receive means
// "the watched scope changed, re-read your snapshot". Signals may be
// coalesced but never dropped entirely while the watch is live. The
// returned cancel funcs are idempotent; after cancel (or ctx done) the
// channel is closed.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (*Room, error)
	PutRoom(ctx context.Context, room *Room) error
	UpdateRoomSummary(ctx context.Context, roomID, lastMessage, lastSenderID string, at time.Time) error

	// PutMembership is an idempotent upsert keyed by (room,
	// participant): re-creating an existing record is an overwrite,
	// never a duplicate.
	GetMembership(ctx context.Context, roomID, participantID string) (*Membership, error)
	PutMembership(ctx context.Context, m *Membership) error
	ListMemberships(ctx context.Context, roomID string) ([]Membership, error)
	TouchLastRead(ctx context.Context, roomID, participantID string, at time.Time) error

	// AppendMessage assigns the id and the timestamp; the caller's
	// CreatedAt is ignored. ListMessages returns the full log ordered
	// by timestamp ascending.
	AppendMessage(ctx context.Context, msg *Message) (*Message, error)
	ListMessages(ctx context.Context, roomID string) ([]Message, error)
	MarkMessagesRead(ctx context.Context, roomID, readerID string) (int, error)
	CountUnread(ctx context.Context, roomID, participantID string) (int, error)

	// QueryRoomsByParticipant is the preferred indexed directory plan
	// (filter by the stored participant field for the given role,
	// order by last-message timestamp descending) and may fail with
	// ErrMissingIndex. ScanRooms is the degraded full scan.
	QueryRoomsByParticipant(ctx context.Context, participantID string, role Role) ([]Room, error)
	ScanRooms(ctx context.Context) ([]Room, error)

	WatchRoom(ctx context.Context, roomID string) (<-chan struct{}, func(), error)
	WatchDirectory(ctx context.Context) (<-chan struct{}, func(), error)
}
