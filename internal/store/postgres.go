package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Nguyeniris123/jobchat/internal/chat"
)

const (
	directoryChannel = "jobchat:directory"
	roomChannelFmt   = "jobchat:room:%s"
)

// Postgres keeps documents in PostgreSQL and fans change signals out
// through Redis pub/sub, so watchers on every server instance wake up
// when any instance writes.
type Postgres struct {
	db  *sql.DB
	rdb *redis.Client

	// indexed records whether the compound room indexes exist. Checked
	// once at startup: schemas migrated from before the indexes were
	// added run the directory in degraded scan mode until re-migrated.
	indexed bool
}

var _ chat.Store = (*Postgres)(nil)

func NewPostgres(ctx context.Context, db *sql.DB, rdb *redis.Client) (*Postgres, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pg_indexes
		WHERE tablename = 'rooms'
		  AND indexname IN ('idx_rooms_initiator_last', 'idx_rooms_counterpart_last')
	`).Scan(&n)
	if err != nil {
		return nil, fmt.Errorf("probing room indexes: %w", err)
	}
	return &Postgres{db: db, rdb: rdb, indexed: n == 2}, nil
}

func (s *Postgres) GetRoom(ctx context.Context, roomID string) (*chat.Room, error) {
	room := &chat.Room{}
	var lastAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, initiator_id, counterpart_id, context_id, created_at,
		       last_message, last_message_at, last_sender_id
		FROM rooms WHERE id = $1
	`, roomID).Scan(&room.ID, &room.InitiatorID, &room.CounterpartID, &room.ContextID,
		&room.CreatedAt, &room.LastMessage, &lastAt, &room.LastSenderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastAt.Valid {
		room.LastMessageAt = lastAt.Time
	}
	return room, nil
}

// PutRoom upserts the room document. Concurrent creation by both
// participants is safe: the second writer overwrites the participant
// fields with identical values and never touches the creation timestamp
// or the denormalized summary.
func (s *Postgres) PutRoom(ctx context.Context, room *chat.Room) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, initiator_id, counterpart_id, context_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET initiator_id = EXCLUDED.initiator_id,
		    counterpart_id = EXCLUDED.counterpart_id,
		    context_id = EXCLUDED.context_id
	`, room.ID, room.InitiatorID, room.CounterpartID, room.ContextID)
	if err != nil {
		return err
	}
	s.publish(ctx, directoryChannel)
	return nil
}

func (s *Postgres) UpdateRoomSummary(ctx context.Context, roomID, lastMessage, lastSenderID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE rooms
		SET last_message = $2, last_sender_id = $3, last_message_at = $4
		WHERE id = $1
	`, roomID, lastMessage, lastSenderID, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chat.ErrNotFound
	}
	s.publish(ctx, directoryChannel)
	return nil
}

func (s *Postgres) GetMembership(ctx context.Context, roomID, participantID string) (*chat.Membership, error) {
	m := &chat.Membership{}
	var lastRead sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT room_id, participant_id, role, joined_at, last_read_at
		FROM memberships WHERE room_id = $1 AND participant_id = $2
	`, roomID, participantID).Scan(&m.RoomID, &m.ParticipantID, &m.Role, &m.JoinedAt, &lastRead)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastRead.Valid {
		m.LastReadAt = lastRead.Time
	}
	return m, nil
}

func (s *Postgres) PutMembership(ctx context.Context, m *chat.Membership) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (room_id, participant_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, participant_id)
		DO UPDATE SET role = EXCLUDED.role
	`, m.RoomID, m.ParticipantID, m.Role)
	return err
}

func (s *Postgres) ListMemberships(ctx context.Context, roomID string) ([]chat.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id, participant_id, role, joined_at, last_read_at
		FROM memberships WHERE room_id = $1
		ORDER BY participant_id
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Membership
	for rows.Next() {
		var m chat.Membership
		var lastRead sql.NullTime
		if err := rows.Scan(&m.RoomID, &m.ParticipantID, &m.Role, &m.JoinedAt, &lastRead); err != nil {
			return nil, err
		}
		if lastRead.Valid {
			m.LastReadAt = lastRead.Time
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Postgres) TouchLastRead(ctx context.Context, roomID, participantID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE memberships SET last_read_at = $3
		WHERE room_id = $1 AND participant_id = $2
	`, roomID, participantID, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chat.ErrNotFound
	}
	return nil
}

// AppendMessage assigns the id and a server timestamp strictly after
// every earlier message in the room, so the per-room log stays totally
// ordered even when the wall clock stalls between inserts.
func (s *Postgres) AppendMessage(ctx context.Context, msg *chat.Message) (*chat.Message, error) {
	stored := *msg
	stored.ID = uuid.NewString()
	stored.Read = false
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, room_id, sender_id, sender_role, body, read, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, GREATEST(
			clock_timestamp(),
			COALESCE((SELECT MAX(created_at) + interval '1 microsecond'
			          FROM messages WHERE room_id = $2), clock_timestamp())
		))
		RETURNING created_at
	`, stored.ID, stored.RoomID, stored.SenderID, stored.SenderRole, stored.Text).Scan(&stored.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, fmt.Sprintf(roomChannelFmt, stored.RoomID))
	s.publish(ctx, directoryChannel)
	return &stored, nil
}

func (s *Postgres) ListMessages(ctx context.Context, roomID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, sender_role, body, read, created_at
		FROM messages WHERE room_id = $1
		ORDER BY created_at, id
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderRole, &m.Text, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Postgres) MarkMessagesRead(ctx context.Context, roomID, readerID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read = TRUE
		WHERE room_id = $1 AND read = FALSE AND sender_id <> $2
	`, roomID, readerID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		// Unread counts feed directory rows, so the directory needs
		// the signal too.
		s.publish(ctx, fmt.Sprintf(roomChannelFmt, roomID))
		s.publish(ctx, directoryChannel)
	}
	return int(n), nil
}

func (s *Postgres) CountUnread(ctx context.Context, roomID, participantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE room_id = $1 AND read = FALSE AND sender_id <> $2
	`, roomID, participantID).Scan(&n)
	return n, err
}

func (s *Postgres) QueryRoomsByParticipant(ctx context.Context, participantID string, role chat.Role) ([]chat.Room, error) {
	if !s.indexed {
		return nil, chat.ErrMissingIndex
	}
	field := "initiator_id"
	if role == chat.RoleCounterpart {
		field = "counterpart_id"
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, initiator_id, counterpart_id, context_id, created_at,
		       last_message, last_message_at, last_sender_id
		FROM rooms WHERE %s = $1
		ORDER BY last_message_at DESC NULLS LAST
	`, field), participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRooms(rows)
}

func (s *Postgres) ScanRooms(ctx context.Context) ([]chat.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, initiator_id, counterpart_id, context_id, created_at,
		       last_message, last_message_at, last_sender_id
		FROM rooms
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRooms(rows)
}

func scanRooms(rows *sql.Rows) ([]chat.Room, error) {
	var out []chat.Room
	for rows.Next() {
		var room chat.Room
		var lastAt sql.NullTime
		if err := rows.Scan(&room.ID, &room.InitiatorID, &room.CounterpartID, &room.ContextID,
			&room.CreatedAt, &room.LastMessage, &lastAt, &room.LastSenderID); err != nil {
			return nil, err
		}
		if lastAt.Valid {
			room.LastMessageAt = lastAt.Time
		}
		out = append(out, room)
	}
	return out, rows.Err()
}

func (s *Postgres) WatchRoom(ctx context.Context, roomID string) (<-chan struct{}, func(), error) {
	return s.watch(ctx, fmt.Sprintf(roomChannelFmt, roomID))
}

func (s *Postgres) WatchDirectory(ctx context.Context) (<-chan struct{}, func(), error) {
	return s.watch(ctx, directoryChannel)
}

// watch relays one Redis pub/sub channel into a coalescing change
// signal. The relay goroutine is the only sender on the returned
// channel and closes it when the subscription ends.
func (s *Postgres) watch(ctx context.Context, channel string) (<-chan struct{}, func(), error) {
	pubsub := s.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for range pubsub.Channel() {
			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			if err := pubsub.Close(); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("closing pubsub")
			}
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return out, cancel, nil
}

// publish is best-effort: a failed signal only delays watchers until
// the next successful one, it never fails the write that triggered it.
func (s *Postgres) publish(ctx context.Context, channel string) {
	if err := s.rdb.Publish(ctx, channel, "1").Err(); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("change signal publish failed")
	}
}
