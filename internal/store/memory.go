package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Nguyeniris123/jobchat/internal/chat"
)

// Memory is the in-process backend. It backs the test suite and the
// no-infra dev mode. All methods copy documents in and out, so callers
// never share memory with the store.
type Memory struct {
	mu          sync.Mutex
	rooms       map[string]chat.Room
	memberships map[string]map[string]chat.Membership // roomID -> participantID
	messages    map[string][]chat.Message             // ascending by CreatedAt
	lastStamp   map[string]time.Time                  // per-room monotonic clock

	roomWatchers map[string]map[chan struct{}]struct{}
	dirWatchers  map[chan struct{}]struct{}

	// missingIndex simulates a backend without the compound room
	// index: QueryRoomsByParticipant fails with ErrMissingIndex.
	missingIndex bool
}

var _ chat.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		rooms:        make(map[string]chat.Room),
		memberships:  make(map[string]map[string]chat.Membership),
		messages:     make(map[string][]chat.Message),
		lastStamp:    make(map[string]time.Time),
		roomWatchers: make(map[string]map[chan struct{}]struct{}),
		dirWatchers:  make(map[chan struct{}]struct{}),
	}
}

// SimulateMissingIndex toggles the missing-index failure on the
// preferred directory query.
func (s *Memory) SimulateMissingIndex(missing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missingIndex = missing
}

// stamp returns a server timestamp strictly after every previous stamp
// issued for the room.
func (s *Memory) stamp(roomID string) time.Time {
	now := time.Now().UTC()
	if last, ok := s.lastStamp[roomID]; ok && !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	s.lastStamp[roomID] = now
	return now
}

func (s *Memory) GetRoom(ctx context.Context, roomID string) (*chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return &room, nil
}

func (s *Memory) PutRoom(ctx context.Context, room *chat.Room) error {
	s.mu.Lock()
	r := *room
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.stamp(r.ID)
	}
	s.rooms[r.ID] = r
	s.mu.Unlock()
	s.notifyDirectory()
	return nil
}

func (s *Memory) UpdateRoomSummary(ctx context.Context, roomID, lastMessage, lastSenderID string, at time.Time) error {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return chat.ErrNotFound
	}
	room.LastMessage = lastMessage
	room.LastSenderID = lastSenderID
	room.LastMessageAt = at
	s.rooms[roomID] = room
	s.mu.Unlock()
	s.notifyDirectory()
	return nil
}

func (s *Memory) GetMembership(ctx context.Context, roomID, participantID string) (*chat.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[roomID][participantID]
	if !ok {
		return nil, chat.ErrNotFound
	}
	return &m, nil
}

func (s *Memory) PutMembership(ctx context.Context, m *chat.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byParticipant, ok := s.memberships[m.RoomID]
	if !ok {
		byParticipant = make(map[string]chat.Membership)
		s.memberships[m.RoomID] = byParticipant
	}
	rec := *m
	if rec.JoinedAt.IsZero() {
		rec.JoinedAt = time.Now().UTC()
	}
	byParticipant[rec.ParticipantID] = rec
	return nil
}

// DeleteMembership simulates an external mutation of the store (e.g. a
// record dropped by an older schema). Not part of chat.Store: the sync
// core never deletes memberships.
func (s *Memory) DeleteMembership(roomID, participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memberships[roomID], participantID)
}

func (s *Memory) ListMemberships(ctx context.Context, roomID string) ([]chat.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []chat.Membership
	for _, m := range s.memberships[roomID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ParticipantID < out[j].ParticipantID })
	return out, nil
}

func (s *Memory) TouchLastRead(ctx context.Context, roomID, participantID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[roomID][participantID]
	if !ok {
		return chat.ErrNotFound
	}
	m.LastReadAt = at
	s.memberships[roomID][participantID] = m
	return nil
}

func (s *Memory) AppendMessage(ctx context.Context, msg *chat.Message) (*chat.Message, error) {
	s.mu.Lock()
	stored := *msg
	stored.ID = uuid.NewString()
	stored.CreatedAt = s.stamp(stored.RoomID)
	stored.Read = false
	s.messages[stored.RoomID] = append(s.messages[stored.RoomID], stored)
	s.mu.Unlock()
	s.notifyRoom(stored.RoomID)
	return &stored, nil
}

func (s *Memory) ListMessages(ctx context.Context, roomID string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.messages[roomID]
	out := make([]chat.Message, len(log))
	copy(out, log)
	return out, nil
}

func (s *Memory) MarkMessagesRead(ctx context.Context, roomID, readerID string) (int, error) {
	s.mu.Lock()
	log := s.messages[roomID]
	flipped := 0
	for i := range log {
		if !log[i].Read && log[i].SenderID != readerID {
			log[i].Read = true
			flipped++
		}
	}
	s.mu.Unlock()
	if flipped > 0 {
		s.notifyRoom(roomID)
	}
	return flipped, nil
}

func (s *Memory) CountUnread(ctx context.Context, roomID, participantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages[roomID] {
		if !m.Read && m.SenderID != participantID {
			n++
		}
	}
	return n, nil
}

func (s *Memory) QueryRoomsByParticipant(ctx context.Context, participantID string, role chat.Role) ([]chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missingIndex {
		return nil, chat.ErrMissingIndex
	}
	var out []chat.Room
	for _, room := range s.rooms {
		if (role == chat.RoleInitiator && room.InitiatorID == participantID) ||
			(role == chat.RoleCounterpart && room.CounterpartID == participantID) {
			out = append(out, room)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (s *Memory) ScanRooms(ctx context.Context) ([]chat.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room)
	}
	return out, nil
}

func (s *Memory) WatchRoom(ctx context.Context, roomID string) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	set, ok := s.roomWatchers[roomID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		s.roomWatchers[roomID] = set
	}
	set[ch] = struct{}{}
	s.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			// Close under the lock so notifiers never race a send
			// against the close.
			s.mu.Lock()
			delete(s.roomWatchers[roomID], ch)
			close(ch)
			s.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}

func (s *Memory) WatchDirectory(ctx context.Context) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.dirWatchers[ch] = struct{}{}
	s.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			s.mu.Lock()
			delete(s.dirWatchers, ch)
			close(ch)
			s.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}

// notifyRoom wakes room watchers and the directory (a new message moves
// the room in list views). Sends are non-blocking and happen under the
// lock, so they cannot race the close in a watcher's cancel; the
// buffered signal coalesces bursts.
func (s *Memory) notifyRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.roomWatchers[roomID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	for ch := range s.dirWatchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Memory) notifyDirectory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.dirWatchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
