package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// NameResolver looks up a participant's display name. The job backend
// client implements it; directory rows fall back to an empty name when
// a lookup fails, never to an error.
type NameResolver interface {
	DisplayName(ctx context.Context, participantID string) (string, error)
}

// Directory discovers the rooms a participant belongs to and produces
// the sorted, denormalized summary list for list UIs.
type Directory struct {
	store Store
	names NameResolver

	// unreadScanLimit caps the per-room unread-count queries on each
	// refresh. Rooms past the cap (the list is sorted newest-first)
	// report 0: a documented cost trade-off, not an approximation bug.
	unreadScanLimit int
}

func NewDirectory(st Store, names NameResolver, unreadScanLimit int) *Directory {
	return &Directory{store: st, names: names, unreadScanLimit: unreadScanLimit}
}

// SubscribeRooms opens a live subscription on the participant's room
// list. Every change delivers the full recomputed summary list, sorted
// by last-message timestamp descending.
//
// The preferred indexed query is tried first on every refresh. When the
// store reports the distinct missing-index condition, the refresh falls
// back to scanning all rooms, testing membership client-side and
// sorting client-side (missing timestamps sort earliest); the fallback
// raises exactly one warning on onWarn for the subscription's lifetime
// and is the only error condition recovered without caller
// intervention. Any other store failure is a DirectoryLoadError on
// onError, after which the subscription is dead.
func (d *Directory) SubscribeRooms(ctx context.Context, participantID string, role Role, onRooms func([]RoomSummary), onWarn func(error), onError func(error)) (func(), error) {
	if participantID == "" {
		return nil, fmt.Errorf("%w: participant id is required", ErrInvalidArgument)
	}

	ctx, cancelCtx := context.WithCancel(ctx)
	signals, cancelWatch, err := d.store.WatchDirectory(ctx)
	if err != nil {
		cancelCtx()
		return nil, &DirectoryLoadError{ParticipantID: participantID, Cause: err}
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancelWatch()
			cancelCtx()
		})
	}

	go func() {
		warned := false
		nameCache := make(map[string]string)

		deliver := func() bool {
			rooms, err := d.loadRooms(ctx, participantID, role, &warned, onWarn)
			if err != nil {
				if ctx.Err() == nil {
					onError(&DirectoryLoadError{ParticipantID: participantID, Cause: err})
				}
				return false
			}
			onRooms(d.summarize(ctx, rooms, participantID, nameCache))
			return true
		}
		if !deliver() {
			return
		}
		for range signals {
			if !deliver() {
				return
			}
		}
	}()
	return unsubscribe, nil
}

// ListRooms computes the summary list once. degraded reports whether
// the result came from the fallback scan path.
func (d *Directory) ListRooms(ctx context.Context, participantID string, role Role) (summaries []RoomSummary, degraded bool, err error) {
	if participantID == "" {
		return nil, false, fmt.Errorf("%w: participant id is required", ErrInvalidArgument)
	}
	warned := false
	rooms, err := d.loadRooms(ctx, participantID, role, &warned, nil)
	if err != nil {
		return nil, false, &DirectoryLoadError{ParticipantID: participantID, Cause: err}
	}
	return d.summarize(ctx, rooms, participantID, make(map[string]string)), warned, nil
}

func (d *Directory) loadRooms(ctx context.Context, participantID string, role Role, warned *bool, onWarn func(error)) ([]Room, error) {
	rooms, err := d.store.QueryRoomsByParticipant(ctx, participantID, role)
	if err == nil {
		return rooms, nil
	}
	if !errors.Is(err, ErrMissingIndex) {
		return nil, err
	}

	if !*warned {
		*warned = true
		log.Warn().Str("participant", participantID).Msg("compound room index unavailable, directory in degraded scan mode")
		if onWarn != nil {
			onWarn(&DegradedModeWarning{Cause: err})
		}
	}

	all, err := d.store.ScanRooms(ctx)
	if err != nil {
		return nil, err
	}
	var mine []Room
	for _, room := range all {
		_, err := d.store.GetMembership(ctx, room.ID, participantID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		mine = append(mine, room)
	}
	// Newest first; rooms that never saw a message sort last.
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].LastMessageAt.After(mine[j].LastMessageAt)
	})
	return mine, nil
}

func (d *Directory) summarize(ctx context.Context, rooms []Room, participantID string, nameCache map[string]string) []RoomSummary {
	out := make([]RoomSummary, 0, len(rooms))
	for i, room := range rooms {
		counterpartID := room.InitiatorID
		if counterpartID == participantID {
			counterpartID = room.CounterpartID
		}

		summary := RoomSummary{
			RoomID:        room.ID,
			ContextID:     room.ContextID,
			CounterpartID: counterpartID,
			LastMessage:   room.LastMessage,
			LastMessageAt: room.LastMessageAt,
		}

		if i < d.unreadScanLimit {
			n, err := d.store.CountUnread(ctx, room.ID, participantID)
			if err != nil {
				log.Warn().Err(err).Str("room", room.ID).Msg("unread count query failed")
			} else {
				summary.UnreadCount = n
			}
		}

		if d.names != nil {
			name, ok := nameCache[counterpartID]
			if !ok {
				resolved, err := d.names.DisplayName(ctx, counterpartID)
				if err != nil {
					log.Warn().Err(err).Str("participant", counterpartID).Msg("display name lookup failed")
				} else {
					name = resolved
					nameCache[counterpartID] = resolved
				}
			}
			summary.CounterpartName = name
		}

		out = append(out, summary)
	}
	return out
}
