package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Bootstrapper ensures a room document and both membership records
// exist before any message traffic. Safe to call on every chat-open.
type Bootstrapper struct {
	store Store
}

func NewBootstrapper(st Store) *Bootstrapper {
	return &Bootstrapper{store: st}
}

// GetOrCreateRoom resolves (and lazily creates) the room between the
// initiator and the counterpart, optionally scoped to contextID.
//
// The store's access control admits a participant if and only if their
// membership record exists, so both records are written synchronously
// before the room id is handed back. Rooms created by an older schema
// version may lack membership records; the existence check on the
// already-present path backfills exactly the missing ones.
//
// The sequence is not mutually exclusive across clients. Two
// participants opening a new room concurrently may both observe
// "absent" and both create: the room upsert is last-writer-wins over
// identical fields and membership upserts are idempotent, so the race
// is harmless.
func (b *Bootstrapper) GetOrCreateRoom(ctx context.Context, initiatorID, counterpartID, contextID string) (string, error) {
	if !ValidateParticipantID(initiatorID) || !ValidateParticipantID(counterpartID) {
		return "", fmt.Errorf("%w: participant ids must be non-empty and free of %q", ErrInvalidArgument, roomIDSep)
	}

	roomID := DeriveRoomID(initiatorID, counterpartID, contextID)

	_, err := b.store.GetRoom(ctx, roomID)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := b.store.PutRoom(ctx, &Room{
			ID:            roomID,
			InitiatorID:   initiatorID,
			CounterpartID: counterpartID,
			ContextID:     contextID,
		}); err != nil {
			return "", &BootstrapError{RoomID: roomID, Cause: err}
		}
		log.Debug().Str("room", roomID).Msg("room created")
	case err != nil:
		return "", &BootstrapError{RoomID: roomID, Cause: err}
	}

	// Membership writes run on both paths: they complete a fresh
	// creation and self-heal a room that predates the membership
	// invariant. A partial failure after the room write is recoverable
	// by calling again.
	if err := b.ensureMembership(ctx, roomID, initiatorID, RoleInitiator); err != nil {
		return "", &BootstrapError{RoomID: roomID, Cause: err}
	}
	if err := b.ensureMembership(ctx, roomID, counterpartID, RoleCounterpart); err != nil {
		return "", &BootstrapError{RoomID: roomID, Cause: err}
	}
	return roomID, nil
}

func (b *Bootstrapper) ensureMembership(ctx context.Context, roomID, participantID string, role Role) error {
	_, err := b.store.GetMembership(ctx, roomID, participantID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	log.Debug().Str("room", roomID).Str("participant", participantID).Msg("backfilling membership")
	return b.store.PutMembership(ctx, &Membership{
		RoomID:        roomID,
		ParticipantID: participantID,
		Role:          role,
	})
}
