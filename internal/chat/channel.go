package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Channel appends messages to a room's ordered log and exposes live
// full-snapshot subscriptions over it.
type Channel struct {
	store Store
}

func NewChannel(st Store) *Channel {
	return &Channel{store: st}
}

// Send appends a message to the room and then refreshes the room's
// denormalized last-message fields. The two effects are deliberately
// not atomic: once the append succeeds the message is durably
// delivered, and a failed summary update only leaves the list view
// stale until the next send. Returns the stored message id.
func (c *Channel) Send(ctx context.Context, roomID, senderID, text string, role Role) (string, error) {
	text = strings.TrimSpace(text)
	if roomID == "" || senderID == "" || text == "" {
		return "", fmt.Errorf("%w: room id, sender id and text are required", ErrInvalidArgument)
	}

	if _, err := c.store.GetMembership(ctx, roomID, senderID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrNotAParticipant
		}
		return "", &SubscriptionError{RoomID: roomID, Cause: err}
	}

	stored, err := c.store.AppendMessage(ctx, &Message{
		RoomID:     roomID,
		SenderID:   senderID,
		SenderRole: role,
		Text:       text,
	})
	if err != nil {
		return "", &SubscriptionError{RoomID: roomID, Cause: err}
	}

	if err := c.store.UpdateRoomSummary(ctx, roomID, stored.Text, senderID, stored.CreatedAt); err != nil {
		log.Warn().Err(err).Str("room", roomID).Msg("last-message summary update failed, list view stale until next send")
	}
	return stored.ID, nil
}

// Subscribe opens a live subscription on the room's message log. The
// subscriber must be a participant: the store adapters enforce no
// access control of their own, so reads gate on membership here just
// like Send and History do. Every change delivers the full ordered
// snapshot to onMessages, never a delta: callers replace their
// in-memory list wholesale. Callbacks run sequentially on one
// goroutine, so each snapshot is internally consistent and never
// interleaves.
//
// onError fires at most once; after it the subscription is dead and the
// caller must tear it down and re-establish it. The returned
// unsubscribe is idempotent and safe after failure.
func (c *Channel) Subscribe(ctx context.Context, roomID, subscriberID string, onMessages func([]Message), onError func(error)) (func(), error) {
	if roomID == "" || subscriberID == "" {
		return nil, fmt.Errorf("%w: room id and subscriber id are required", ErrInvalidArgument)
	}
	if _, err := c.store.GetMembership(ctx, roomID, subscriberID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotAParticipant
		}
		return nil, &SubscriptionError{RoomID: roomID, Cause: err}
	}

	ctx, cancelCtx := context.WithCancel(ctx)
	signals, cancelWatch, err := c.store.WatchRoom(ctx, roomID)
	if err != nil {
		cancelCtx()
		return nil, &SubscriptionError{RoomID: roomID, Cause: err}
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			cancelWatch()
			cancelCtx()
		})
	}

	go func() {
		deliver := func() bool {
			msgs, err := c.store.ListMessages(ctx, roomID)
			if err != nil {
				if ctx.Err() == nil {
					onError(&SubscriptionError{RoomID: roomID, Cause: err})
				}
				return false
			}
			onMessages(msgs)
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

// History returns the room's full ordered log once, for callers that
// want a snapshot without a live subscription. The requester must be a
// participant.
func (c *Channel) History(ctx context.Context, roomID, requesterID string) ([]Message, error) {
	if roomID == "" || requesterID == "" {
		return nil, fmt.Errorf("%w: room id and requester id are required", ErrInvalidArgument)
	}
	if _, err := c.store.GetMembership(ctx, roomID, requesterID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotAParticipant
		}
		return nil, &SubscriptionError{RoomID: roomID, Cause: err}
	}
	msgs, err := c.store.ListMessages(ctx, roomID)
	if err != nil {
		return nil, &SubscriptionError{RoomID: roomID, Cause: err}
	}
	return msgs, nil
}

// MarkAllRead flips every unread message from the counterpart to read
// and stamps the reader's membership. The batch is not atomic: a crash
// mid-flip leaves a degraded state that the next call self-corrects.
func (c *Channel) MarkAllRead(ctx context.Context, roomID, readerID string) error {
	if roomID == "" || readerID == "" {
		return fmt.Errorf("%w: room id and reader id are required", ErrInvalidArgument)
	}
	n, err := c.store.MarkMessagesRead(ctx, roomID, readerID)
	if err != nil {
		return &SubscriptionError{RoomID: roomID, Cause: err}
	}
	if err := c.store.TouchLastRead(ctx, roomID, readerID, time.Now().UTC()); err != nil && !errors.Is(err, ErrNotFound) {
		return &SubscriptionError{RoomID: roomID, Cause: err}
	}
	if n > 0 {
		log.Debug().Str("room", roomID).Str("reader", readerID).Int("flipped", n).Msg("marked messages read")
	}
	return nil
}
