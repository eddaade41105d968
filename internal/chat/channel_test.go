package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Nguyeniris123/jobchat/internal/chat"
	"github.com/Nguyeniris123/jobchat/internal/store"
)

func bootstrapRoom(t *testing.T, st *store.Memory) string {
	t.Helper()
	roomID, err := chat.NewBootstrapper(st).GetOrCreateRoom(context.Background(), "r1", "c1", "job42")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return roomID
}

func waitSnapshot(t *testing.T, snapshots <-chan []chat.Message) []chat.Message {
	t.Helper()
	select {
	case snap := <-snapshots:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return nil
	}
}

func TestSendRequiresMembership(t *testing.T) {
	st := store.NewMemory()
	roomID := bootstrapRoom(t, st)
	c := chat.NewChannel(st)
	ctx := context.Background()

	_, err := c.Send(ctx, roomID, "stranger", "hi", chat.RoleInitiator)
	if !errors.Is(err, chat.ErrNotAParticipant) {
		t.Fatalf("send error = %v, want ErrNotAParticipant", err)
	}

	msgs, _ := st.ListMessages(ctx, roomID)
	if len(msgs) != 0 {
		t.Fatalf("rejected send still created %d message(s)", len(msgs))
	}
}

func TestSubscribeRequiresMembership(t *testing.T) {
	st := store.NewMemory()
	roomID := bootstrapRoom(t, st)
	c := chat.NewChannel(st)
	ctx := context.Background()

	if _, err := c.Send(ctx, roomID, "r1", "secret", chat.RoleInitiator); err != nil {
		t.Fatalf("send: %v", err)
	}

	_, err := c.Subscribe(ctx, roomID, "stranger",
		func(msgs []chat.Message) { t.Errorf("snapshot of %d message(s) delivered to a non-participant", len(msgs)) },
		func(error) {},
	)
	if !errors.Is(err, chat.ErrNotAParticipant) {
		t.Fatalf("subscribe error = %v, want ErrNotAParticipant", err)
	}
}

func TestSendValidatesText(t *testing.T) {
	st := store.NewMemory()
	roomID := bootstrapRoom(t, st)
	c := chat.NewChannel(st)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := c.Send(context.Background(), roomID, "r1", text, chat.RoleInitiator)
		if !errors.Is(err, chat.ErrInvalidArgument) {
			t.Errorf("Send(%q) error = %v, want ErrInvalidArgument", text, err)
		}
	}
}

func TestSendUpdatesRoomSummary(t *testing.T) {
	st := store.NewMemory()
	roomID := bootstrapRoom(t, st)
	c := chat.NewChannel(st)
	ctx := context.Background()

	msgID, err := c.Send(ctx, roomID, "r1", "  Hello  ", chat.RoleInitiator)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msgID == "" {
		t.Fatal("send returned an empty message id")
	}

	room, err := st.GetRoom(ctx, roomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if room.LastMessage != "Hello" {
		t.Errorf("last message = %q, want trimmed %q", room.LastMessage, "Hello")
	}
	if room.LastSenderID != "r1" {
		t.Errorf("last sender = %q, want r1", room.LastSenderID)
	}
	if room.LastMessageAt.IsZero() {
		t.Error("last message timestamp not set")
	}
}

func TestMessageOrdering(t *testing.T) {
	st := store.NewMemory()
	roomID := bootstrapRoom(t, st)
	c := chat.NewChannel(st)
	ctx := context.Background()

	for _, text := range []string{"M1", "M2", "M3"} {
		if _, err := c.Send(ctx, roomID, "r1", text, chat.RoleInitiator); err != nil {
			t.Fatalf("send %s: %v", text, err)
		}
	}

	msgs, err := c.History(ctx, roomID, "c1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("message count = %d, want 3", len(msgs))
	}
	for i, want := range []string{"M1", "M2", "M3"} {
		if msgs[i].Text != want {
			t.Errorf("message %d = %q, want %q", i, msgs[i].Text, want)
		}
		if i > 0 && !msgs[i].CreatedAt.After(msgs[i-1].CreatedAt) {
			t.Errorf("timestamps not strictly ascending at index %d", i)
		}
	}
}

func TestSubscribeDeliversFullSnapshots(t *testing.T) {
	st := store.NewMemory()
	roomID := bootstrapRoom(t, st)
	c := chat.NewChannel(st)
	ctx := context.Background()

	snapshots := make(chan []chat.Message, 16)
	unsubscribe, err := c.Subscribe(ctx, roomID, "r1",
		func(msgs []chat.Message) { snapshots <- msgs },
		func(err error) { t.Errorf("unexpected subscription error: %v", err) },
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsubscribe()

	if snap := waitSnapshot(t, snapshots); len(snap) != 0 {
		t.Fatalf("initial snapshot has %d messages, want 0", len(snap))
	}

	if _, err := c.Send(ctx, roomID, "r1", "Hello", chat.RoleInitiator); err != nil {
		t.Fatalf("send: %v", err)
	}

	snap := waitSnapshot(t, snapshots)
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d messages, want 1", len(snap))
	}
	msg := snap[0]
	if msg.SenderID != "r1" || msg.Text != "Hello" || msg.Read {
		t.Errorf("snapshot message = %+v, want sender r1, text Hello, unread", msg)
	}
	if msg.SenderRole != chat.RoleInitiator {
		t.Errorf("sender role = %q, want %q", msg.SenderRole, chat.RoleInitiator)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	st := store.NewMemory()
	roomID := bootstrapRoom(t, st)
	c := chat.NewChannel(st)

	snapshots := make(chan []chat.Message, 16)
	unsubscribe, err := c.Subscribe(context.Background(), roomID, "c1",
		func(msgs []chat.Message) { snapshots <- msgs },
		func(error) {},
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	waitSnapshot(t, snapshots)
	unsubscribe()
	unsubscribe() // second call must be a no-op, not a panic
}

func TestMarkAllReadConvergence(t *testing.T) {
	st := store.NewMemory()
	roomID := bootstrapRoom(t, st)
	c := chat.NewChannel(st)
	ctx := context.Background()

	c.Send(ctx, roomID, "r1", "first", chat.RoleInitiator)
	c.Send(ctx, roomID, "r1", "second", chat.RoleInitiator)

	if n, _ := st.CountUnread(ctx, roomID, "c1"); n != 2 {
		t.Fatalf("unread before mark = %d, want 2", n)
	}

	if err := c.MarkAllRead(ctx, roomID, "c1"); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if n, _ := st.CountUnread(ctx, roomID, "c1"); n != 0 {
		t.Fatalf("unread after mark = %d, want 0", n)
	}

	// The reader's own sends never count against them.
	if n, _ := st.CountUnread(ctx, roomID, "r1"); n != 0 {
		t.Fatalf("sender sees %d unread of their own messages", n)
	}

	c.Send(ctx, roomID, "r1", "third", chat.RoleInitiator)
	if n, _ := st.CountUnread(ctx, roomID, "c1"); n != 1 {
		t.Fatalf("unread after new message = %d, want 1", n)
	}

	member, err := st.GetMembership(ctx, roomID, "c1")
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	if member.LastReadAt.IsZero() {
		t.Error("reader's last-read timestamp not stamped")
	}
}
