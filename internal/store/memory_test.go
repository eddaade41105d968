package store

import (
	"context"
	"testing"
	"time"

	"github.com/Nguyeniris123/jobchat/internal/chat"
)

func TestMemoryTimestampsMonotonicPerRoom(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	var prev time.Time
	for i := 0; i < 100; i++ {
		msg, err := s.AppendMessage(ctx, &chat.Message{RoomID: "room", SenderID: "a", Text: "x"})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if !msg.CreatedAt.After(prev) {
			t.Fatalf("timestamp %d not after predecessor: %v <= %v", i, msg.CreatedAt, prev)
		}
		prev = msg.CreatedAt
	}
}

func TestMemoryAppendIgnoresClientFields(t *testing.T) {
	s := NewMemory()
	msg, err := s.AppendMessage(context.Background(), &chat.Message{
		RoomID:    "room",
		SenderID:  "a",
		Text:      "x",
		ID:        "client-chosen",
		Read:      true,
		CreatedAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID == "client-chosen" {
		t.Error("store kept the client-chosen id")
	}
	if msg.Read {
		t.Error("message not stored unread")
	}
	if msg.CreatedAt.Year() == 2000 {
		t.Error("store kept the client timestamp")
	}
}

func TestMemoryWatchSignalsAndCancel(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	signals, cancel, err := s.WatchRoom(ctx, "room")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if _, err := s.AppendMessage(ctx, &chat.Message{RoomID: "room", SenderID: "a", Text: "x"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	select {
	case <-signals:
	case <-time.After(time.Second):
		t.Fatal("no change signal after append")
	}

	cancel()
	cancel() // idempotent

	// The channel closes after cancel; a write afterwards must not
	// panic the notifier.
	if _, err := s.AppendMessage(ctx, &chat.Message{RoomID: "room", SenderID: "a", Text: "y"}); err != nil {
		t.Fatalf("append after cancel: %v", err)
	}
	if _, open := <-signals; open {
		// A buffered signal may still be pending; the next receive
		// must observe the close.
		if _, open := <-signals; open {
			t.Fatal("signal channel still open after cancel")
		}
	}
}

func TestMemoryMarkReadSignalsDirectory(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	if _, err := s.AppendMessage(ctx, &chat.Message{RoomID: "a_b", SenderID: "b", Text: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	signals, cancel, err := s.WatchDirectory(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	// Unread counts feed directory rows: a live directory stream must
	// refresh when the reader marks the room read.
	n, err := s.MarkMessagesRead(ctx, "a_b", "a")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n != 1 {
		t.Fatalf("flipped = %d, want 1", n)
	}
	select {
	case <-signals:
	case <-time.After(time.Second):
		t.Fatal("no directory signal after mark read")
	}
}

func TestMemoryWatchDirectoryOnRoomChange(t *testing.T) {
	s := NewMemory()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	signals, cancel, err := s.WatchDirectory(ctx)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	if err := s.PutRoom(ctx, &chat.Room{ID: "a_b", InitiatorID: "b", CounterpartID: "a"}); err != nil {
		t.Fatalf("put room: %v", err)
	}
	select {
	case <-signals:
	case <-time.After(time.Second):
		t.Fatal("no directory signal after room create")
	}

	// New messages move rooms in list views, so they signal the
	// directory too.
	if _, err := s.AppendMessage(ctx, &chat.Message{RoomID: "a_b", SenderID: "b", Text: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	select {
	case <-signals:
	case <-time.After(time.Second):
		t.Fatal("no directory signal after message")
	}

	// Context cancellation tears the watch down like cancel does.
	stop()
	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-signals:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("signal channel still open after context cancel")
		}
	}
}
