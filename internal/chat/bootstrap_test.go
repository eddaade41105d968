package chat_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Nguyeniris123/jobchat/internal/chat"
	"github.com/Nguyeniris123/jobchat/internal/store"
)

func TestGetOrCreateRoomValidation(t *testing.T) {
	b := chat.NewBootstrapper(store.NewMemory())
	ctx := context.Background()

	for _, tc := range [][2]string{
		{"", "c1"},
		{"r1", ""},
		{"", ""},
		{"r_1", "c1"}, // separator inside an id would misroute rooms
	} {
		_, err := b.GetOrCreateRoom(ctx, tc[0], tc[1], "job1")
		if !errors.Is(err, chat.ErrInvalidArgument) {
			t.Errorf("GetOrCreateRoom(%q, %q) error = %v, want ErrInvalidArgument", tc[0], tc[1], err)
		}
	}
}

func TestGetOrCreateRoomIdempotent(t *testing.T) {
	st := store.NewMemory()
	b := chat.NewBootstrapper(st)
	ctx := context.Background()

	first, err := b.GetOrCreateRoom(ctx, "r1", "c1", "job42")
	if err != nil {
		t.Fatalf("first bootstrap: %v", err)
	}
	if first != "c1_r1_job42" {
		t.Fatalf("room id = %q, want c1_r1_job42", first)
	}

	second, err := b.GetOrCreateRoom(ctx, "r1", "c1", "job42")
	if err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	if second != first {
		t.Fatalf("second bootstrap returned %q, want %q", second, first)
	}

	members, err := st.ListMemberships(ctx, first)
	if err != nil {
		t.Fatalf("listing memberships: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("membership count = %d, want 2", len(members))
	}
}

func TestGetOrCreateRoomBackfillsMissingMembership(t *testing.T) {
	st := store.NewMemory()
	b := chat.NewBootstrapper(st)
	ctx := context.Background()

	roomID, err := b.GetOrCreateRoom(ctx, "r1", "c1", "job42")
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// An older schema version created rooms without membership
	// records; simulate that by deleting one externally.
	st.DeleteMembership(roomID, "c1")

	if _, err := b.GetOrCreateRoom(ctx, "r1", "c1", "job42"); err != nil {
		t.Fatalf("re-bootstrap: %v", err)
	}

	members, err := st.ListMemberships(ctx, roomID)
	if err != nil {
		t.Fatalf("listing memberships: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("membership count after self-heal = %d, want 2", len(members))
	}
	healed, err := st.GetMembership(ctx, roomID, "c1")
	if err != nil {
		t.Fatalf("healed membership missing: %v", err)
	}
	if healed.Role != chat.RoleCounterpart {
		t.Errorf("healed role = %q, want %q", healed.Role, chat.RoleCounterpart)
	}
}

func TestGetOrCreateRoomConcurrent(t *testing.T) {
	st := store.NewMemory()
	b := chat.NewBootstrapper(st)
	ctx := context.Background()

	// Both participants open the same new room at once; both must land
	// on the same id with exactly two membership records.
	var wg sync.WaitGroup
	ids := make([]string, 2)
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ids[0], errs[0] = b.GetOrCreateRoom(ctx, "r1", "c1", "job42")
	}()
	go func() {
		defer wg.Done()
		ids[1], errs[1] = b.GetOrCreateRoom(ctx, "r1", "c1", "job42")
	}()
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("bootstrap %d: %v", i, errs[i])
		}
	}
	if ids[0] != ids[1] {
		t.Fatalf("concurrent bootstraps diverged: %q vs %q", ids[0], ids[1])
	}
	members, _ := st.ListMemberships(ctx, ids[0])
	if len(members) != 2 {
		t.Fatalf("membership count = %d, want 2", len(members))
	}
}
