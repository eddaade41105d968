package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Nguyeniris123/jobchat/internal/auth"
	"github.com/Nguyeniris123/jobchat/internal/chat"
	"github.com/Nguyeniris123/jobchat/internal/store"
	"github.com/Nguyeniris123/jobchat/internal/user"
)

type fixture struct {
	server *httptest.Server
	svc    *user.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	svc := user.NewService(user.NewMemoryRepository(), "backend-secret")
	cred := auth.NewCredentialService("store-secret", time.Hour, svc)

	handler := NewHandler(
		chat.NewBootstrapper(st),
		chat.NewChannel(st),
		chat.NewDirectory(st, svc, 50),
		cred,
	)

	r := chi.NewRouter()
	r.Post("/api/session", handler.ExchangeSession)
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(cred).Handle)
		r.Post("/api/rooms", handler.CreateRoom)
		r.Get("/api/rooms", handler.ListRooms)
		r.Get("/api/rooms/{roomID}/messages", handler.GetHistory)
		r.Post("/api/rooms/{roomID}/messages", handler.SendMessage)
		r.Post("/api/rooms/{roomID}/read", handler.MarkRead)
	})

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return &fixture{server: ts, svc: svc}
}

// login registers an account and walks the full token flow, returning
// the store credential and participant id.
func (f *fixture) login(t *testing.T, username, role string) (string, string) {
	t.Helper()
	ctx := context.Background()
	account, err := f.svc.Register(ctx, &user.RegisterRequest{
		Username: username, Password: "pw", Role: role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	res, err := f.svc.Login(ctx, &user.LoginRequest{Username: username, Password: "pw"})
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}

	req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+res.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("exchange status = %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	return body.Token, account.ID
}

func (f *fixture) do(t *testing.T, method, path, token string, payload any) *http.Response {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		json.NewEncoder(&body).Encode(payload)
	}
	req, _ := http.NewRequest(method, f.server.URL+path, &body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestChatFlowOverHTTP(t *testing.T) {
	f := newFixture(t)
	recruiterToken, _ := f.login(t, "recruiter", "initiator")
	candidateToken, candidateID := f.login(t, "candidate", "counterpart")

	// Bootstrap.
	resp := f.do(t, http.MethodPost, "/api/rooms", recruiterToken,
		map[string]string{"counterpart_id": candidateID, "context_id": "job42"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create room status = %d", resp.StatusCode)
	}
	var created struct {
		RoomID string `json:"room_id"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()
	if created.RoomID == "" {
		t.Fatal("no room id returned")
	}

	// Send.
	resp = f.do(t, http.MethodPost, "/api/rooms/"+created.RoomID+"/messages", recruiterToken,
		map[string]string{"text": "Hello"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// History from the candidate side.
	resp = f.do(t, http.MethodGet, "/api/rooms/"+created.RoomID+"/messages", candidateToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history status = %d", resp.StatusCode)
	}
	var msgs []chat.Message
	json.NewDecoder(resp.Body).Decode(&msgs)
	resp.Body.Close()
	if len(msgs) != 1 || msgs[0].Text != "Hello" || msgs[0].Read {
		t.Fatalf("history = %+v, want one unread Hello", msgs)
	}

	// Directory shows one unread for the candidate.
	resp = f.do(t, http.MethodGet, "/api/rooms", candidateToken, nil)
	var rooms []chat.RoomSummary
	json.NewDecoder(resp.Body).Decode(&rooms)
	resp.Body.Close()
	if len(rooms) != 1 || rooms[0].UnreadCount != 1 {
		t.Fatalf("directory = %+v, want one room with one unread", rooms)
	}
	if rooms[0].CounterpartName != "recruiter" {
		t.Errorf("counterpart name = %q, want recruiter", rooms[0].CounterpartName)
	}

	// Mark read, then the unread count converges to zero.
	resp = f.do(t, http.MethodPost, "/api/rooms/"+created.RoomID+"/read", candidateToken, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("mark read status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = f.do(t, http.MethodGet, "/api/rooms", candidateToken, nil)
	json.NewDecoder(resp.Body).Decode(&rooms)
	resp.Body.Close()
	if rooms[0].UnreadCount != 0 {
		t.Fatalf("unread after mark read = %d, want 0", rooms[0].UnreadCount)
	}
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)
	recruiterToken, _ := f.login(t, "recruiter", "initiator")
	candidateToken, candidateID := f.login(t, "candidate", "counterpart")
	strangerToken, _ := f.login(t, "stranger", "counterpart")

	resp := f.do(t, http.MethodPost, "/api/rooms", recruiterToken,
		map[string]string{"counterpart_id": candidateID, "context_id": "job1"})
	var created struct {
		RoomID string `json:"room_id"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	// Non-participant send is forbidden and flagged non-retryable.
	resp = f.do(t, http.MethodPost, "/api/rooms/"+created.RoomID+"/messages", strangerToken,
		map[string]string{"text": "let me in"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger send status = %d, want 403", resp.StatusCode)
	}
	var body struct {
		Retryable bool `json:"retryable"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if body.Retryable {
		t.Error("NotAParticipant marked retryable")
	}

	// Empty text is a 400.
	resp = f.do(t, http.MethodPost, "/api/rooms/"+created.RoomID+"/messages", candidateToken,
		map[string]string{"text": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty send status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	// Missing/garbage credential is a 401.
	resp = f.do(t, http.MethodGet, "/api/rooms", "garbage", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad credential status = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()
}
