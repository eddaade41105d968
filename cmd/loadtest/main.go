// Load generator for the jobchat server: registers a recruiter and a
// candidate, exchanges store credentials, bootstraps one room per pair
// and spams sends over websockets from both sides while watching the
// snapshot stream grow.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nguyeniris123/jobchat/internal/auth"
	"github.com/Nguyeniris123/jobchat/internal/chat"
)

var (
	baseURL  = flag.String("base", "http://localhost:8080", "server base URL")
	wsURL    = flag.String("ws", "ws://localhost:8080", "server websocket base URL")
	pairs    = flag.Int("pairs", 5, "number of recruiter/candidate pairs")
	msgCount = flag.Int("messages", 20, "messages per side")
)

func main() {
	flag.Parse()

	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pair int) {
			defer wg.Done()
			runPair(pair)
		}(i)
	}
	wg.Wait()
	log.Println("load test complete")
}

func runPair(pair int) {
	suffix := fmt.Sprintf("%d-%d", time.Now().UnixNano(), pair)
	recruiter := "recruiter-" + suffix
	candidate := "candidate-" + suffix
	contextID := fmt.Sprintf("job%d", pair)

	recruiterSess := authenticate(recruiter, "initiator")
	candidateSess := authenticate(candidate, "counterpart")
	if recruiterSess == nil || candidateSess == nil {
		return
	}

	recruiterCred, _ := recruiterSess.Credential()
	candidateCred, _ := candidateSess.Credential()

	roomID := createRoom(recruiterCred, candidateCred.Identity.ParticipantID, contextID)
	if roomID == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamRoom(&wsWg, recruiterCred.Token, roomID, recruiter)
	go spamRoom(&wsWg, candidateCred.Token, roomID, candidate)
	wsWg.Wait()

	recruiterSess.Teardown()
	candidateSess.Teardown()
}

// httpExchanger drives the server's credential exchange endpoint, the
// remote half of the auth bridge.
type httpExchanger struct{}

func (e *httpExchanger) Exchange(backendToken string) (*auth.Credential, error) {
	req, _ := http.NewRequest(http.MethodPost, *baseURL+"/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+backendToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange returned %s", resp.Status)
	}

	var body struct {
		Token         string    `json:"token"`
		ParticipantID string    `json:"participant_id"`
		DisplayName   string    `json:"display_name"`
		Role          string    `json:"role"`
		ExpiresAt     time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &auth.Credential{
		Token: body.Token,
		Identity: auth.Identity{
			ParticipantID: body.ParticipantID,
			DisplayName:   body.DisplayName,
			Role:          chat.Role(body.Role),
		},
		ExpiresAt: body.ExpiresAt,
	}, nil
}

// authenticate registers, logs in, and exchanges the backend token for
// a store credential via an auth session.
func authenticate(username, role string) *auth.Session {
	postJSON("/register", map[string]string{
		"username": username,
		"password": "loadtest",
		"role":     role,
	})

	resp, err := postJSON("/login", map[string]string{
		"username": username,
		"password": "loadtest",
	})
	if err != nil {
		log.Printf("login failed [%s]: %v", username, err)
		return nil
	}
	var loginBody struct {
		AccessToken string `json:"access_token"`
	}
	json.NewDecoder(resp.Body).Decode(&loginBody)
	resp.Body.Close()

	sess := auth.NewSession(&httpExchanger{})
	if err := sess.Init(loginBody.AccessToken); err != nil {
		log.Printf("credential exchange failed [%s]: %v", username, err)
		return nil
	}
	return sess
}

func createRoom(cred *auth.Credential, counterpartID, contextID string) string {
	body, _ := json.Marshal(map[string]string{
		"counterpart_id": counterpartID,
		"context_id":     contextID,
	})
	req, _ := http.NewRequest(http.MethodPost, *baseURL+"/api/rooms", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("room bootstrap failed: %v", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("room bootstrap returned %s", resp.Status)
		return ""
	}

	var data struct {
		RoomID string `json:"room_id"`
	}
	json.NewDecoder(resp.Body).Decode(&data)
	return data.RoomID
}

func spamRoom(wg *sync.WaitGroup, token, roomID, who string) {
	defer wg.Done()

	url := fmt.Sprintf("%s/ws/rooms/%s?token=%s", *wsURL, roomID, token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Printf("ws connect failed [%s]: %v", who, err)
		return
	}
	defer conn.Close()

	// Drain snapshots so the server never sees us as a slow peer.
	var snapshots atomic.Int64
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			snapshots.Add(1)
		}
	}()

	for i := 0; i < *msgCount; i++ {
		msg := map[string]string{"text": fmt.Sprintf("load message %d from %s", i, who)}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("send failed [%s]: %v", who, err)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	// Give the last snapshots time to arrive before tearing down.
	time.Sleep(200 * time.Millisecond)
	log.Printf("%s done: sent %d, saw %d snapshots", who, *msgCount, snapshots.Load())
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(*baseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
