package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lorebook/lorebook/internal/kberr"
)

var upgrader = websocket.Upgrader{}

// newTestClient spins up a scripted OneBot endpoint and a running client
// connected to it. handle receives each decoded action request and returns
// the response payload to write back.
func newTestClient(t *testing.T, handle func(req actionRequest) actionResponse) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var request actionRequest
			if err := conn.ReadJSON(&request); err != nil {
				return
			}
			response := handle(request)
			response.Echo = request.Echo
			if err := conn.WriteJSON(response); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	client := New(Config{
		URL:         "ws" + strings.TrimPrefix(server.URL, "http"),
		CallTimeout: 2 * time.Second,
	}, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = client.Run(ctx) }()

	// Wait for the session to come up.
	deadline := time.Now().Add(3 * time.Second)
	for {
		client.mu.Lock()
		connected := client.conn != nil
		client.mu.Unlock()
		if connected {
			return client
		}
		if time.Now().After(deadline) {
			t.Fatal("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSelfID(t *testing.T) {
	client := newTestClient(t, func(req actionRequest) actionResponse {
		if req.Action != "get_login_info" {
			t.Errorf("action = %q", req.Action)
		}
		return actionResponse{Status: "ok", Data: json.RawMessage(`{"user_id":10001,"nickname":"bot"}`)}
	})

	id, err := client.SelfID(context.Background())
	if err != nil {
		t.Fatalf("SelfID: %v", err)
	}
	if id != 10001 {
		t.Fatalf("SelfID = %d, want 10001", id)
	}
}

func TestGroupMessageHistory(t *testing.T) {
	client := newTestClient(t, func(req actionRequest) actionResponse {
		if req.Action != "get_group_msg_history" {
			t.Errorf("action = %q", req.Action)
		}
		params, _ := req.Params.(map[string]any)
		if got := params["group_id"]; got != float64(777) {
			t.Errorf("group_id = %v", got)
		}
		if got := params["reverseOrder"]; got != true {
			t.Errorf("reverseOrder = %v", got)
		}
		return actionResponse{Status: "ok", Data: json.RawMessage(`{"messages":[
			{"message_id":5,"time":1758006720,"sender":{"user_id":42,"nickname":"成员"},
			 "message":[{"type":"text","data":{"text":"早"}}]}
		]}`)}
	})

	messages, err := client.GroupMessageHistory(context.Background(), 777, 0)
	if err != nil {
		t.Fatalf("GroupMessageHistory: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("got %d messages", len(messages))
	}
	msg := messages[0]
	if msg.MessageID != 5 || msg.Sender.UserID != 42 || len(msg.Segments) != 1 {
		t.Fatalf("message = %+v", msg)
	}
}

func TestCallActionCorrelatesOutOfOrderResponses(t *testing.T) {
	// The endpoint batches two requests and answers them in reverse order;
	// each caller must still receive its own response.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var batch []actionRequest
		for len(batch) < 2 {
			var request actionRequest
			if err := conn.ReadJSON(&request); err != nil {
				return
			}
			batch = append(batch, request)
		}
		for i := len(batch) - 1; i >= 0; i-- {
			response := actionResponse{
				Status: "ok",
				Data:   json.RawMessage(`{"action":"` + batch[i].Action + `"}`),
				Echo:   batch[i].Echo,
			}
			if err := conn.WriteJSON(response); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	client := New(Config{
		URL:         "ws" + strings.TrimPrefix(server.URL, "http"),
		CallTimeout: 2 * time.Second,
	}, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = client.Run(ctx) }()
	if err := client.WaitConnected(ctx); err != nil {
		t.Fatalf("WaitConnected: %v", err)
	}

	results := make(chan string, 2)
	errs := make(chan error, 2)
	for _, action := range []string{"first", "second"} {
		go func() {
			data, err := client.CallAction(ctx, action, nil)
			if err != nil {
				errs <- err
				return
			}
			var payload struct {
				Action string `json:"action"`
			}
			if err := json.Unmarshal(data, &payload); err != nil {
				errs <- err
				return
			}
			if payload.Action != action {
				errs <- errors.New("response for " + action + " carried " + payload.Action)
				return
			}
			results <- payload.Action
		}()
	}
	for range 2 {
		select {
		case err := <-errs:
			t.Fatalf("call failed: %v", err)
		case <-results:
		}
	}
}

func TestCallActionFailedStatus(t *testing.T) {
	client := newTestClient(t, func(req actionRequest) actionResponse {
		return actionResponse{Status: "failed", RetCode: 1400, Message: "bad request"}
	})

	_, err := client.CallAction(context.Background(), "get_group_msg_history", nil)
	if !errors.Is(err, kberr.ErrClient) {
		t.Fatalf("err = %v, want ErrClient", err)
	}
}

func TestCallActionNotConnected(t *testing.T) {
	client := New(Config{URL: "ws://127.0.0.1:1"}, slog.New(slog.DiscardHandler))
	_, err := client.CallAction(context.Background(), "get_login_info", nil)
	if !errors.Is(err, kberr.ErrClient) {
		t.Fatalf("err = %v, want ErrClient", err)
	}
}
