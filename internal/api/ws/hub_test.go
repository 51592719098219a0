package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/your-org/eventface/internal/models"
	"github.com/your-org/eventface/pkg/dto"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) dto.WSEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt dto.WSEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return evt
}

func TestHubFiltersByBatch(t *testing.T) {
	hub, url := startHub(t)
	watched, other := uuid.New(), uuid.New()

	filtered := dial(t, url+"?batch_id="+watched.String())
	all := dial(t, url)
	waitClients(t, hub, 2)

	hub.BroadcastProgress(models.BatchProgress{BatchID: other, Completed: 1, Total: 2})
	hub.BroadcastProgress(models.BatchProgress{BatchID: watched, Completed: 2, Total: 2, Done: true})

	got := readEvent(t, filtered)
	if got.BatchID != watched || got.Type != "batch_done" || got.Progress.Completed != 2 {
		t.Errorf("filtered client got %+v", got)
	}

	first := readEvent(t, all)
	second := readEvent(t, all)
	if first.BatchID != other || second.BatchID != watched {
		t.Errorf("unfiltered client got %s then %s", first.BatchID, second.BatchID)
	}
	if first.Type != "batch_progress" {
		t.Errorf("type = %q, want batch_progress", first.Type)
	}
}

func TestHubUnregistersOnClose(t *testing.T) {
	hub, url := startHub(t)

	conn := dial(t, url)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestHubRejectsBadFilter(t *testing.T) {
	_, url := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?batch_id=nope", nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Errorf("expected 400 response, got %v", resp)
	}
}
