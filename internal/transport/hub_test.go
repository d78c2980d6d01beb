package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/synheart/roomwatch/internal/encoding"
	"github.com/synheart/roomwatch/internal/models"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid frame: %v", err)
	}
	return decoded
}

func TestWebSocketHub_Broadcast(t *testing.T) {
	hub := NewWebSocketHub(encoding.NewJSONEncoder(), nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	all := dial(t, server, "")
	onlyTwo := dial(t, server, "?device=2")
	waitFor(t, "two clients", func() bool { return hub.ClientCount() == 2 })

	if err := hub.Broadcast(frame(1, "1")); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	if err := hub.Broadcast(frame(2, "2")); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	if got := readFrame(t, all)["sequence"]; got != float64(1) {
		t.Errorf("unfiltered client first frame = %v, want 1", got)
	}
	if got := readFrame(t, all)["sequence"]; got != float64(2) {
		t.Errorf("unfiltered client second frame = %v, want 2", got)
	}
	if got := readFrame(t, onlyTwo)["sequence"]; got != float64(2) {
		t.Errorf("filtered client should only see device 2, got frame %v", got)
	}
}

func TestWebSocketHub_ProtobufFramesAreBinary(t *testing.T) {
	hub := NewWebSocketHub(encoding.NewProtobufEncoder(), nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server, "")
	waitFor(t, "client", func() bool { return hub.ClientCount() == 1 })

	if err := hub.Broadcast(frame(9, "1")); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if messageType != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary", messageType)
	}
	decoded, err := encoding.DecodeProtobuf(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded["sequence"] != float64(9) {
		t.Errorf("sequence = %v, want 9", decoded["sequence"])
	}
}

func TestWebSocketHub_ClientDisconnect(t *testing.T) {
	hub := NewWebSocketHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server, "")
	waitFor(t, "client", func() bool { return hub.ClientCount() == 1 })

	conn.Close()
	waitFor(t, "disconnect", func() bool { return hub.ClientCount() == 0 })

	if err := hub.Broadcast(frame(1, "1")); err != nil {
		t.Errorf("broadcast with no clients: %v", err)
	}
}

func TestWebSocketHub_Close(t *testing.T) {
	hub := NewWebSocketHub(nil, nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server, "")
	waitFor(t, "client", func() bool { return hub.ClientCount() == 1 })

	hub.Close()
	if hub.ClientCount() != 0 {
		t.Errorf("expected no clients after close, got %d", hub.ClientCount())
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}

func TestSSEHub_Broadcast(t *testing.T) {
	hub := NewSSEHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"?device=1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("wrong content type: %s", ct)
	}
	waitFor(t, "sse client", func() bool { return hub.ClientCount() == 1 })

	hub.Broadcast(frame(1, "2"))
	hub.Broadcast(frame(2, "1"))

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &decoded); err != nil {
			t.Fatalf("invalid event: %v", err)
		}
		if decoded["sequence"] != float64(2) {
			t.Errorf("expected only the device 1 frame, got %v", decoded["sequence"])
		}
		return
	}
	t.Fatalf("no event received: %v", scanner.Err())
}

func TestSSEHub_CloseEndsStream(t *testing.T) {
	hub := NewSSEHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer resp.Body.Close()
	waitFor(t, "sse client", func() bool { return hub.ClientCount() == 1 })

	hub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		bufio.NewReader(resp.Body).ReadString('\x00')
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open after close")
	}
}

func TestLive_EndToEnd(t *testing.T) {
	live := NewLive(encoding.NewJSONEncoder(), 16, nil)
	server := httptest.NewServer(live.WebSocket)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		live.Run(ctx)
		close(done)
	}()

	conn := dial(t, server, "")
	waitFor(t, "client", func() bool { return live.WebSocket.ClientCount() == 1 })

	reading := models.Reading{DeviceID: "1", RoomName: "Living Room", Timestamp: time.Now()}
	live.Feed.PublishReading(reading)
	alert := models.NewAlert(reading, "Inactivity Alert", "body", models.InactivityContext{Minutes: 31})
	if err := live.Feed.Notify(context.Background(), alert); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	if got := readFrame(t, conn)["type"]; got != "reading" {
		t.Errorf("first frame type = %v", got)
	}
	second := readFrame(t, conn)
	if second["type"] != "alert" {
		t.Errorf("second frame type = %v", second["type"])
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("live stream did not stop")
	}
	if live.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", live.Dropped())
	}
}
