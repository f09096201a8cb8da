package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/speechset/speechset/internal/format"
)

// dialWS connects to the event feed and waits until the hub has registered
// the client, so broadcasts cannot race the subscription.
func dialWS(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, resp, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	deadline := time.Now().Add(2 * time.Second)
	for f.srv.Hub().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("hub never registered the client")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

// readEvent reads one JSON event frame from conn.
func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("websocket read: %v", err)
	}
	ev := map[string]any{}
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode event %q: %v", data, err)
	}
	return ev
}

func TestWebsocket_TranscriptSavedEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	conn := dialWS(t, f)

	resp := f.do(t, http.MethodPut, "/api/transcripts/take.wav", map[string]string{"text": "Hello."})
	resp.Body.Close()

	ev := readEvent(t, conn)
	if ev["type"] != "transcript-saved" {
		t.Fatalf("event type = %v, want transcript-saved", ev["type"])
	}
	data, _ := ev["data"].(map[string]any)
	if data["file"] != "take.wav" || data["text"] != "Hello." {
		t.Errorf("event data = %v, want the saved transcript", data)
	}
}

func TestWebsocket_FormatChangedEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	conn := dialWS(t, f)

	doc := f.settings.Document()
	doc.TranscriptFormat = format.CommonVoice
	resp := f.do(t, http.MethodPut, "/api/settings", doc)
	resp.Body.Close()

	ev := readEvent(t, conn)
	if ev["type"] != "format-changed" {
		t.Fatalf("event type = %v, want format-changed", ev["type"])
	}
	data, _ := ev["data"].(map[string]any)
	if data["format"] != string(format.CommonVoice) {
		t.Errorf("event data = %v, want the new format", data)
	}
}

func TestWebsocket_CacheClearedEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	conn := dialWS(t, f)

	resp := f.do(t, http.MethodPost, "/api/clear-cache", nil)
	resp.Body.Close()

	ev := readEvent(t, conn)
	if ev["type"] != "cache-cleared" {
		t.Fatalf("event type = %v, want cache-cleared", ev["type"])
	}
}
