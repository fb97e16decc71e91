package router

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mohammed-shakir/aoi-tiling/internal/render"
)

func dialWS(t *testing.T, h *Handlers) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h.WebSocket())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebSocket_StreamsChunksInOrder(t *testing.T) {
	conn := dialWS(t, newHandlers(t, nil))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(squareReq)); err != nil {
		t.Fatalf("write: %v", err)
	}

	var tiles int
	for i := 0; ; i++ {
		var msg render.ChunkMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read chunk %d: %v", i, err)
		}
		if msg.ChunkIndex != i || msg.TotalChunks != 4 {
			t.Fatalf("chunk %d: index=%d total=%d", i, msg.ChunkIndex, msg.TotalChunks)
		}
		var feats []json.RawMessage
		if err := json.Unmarshal(msg.Features, &feats); err != nil {
			t.Fatalf("features: %v", err)
		}
		tiles += len(feats)
		if msg.IsLast {
			break
		}
	}
	if tiles != 16 {
		t.Fatalf("tiles=%d want 16", tiles)
	}

	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("want normal close, got %v", err)
	}
}

func TestWebSocket_BadRequestClosesWithError(t *testing.T) {
	conn := dialWS(t, newHandlers(t, nil))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"geoJson":{"type":"Point","coordinates":[0,0]}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	var e wsError
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	if e.Error == "" {
		t.Fatalf("empty error message")
	}
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("want policy violation close, got %v", err)
	}
}
