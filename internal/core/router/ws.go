package router

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mohammed-shakir/aoi-tiling/internal/logger"
	"github.com/mohammed-shakir/aoi-tiling/internal/render"
)

const (
	wsWriteWait    = 10 * time.Second
	wsReadLimit    = maxBodyBytes
	wsRequestWait  = 30 * time.Second
	wsCloseTimeout = time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 64 << 10,
	// origin policy matches the permissive CORS middleware
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsPublisher writes chunk messages to one socket. The renderer publishes
// sequentially, so it is the only writer while the stream runs.
type wsPublisher struct {
	conn *websocket.Conn
}

func (p wsPublisher) Publish(ctx context.Context, msg render.ChunkMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return p.conn.WriteJSON(msg)
}

type wsError struct {
	Error string `json:"error"`
}

// WebSocket serves GET /ws/tiles. The client sends one TileRequest; the
// server pushes chunk messages in order and closes. Closing the socket early
// cancels the stream.
func (h *Handlers) WebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the http error
			h.log.DebugContext(r.Context(), "websocket upgrade failed", "err", err)
			return
		}
		defer conn.Close()
		ctx := logger.WithComponent(r.Context(), "ws")

		conn.SetReadLimit(wsReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(wsRequestWait))
		_, body, err := conn.ReadMessage()
		if err != nil {
			h.log.DebugContext(ctx, "websocket request not received", "err", err)
			return
		}
		_ = conn.SetReadDeadline(time.Time{})

		res, err := h.generate(ctx, body)
		if err != nil {
			h.closeWithError(ctx, conn, err)
			return
		}
		s, err := h.renderer.StreamChunks(ctx, res.Tiles, wsPublisher{conn: conn})
		if err != nil {
			h.closeWithError(ctx, conn, err)
			return
		}
		ctx = logger.WithStreamID(ctx, s.ID)
		h.log.InfoContext(ctx, "websocket stream started", "tiles", len(res.Tiles), "chunks", s.TotalChunks)

		// any read error means the peer is gone
		go func() {
			for {
				if _, _, err := conn.NextReader(); err != nil {
					s.Cancel()
					return
				}
			}
		}()

		err = s.Wait()
		switch {
		case err == nil:
			closeConn(conn, websocket.CloseNormalClosure, "done")
		case errors.Is(err, context.Canceled):
			h.log.InfoContext(ctx, "websocket stream cancelled", "sent", s.Sent(), "total", s.TotalChunks)
		default:
			h.log.WarnContext(ctx, "websocket stream failed", "sent", s.Sent(), "err", err)
			closeConn(conn, websocket.CloseInternalServerErr, "stream failed")
		}
	}
}

func (h *Handlers) closeWithError(ctx context.Context, conn *websocket.Conn, err error) {
	status := StatusFor(err)
	h.log.DebugContext(ctx, "websocket request failed", "status", status, "err", err)
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = conn.WriteJSON(wsError{Error: err.Error()})

	code := websocket.CloseInternalServerErr
	if status == http.StatusBadRequest {
		code = websocket.ClosePolicyViolation
	}
	closeConn(conn, code, "request failed")
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseTimeout))
}
