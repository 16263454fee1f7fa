package hub

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// ServeConn attaches an upgraded websocket connection to a room and
// blocks until the connection goes away. The initial full snapshot is
// queued before any relayed event, so a client can apply everything it
// receives in order.
func (m *Manager) ServeConn(ctx context.Context, roomID string, conn *websocket.Conn) error {
	h := m.hub(roomID)
	p, err := h.attach(ctx)
	if err != nil {
		return err
	}
	defer h.detach(p)

	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(conn, p)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Info("peer read ended", "room", roomID, "err", err)
			}
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		h.handleInbound(ctx, p, raw)
	}

	h.detach(p)
	_ = conn.Close()
	<-done
	return nil
}

// writePump drains the peer's queue onto the wire and keeps the
// connection alive with pings. It exits when the peer is detached (queue
// closed) or a write fails.
func writePump(conn *websocket.Conn, p *Peer) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	defer conn.Close()
	for {
		select {
		case raw, ok := <-p.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-t.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
