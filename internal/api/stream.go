package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	streamBuffer = 64
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// GET /v1/stream: websocket push of every newly admitted item.
// ?backlog=true first replays the current buffer.
func (h *Handler) stream(c echo.Context) error {
	sub := h.eng.Subscribe(streamBuffer)
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already replied to the client.
		h.logger.Warn("websocket upgrade failed", "err", err)
		return nil
	}
	defer conn.Close()

	log := h.logger.With("client", sub.ID(), "remote", c.RealIP())
	log.Info("stream client connected")
	defer func() { log.Info("stream client disconnected", "dropped", sub.Dropped()) }()

	if c.QueryParam("backlog") == "true" {
		for _, it := range h.eng.Notifications() {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(it); err != nil {
				return nil
			}
		}
	}

	// Reads only serve to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case it, ok := <-sub.C():
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(it); err != nil {
				log.Debug("stream write failed", "err", err)
				return nil
			}
		}
	}
}
