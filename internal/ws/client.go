package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// FrameSink receives what the browser sends for a session.
type FrameSink interface {
	PushFrame(sessionID uuid.UUID, data []byte, contentType string) error
	ReportCameraError(sessionID uuid.UUID, name string) error
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID uuid.UUID
	send      chan []byte
	sink      FrameSink
	logger    *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, sessionID uuid.UUID, sink FrameSink, logger *slog.Logger) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
		sink:      sink,
		logger:    logger,
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handle(messageType, data)
	}
}

func (c *Client) handle(messageType int, data []byte) {
	var err error
	switch messageType {
	case websocket.BinaryMessage:
		err = c.sink.PushFrame(c.sessionID, data, "")
	case websocket.TextMessage:
		var msg ClientMessage
		if jerr := json.Unmarshal(data, &msg); jerr != nil {
			c.logger.Debug("ignoring malformed ws message", slog.Any("error", jerr))
			return
		}
		if msg.Type == clientCameraError {
			err = c.sink.ReportCameraError(c.sessionID, msg.Name)
		}
	}
	if err != nil {
		c.reply(EventFrameRejected, errorPayload(err))
	}
}

func errorPayload(err error) *domain.AppError {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return domain.ErrInvalidImage.WithError(err)
}

// reply sends an event to this client only. It is dropped when the
// client is not keeping up.
func (c *Client) reply(eventType EventType, data interface{}) {
	message, err := json.Marshal(Event{
		SessionID: c.sessionID,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- message:
	default:
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
