package ws

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facegate/internal/camera"
)

// LocalSessionID is the fiber local holding the uuid.UUID of the session
// a connection watches. It must be set before the upgrade.
const LocalSessionID = "session_id"

const maxMessageSize = camera.MaxFrameSize + 1024

// Handler streams session events to the client and feeds binary frames
// into sink.
func Handler(hub *Hub, sink FrameSink, logger *slog.Logger) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		sessionIDValue := c.Locals(LocalSessionID)
		if sessionIDValue == nil {
			_ = c.Close()
			return
		}

		sessionID, ok := sessionIDValue.(uuid.UUID)
		if !ok {
			_ = c.Close()
			return
		}

		client := NewClient(hub, c, sessionID, sink, logger.With(slog.String("session_id", sessionID.String())))
		if !hub.Register(client) {
			_ = c.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
