package ws

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSessionStatus EventType = "enrollment.status"
	EventFrameRejected EventType = "frame.rejected"
	EventSessionClosed EventType = "enrollment.closed"
)

type Event struct {
	SessionID uuid.UUID   `json:"session_id"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ClientMessage is a text message sent by the browser. Frames travel as
// binary messages instead.
type ClientMessage struct {
	Type string `json:"type"`
	// Name is the getUserMedia DOMException name for camera_error messages.
	Name string `json:"name,omitempty"`
}

const clientCameraError = "camera_error"
