package domain

import (
	"time"

	"github.com/google/uuid"
)

// FaceReference is the stored reference descriptor of one user.
// Re-enrollment replaces it wholesale; there is no history.
type FaceReference struct {
	UserID       string    `json:"user_id"`
	Descriptor   []float64 `json:"-"`
	SampleCount  int       `json:"sample_count"`
	QualityScore float64   `json:"quality_score"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Verification is the outcome of one verify call. It is never persisted.
type Verification struct {
	UserID    string    `json:"user_id"`
	Matched   bool      `json:"matched"`
	Distance  float64   `json:"distance"`
	Threshold float64   `json:"threshold"`
	EventID   uuid.UUID `json:"event_id,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
}

// AttendanceKind is the attendance action a successful verification authorizes.
type AttendanceKind string

const (
	AttendanceClockIn  AttendanceKind = "clock_in"
	AttendanceClockOut AttendanceKind = "clock_out"
)

// ParseAttendanceKind defaults to clock-in when s is empty.
func ParseAttendanceKind(s string) (AttendanceKind, bool) {
	switch AttendanceKind(s) {
	case "", AttendanceClockIn:
		return AttendanceClockIn, true
	case AttendanceClockOut:
		return AttendanceClockOut, true
	default:
		return "", false
	}
}

// AttendanceEvent is published when a verification matches.
type AttendanceEvent struct {
	ID         uuid.UUID      `json:"event_id"`
	UserID     string         `json:"user_id"`
	Kind       AttendanceKind `json:"kind"`
	Distance   float64        `json:"distance"`
	OccurredAt time.Time      `json:"occurred_at"`
}
