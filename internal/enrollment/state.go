package enrollment

import (
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facegate/internal/biometric"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// RequiredSamples is the number of accepted samples averaged into a reference.
const RequiredSamples = 3

// State is the position of a Session in the enrollment flow.
type State string

const (
	StateIdle               State = "idle"
	StateCameraInitializing State = "camera_initializing"
	StateDetecting          State = "detecting"
	StateCapturing          State = "capturing"
	StateAveraging          State = "averaging"
	StateDone               State = "done"
	StateError              State = "error"
)

// Terminal reports whether no further operation except Close is allowed.
func (s State) Terminal() bool {
	return s == StateDone
}

// Sample is one accepted capture.
type Sample struct {
	Descriptor biometric.Descriptor
	Score      float64
	Quality    biometric.Quality
}

// Status is a point-in-time view of a Session. It never carries descriptors.
type Status struct {
	ID          uuid.UUID         `json:"id"`
	UserID      string            `json:"user_id"`
	State       State             `json:"state"`
	Samples     int               `json:"samples"`
	Required    int               `json:"required"`
	FacePresent bool              `json:"face_present"`
	Quality     biometric.Quality `json:"quality"`
	LastError   *domain.AppError  `json:"last_error,omitempty"`
	Closed      bool              `json:"closed,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
