package provider

import (
	"context"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/biometric"
)

// Frame is one still image taken from a camera stream.
type Frame struct {
	Data        []byte
	ContentType string
	CapturedAt  time.Time
}

// Empty reports whether the frame carries no image data.
func (f Frame) Empty() bool {
	return len(f.Data) == 0
}

// Detection is the single face found in a frame.
type Detection struct {
	Descriptor biometric.Descriptor `json:"-"`
	Score      float64              `json:"score"`
	Box        BoundingBox          `json:"bounding_box"`
}

// BoundingBox represents the face area in the image
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detector finds at most one face in a frame and extracts its descriptor.
// A nil Detection with a nil error means no face was found.
type Detector interface {
	Detect(ctx context.Context, frame Frame) (*Detection, error)
}

// Model is the loadable face model behind a Detector.
type Model interface {
	// Probe checks that the model assets are reachable. It must be cheap.
	Probe(ctx context.Context) error

	// Load fully initializes the model. Implementations may be slow.
	Load(ctx context.Context) error
}
