package mock

import (
	"context"
	"crypto/sha256"
	"math"

	"github.com/saturnino-fabrica-de-software/facegate/internal/biometric"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

const (
	descriptorDimension = 128

	// Frames shorter than this are treated as containing no face.
	minFrameSize = 1000

	defaultScore = 0.97
)

// Detector implements provider.Detector and provider.Model for tests and
// local development. Descriptors are derived from a hash of the frame, so
// the same bytes always produce the same descriptor.
type Detector struct {
	score float64
}

// New creates a mock detector reporting a fixed excellent score.
func New() *Detector {
	return &Detector{score: defaultScore}
}

// WithScore returns a detector reporting score for every face.
func WithScore(score float64) *Detector {
	return &Detector{score: score}
}

func (d *Detector) Detect(ctx context.Context, frame provider.Frame) (*provider.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame.Empty() {
		return nil, domain.ErrInvalidImage
	}
	if len(frame.Data) < minFrameSize {
		return nil, nil
	}

	return &provider.Detection{
		Descriptor: Descriptor(frame.Data),
		Score:      d.score,
		Box: provider.BoundingBox{
			X:      0.1,
			Y:      0.1,
			Width:  0.8,
			Height: 0.8,
		},
	}, nil
}

func (d *Detector) Probe(ctx context.Context) error { return nil }

func (d *Detector) Load(ctx context.Context) error { return nil }

// Descriptor returns the unit-length descriptor the mock assigns to data.
func Descriptor(data []byte) biometric.Descriptor {
	hash := sha256.Sum256(data)
	out := make(biometric.Descriptor, descriptorDimension)
	hashLen := len(hash)

	for i := 0; i < descriptorDimension; i++ {
		idx := i % hashLen
		//nolint:gosec // idx is always < hashLen due to modulo operation
		out[i] = (float64(hash[idx])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range out {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}

	for i := range out {
		out[i] /= norm
	}
	return out
}

var (
	_ provider.Detector = (*Detector)(nil)
	_ provider.Model    = (*Detector)(nil)
)
