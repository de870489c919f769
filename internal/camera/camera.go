package camera

import (
	"context"
	"errors"

	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

var (
	// ErrNoFrame is returned by Stream.Frame before the source delivered any image.
	ErrNoFrame = errors.New("camera has not produced a frame yet")

	// ErrReleased is returned when a released stream is used.
	ErrReleased = errors.New("camera stream released")
)

// Camera is a source of live frames that must be acquired before use.
// Acquire classifies failures as domain camera errors.
type Camera interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is an acquired camera. Release may be called any number of
// times; only the first call has an effect.
type Stream interface {
	Frame(ctx context.Context) (provider.Frame, error)
	Release()
}
