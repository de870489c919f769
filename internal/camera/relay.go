package camera

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

// MaxFrameSize is the largest frame a client may push.
const MaxFrameSize = 10 * 1024 * 1024

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Relay is a camera owned by a browser. The client opens the device
// itself and pushes frames; if opening failed it reports the
// getUserMedia error name instead, which Acquire returns classified.
type Relay struct {
	mu          sync.Mutex
	clientError string
	acquired    bool
	released    bool
	latest      provider.Frame
}

func NewRelay(clientError string) *Relay {
	return &Relay{clientError: clientError}
}

// ReportError records a getUserMedia failure for the next Acquire.
// An empty name clears it.
func (r *Relay) ReportError(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clientError = name
}

func (r *Relay) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clientError != "" {
		return nil, ClassifyBrowserError(r.clientError).WithError(
			fmt.Errorf("client reported %s", r.clientError))
	}

	r.acquired = true
	r.released = false
	r.latest = provider.Frame{}
	return &relayStream{relay: r}, nil
}

// Push stores data as the current frame. Frames pushed while the camera
// is not acquired are rejected.
func (r *Relay) Push(data []byte, contentType string) error {
	contentType, err := ValidateFrame(data, contentType)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.acquired || r.released {
		return domain.ErrInvalidSessionState.WithError(ErrReleased)
	}
	r.latest = provider.Frame{
		Data:        data,
		ContentType: contentType,
		CapturedAt:  time.Now(),
	}
	return nil
}

// Acquired reports whether a stream is currently held.
func (r *Relay) Acquired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.acquired && !r.released
}

// ValidateFrame checks a frame's size and content type and returns the
// bare media type. An empty or generic content type is sniffed from data.
func ValidateFrame(data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", domain.ErrInvalidImage
	}
	if len(data) > MaxFrameSize {
		return "", domain.ErrInvalidImage.WithError(
			fmt.Errorf("frame too large (%d bytes, maximum %d)", len(data), MaxFrameSize))
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !allowedContentTypes[contentType] {
		return "", domain.ErrInvalidImage.WithError(fmt.Errorf("unsupported content type %q", contentType))
	}
	return contentType, nil
}

type relayStream struct {
	relay *Relay
	once  sync.Once
}

func (s *relayStream) Frame(ctx context.Context) (provider.Frame, error) {
	if err := ctx.Err(); err != nil {
		return provider.Frame{}, err
	}

	s.relay.mu.Lock()
	defer s.relay.mu.Unlock()

	if s.relay.released {
		return provider.Frame{}, ErrReleased
	}
	if s.relay.latest.Empty() {
		return provider.Frame{}, ErrNoFrame
	}
	return s.relay.latest, nil
}

func (s *relayStream) Release() {
	s.once.Do(func() {
		s.relay.mu.Lock()
		defer s.relay.mu.Unlock()
		s.relay.released = true
		s.relay.latest = provider.Frame{}
	})
}
