package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

const defaultSnapshotTimeout = 2 * time.Second

// Snapshot is a kiosk IP camera that serves a still image on every GET
// of its snapshot URL.
type Snapshot struct {
	url        string
	httpClient *http.Client
}

// NewSnapshot creates a Snapshot camera. A nil client uses one with a
// short timeout.
func NewSnapshot(url string, client *http.Client) *Snapshot {
	if client == nil {
		client = &http.Client{Timeout: defaultSnapshotTimeout}
	}
	return &Snapshot{url: url, httpClient: client}
}

// Acquire fetches one snapshot to prove the camera is reachable.
func (c *Snapshot) Acquire(ctx context.Context) (Stream, error) {
	if _, err := c.fetch(ctx); err != nil {
		return nil, err
	}
	return &snapshotStream{camera: c}, nil
}

func (c *Snapshot) fetch(ctx context.Context) (provider.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return provider.Frame{}, classifyTransport(err).WithError(fmt.Errorf("create request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return provider.Frame{}, ctx.Err()
		}
		return provider.Frame{}, classifyTransport(err).WithError(fmt.Errorf("fetch snapshot: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return provider.Frame{}, classifyStatus(resp.StatusCode).WithError(
			fmt.Errorf("snapshot returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFrameSize+1))
	if err != nil {
		return provider.Frame{}, classifyTransport(err).WithError(fmt.Errorf("read snapshot: %w", err))
	}
	contentType, err := ValidateFrame(data, resp.Header.Get("Content-Type"))
	if err != nil {
		return provider.Frame{}, classifyStatus(http.StatusUnsupportedMediaType).WithError(err)
	}

	return provider.Frame{Data: data, ContentType: contentType, CapturedAt: time.Now()}, nil
}

type snapshotStream struct {
	camera *Snapshot

	mu       sync.Mutex
	released bool
}

func (s *snapshotStream) Frame(ctx context.Context) (provider.Frame, error) {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return provider.Frame{}, ErrReleased
	}
	return s.camera.fetch(ctx)
}

func (s *snapshotStream) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
}
