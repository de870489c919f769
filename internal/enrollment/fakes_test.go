package enrollment

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/biometric"
	"github.com/saturnino-fabrica-de-software/facegate/internal/camera"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

const testInterval = 500 * time.Millisecond

type fakeDetector struct {
	mu    sync.Mutex
	det   *provider.Detection
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (d *fakeDetector) set(desc biometric.Descriptor, score float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.det = &provider.Detection{Descriptor: desc, Score: score}
	d.err = nil
}

func (d *fakeDetector) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.det = nil
	d.err = err
}

func (d *fakeDetector) setNoFace() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.det = nil
	d.err = nil
}

// block makes Detect wait until the returned channel is closed.
func (d *fakeDetector) block() chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gate = make(chan struct{})
	return d.gate
}

func (d *fakeDetector) Detect(ctx context.Context, frame provider.Frame) (*provider.Detection, error) {
	d.calls.Add(1)

	d.mu.Lock()
	gate := d.gate
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.det == nil {
		return nil, d.err
	}
	out := *d.det
	out.Descriptor = d.det.Descriptor.Clone()
	return &out, d.err
}

type fakeStream struct {
	cam      *fakeCamera
	released atomic.Int32
}

func (s *fakeStream) Frame(ctx context.Context) (provider.Frame, error) {
	s.cam.mu.Lock()
	defer s.cam.mu.Unlock()
	if s.released.Load() > 0 {
		return provider.Frame{}, camera.ErrReleased
	}
	if s.cam.frameErr != nil {
		return provider.Frame{}, s.cam.frameErr
	}
	return provider.Frame{Data: []byte("frame"), ContentType: "image/jpeg"}, nil
}

func (s *fakeStream) Release() {
	s.released.Add(1)
}

type fakeCamera struct {
	mu         sync.Mutex
	acquireErr error
	frameErr   error
	streams    []*fakeStream
}

func (c *fakeCamera) Acquire(ctx context.Context) (camera.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acquireErr != nil {
		return nil, c.acquireErr
	}
	s := &fakeStream{cam: c}
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *fakeCamera) setFrameErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frameErr = err
}

func (c *fakeCamera) acquired() []*fakeStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeStream(nil), c.streams...)
}

type fakeLoader struct {
	err   error
	calls atomic.Int32
}

func (l *fakeLoader) Load(ctx context.Context) error {
	l.calls.Add(1)
	return l.err
}

type fakeStore struct {
	mu    sync.Mutex
	errs  []error
	saved []*domain.FaceReference
	calls int
	gate  chan struct{}
}

// block makes Save wait until the returned channel is closed.
func (s *fakeStore) block() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	return s.gate
}

func (s *fakeStore) Save(ctx context.Context, ref *domain.FaceReference) error {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return err
		}
	}
	s.saved = append(s.saved, ref)
	return nil
}

func (s *fakeStore) savedRefs() []*domain.FaceReference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.FaceReference(nil), s.saved...)
}

type statusRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *statusRecorder) record(st Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.states); n == 0 || r.states[n-1] != st.State {
		r.states = append(r.states, st.State)
	}
}

func (r *statusRecorder) seen() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type auditRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *auditRecorder) Log(ctx context.Context, event audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *auditRecorder) recorded() []audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]audit.Event(nil), a.events...)
}

type testEnv struct {
	clock    *clockwork.FakeClock
	detector *fakeDetector
	camera   *fakeCamera
	loader   *fakeLoader
	store    *fakeStore
	recorder *statusRecorder
	audit    *auditRecorder
	deps     Deps
}

func newTestEnv() *testEnv {
	env := &testEnv{
		clock:    clockwork.NewFakeClock(),
		detector: &fakeDetector{},
		camera:   &fakeCamera{},
		loader:   &fakeLoader{},
		store:    &fakeStore{},
		recorder: &statusRecorder{},
		audit:    &auditRecorder{},
	}
	env.deps = Deps{
		Detector:     env.detector,
		Loader:       env.loader,
		Store:        env.store,
		Clock:        env.clock,
		PollInterval: testInterval,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Audit:        env.audit,
		OnChange:     env.recorder.record,
	}
	return env
}

func (e *testEnv) session() *Session {
	return NewSession("emp-42", e.camera, e.deps)
}

// started returns a session in detecting with a face present.
func (e *testEnv) started(t *testing.T) *Session {
	t.Helper()
	s := e.session()
	_, err := s.Initialize(context.Background())
	require.NoError(t, err)
	e.detector.set(biometric.Descriptor{0, 0}, 0.97)
	e.poll(t, s, func(st Status) bool { return st.FacePresent })
	return s
}

// poll advances the fake clock by one interval until cond holds.
func (e *testEnv) poll(t *testing.T, s *Session, cond func(Status) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if cond(s.Status()) {
			return true
		}
		e.clock.Advance(testInterval)
		return false
	}, 2*time.Second, 5*time.Millisecond)
}
