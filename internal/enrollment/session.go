package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/biometric"
	"github.com/saturnino-fabrica-de-software/facegate/internal/camera"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/observability"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

const defaultPollInterval = 500 * time.Millisecond

// ModelLoader makes sure the face model is ready. *provider.Loader
// satisfies it.
type ModelLoader interface {
	Load(ctx context.Context) error
}

// DescriptorSaver persists a finished reference.
type DescriptorSaver interface {
	Save(ctx context.Context, ref *domain.FaceReference) error
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Detector     provider.Detector
	Loader       ModelLoader
	Store        DescriptorSaver
	Clock        clockwork.Clock
	PollInterval time.Duration
	Logger       *slog.Logger
	Audit        audit.Logger

	// OnChange, if set, receives every status change. It is called
	// without the session lock held.
	OnChange func(Status)
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.PollInterval <= 0 {
		d.PollInterval = defaultPollInterval
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Audit == nil {
		d.Audit = &audit.NoOpLogger{}
	}
	return d
}

// Session is one enrollment attempt for one user. All methods are safe
// for concurrent use.
type Session struct {
	id     uuid.UUID
	userID string
	camera camera.Camera
	deps   Deps
	logger *slog.Logger

	// busy is held while the detector runs on this session's camera, so a
	// poll never overlaps a capture.
	busy sync.Mutex

	mu           sync.Mutex
	state        State
	stream       camera.Stream
	poller       *poller
	samples      []Sample
	enrolled     int
	facePresent  bool
	quality      biometric.Quality
	lastErr      *domain.AppError
	capturing    bool
	closed       bool
	updatedAt    time.Time
	lastActivity time.Time
}

// NewSession creates an idle session. Call Initialize to start the camera.
func NewSession(userID string, cam camera.Camera, deps Deps) *Session {
	deps = deps.withDefaults()
	id := uuid.New()
	now := deps.Clock.Now()

	return &Session{
		id:           id,
		userID:       userID,
		camera:       cam,
		deps:         deps,
		logger:       deps.Logger.With(slog.String("session_id", id.String()), slog.String("user_id", userID)),
		state:        StateIdle,
		quality:      biometric.QualityNone,
		updatedAt:    now,
		lastActivity: now,
	}
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) UserID() string {
	return s.userID
}

// Camera returns the camera the session acquires on Initialize.
func (s *Session) Camera() camera.Camera {
	return s.camera
}

// Status returns the current view of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	samples := len(s.samples)
	if s.state == StateDone {
		samples = s.enrolled
	}
	return Status{
		ID:          s.id,
		UserID:      s.userID,
		State:       s.state,
		Samples:     samples,
		Required:    RequiredSamples,
		FacePresent: s.facePresent,
		Quality:     s.quality,
		LastError:   s.lastErr,
		Closed:      s.closed,
		UpdatedAt:   s.updatedAt,
	}
}

// Initialize acquires the camera and loads the face model concurrently.
// Both must succeed. On failure anything acquired is released, the
// session returns to idle with the classified error recorded, and the
// error is returned. It is never retried automatically.
func (s *Session) Initialize(ctx context.Context) (Status, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Status{}, domain.ErrSessionNotFound
	}
	if s.state != StateIdle {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, domain.ErrInvalidSessionState
	}
	s.lastErr = nil
	s.touchLocked()
	s.setStateLocked(StateCameraInitializing)
	s.mu.Unlock()
	s.notify()

	var stream camera.Stream
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := s.camera.Acquire(gctx)
		if err != nil {
			return classifyCameraError(err)
		}
		stream = st
		return nil
	})
	g.Go(func() error {
		// ctx, not gctx: the load is shared with other sessions.
		return s.deps.Loader.Load(ctx)
	})
	err := g.Wait()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if stream != nil {
			stream.Release()
		}
		return Status{}, domain.ErrSessionNotFound
	}

	if err != nil {
		if stream != nil {
			stream.Release()
		}
		appErr := asAppError(err, domain.ErrCameraFailure)
		s.lastErr = appErr
		s.setStateLocked(StateIdle)
		st := s.statusLocked()
		s.mu.Unlock()

		observability.Enrollments.WithLabelValues("environment_error").Inc()
		s.logger.Warn("enrollment initialization failed",
			slog.String("code", appErr.Code),
			slog.Any("error", err),
		)
		s.notify()
		return st, appErr
	}

	s.stream = stream
	s.facePresent = false
	s.quality = biometric.QualityNone
	s.setStateLocked(StateDetecting)
	s.poller = startPoller(s.deps.Clock, s.deps.PollInterval, s.poll)
	st := s.statusLocked()
	s.mu.Unlock()

	s.logger.Info("enrollment camera ready")
	s.notify()
	return st, nil
}

// poll runs one detection on the current frame and updates the face
// presence and quality. It is skipped while a capture is in flight.
func (s *Session) poll(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateDetecting || s.capturing || s.stream == nil {
		s.mu.Unlock()
		return
	}
	stream := s.stream
	s.mu.Unlock()

	if !s.busy.TryLock() {
		return
	}
	defer s.busy.Unlock()

	present, quality := false, biometric.QualityNone

	frame, err := stream.Frame(ctx)
	switch {
	case err == nil:
		det, derr := provider.DetectObserved(ctx, s.deps.Detector, frame, "poll")
		if derr != nil {
			if ctx.Err() == nil {
				s.logger.Debug("poll detection failed", slog.Any("error", derr))
			}
			return
		}
		if det != nil {
			present, quality = true, biometric.ClassifyQuality(det.Score)
		}
	case errors.Is(err, camera.ErrNoFrame):
	case errors.Is(err, camera.ErrReleased), ctx.Err() != nil:
		return
	default:
		s.failEnvironment(stream, classifyCameraError(err))
		return
	}

	s.mu.Lock()
	if ctx.Err() != nil || s.state != StateDetecting || s.capturing {
		s.mu.Unlock()
		return
	}
	changed := s.facePresent != present || s.quality != quality
	s.facePresent = present
	s.quality = quality
	if changed {
		s.updatedAt = s.deps.Clock.Now()
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// Capture takes one sample from the current frame. It is only allowed
// while a face is detected, and re-detects rather than reusing the last
// poll. Poor quality samples are rejected without changing the sample
// count. The third accepted sample finalizes the enrollment.
func (s *Session) Capture(ctx context.Context) (Status, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Status{}, domain.ErrSessionNotFound
	}
	if s.capturing {
		st := s.statusLocked()
		s.mu.Unlock()
		observability.Captures.WithLabelValues("in_progress").Inc()
		return st, domain.ErrCaptureInProgress
	}
	if s.state != StateDetecting {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, domain.ErrInvalidSessionState
	}
	if !s.facePresent {
		st := s.statusLocked()
		s.mu.Unlock()
		observability.Captures.WithLabelValues("no_face").Inc()
		return st, domain.ErrNoFaceDetected
	}
	s.capturing = true
	s.touchLocked()
	s.setStateLocked(StateCapturing)
	stream := s.stream
	s.mu.Unlock()
	s.notify()

	s.busy.Lock()
	sample, err := s.takeSample(ctx, stream)
	s.busy.Unlock()

	if err != nil {
		var appErr *domain.AppError
		if errors.As(err, &appErr) && appErr.Kind == domain.KindEnvironment {
			observability.Captures.WithLabelValues("environment_error").Inc()
			s.failEnvironment(stream, appErr)
			return s.Status(), appErr
		}
		return s.abortCapture(err)
	}

	s.mu.Lock()
	if s.closed || s.state != StateCapturing {
		s.capturing = false
		st := s.statusLocked()
		s.mu.Unlock()
		return st, domain.ErrInvalidSessionState
	}
	s.samples = append(s.samples, sample)
	s.capturing = false
	s.facePresent = true
	s.quality = sample.Quality
	count := len(s.samples)

	var p *poller
	if count >= RequiredSamples {
		p = s.enterAveragingLocked()
	} else {
		s.setStateLocked(StateDetecting)
	}
	st := s.statusLocked()
	s.mu.Unlock()

	observability.Captures.WithLabelValues("accepted").Inc()
	s.logger.Info("enrollment sample accepted",
		slog.Int("samples", count),
		slog.Float64("score", sample.Score),
		slog.String("quality", string(sample.Quality)),
	)
	s.notify()

	if p != nil {
		p.stop()
		return s.persist(ctx)
	}
	return st, nil
}

func (s *Session) takeSample(ctx context.Context, stream camera.Stream) (Sample, error) {
	frame, err := stream.Frame(ctx)
	if err != nil {
		switch {
		case errors.Is(err, camera.ErrNoFrame):
			return Sample{}, domain.ErrNoFaceDetected
		case errors.Is(err, camera.ErrReleased):
			return Sample{}, domain.ErrInvalidSessionState
		case ctx.Err() != nil:
			return Sample{}, ctx.Err()
		default:
			return Sample{}, classifyCameraError(err)
		}
	}

	det, err := provider.DetectObserved(ctx, s.deps.Detector, frame, "capture")
	if err != nil {
		return Sample{}, asAppError(fmt.Errorf("detect: %w", err), domain.ErrModelUnavailable)
	}
	if det == nil {
		return Sample{}, domain.ErrNoFaceDetected
	}

	quality := biometric.ClassifyQuality(det.Score)
	if !quality.Acceptable() {
		return Sample{Score: det.Score, Quality: quality}, domain.ErrLowQualityImage.WithError(
			fmt.Errorf("detection score %.2f is %s", det.Score, quality))
	}

	return Sample{
		Descriptor: det.Descriptor.Clone(),
		Score:      det.Score,
		Quality:    quality,
	}, nil
}

// abortCapture returns a rejected capture to detecting with the sample
// count unchanged.
func (s *Session) abortCapture(err error) (Status, error) {
	s.mu.Lock()
	s.capturing = false
	if !s.closed && s.state == StateCapturing {
		s.setStateLocked(StateDetecting)
		switch {
		case errors.Is(err, domain.ErrNoFaceDetected):
			s.facePresent = false
			s.quality = biometric.QualityNone
		case errors.Is(err, domain.ErrLowQualityImage):
			s.quality = biometric.QualityPoor
		}
	}
	st := s.statusLocked()
	s.mu.Unlock()

	switch {
	case errors.Is(err, domain.ErrLowQualityImage):
		observability.Captures.WithLabelValues("low_quality").Inc()
	case errors.Is(err, domain.ErrNoFaceDetected):
		observability.Captures.WithLabelValues("no_face").Inc()
	default:
		observability.Captures.WithLabelValues("error").Inc()
	}
	s.logger.Info("enrollment sample rejected", slog.Any("error", err))
	s.notify()
	return st, err
}

// enterAveragingLocked stops polling and releases the camera; the
// returned poller must be stopped after the lock is released.
func (s *Session) enterAveragingLocked() *poller {
	s.setStateLocked(StateAveraging)
	s.releaseLocked()
	p := s.poller
	s.poller = nil
	if p != nil {
		p.signal()
	}
	return p
}

// Finalize retries persistence after a failed save. The accepted
// samples are reused; nothing is captured again.
func (s *Session) Finalize(ctx context.Context) (Status, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Status{}, domain.ErrSessionNotFound
	}
	if s.state != StateError || len(s.samples) != RequiredSamples {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, domain.ErrInvalidSessionState
	}
	s.lastErr = nil
	s.touchLocked()
	s.setStateLocked(StateAveraging)
	s.mu.Unlock()
	s.notify()

	return s.persist(ctx)
}

// persist averages the samples and saves the reference. The session
// must be averaging.
func (s *Session) persist(ctx context.Context) (Status, error) {
	s.mu.Lock()
	if len(s.samples) != RequiredSamples {
		st := s.statusLocked()
		s.mu.Unlock()
		return st, domain.ErrInvalidSessionState
	}
	descriptors := make([]biometric.Descriptor, len(s.samples))
	var scoreSum float64
	for i, sample := range s.samples {
		descriptors[i] = sample.Descriptor
		scoreSum += sample.Score
	}
	s.mu.Unlock()

	avg, err := biometric.Average(descriptors...)
	if err != nil {
		return s.failPersistence(err, asAppError(err, domain.ErrInternal))
	}

	ref := &domain.FaceReference{
		UserID:       s.userID,
		Descriptor:   avg,
		SampleCount:  len(descriptors),
		QualityScore: scoreSum / float64(len(descriptors)),
	}
	if err := s.deps.Store.Save(ctx, ref); err != nil {
		s.recordEnrollment(ctx, domain.ErrPersistenceFailed, len(descriptors))
		return s.failPersistence(err, domain.ErrPersistenceFailed.WithError(err))
	}
	s.recordEnrollment(ctx, nil, len(descriptors))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Status{}, domain.ErrSessionNotFound
	}
	s.setStateLocked(StateDone)
	s.enrolled = len(s.samples)
	s.samples = nil
	s.releaseLocked()
	st := s.statusLocked()
	s.mu.Unlock()

	observability.Enrollments.WithLabelValues("completed").Inc()
	s.logger.Info("enrollment completed", slog.Float64("quality_score", ref.QualityScore))
	s.notify()
	return st, nil
}

func (s *Session) recordEnrollment(ctx context.Context, appErr *domain.AppError, samples int) {
	event := audit.Event{
		EventType: audit.EventReferenceEnrolled,
		UserID:    s.userID,
		Success:   appErr == nil,
		Metadata: map[string]string{
			"session_id": s.id.String(),
			"samples":    strconv.Itoa(samples),
		},
	}
	if appErr != nil {
		event.ErrorCode = appErr.Code
	}
	if err := s.deps.Audit.Log(ctx, event); err != nil {
		s.logger.Warn("failed to record audit event", slog.Any("error", err))
	}
}

func (s *Session) failPersistence(cause error, appErr *domain.AppError) (Status, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Status{}, domain.ErrSessionNotFound
	}
	s.lastErr = appErr
	s.setStateLocked(StateError)
	st := s.statusLocked()
	s.mu.Unlock()

	observability.Enrollments.WithLabelValues("persistence_failed").Inc()
	s.logger.Error("enrollment finalization failed, samples kept", slog.Any("error", cause))
	s.notify()
	return st, appErr
}

// failEnvironment handles a camera failure after initialization: polling
// stops, the camera is released and the session returns to idle with
// the error recorded. Accepted samples are discarded.
func (s *Session) failEnvironment(stream camera.Stream, appErr *domain.AppError) {
	s.mu.Lock()
	if s.closed || s.stream != stream {
		s.mu.Unlock()
		return
	}
	s.releaseLocked()
	if s.poller != nil {
		s.poller.signal()
		s.poller = nil
	}
	s.samples = nil
	s.capturing = false
	s.facePresent = false
	s.quality = biometric.QualityNone
	s.lastErr = appErr
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	observability.Enrollments.WithLabelValues("environment_error").Inc()
	s.logger.Warn("enrollment camera lost", slog.String("code", appErr.Code))
	s.notify()
}

// Cancel stops polling, releases the camera and discards the samples.
// A completed session cannot be canceled, and neither can one that is
// saving its reference.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	if s.state.Terminal() || s.state == StateAveraging {
		s.mu.Unlock()
		return domain.ErrInvalidSessionState
	}
	s.mu.Unlock()

	s.shutdown()
	observability.Enrollments.WithLabelValues("canceled").Inc()
	s.logger.Info("enrollment canceled")
	return nil
}

// Close tears the session down from any state. It is idempotent.
func (s *Session) Close() {
	s.shutdown()
}

func (s *Session) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.releaseLocked()
	p := s.poller
	s.poller = nil
	s.samples = nil
	s.capturing = false
	s.facePresent = false
	s.quality = biometric.QualityNone
	if !s.state.Terminal() {
		s.setStateLocked(StateIdle)
	}
	s.mu.Unlock()

	if p != nil {
		p.stop()
	}
	s.notify()
}

// Closed reports whether Cancel or Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// idleSince returns the time of the last caller-driven operation.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Touch records caller activity, such as a pushed frame.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchLocked()
}

func (s *Session) touchLocked() {
	s.lastActivity = s.deps.Clock.Now()
}

func (s *Session) releaseLocked() {
	if s.stream != nil {
		s.stream.Release()
		s.stream = nil
	}
}

func (s *Session) setStateLocked(state State) {
	s.state = state
	s.updatedAt = s.deps.Clock.Now()
}

func (s *Session) notify() {
	if s.deps.OnChange == nil {
		return
	}
	s.deps.OnChange(s.Status())
}

// classifyCameraError maps a camera failure to a camera AppError.
func classifyCameraError(err error) *domain.AppError {
	return asAppError(err, domain.ErrCameraFailure)
}

// asAppError returns the AppError in err's chain, or fallback wrapping err.
func asAppError(err error, fallback *domain.AppError) *domain.AppError {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return fallback.WithError(err)
}
