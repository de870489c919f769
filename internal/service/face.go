package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/biometric"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/observability"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

type DescriptorStoreInterface interface {
	Load(ctx context.Context, userID string) (*domain.FaceReference, error)
	Delete(ctx context.Context, userID string) error
}

type AttendancePublisherInterface interface {
	PublishAttendance(ctx context.Context, event domain.AttendanceEvent) error
}

type FaceService struct {
	store     DescriptorStoreInterface
	detector  provider.Detector
	publisher AttendancePublisherInterface
	threshold float64
	audit     audit.Logger
	logger    *slog.Logger
	now       func() time.Time
}

func NewFaceService(
	store DescriptorStoreInterface,
	detector provider.Detector,
	publisher AttendancePublisherInterface,
	logger *slog.Logger,
) *FaceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &FaceService{
		store:     store,
		detector:  detector,
		publisher: publisher,
		threshold: biometric.DefaultThreshold,
		audit:     &audit.NoOpLogger{},
		logger:    logger,
		now:       time.Now,
	}
}

func (s *FaceService) WithThreshold(threshold float64) *FaceService {
	s.threshold = threshold
	return s
}

func (s *FaceService) WithAudit(logger audit.Logger) *FaceService {
	s.audit = logger
	return s
}

func (s *FaceService) Threshold() float64 {
	return s.threshold
}

// Verify compares the face in frame with the user's reference. The
// reference is loaded first, so the detector never runs for a user with
// nothing enrolled. A match publishes an attendance event; a publish
// failure is logged and does not change the result.
func (s *FaceService) Verify(ctx context.Context, userID string, frame provider.Frame, kind domain.AttendanceKind) (*domain.Verification, error) {
	verification, err := s.verify(ctx, userID, frame, kind)

	event := audit.Event{
		EventType: audit.EventFaceVerified,
		UserID:    userID,
		Success:   err == nil,
		ErrorCode: errorCode(err),
		Metadata:  map[string]string{"kind": string(kind)},
	}
	if verification != nil {
		event.Metadata["matched"] = strconv.FormatBool(verification.Matched)
		event.Metadata["distance"] = strconv.FormatFloat(verification.Distance, 'f', 4, 64)
	}
	s.recordAudit(ctx, event)

	return verification, err
}

func (s *FaceService) verify(ctx context.Context, userID string, frame provider.Frame, kind domain.AttendanceKind) (*domain.Verification, error) {
	start := s.now()

	ref, err := s.loadReference(ctx, userID)
	if err != nil {
		observability.Verifications.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}

	det, err := provider.DetectObserved(ctx, s.detector, frame, "verify")
	if err != nil {
		var appErr *domain.AppError
		if !errors.As(err, &appErr) {
			appErr = domain.ErrModelUnavailable.WithError(err)
		}
		observability.Verifications.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("user %s: detect face: %w", userID, appErr)
	}
	if det == nil {
		observability.Verifications.WithLabelValues("no_face").Inc()
		return nil, domain.ErrNoFaceDetected
	}

	distance, err := biometric.Distance(det.Descriptor, biometric.Descriptor(ref.Descriptor))
	if err != nil {
		observability.Verifications.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("user %s: compare descriptors: %w", userID, err)
	}

	matched := biometric.Match(distance, s.threshold)
	verification := &domain.Verification{
		UserID:    userID,
		Matched:   matched,
		Distance:  distance,
		Threshold: s.threshold,
		LatencyMs: s.now().Sub(start).Milliseconds(),
	}

	observability.VerificationDistance.Observe(distance)
	if !matched {
		observability.Verifications.WithLabelValues("no_match").Inc()
		s.logger.Info("verification rejected",
			slog.String("user_id", userID),
			slog.Float64("distance", distance),
		)
		return verification, nil
	}

	observability.Verifications.WithLabelValues("match").Inc()
	event := domain.AttendanceEvent{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       kind,
		Distance:   distance,
		OccurredAt: s.now().UTC(),
	}
	verification.EventID = event.ID

	if err := s.publisher.PublishAttendance(ctx, event); err != nil {
		s.logger.Error("failed to publish attendance event",
			slog.String("user_id", userID),
			slog.String("event_id", event.ID.String()),
			slog.Any("error", err),
		)
	}

	s.logger.Info("verification matched",
		slog.String("user_id", userID),
		slog.Float64("distance", distance),
		slog.String("kind", string(kind)),
	)
	return verification, nil
}

// Status returns the stored reference metadata. The descriptor is never
// serialized.
func (s *FaceService) Status(ctx context.Context, userID string) (*domain.FaceReference, error) {
	return s.loadReference(ctx, userID)
}

func (s *FaceService) Unregister(ctx context.Context, userID string) error {
	err := s.unregister(ctx, userID)
	s.recordAudit(ctx, audit.Event{
		EventType: audit.EventReferenceDeleted,
		UserID:    userID,
		Success:   err == nil,
		ErrorCode: errorCode(err),
	})
	return err
}

func (s *FaceService) unregister(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNoReferenceDescriptor) {
			return domain.ErrNoReferenceDescriptor
		}
		return domain.ErrStoreUnavailable.WithError(fmt.Errorf("user %s: delete reference: %w", userID, err))
	}

	s.logger.Info("face reference deleted", slog.String("user_id", userID))
	return nil
}

func (s *FaceService) recordAudit(ctx context.Context, event audit.Event) {
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.Warn("failed to record audit event",
			slog.String("event_type", string(event.EventType)),
			slog.Any("error", err),
		)
	}
}

func (s *FaceService) loadReference(ctx context.Context, userID string) (*domain.FaceReference, error) {
	ref, err := s.store.Load(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNoReferenceDescriptor) {
			return nil, domain.ErrNoReferenceDescriptor
		}
		return nil, domain.ErrStoreUnavailable.WithError(fmt.Errorf("user %s: load reference: %w", userID, err))
	}
	return ref, nil
}

func errorCode(err error) string {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if err != nil {
		return domain.ErrInternal.Code
	}
	return ""
}

func resultLabel(err error) string {
	if errors.Is(err, domain.ErrNoReferenceDescriptor) {
		return "no_reference"
	}
	return "error"
}
