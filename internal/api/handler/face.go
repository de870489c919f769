package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

// FaceService interface for the service
type FaceService interface {
	Verify(ctx context.Context, userID string, frame provider.Frame, kind domain.AttendanceKind) (*domain.Verification, error)
	Status(ctx context.Context, userID string) (*domain.FaceReference, error)
	Unregister(ctx context.Context, userID string) error
}

// FaceHandler handles face-related requests
type FaceHandler struct {
	service FaceService
	logger  *slog.Logger
}

// NewFaceHandler creates a new FaceHandler instance
func NewFaceHandler(service FaceService, logger *slog.Logger) *FaceHandler {
	return &FaceHandler{
		service: service,
		logger:  logger,
	}
}

// VerifyResponse response for verify endpoint
type VerifyResponse struct {
	UserID    string  `json:"user_id"`
	Matched   bool    `json:"matched"`
	Distance  float64 `json:"distance"`
	Threshold float64 `json:"threshold"`
	EventID   string  `json:"event_id,omitempty"`
	LatencyMs int64   `json:"latency_ms"`
}

// FaceStatusResponse response for the reference status endpoint
type FaceStatusResponse struct {
	UserID       string  `json:"user_id"`
	Enrolled     bool    `json:"enrolled"`
	SampleCount  int     `json:"sample_count"`
	QualityScore float64 `json:"quality_score"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// Verify POST /v1/faces/verify - verify face 1:1
func (h *FaceHandler) Verify(c *fiber.Ctx) error {
	// 1. Extract user_id and kind from form
	userID := strings.TrimSpace(c.FormValue("user_id"))
	if userID == "" {
		return domain.ErrValidationFailed.WithError(errors.New("user_id is required"))
	}

	kind, ok := domain.ParseAttendanceKind(strings.TrimSpace(c.FormValue("kind")))
	if !ok {
		return domain.ErrValidationFailed.WithError(errors.New("kind must be clock_in or clock_out"))
	}

	// 2. Extract and validate image
	frame, err := readFrame(c)
	if err != nil {
		return err
	}

	// 3. Call service to verify
	verification, err := h.service.Verify(c.Context(), userID, frame, kind)
	if err != nil {
		return err
	}

	resp := VerifyResponse{
		UserID:    verification.UserID,
		Matched:   verification.Matched,
		Distance:  verification.Distance,
		Threshold: verification.Threshold,
		LatencyMs: verification.LatencyMs,
	}
	if verification.Matched {
		resp.EventID = verification.EventID.String()
	}
	return c.JSON(resp)
}

// Status GET /v1/faces/:user_id - reference metadata, never the descriptor
func (h *FaceHandler) Status(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("user_id"))
	if userID == "" {
		return domain.ErrValidationFailed.WithError(errors.New("user_id is required"))
	}

	ref, err := h.service.Status(c.Context(), userID)
	if err != nil {
		return err
	}

	return c.JSON(FaceStatusResponse{
		UserID:       ref.UserID,
		Enrolled:     true,
		SampleCount:  ref.SampleCount,
		QualityScore: ref.QualityScore,
		CreatedAt:    ref.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    ref.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// Delete DELETE /v1/faces/:user_id - delete the reference
func (h *FaceHandler) Delete(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("user_id"))
	if userID == "" {
		return domain.ErrValidationFailed.WithError(errors.New("user_id is required"))
	}

	if err := h.service.Unregister(c.Context(), userID); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}
