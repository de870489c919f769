package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/facegate/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facegate/internal/camera"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/enrollment"
	"github.com/saturnino-fabrica-de-software/facegate/internal/ws"
)

const (
	SourceRelay = "relay"
	SourceKiosk = "kiosk"
)

// SessionManager is the part of enrollment.Manager the handler needs.
type SessionManager interface {
	Open(userID string, cam camera.Camera) (*enrollment.Session, error)
	Get(id uuid.UUID) (*enrollment.Session, error)
	Cancel(id uuid.UUID) error
}

// EnrollmentHandler drives enrollment sessions over HTTP. It also feeds
// frames received over WebSocket into relay cameras.
type EnrollmentHandler struct {
	sessions SessionManager
	kiosk    camera.Camera
	logger   *slog.Logger
}

// NewEnrollmentHandler creates an EnrollmentHandler. kiosk may be nil when
// no kiosk camera is configured.
func NewEnrollmentHandler(sessions SessionManager, kiosk camera.Camera, logger *slog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{
		sessions: sessions,
		kiosk:    kiosk,
		logger:   logger,
	}
}

// OpenEnrollmentRequest is the body of POST /v1/enrollments
type OpenEnrollmentRequest struct {
	UserID string `json:"user_id"`
	Source string `json:"source"`
	// CameraError is the getUserMedia error name when the browser could
	// not open the camera.
	CameraError string `json:"camera_error,omitempty"`
}

// SessionErrorResponse reports a rejected operation together with the
// session state after it.
type SessionErrorResponse struct {
	Error   fiber.Map         `json:"error"`
	Session enrollment.Status `json:"session"`
}

// Open POST /v1/enrollments - open a session and start the camera
func (h *EnrollmentHandler) Open(c *fiber.Ctx) error {
	var req OpenEnrollmentRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrValidationFailed.WithError(err)
	}

	cam, err := h.cameraFor(req)
	if err != nil {
		return err
	}

	session, err := h.sessions.Open(req.UserID, cam)
	if err != nil {
		return err
	}

	status, err := session.Initialize(c.Context())
	if err != nil {
		return sessionError(c, status, err)
	}

	return c.Status(fiber.StatusCreated).JSON(status)
}

func (h *EnrollmentHandler) cameraFor(req OpenEnrollmentRequest) (camera.Camera, error) {
	switch strings.TrimSpace(req.Source) {
	case "", SourceRelay:
		return camera.NewRelay(strings.TrimSpace(req.CameraError)), nil
	case SourceKiosk:
		if h.kiosk == nil {
			return nil, domain.ErrValidationFailed.WithError(errors.New("no kiosk camera is configured"))
		}
		return h.kiosk, nil
	default:
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("unknown source %q", req.Source))
	}
}

// Get GET /v1/enrollments/:id - current session state
func (h *EnrollmentHandler) Get(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(session.Status())
}

// UploadFrame POST /v1/enrollments/:id/frames - push a browser frame
func (h *EnrollmentHandler) UploadFrame(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}

	frame, err := readFrame(c)
	if err != nil {
		return err
	}

	if err := pushFrame(session, frame.Data, frame.ContentType); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// Capture POST /v1/enrollments/:id/capture - take one sample
func (h *EnrollmentHandler) Capture(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}

	status, err := session.Capture(c.Context())
	if err != nil {
		return sessionError(c, status, err)
	}
	return c.JSON(status)
}

// Finalize POST /v1/enrollments/:id/finalize - retry a failed save
func (h *EnrollmentHandler) Finalize(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}

	status, err := session.Finalize(c.Context())
	if err != nil {
		return sessionError(c, status, err)
	}
	return c.JSON(status)
}

// Retry POST /v1/enrollments/:id/retry - start the camera again after an
// environment error
func (h *EnrollmentHandler) Retry(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}

	if relay, ok := session.Camera().(*camera.Relay); ok {
		var req OpenEnrollmentRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return domain.ErrValidationFailed.WithError(err)
			}
		}
		relay.ReportError(strings.TrimSpace(req.CameraError))
	}

	status, err := session.Initialize(c.Context())
	if err != nil {
		return sessionError(c, status, err)
	}
	return c.JSON(status)
}

// Cancel DELETE /v1/enrollments/:id - abandon the session
func (h *EnrollmentHandler) Cancel(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	if err := h.sessions.Cancel(id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Watch resolves the session of a WebSocket upgrade for ws.Handler.
func (h *EnrollmentHandler) Watch(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	c.Locals(ws.LocalSessionID, session.ID())
	return c.Next()
}

// PushFrame implements ws.FrameSink.
func (h *EnrollmentHandler) PushFrame(sessionID uuid.UUID, data []byte, contentType string) error {
	session, err := h.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	return pushFrame(session, data, contentType)
}

// ReportCameraError implements ws.FrameSink. The error is recorded on
// the relay; an idle session is initialized again so the classified
// error shows up in its status.
func (h *EnrollmentHandler) ReportCameraError(sessionID uuid.UUID, name string) error {
	session, err := h.sessions.Get(sessionID)
	if err != nil {
		return err
	}

	relay, ok := session.Camera().(*camera.Relay)
	if !ok {
		return domain.ErrValidationFailed.WithError(errors.New("session camera is not browser owned"))
	}
	relay.ReportError(strings.TrimSpace(name))

	if session.Status().State != enrollment.StateIdle {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = session.Initialize(ctx)
	if err != nil {
		h.logger.Debug("camera error reported by client",
			slog.String("session_id", sessionID.String()),
			slog.String("name", name),
		)
	}
	return nil
}

func pushFrame(session *enrollment.Session, data []byte, contentType string) error {
	relay, ok := session.Camera().(*camera.Relay)
	if !ok {
		return domain.ErrValidationFailed.WithError(errors.New("session camera does not accept pushed frames"))
	}
	if err := relay.Push(data, contentType); err != nil {
		return err
	}
	session.Touch()
	return nil
}

func (h *EnrollmentHandler) session(c *fiber.Ctx) (*enrollment.Session, error) {
	id, err := sessionID(c)
	if err != nil {
		return nil, err
	}
	return h.sessions.Get(id)
}

func sessionID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, domain.ErrSessionNotFound
	}
	return id, nil
}

// sessionError renders err with the session status when err is an
// AppError and the session still exists.
func sessionError(c *fiber.Ctx, status enrollment.Status, err error) error {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) || status.ID == uuid.Nil {
		return err
	}
	return c.Status(appErr.StatusCode).JSON(SessionErrorResponse{
		Error:   middleware.ErrorBody(appErr),
		Session: status,
	})
}
