package domain

import (
	"fmt"
)

// ErrorKind groups errors by how the caller is expected to recover.
type ErrorKind string

const (
	KindEnvironment ErrorKind = "environment"
	KindQuality     ErrorKind = "quality"
	KindAbsence     ErrorKind = "absence"
	KindPersistence ErrorKind = "persistence"
	KindUsage       ErrorKind = "usage"
	KindInternal    ErrorKind = "internal"
)

type AppError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Hint       string    `json:"hint,omitempty"`
	Kind       ErrorKind `json:"kind"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so copies made by
// WithError still satisfy errors.Is against the sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:       e.Code,
		Message:    e.Message,
		Hint:       e.Hint,
		Kind:       e.Kind,
		StatusCode: e.StatusCode,
		Err:        err,
	}
}

// Pre-defined errors
var (
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected error occurred",
		Kind:       KindInternal,
		StatusCode: 500,
	}

	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Invalid or missing API key",
		Kind:       KindUsage,
		StatusCode: 401,
	}

	ErrValidationFailed = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Request validation failed",
		Kind:       KindUsage,
		StatusCode: 422,
	}

	ErrInvalidImage = &AppError{
		Code:       "INVALID_IMAGE",
		Message:    "Invalid image format or corrupted file",
		Hint:       "Send a JPEG, PNG or WebP frame smaller than 10MB",
		Kind:       KindUsage,
		StatusCode: 422,
	}

	// Environment errors
	ErrCameraPermissionDenied = &AppError{
		Code:       "CAMERA_PERMISSION_DENIED",
		Message:    "Camera access was denied",
		Hint:       "Allow camera access for this site in the browser settings and retry",
		Kind:       KindEnvironment,
		StatusCode: 403,
	}

	ErrCameraNotFound = &AppError{
		Code:       "CAMERA_NOT_FOUND",
		Message:    "No camera device was found",
		Hint:       "Connect a camera or check that the kiosk camera is online, then retry",
		Kind:       KindEnvironment,
		StatusCode: 424,
	}

	ErrCameraBusy = &AppError{
		Code:       "CAMERA_BUSY",
		Message:    "The camera is in use by another application",
		Hint:       "Close other applications or tabs using the camera and retry",
		Kind:       KindEnvironment,
		StatusCode: 409,
	}

	ErrCameraUnsupported = &AppError{
		Code:       "CAMERA_UNSUPPORTED",
		Message:    "Camera capture is not supported by this client",
		Hint:       "Use a recent version of Chrome, Firefox, Edge or Safari over HTTPS",
		Kind:       KindEnvironment,
		StatusCode: 424,
	}

	ErrCameraFailure = &AppError{
		Code:       "CAMERA_ERROR",
		Message:    "The camera could not be started",
		Hint:       "Reconnect the camera and retry",
		Kind:       KindEnvironment,
		StatusCode: 424,
	}

	ErrModelUnavailable = &AppError{
		Code:       "MODEL_UNAVAILABLE",
		Message:    "The face recognition model could not be loaded",
		Hint:       "The face model service is unreachable; retry in a moment or contact support",
		Kind:       KindEnvironment,
		StatusCode: 503,
	}

	// Quality errors
	ErrLowQualityImage = &AppError{
		Code:       "LOW_QUALITY_IMAGE",
		Message:    "Image quality too low for reliable recognition",
		Hint:       "Face the camera directly with even lighting and capture again",
		Kind:       KindQuality,
		StatusCode: 422,
	}

	// Absence errors
	ErrNoFaceDetected = &AppError{
		Code:       "NO_FACE_DETECTED",
		Message:    "No face detected in the image",
		Hint:       "Make sure your face is inside the frame",
		Kind:       KindAbsence,
		StatusCode: 422,
	}

	ErrNoReferenceDescriptor = &AppError{
		Code:       "NO_REFERENCE_DESCRIPTOR",
		Message:    "No face is enrolled for this user",
		Hint:       "Enroll the user's face before verifying",
		Kind:       KindAbsence,
		StatusCode: 404,
	}

	// Persistence errors
	ErrPersistenceFailed = &AppError{
		Code:       "PERSISTENCE_FAILED",
		Message:    "The face descriptor could not be saved",
		Hint:       "Captured samples were kept; retry finalization",
		Kind:       KindPersistence,
		StatusCode: 503,
	}

	ErrStoreUnavailable = &AppError{
		Code:       "STORE_UNAVAILABLE",
		Message:    "The face descriptor store is unreachable",
		Hint:       "Retry in a moment",
		Kind:       KindPersistence,
		StatusCode: 503,
	}

	// Usage errors
	ErrDescriptorLengthMismatch = &AppError{
		Code:       "DESCRIPTOR_LENGTH_MISMATCH",
		Message:    "Face descriptors have different lengths",
		Hint:       "The face model changed since enrollment; enroll the user again",
		Kind:       KindUsage,
		StatusCode: 409,
	}

	ErrCaptureInProgress = &AppError{
		Code:       "CAPTURE_IN_PROGRESS",
		Message:    "A capture is already in progress",
		Kind:       KindUsage,
		StatusCode: 409,
	}

	ErrInvalidSessionState = &AppError{
		Code:       "INVALID_SESSION_STATE",
		Message:    "Operation not allowed in the current enrollment state",
		Kind:       KindUsage,
		StatusCode: 409,
	}

	ErrSessionNotFound = &AppError{
		Code:       "SESSION_NOT_FOUND",
		Message:    "Enrollment session not found",
		Kind:       KindUsage,
		StatusCode: 404,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Too many verification attempts",
		Hint:       "Wait for the Retry-After period before trying again",
		Kind:       KindUsage,
		StatusCode: 429,
	}
)
