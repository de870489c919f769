package camera

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

// Browser getUserMedia DOMException names.
const (
	browserNotAllowed     = "NotAllowedError"
	browserSecurity       = "SecurityError"
	browserNotFound       = "NotFoundError"
	browserOverconstraint = "OverconstrainedError"
	browserNotReadable    = "NotReadableError"
	browserAbort          = "AbortError"
	browserNotSupported   = "NotSupportedError"
	browserType           = "TypeError"
)

// ClassifyBrowserError maps a getUserMedia error name reported by the
// client to a camera error. Unknown names map to ErrCameraFailure.
func ClassifyBrowserError(name string) *domain.AppError {
	switch name {
	case browserNotAllowed, browserSecurity:
		return domain.ErrCameraPermissionDenied
	case browserNotFound, browserOverconstraint:
		return domain.ErrCameraNotFound
	case browserNotReadable, browserAbort:
		return domain.ErrCameraBusy
	case browserNotSupported, browserType:
		return domain.ErrCameraUnsupported
	default:
		return domain.ErrCameraFailure
	}
}

func classifyStatus(code int) *domain.AppError {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrCameraPermissionDenied
	case http.StatusNotFound:
		return domain.ErrCameraNotFound
	case http.StatusConflict, http.StatusLocked, http.StatusServiceUnavailable:
		return domain.ErrCameraBusy
	case http.StatusUnsupportedMediaType, http.StatusNotImplemented:
		return domain.ErrCameraUnsupported
	default:
		return domain.ErrCameraFailure
	}
}

func classifyTransport(err error) *domain.AppError {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED), errors.As(err, &dnsErr):
		return domain.ErrCameraNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, syscall.ECONNRESET):
		return domain.ErrCameraBusy
	default:
		return domain.ErrCameraFailure
	}
}
