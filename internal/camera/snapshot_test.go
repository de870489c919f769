package camera

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
)

func TestSnapshot_AcquireAndFrame(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpeg(64))
	}))
	defer server.Close()

	ctx := context.Background()
	cam := NewSnapshot(server.URL, nil)

	stream, err := cam.Acquire(ctx)
	require.NoError(t, err)

	frame, err := stream.Frame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", frame.ContentType)
	assert.Equal(t, jpeg(64), frame.Data)
	assert.Equal(t, int32(2), calls.Load())

	stream.Release()
	stream.Release()
	_, err = stream.Frame(ctx)
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSnapshot_AcquireClassifiesStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   *domain.AppError
	}{
		{"unauthorized", http.StatusUnauthorized, domain.ErrCameraPermissionDenied},
		{"not found", http.StatusNotFound, domain.ErrCameraNotFound},
		{"locked", http.StatusLocked, domain.ErrCameraBusy},
		{"unavailable", http.StatusServiceUnavailable, domain.ErrCameraBusy},
		{"not implemented", http.StatusNotImplemented, domain.ErrCameraUnsupported},
		{"internal", http.StatusInternalServerError, domain.ErrCameraFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			stream, err := NewSnapshot(server.URL, nil).Acquire(context.Background())

			assert.Nil(t, stream)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSnapshot_AcquireRejectsNonImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>login</html>"))
	}))
	defer server.Close()

	_, err := NewSnapshot(server.URL, nil).Acquire(context.Background())

	assert.ErrorIs(t, err, domain.ErrCameraUnsupported)
}

func TestSnapshot_ConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = NewSnapshot("http://"+addr+"/snapshot.jpg", nil).Acquire(context.Background())

	assert.ErrorIs(t, err, domain.ErrCameraNotFound)
}
