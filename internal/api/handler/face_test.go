package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
)

// MockFaceService is a mock implementation of FaceService
type MockFaceService struct {
	mock.Mock
}

func (m *MockFaceService) Verify(ctx context.Context, userID string, frame provider.Frame, kind domain.AttendanceKind) (*domain.Verification, error) {
	args := m.Called(ctx, userID, frame, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Verification), args.Error(1)
}

func (m *MockFaceService) Status(ctx context.Context, userID string) (*domain.FaceReference, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FaceReference), args.Error(1)
}

func (m *MockFaceService) Unregister(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// testLogger returns a logger that discards all output
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// jpegFrame is large enough for the mock detector to find a face in it.
func jpegFrame(seed byte) []byte {
	data := make([]byte, 2048)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	for i := 4; i < len(data); i++ {
		data[i] = seed + byte(i)
	}
	return data
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(testLogger()),
	})
}

// Helper to create multipart request
func createMultipartRequest(fields map[string]string, image []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}
	if image != nil {
		part, _ := writer.CreateFormFile("image", "frame.jpg")
		_, _ = part.Write(image)
	}
	_ = writer.Close()

	return body, writer.FormDataContentType()
}

func errorCode(t *testing.T, body io.Reader) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp.Error.Code
}

func TestFaceHandler_Verify(t *testing.T) {
	frame := jpegFrame(1)
	eventID := uuid.New()

	tests := []struct {
		name           string
		fields         map[string]string
		image          []byte
		setupMock      func(*MockFaceService)
		expectedStatus int
		expectedCode   string
		check          func(t *testing.T, resp VerifyResponse)
	}{
		{
			name:   "match defaults to clock in",
			fields: map[string]string{"user_id": "emp-1"},
			image:  frame,
			setupMock: func(m *MockFaceService) {
				m.On("Verify", mock.Anything, "emp-1", mock.MatchedBy(func(f provider.Frame) bool {
					return f.ContentType == "image/jpeg" && bytes.Equal(f.Data, frame)
				}), domain.AttendanceClockIn).Return(&domain.Verification{
					UserID:    "emp-1",
					Matched:   true,
					Distance:  0.31,
					Threshold: 0.6,
					EventID:   eventID,
					LatencyMs: 12,
				}, nil)
			},
			expectedStatus: fiber.StatusOK,
			check: func(t *testing.T, resp VerifyResponse) {
				assert.True(t, resp.Matched)
				assert.Equal(t, eventID.String(), resp.EventID)
				assert.InDelta(t, 0.31, resp.Distance, 1e-9)
				assert.Equal(t, 0.6, resp.Threshold)
			},
		},
		{
			name:   "no match carries no event",
			fields: map[string]string{"user_id": "emp-1", "kind": "clock_out"},
			image:  frame,
			setupMock: func(m *MockFaceService) {
				m.On("Verify", mock.Anything, "emp-1", mock.Anything, domain.AttendanceClockOut).Return(&domain.Verification{
					UserID:    "emp-1",
					Distance:  0.72,
					Threshold: 0.6,
				}, nil)
			},
			expectedStatus: fiber.StatusOK,
			check: func(t *testing.T, resp VerifyResponse) {
				assert.False(t, resp.Matched)
				assert.Empty(t, resp.EventID)
			},
		},
		{
			name:           "missing user_id",
			image:          frame,
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: fiber.StatusUnprocessableEntity,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "unknown kind",
			fields:         map[string]string{"user_id": "emp-1", "kind": "lunch"},
			image:          frame,
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: fiber.StatusUnprocessableEntity,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "missing image",
			fields:         map[string]string{"user_id": "emp-1"},
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: fiber.StatusUnprocessableEntity,
			expectedCode:   "VALIDATION_FAILED",
		},
		{
			name:           "not an image",
			fields:         map[string]string{"user_id": "emp-1"},
			image:          []byte("plain text is not a frame"),
			setupMock:      func(m *MockFaceService) {},
			expectedStatus: fiber.StatusUnprocessableEntity,
			expectedCode:   "INVALID_IMAGE",
		},
		{
			name:   "no reference",
			fields: map[string]string{"user_id": "emp-9"},
			image:  frame,
			setupMock: func(m *MockFaceService) {
				m.On("Verify", mock.Anything, "emp-9", mock.Anything, domain.AttendanceClockIn).
					Return(nil, domain.ErrNoReferenceDescriptor)
			},
			expectedStatus: fiber.StatusNotFound,
			expectedCode:   "NO_REFERENCE_DESCRIPTOR",
		},
		{
			name:   "model unavailable",
			fields: map[string]string{"user_id": "emp-1"},
			image:  frame,
			setupMock: func(m *MockFaceService) {
				m.On("Verify", mock.Anything, "emp-1", mock.Anything, domain.AttendanceClockIn).
					Return(nil, domain.ErrModelUnavailable)
			},
			expectedStatus: fiber.StatusServiceUnavailable,
			expectedCode:   "MODEL_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockFaceService)
			tt.setupMock(svc)

			app := newTestApp()
			app.Post("/v1/faces/verify", NewFaceHandler(svc, testLogger()).Verify)

			body, contentType := createMultipartRequest(tt.fields, tt.image)
			req := httptest.NewRequest("POST", "/v1/faces/verify", body)
			req.Header.Set("Content-Type", contentType)

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, errorCode(t, resp.Body))
			}
			if tt.check != nil {
				var result VerifyResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
				tt.check(t, result)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestFaceHandler_Status(t *testing.T) {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("enrolled", func(t *testing.T) {
		svc := new(MockFaceService)
		svc.On("Status", mock.Anything, "emp-1").Return(&domain.FaceReference{
			UserID:       "emp-1",
			Descriptor:   []float64{0.1, 0.2},
			SampleCount:  3,
			QualityScore: 0.93,
			CreatedAt:    created,
			UpdatedAt:    created.Add(time.Hour),
		}, nil)

		app := newTestApp()
		app.Get("/v1/faces/:user_id", NewFaceHandler(svc, testLogger()).Status)

		resp, err := app.Test(httptest.NewRequest("GET", "/v1/faces/emp-1", nil))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "descriptor")

		var result FaceStatusResponse
		require.NoError(t, json.Unmarshal(raw, &result))
		assert.True(t, result.Enrolled)
		assert.Equal(t, 3, result.SampleCount)
		assert.Equal(t, "2026-03-01T08:00:00Z", result.CreatedAt)
		assert.Equal(t, "2026-03-01T09:00:00Z", result.UpdatedAt)
	})

	t.Run("not enrolled", func(t *testing.T) {
		svc := new(MockFaceService)
		svc.On("Status", mock.Anything, "emp-2").Return(nil, domain.ErrNoReferenceDescriptor)

		app := newTestApp()
		app.Get("/v1/faces/:user_id", NewFaceHandler(svc, testLogger()).Status)

		resp, err := app.Test(httptest.NewRequest("GET", "/v1/faces/emp-2", nil))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NO_REFERENCE_DESCRIPTOR", errorCode(t, resp.Body))
	})
}

func TestFaceHandler_Delete(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "deleted", expectedStatus: fiber.StatusNoContent},
		{name: "not enrolled", err: domain.ErrNoReferenceDescriptor, expectedStatus: fiber.StatusNotFound},
		{name: "store down", err: domain.ErrStoreUnavailable, expectedStatus: fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockFaceService)
			svc.On("Unregister", mock.Anything, "emp-1").Return(tt.err)

			app := newTestApp()
			app.Delete("/v1/faces/:user_id", NewFaceHandler(svc, testLogger()).Delete)

			resp, err := app.Test(httptest.NewRequest("DELETE", "/v1/faces/emp-1", nil))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			svc.AssertExpectations(t)
		})
	}
}
