package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/camera"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/enrollment"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/mock"
)

type memoryStore struct {
	mu   sync.Mutex
	refs map[string]*domain.FaceReference
}

func (s *memoryStore) Save(ctx context.Context, ref *domain.FaceReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == nil {
		s.refs = make(map[string]*domain.FaceReference)
	}
	s.refs[ref.UserID] = ref
	return nil
}

func (s *memoryStore) get(userID string) *domain.FaceReference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs[userID]
}

type enrollmentApp struct {
	app      *fiber.App
	store    *memoryStore
	sessions *enrollment.Manager
}

func newEnrollmentApp(t *testing.T) *enrollmentApp {
	t.Helper()

	detector := mock.New()
	store := &memoryStore{}
	sessions := enrollment.NewManager(enrollment.Deps{
		Detector:     detector,
		Loader:       provider.NewLoader(detector, 0, testLogger()),
		Store:        store,
		PollInterval: 10 * time.Millisecond,
		Logger:       testLogger(),
	}, time.Minute)
	t.Cleanup(sessions.CloseAll)

	h := NewEnrollmentHandler(sessions, nil, testLogger())
	app := newTestApp()
	app.Post("/v1/enrollments", h.Open)
	app.Get("/v1/enrollments/:id", h.Get)
	app.Post("/v1/enrollments/:id/frames", h.UploadFrame)
	app.Post("/v1/enrollments/:id/capture", h.Capture)
	app.Post("/v1/enrollments/:id/finalize", h.Finalize)
	app.Post("/v1/enrollments/:id/retry", h.Retry)
	app.Delete("/v1/enrollments/:id", h.Cancel)

	return &enrollmentApp{app: app, store: store, sessions: sessions}
}

func (e *enrollmentApp) do(t *testing.T, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *enrollmentApp) open(t *testing.T, body string) *http.Response {
	t.Helper()
	return e.do(t, "POST", "/v1/enrollments", strings.NewReader(body), fiber.MIMEApplicationJSON)
}

func decodeStatus(t *testing.T, resp *http.Response) enrollment.Status {
	t.Helper()
	var st enrollment.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	return st
}

func decodeSessionError(t *testing.T, resp *http.Response) (string, enrollment.State) {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
		Session struct {
			State enrollment.State `json:"state"`
		} `json:"session"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error.Code, body.Session.State
}

func TestEnrollmentHandler_Open(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedCode   string
	}{
		{name: "unknown source", body: `{"user_id":"emp-1","source":"usb"}`, expectedStatus: 422, expectedCode: "VALIDATION_FAILED"},
		{name: "kiosk not configured", body: `{"user_id":"emp-1","source":"kiosk"}`, expectedStatus: 422, expectedCode: "VALIDATION_FAILED"},
		{name: "missing user", body: `{"source":"relay"}`, expectedStatus: 422, expectedCode: "VALIDATION_FAILED"},
		{name: "malformed body", body: `{`, expectedStatus: 422, expectedCode: "VALIDATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnrollmentApp(t)
			resp := e.open(t, tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Equal(t, tt.expectedCode, errorCode(t, resp.Body))
			assert.Zero(t, e.sessions.Len())
		})
	}
}

func TestEnrollmentHandler_OpenStartsDetecting(t *testing.T) {
	e := newEnrollmentApp(t)

	resp := e.open(t, `{"user_id":"emp-1"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	st := decodeStatus(t, resp)
	assert.NotEqual(t, uuid.Nil, st.ID)
	assert.Equal(t, "emp-1", st.UserID)
	assert.Equal(t, enrollment.StateDetecting, st.State)
	assert.Equal(t, enrollment.RequiredSamples, st.Required)
	assert.False(t, st.FacePresent)
}

func TestEnrollmentHandler_PermissionDenied(t *testing.T) {
	e := newEnrollmentApp(t)

	resp := e.open(t, `{"user_id":"emp-1","camera_error":"NotAllowedError"}`)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	code, state := decodeSessionError(t, resp)
	assert.Equal(t, "CAMERA_PERMISSION_DENIED", code)
	assert.Equal(t, enrollment.StateIdle, state)
	assert.Equal(t, 1, e.sessions.Len())
}

func TestEnrollmentHandler_RetryAfterPermissionGranted(t *testing.T) {
	e := newEnrollmentApp(t)

	resp := e.open(t, `{"user_id":"emp-1","camera_error":"NotAllowedError"}`)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	var body SessionErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	id := body.Session.ID.String()

	resp = e.do(t, "POST", "/v1/enrollments/"+id+"/retry", strings.NewReader(`{"camera_error":"NotReadableError"}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	code, _ := decodeSessionError(t, resp)
	assert.Equal(t, "CAMERA_BUSY", code)

	resp = e.do(t, "POST", "/v1/enrollments/"+id+"/retry", nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, enrollment.StateDetecting, decodeStatus(t, resp).State)
}

func TestEnrollmentHandler_EnrollFromPushedFrames(t *testing.T) {
	e := newEnrollmentApp(t)

	resp := e.open(t, `{"user_id":"emp-1"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	id := decodeStatus(t, resp).ID.String()
	base := "/v1/enrollments/" + id

	resp = e.do(t, "POST", base+"/capture", nil, "")
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	code, state := decodeSessionError(t, resp)
	assert.Equal(t, "NO_FACE_DETECTED", code)
	assert.Equal(t, enrollment.StateDetecting, state)

	frame := jpegFrame(7)
	resp = e.do(t, "POST", base+"/frames", bytes.NewReader(frame), "image/jpeg")
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		return decodeStatus(t, e.do(t, "GET", base, nil, "")).FacePresent
	}, 2*time.Second, 10*time.Millisecond)

	var last enrollment.Status
	for i := 0; i < enrollment.RequiredSamples; i++ {
		resp = e.do(t, "POST", base+"/capture", nil, "")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		last = decodeStatus(t, resp)
		assert.Equal(t, i+1, last.Samples)
	}
	assert.Equal(t, enrollment.StateDone, last.State)

	ref := e.store.get("emp-1")
	require.NotNil(t, ref)
	assert.Equal(t, enrollment.RequiredSamples, ref.SampleCount)
	assert.InDeltaSlice(t, []float64(mock.Descriptor(frame)), ref.Descriptor, 1e-9)

	resp = e.do(t, "POST", base+"/frames", bytes.NewReader(frame), "image/jpeg")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp = e.do(t, "DELETE", base, nil, "")
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	resp = e.do(t, "GET", base, nil, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.NotNil(t, e.store.get("emp-1"), "dismissing the session keeps the reference")
}

func TestEnrollmentHandler_PushRejectsNonImage(t *testing.T) {
	e := newEnrollmentApp(t)

	resp := e.open(t, `{"user_id":"emp-1"}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	id := decodeStatus(t, resp).ID.String()

	resp = e.do(t, "POST", "/v1/enrollments/"+id+"/frames", strings.NewReader("hello"), "text/plain")
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "INVALID_IMAGE", errorCode(t, resp.Body))
}

func TestEnrollmentHandler_FinalizeWithoutFailure(t *testing.T) {
	e := newEnrollmentApp(t)

	resp := e.open(t, `{"user_id":"emp-1"}`)
	id := decodeStatus(t, resp).ID.String()

	resp = e.do(t, "POST", "/v1/enrollments/"+id+"/finalize", nil, "")
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	code, _ := decodeSessionError(t, resp)
	assert.Equal(t, "INVALID_SESSION_STATE", code)
}

func TestEnrollmentHandler_UnknownSession(t *testing.T) {
	e := newEnrollmentApp(t)

	for _, path := range []string{"/v1/enrollments/not-a-uuid", "/v1/enrollments/" + uuid.NewString()} {
		resp := e.do(t, "GET", path, nil, "")
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "SESSION_NOT_FOUND", errorCode(t, resp.Body))
	}
}

func TestEnrollmentHandler_Cancel(t *testing.T) {
	e := newEnrollmentApp(t)

	resp := e.open(t, `{"user_id":"emp-1"}`)
	id := decodeStatus(t, resp).ID.String()

	resp = e.do(t, "DELETE", "/v1/enrollments/"+id, nil, "")
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Zero(t, e.sessions.Len())

	resp = e.do(t, "GET", "/v1/enrollments/"+id, nil, "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Nil(t, e.store.get("emp-1"))
}

func TestEnrollmentHandler_ReportCameraError(t *testing.T) {
	e := newEnrollmentApp(t)
	h := NewEnrollmentHandler(e.sessions, nil, testLogger())

	session, err := e.sessions.Open("emp-1", camera.NewRelay(""))
	require.NoError(t, err)

	require.NoError(t, h.ReportCameraError(session.ID(), "NotAllowedError"))

	st := session.Status()
	assert.Equal(t, enrollment.StateIdle, st.State)
	require.NotNil(t, st.LastError)
	assert.Equal(t, "CAMERA_PERMISSION_DENIED", st.LastError.Code)

	assert.ErrorIs(t, h.ReportCameraError(uuid.New(), "NotAllowedError"), domain.ErrSessionNotFound)
}
