package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
	Kind    string `json:"kind" example:"usage"`
	Hint    string `json:"hint,omitempty" example:"Allow camera access in the browser settings and retry"`
}

// EmptyResponse represents no content response (204)
type EmptyResponse struct{}

// SessionStatus is the public view of an enrollment session
type SessionStatus struct {
	ID          string         `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	UserID      string         `json:"user_id" example:"emp-42"`
	State       string         `json:"state" example:"detecting"`
	Samples     int            `json:"samples" example:"1"`
	Required    int            `json:"required" example:"3"`
	FacePresent bool           `json:"face_present" example:"true"`
	Quality     string         `json:"quality" example:"good"`
	LastError   *ErrorResponse `json:"last_error,omitempty"`
	UpdatedAt   string         `json:"updated_at" example:"2026-01-01T08:00:00Z"`
}

// SessionErrorResponse is returned when an operation fails on a live session
type SessionErrorResponse struct {
	Error   ErrorResponse `json:"error"`
	Session SessionStatus `json:"session"`
}

// VerifyResponse represents the response for face verification
type VerifyResponse struct {
	UserID    string  `json:"user_id" example:"emp-42"`
	Matched   bool    `json:"matched" example:"true"`
	Distance  float64 `json:"distance" example:"0.41"`
	Threshold float64 `json:"threshold" example:"0.6"`
	EventID   string  `json:"event_id,omitempty" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	LatencyMs int64   `json:"latency_ms" example:"38"`
}

// FaceStatusResponse describes a stored reference without its descriptor
type FaceStatusResponse struct {
	UserID       string  `json:"user_id" example:"emp-42"`
	Enrolled     bool    `json:"enrolled" example:"true"`
	SampleCount  int     `json:"sample_count" example:"3"`
	QualityScore float64 `json:"quality_score" example:"0.93"`
	CreatedAt    string  `json:"created_at" example:"2026-01-01T08:00:00Z"`
	UpdatedAt    string  `json:"updated_at" example:"2026-01-01T08:00:00Z"`
}

// HealthResponse is returned by /health and /ready
type HealthResponse struct {
	Status  string            `json:"status" example:"ready"`
	Version string            `json:"version,omitempty" example:"1.0.0"`
	Checks  map[string]string `json:"checks,omitempty"`
}

var (
	errUnauthorized = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing API key", Kind: "usage"}, "401", "Unauthorized")
	errNotFound     = response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Enrollment session not found", Kind: "usage"}, "404", "Not Found")
	errState        = response.New(SessionErrorResponse{}, "409", "Operation not allowed in the current state")
	errInternal     = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred", Kind: "internal"}, "500", "Internal Server Error")
	apiKeyAuth      = []map[string][]string{{"ApiKeyAuth": {}}}
	sessionIDParam  = parameter.StrParam("id", parameter.Path, parameter.WithDescription("Enrollment session ID"))
)

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "facegate API",
		Version:     "v1.0.0",
		Description: "Face enrollment and 1:1 verification for attendance terminals",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// POST /v1/enrollments - Open Session
		endpoint.New(
			endpoint.POST,
			"/enrollments",
			endpoint.WithTags("Enrollment"),
			endpoint.WithSummary("Open an enrollment session"),
			endpoint.WithDescription("Opens a session for user_id and starts the camera. JSON body: {\"user_id\", \"source\": \"relay\"|\"kiosk\", \"camera_error\"}. A relay session is fed by the browser; camera_error carries the getUserMedia error name when the browser could not open the camera. Opening a session closes the user's previous one."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionStatus{}, "201", "Session opened and detecting"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(SessionErrorResponse{}, "403", "Camera permission denied"),
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed", Kind: "usage"}, "422", "Unprocessable Entity"),
				response.New(SessionErrorResponse{}, "424", "Camera not found, unsupported or failed"),
				response.New(SessionErrorResponse{}, "503", "Face model unavailable"),
				errInternal,
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// GET /v1/enrollments/:id - Session Status
		endpoint.New(
			endpoint.GET,
			"/enrollments/{id}",
			endpoint.WithTags("Enrollment"),
			endpoint.WithSummary("Get session state"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(sessionIDParam),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionStatus{}, "200", "Current session state"),
			}),
			endpoint.WithErrors([]response.Response{errUnauthorized, errNotFound}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// POST /v1/enrollments/:id/frames - Push Frame
		endpoint.New(
			endpoint.POST,
			"/enrollments/{id}/frames",
			endpoint.WithTags("Enrollment"),
			endpoint.WithSummary("Push a camera frame"),
			endpoint.WithDescription("Stores a JPEG, PNG or WebP frame (at most 10MB) as the current frame of a relay session. Send the raw image as the body or as the multipart field image."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("image/jpeg"), mime.MIME("multipart/form-data")}),
			endpoint.WithParams(sessionIDParam),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "202", "Frame accepted"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errNotFound,
				response.New(ErrorResponse{Code: "INVALID_SESSION_STATE", Message: "Operation not allowed in the current session state", Kind: "usage"}, "409", "Camera not acquired"),
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image", Kind: "usage"}, "422", "Unprocessable Entity"),
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// POST /v1/enrollments/:id/capture - Capture Sample
		endpoint.New(
			endpoint.POST,
			"/enrollments/{id}/capture",
			endpoint.WithTags("Enrollment"),
			endpoint.WithSummary("Capture one sample"),
			endpoint.WithDescription("Detects the face in the current frame and keeps its descriptor when quality is fair or better. The third accepted sample averages the samples and saves the reference."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(sessionIDParam),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionStatus{}, "200", "Sample accepted"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errNotFound,
				errState,
				response.New(SessionErrorResponse{}, "422", "No face detected or quality too low"),
				response.New(SessionErrorResponse{}, "503", "Reference could not be saved"),
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// POST /v1/enrollments/:id/finalize - Retry Save
		endpoint.New(
			endpoint.POST,
			"/enrollments/{id}/finalize",
			endpoint.WithTags("Enrollment"),
			endpoint.WithSummary("Retry saving the reference"),
			endpoint.WithDescription("Saves the reference again from the kept samples after a persistence failure."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(sessionIDParam),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionStatus{}, "200", "Reference saved"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errNotFound,
				errState,
				response.New(SessionErrorResponse{}, "503", "Reference could not be saved"),
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// POST /v1/enrollments/:id/retry - Restart Camera
		endpoint.New(
			endpoint.POST,
			"/enrollments/{id}/retry",
			endpoint.WithTags("Enrollment"),
			endpoint.WithSummary("Start the camera again"),
			endpoint.WithDescription("Initializes an idle session again after an environment error. Optional JSON body: {\"camera_error\"} with the browser's latest getUserMedia error name."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(sessionIDParam),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionStatus{}, "200", "Session detecting"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errNotFound,
				errState,
				response.New(SessionErrorResponse{}, "424", "Camera still unavailable"),
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// DELETE /v1/enrollments/:id - Cancel Session
		endpoint.New(
			endpoint.DELETE,
			"/enrollments/{id}",
			endpoint.WithTags("Enrollment"),
			endpoint.WithSummary("Cancel a session"),
			endpoint.WithDescription("Releases the camera and discards every sample. Nothing is saved."),
			endpoint.WithParams(sessionIDParam),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Session canceled"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errNotFound,
				response.New(ErrorResponse{Code: "INVALID_SESSION_STATE", Message: "Operation not allowed in the current session state", Kind: "usage"}, "409", "Session already completed"),
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// GET /v1/enrollments/:id/ws - Session Events
		endpoint.New(
			endpoint.GET,
			"/enrollments/{id}/ws",
			endpoint.WithTags("Enrollment"),
			endpoint.WithSummary("Stream session events over WebSocket"),
			endpoint.WithDescription("Upgrades to a WebSocket that receives enrollment.status events. Binary messages are pushed as frames; a text message {\"type\":\"camera_error\",\"name\"} reports a getUserMedia failure. Pass the API key in the token query parameter."),
			endpoint.WithParams(
				sessionIDParam,
				parameter.StrParam("token", parameter.Query, parameter.WithDescription("API key")),
			),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errNotFound,
				response.New(ErrorResponse{Code: "HTTP_ERROR", Message: "Upgrade Required"}, "426", "Upgrade Required"),
			}),
		),

		// POST /v1/faces/verify - Verify Face (1:1)
		endpoint.New(
			endpoint.POST,
			"/faces/verify",
			endpoint.WithTags("Faces"),
			endpoint.WithSummary("Verify a face against the user's reference"),
			endpoint.WithDescription("Compares the face in image with the stored reference of user_id. A distance below the threshold is a match and publishes an attendance event of the given kind (clock_in by default)."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(VerifyResponse{}, "200", "Verification completed"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "NO_REFERENCE_DESCRIPTOR", Message: "No reference descriptor is enrolled for this user", Kind: "absence"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "DESCRIPTOR_LENGTH_MISMATCH", Message: "Descriptor lengths differ", Kind: "internal"}, "409", "Conflict"),
				response.New(ErrorResponse{Code: "NO_FACE_DETECTED", Message: "No face detected in image", Kind: "quality"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Too many verification attempts", Kind: "usage"}, "429", "Too Many Requests"),
				response.New(ErrorResponse{Code: "MODEL_UNAVAILABLE", Message: "The face model could not be loaded", Kind: "environment"}, "503", "Service Unavailable"),
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// GET /v1/faces/:user_id - Reference Status
		endpoint.New(
			endpoint.GET,
			"/faces/{user_id}",
			endpoint.WithTags("Faces"),
			endpoint.WithSummary("Get reference metadata"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(
				parameter.StrParam("user_id", parameter.Path, parameter.WithDescription("User identifier")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(FaceStatusResponse{}, "200", "User is enrolled"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "NO_REFERENCE_DESCRIPTOR", Message: "No reference descriptor is enrolled for this user", Kind: "absence"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "STORE_UNAVAILABLE", Message: "Descriptor store unavailable", Kind: "persistence"}, "503", "Service Unavailable"),
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),

		// DELETE /v1/faces/:user_id - Delete Reference
		endpoint.New(
			endpoint.DELETE,
			"/faces/{user_id}",
			endpoint.WithTags("Faces"),
			endpoint.WithSummary("Delete the user's reference"),
			endpoint.WithParams(
				parameter.StrParam("user_id", parameter.Path, parameter.WithDescription("User identifier")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Reference deleted"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "NO_REFERENCE_DESCRIPTOR", Message: "No reference descriptor is enrolled for this user", Kind: "absence"}, "404", "Not Found"),
			}),
			endpoint.WithSecurity(apiKeyAuth),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
