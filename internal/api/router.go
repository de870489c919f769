package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/facegate/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/facegate/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/facegate/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/facegate/internal/camera"
	"github.com/saturnino-fabrica-de-software/facegate/internal/ws"
)

// bodyLimit leaves room for multipart framing around the largest frame.
const bodyLimit = camera.MaxFrameSize + 1024*1024

type Dependencies struct {
	Sessions handler.SessionManager
	Faces    handler.FaceService
	// Kiosk is the server-side camera; nil when none is configured.
	Kiosk  camera.Camera
	Hub    *ws.Hub
	APIKey string
	Checks []handler.Check

	VerifyRateLimit  int
	VerifyRateWindow time.Duration
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	version     string
	rateLimiter *middleware.RateLimiter
}

func NewRouter(logger *slog.Logger, version string, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "facegate",
		BodyLimit:    bodyLimit,
	})

	return &Router{
		app:     app,
		logger:  logger,
		deps:    deps,
		version: version,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Swagger documentation (no auth required)
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// Health check endpoints (no auth required)
	var checks []handler.Check
	if r.deps != nil {
		checks = r.deps.Checks
	}
	healthHandler := handler.NewHealthHandler(r.version, checks...)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Only configure authenticated routes if dependencies were provided
	if r.deps == nil {
		return
	}

	v1 := r.app.Group("/v1")
	v1.Use(middleware.Auth(r.deps.APIKey))

	limiterConfig := middleware.DefaultRateLimiterConfig()
	if r.deps.VerifyRateLimit > 0 {
		limiterConfig.Max = r.deps.VerifyRateLimit
	}
	if r.deps.VerifyRateWindow > 0 {
		limiterConfig.Window = r.deps.VerifyRateWindow
	}
	r.rateLimiter = middleware.NewRateLimiter(limiterConfig)

	// Face routes
	faceHandler := handler.NewFaceHandler(r.deps.Faces, r.logger)
	v1.Post("/faces/verify", r.rateLimiter.Handler(), faceHandler.Verify)
	v1.Get("/faces/:user_id", faceHandler.Status)
	v1.Delete("/faces/:user_id", faceHandler.Delete)

	// Enrollment routes
	enrollmentHandler := handler.NewEnrollmentHandler(r.deps.Sessions, r.deps.Kiosk, r.logger)
	v1.Post("/enrollments", enrollmentHandler.Open)
	v1.Get("/enrollments/:id", enrollmentHandler.Get)
	v1.Delete("/enrollments/:id", enrollmentHandler.Cancel)
	v1.Post("/enrollments/:id/frames", enrollmentHandler.UploadFrame)
	v1.Post("/enrollments/:id/capture", enrollmentHandler.Capture)
	v1.Post("/enrollments/:id/finalize", enrollmentHandler.Finalize)
	v1.Post("/enrollments/:id/retry", enrollmentHandler.Retry)

	// WebSocket endpoint
	v1.Get("/enrollments/:id/ws", ws.UpgradeMiddleware(), enrollmentHandler.Watch, ws.Handler(r.deps.Hub, enrollmentHandler, r.logger))
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
