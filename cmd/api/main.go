package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/api"
	"github.com/saturnino-fabrica-de-software/facegate/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/camera"
	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/database"
	"github.com/saturnino-fabrica-de-software/facegate/internal/domain"
	"github.com/saturnino-fabrica-de-software/facegate/internal/enrollment"
	"github.com/saturnino-fabrica-de-software/facegate/internal/face"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
	"github.com/saturnino-fabrica-de-software/facegate/internal/queue"
	"github.com/saturnino-fabrica-de-software/facegate/internal/repository"
	"github.com/saturnino-fabrica-de-software/facegate/internal/service"
	"github.com/saturnino-fabrica-de-software/facegate/internal/storage"
	"github.com/saturnino-fabrica-de-software/facegate/internal/ws"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting facegate",
		slog.String("version", version),
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Descriptor store
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Face model, warmed up in the background so the first enrollment
	// does not pay for the load.
	engine, err := face.NewDetector(cfg)
	if err != nil {
		return fmt.Errorf("failed to create detector: %w", err)
	}
	loader := provider.NewLoader(engine, cfg.ModelProbeTimeout, logger)
	go func() {
		if err := loader.Load(ctx); err != nil {
			logger.Warn("face model warm-up failed, will retry on first use", slog.Any("error", err))
		}
	}()

	checks := []handler.Check{
		{Name: "store", Fn: store.Ping},
		{Name: "model", Fn: func(ctx context.Context) error {
			if !loader.Ready() {
				return domain.ErrModelUnavailable
			}
			return nil
		}},
	}

	// Attendance events
	var publisher service.AttendancePublisherInterface = queue.Discard{Logger: logger}
	if cfg.NATSURL != "" {
		producer, err := queue.NewProducer(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		defer producer.Close()

		if err := producer.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to create attendance stream: %w", err)
		}
		publisher = producer
		checks = append(checks, handler.Check{Name: "nats", Fn: func(context.Context) error {
			return producer.Ping()
		}})
	}

	// WebSocket hub
	hub := ws.NewHub()
	hubCtx, cancelHub := context.WithCancel(context.Background())
	defer cancelHub()
	go hub.Run(hubCtx)

	auditLogger := audit.NewSlogLogger(logger)

	// Enrollment sessions
	sessions := enrollment.NewManager(enrollment.Deps{
		Detector:     engine,
		Loader:       loader,
		Store:        store,
		PollInterval: cfg.PollInterval,
		Logger:       logger,
		Audit:        auditLogger,
		OnChange: func(st enrollment.Status) {
			if st.Closed {
				hub.Broadcast(st.ID, ws.EventSessionClosed, st)
				return
			}
			hub.Broadcast(st.ID, ws.EventSessionStatus, st)
		},
	}, cfg.SessionTTL)
	sessionsDone := make(chan struct{})
	go func() {
		sessions.Run(ctx)
		close(sessionsDone)
	}()

	var kiosk camera.Camera
	if cfg.KioskCameraURL != "" {
		kiosk = camera.NewSnapshot(cfg.KioskCameraURL, nil)
		logger.Info("kiosk camera configured", slog.String("url", cfg.KioskCameraURL))
	}

	faceService := service.NewFaceService(store, engine, publisher, logger).
		WithThreshold(cfg.VerificationThreshold).
		WithAudit(auditLogger)

	// Setup router
	router := api.NewRouter(logger, version, &api.Dependencies{
		Sessions:         sessions,
		Faces:            faceService,
		Kiosk:            kiosk,
		Hub:              hub,
		APIKey:           cfg.APIKey,
		Checks:           checks,
		VerifyRateLimit:  cfg.VerifyRateLimit,
		VerifyRateWindow: cfg.VerifyRateWindow,
	})
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		stop()
		<-sessionsDone
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	// Sessions close after the server stops taking requests; their close
	// events still reach the hub.
	select {
	case <-sessionsDone:
	case <-time.After(10 * time.Second):
		logger.Warn("timed out closing enrollment sessions")
	}
	cancelHub()

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.DescriptorStore, func(), error) {
	switch cfg.DescriptorStore {
	case "minio":
		store, err := storage.NewMinIOStore(storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create minio store: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to ensure bucket: %w", err)
		}
		return store, func() {}, nil

	default:
		pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return repository.NewDescriptorRepository(pool), pool.Close, nil
	}
}
