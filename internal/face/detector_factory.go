package face

import (
	"fmt"

	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/mock"
)

// DetectorType defines supported face detector backends
type DetectorType string

const (
	// DetectorTypeDeepFace calls a DeepFace HTTP server
	DetectorTypeDeepFace DetectorType = "deepface"
	// DetectorTypeMock derives descriptors from frame bytes, for local development
	DetectorTypeMock DetectorType = "mock"
)

// Engine is a detector whose model is loaded through provider.Loader.
type Engine interface {
	provider.Detector
	provider.Model
}

// NewDetector creates the detector selected by cfg.Detector.
//
// Environment variables:
//   - DETECTOR: "deepface" or "mock" (default: "deepface")
//   - DEEPFACE_URL: DeepFace API URL (default: "http://localhost:5005")
//   - DEEPFACE_MODEL, DEEPFACE_DETECTOR: DeepFace model and detector backend
func NewDetector(cfg *config.Config) (Engine, error) {
	switch DetectorType(cfg.Detector) {
	case DetectorTypeDeepFace, "":
		return createDeepFaceDetector(cfg), nil

	case DetectorTypeMock:
		return mock.New(), nil

	default:
		return nil, fmt.Errorf("unknown detector type: %s (supported: %s, %s)",
			cfg.Detector, DetectorTypeDeepFace, DetectorTypeMock)
	}
}

func createDeepFaceDetector(cfg *config.Config) *deepface.Detector {
	dfConfig := deepface.DefaultConfig()
	if cfg.DeepFaceURL != "" {
		dfConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceModel != "" {
		dfConfig.Model = cfg.DeepFaceModel
	}
	if cfg.DeepFaceDetector != "" {
		dfConfig.Detector = cfg.DeepFaceDetector
	}

	return deepface.NewDetector(dfConfig)
}
