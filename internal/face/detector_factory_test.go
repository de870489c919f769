package face

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/facegate/internal/provider/mock"
)

func TestNewDetector(t *testing.T) {
	tests := []struct {
		name     string
		detector string
		wantType interface{}
	}{
		{name: "explicit deepface", detector: "deepface", wantType: &deepface.Detector{}},
		{name: "empty defaults to deepface", detector: "", wantType: &deepface.Detector{}},
		{name: "mock", detector: "mock", wantType: &mock.Detector{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{
				Detector:    tt.detector,
				DeepFaceURL: "http://custom-host:8080",
			}

			engine, err := NewDetector(cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, engine)
		})
	}
}

func TestNewDetector_UnknownType(t *testing.T) {
	_, err := NewDetector(&config.Config{Detector: "rekognition"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown detector type")
}
