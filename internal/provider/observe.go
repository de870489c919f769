package provider

import (
	"context"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/observability"
)

// DetectObserved runs d.Detect and records its duration and outcome
// under purpose ("poll", "capture", "verify").
func DetectObserved(ctx context.Context, d Detector, frame Frame, purpose string) (*Detection, error) {
	start := time.Now()
	det, err := d.Detect(ctx, frame)
	observability.DetectDuration.WithLabelValues(purpose).Observe(time.Since(start).Seconds())

	switch {
	case err != nil:
		observability.Detections.WithLabelValues(purpose, "error").Inc()
	case det == nil:
		observability.Detections.WithLabelValues(purpose, "no_face").Inc()
	default:
		observability.Detections.WithLabelValues(purpose, "face").Inc()
	}
	return det, err
}
