package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ModelLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "model_loads_total",
		Help:      "Face model load attempts by outcome",
	}, []string{"outcome"})

	Detections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "detections_total",
		Help:      "Frames run through the detector by purpose and result",
	}, []string{"purpose", "result"})

	DetectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "detect_duration_seconds",
		Help:      "Duration of detector calls",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"purpose"})

	Captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "captures_total",
		Help:      "Enrollment capture attempts by outcome",
	}, []string{"outcome"})

	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "enrollments_total",
		Help:      "Enrollment sessions by final outcome",
	}, []string{"outcome"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "active_enrollment_sessions",
		Help:      "Number of open enrollment sessions",
	})

	Verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "verifications_total",
		Help:      "Verification attempts by result",
	}, []string{"result"})

	VerificationDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "verification_distance",
		Help:      "Euclidean distance between live and reference descriptors",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 12),
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
