package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EnrollmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecheck",
		Name:      "enrollments_total",
		Help:      "Total enrollment attempts by result",
	}, []string{"result"})

	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facecheck",
		Name:      "verifications_total",
		Help:      "Total verification attempts by result",
	}, []string{"result"})

	DuplicateRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facecheck",
		Name:      "duplicate_rejections_total",
		Help:      "Enrollments rejected because the face matched another identity",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facecheck",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	PhotoQualityScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "facecheck",
		Name:      "photo_quality_score",
		Help:      "Quality scores of uploaded enrollment photos",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facecheck",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facecheck",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
