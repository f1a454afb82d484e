// Package metrics holds the prometheus collectors shared by the server and worker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seeksy_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seeksy_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seeksy_uploads_total",
		Help: "Media uploads by result",
	}, []string{"result"})

	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seeksy_upload_bytes_total",
		Help: "Bytes stored by successful media uploads",
	})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seeksy_processing_jobs_total",
		Help: "Processing jobs by type and terminal status",
	}, []string{"job_type", "status"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seeksy_processing_job_duration_seconds",
		Help:    "Duration of processing jobs",
		Buckets: prometheus.DefBuckets,
	}, []string{"job_type", "status"})

	StaleJobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seeksy_processing_jobs_stale_total",
		Help: "Jobs failed by the stale-job recovery loop",
	})

	CaptureSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seeksy_capture_sessions_total",
		Help: "Capture sessions by outcome",
	}, []string{"outcome"})
)
