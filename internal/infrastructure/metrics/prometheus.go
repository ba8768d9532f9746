// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vaultstream"

var (
	// PipelineRunsTotal tracks completed transcoding pipelines.
	// Labels:
	//   - outcome: ready, failed
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of completed transcoding pipelines",
		},
		[]string{"outcome"},
	)

	// PipelineDurationSeconds observes wall-clock pipeline duration.
	PipelineDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Wall-clock duration of transcoding pipelines",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
		},
	)

	// RenditionsTotal tracks per-rendition encode results.
	// Labels:
	//   - rendition: 1080p, 720p, 480p, 360p, ...
	//   - outcome: success, failure
	RenditionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renditions_total",
			Help:      "Total number of rendition encodes",
		},
		[]string{"rendition", "outcome"},
	)

	// TokenVerificationsTotal tracks playback token verifications.
	// Labels:
	//   - result: ok, malformed, bad_signature, expired, resource_mismatch
	TokenVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_verifications_total",
			Help:      "Total number of playback token verifications",
		},
		[]string{"result"},
	)

	// SegmentBytesStreamed counts bytes streamed to clients from segment responses.
	SegmentBytesStreamed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_bytes_streamed_total",
			Help:      "Total bytes streamed from HLS segment responses",
		},
	)

	// AccessRequestsTotal tracks access-gate decisions.
	// Labels:
	//   - result: granted, not_found, not_ready, denied, passphrase_required, invalid_passphrase
	AccessRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_requests_total",
			Help:      "Total number of access-gate decisions",
		},
		[]string{"result"},
	)

	// CacheOperationsTotal tracks video metadata cache operations.
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior on video lookups.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)
)

// Pipeline outcome constants.
const (
	OutcomeReady  = "ready"
	OutcomeFailed = "failed"
)

// Rendition outcome constants.
const (
	RenditionSuccess = "success"
	RenditionFailure = "failure"
)

// Token verification result constants.
const (
	TokenOK               = "ok"
	TokenMalformed        = "malformed"
	TokenBadSignature     = "bad_signature"
	TokenExpired          = "expired"
	TokenResourceMismatch = "resource_mismatch"
)

// Access-gate result constants.
const (
	AccessGranted            = "granted"
	AccessNotFound           = "not_found"
	AccessNotReady           = "not_ready"
	AccessDenied             = "denied"
	AccessPassphraseRequired = "passphrase_required"
	AccessInvalidPassphrase  = "invalid_passphrase"
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
