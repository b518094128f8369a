// Package metrics exposes Prometheus collectors for decode outcomes,
// thumbnail fetches and the blob API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Decode outcome labels
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeApplied   = "applied"
	OutcomeIgnored   = "ignored"
	OutcomeMalformed = "malformed"
	OutcomeUnknown   = "unknown"
	OutcomeFailed    = "failed"
)

// Metrics groups the collectors of one client instance. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	decodes        *prometheus.CounterVec
	thumbnailFetch *prometheus.HistogramVec
	blobRequests   *prometheus.CounterVec
	blobBytes      prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zentalk",
			Name:      "box_decodes_total",
			Help:      "Decoded box messages by kind and outcome.",
		}, []string{"kind", "outcome"}),
		thumbnailFetch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zentalk",
			Name:      "thumbnail_fetch_seconds",
			Help:      "Thumbnail fetch latency by result.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"result"}),
		blobRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zentalk",
			Name:      "blob_requests_total",
			Help:      "Blob API requests by method and status.",
		}, []string{"method", "status"}),
		blobBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zentalk",
			Name:      "blob_bytes_served_total",
			Help:      "Encrypted blob bytes served.",
		}),
	}

	m.Registry.MustRegister(m.decodes, m.thumbnailFetch, m.blobRequests, m.blobBytes)
	return m
}

// Decode counts one decode of the given kind ("ballot-create", "file", ...)
func (m *Metrics) Decode(kind, outcome string) {
	if m == nil {
		return
	}
	m.decodes.WithLabelValues(kind, outcome).Inc()
}

// ThumbnailFetch records the latency of one thumbnail fetch
func (m *Metrics) ThumbnailFetch(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.thumbnailFetch.WithLabelValues(result).Observe(d.Seconds())
}

// BlobRequest counts one blob API request
func (m *Metrics) BlobRequest(method, status string) {
	if m == nil {
		return
	}
	m.blobRequests.WithLabelValues(method, status).Inc()
}

// BlobServed adds to the served byte counter
func (m *Metrics) BlobServed(n int) {
	if m == nil {
		return
	}
	m.blobBytes.Add(float64(n))
}
