package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDecodeCounter(t *testing.T) {
	m := New()

	m.Decode("ballot-vote", OutcomeApplied)
	m.Decode("ballot-vote", OutcomeApplied)
	m.Decode("ballot-vote", OutcomeIgnored)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decodes.WithLabelValues("ballot-vote", OutcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodes.WithLabelValues("ballot-vote", OutcomeIgnored)))
}

func TestBlobCounters(t *testing.T) {
	m := New()

	m.BlobRequest("GET", "200")
	m.BlobServed(1024)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.blobRequests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(m.blobBytes))
}

func TestThumbnailFetchHistogram(t *testing.T) {
	m := New()
	m.ThumbnailFetch(150*time.Millisecond, true)
	m.ThumbnailFetch(time.Second, false)

	assert.Equal(t, 2, testutil.CollectAndCount(m.thumbnailFetch))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Decode("file", OutcomeCreated)
		m.ThumbnailFetch(time.Second, true)
		m.BlobRequest("GET", "404")
		m.BlobServed(1)
	})
}
