package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/zentalk-client/pkg/blob"
	"github.com/ZentaChain/zentalk-client/pkg/crypto"
	"github.com/ZentaChain/zentalk-client/pkg/logger"
	"github.com/ZentaChain/zentalk-client/pkg/metrics"
)

func newTestServer(t *testing.T, config *Config) (*Server, *blob.Store) {
	t.Helper()
	store, err := blob.Open(t.TempDir(), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewServer(store, config, logger.Discard(), metrics.New()), store
}

func serve(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func testBlob(t *testing.T) []byte {
	key, err := crypto.GenerateBlobKey()
	require.NoError(t, err)
	return crypto.SealBlob([]byte("encrypted thumbnail bytes"), key, &crypto.ThumbnailNonce)
}

func TestAPIUploadDownload(t *testing.T) {
	server, _ := newTestServer(t, nil)
	data := testBlob(t)
	var id string

	t.Run("Upload", func(t *testing.T) {
		w := serve(server, http.MethodPost, "/blob", data)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp UploadResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, crypto.BlobIDFor(data).String(), resp.BlobID)
		assert.Equal(t, len(data), resp.Size)
		id = resp.BlobID
	})

	t.Run("Download", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/blob/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, data, w.Body.Bytes())
		assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	})

	t.Run("Head", func(t *testing.T) {
		w := serve(server, http.MethodHead, "/blob/"+id, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Body.Bytes())
	})

	t.Run("Health", func(t *testing.T) {
		w := serve(server, http.MethodGet, "/blob/"+id+"/health", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp BlobHealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, blob.HealthExcellent, resp.Health)
		assert.Equal(t, blob.TotalShards, resp.ShardsAlive)
	})

	t.Run("Delete", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, serve(server, http.MethodDelete, "/blob/"+id, nil).Code)
		assert.Equal(t, http.StatusNotFound, serve(server, http.MethodGet, "/blob/"+id, nil).Code)
		assert.Equal(t, http.StatusNotFound, serve(server, http.MethodDelete, "/blob/"+id, nil).Code)
	})
}

func TestAPIErrors(t *testing.T) {
	config := DefaultConfig()
	config.MaxUploadSizeMB = 1
	server, _ := newTestServer(t, config)

	tests := []struct {
		name   string
		method string
		path   string
		body   []byte
		want   int
	}{
		{"unknown blob", http.MethodGet, "/blob/00112233445566778899aabbccddeeff", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/blob/not-hex", nil, http.StatusBadRequest},
		{"short id", http.MethodGet, "/blob/0011", nil, http.StatusBadRequest},
		{"empty upload", http.MethodPost, "/blob", nil, http.StatusBadRequest},
		{"oversized upload", http.MethodPost, "/blob", make([]byte, 1<<20+1), http.StatusRequestEntityTooLarge},
		{"unknown blob health", http.MethodGet, "/blob/00112233445566778899aabbccddeeff/health", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(server, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestAPIFetcherRoundTrip(t *testing.T) {
	server, _ := newTestServer(t, nil)
	srv := httptest.NewServer(server.Handler())
	defer srv.Close()

	fetcher := blob.NewHTTPFetcher(srv.URL, srv.Client())
	data := testBlob(t)
	ctx := context.Background()

	id, err := fetcher.Upload(ctx, data)
	require.NoError(t, err)

	got, err := fetcher.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRequestID(t *testing.T) {
	server, _ := newTestServer(t, nil)

	w := serve(server, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	generated := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)

	supplied := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, supplied)
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, supplied, w.Header().Get(RequestIDHeader))
}

func TestHealthAndMetrics(t *testing.T) {
	server, _ := newTestServer(t, nil)
	serve(server, http.MethodPost, "/blob", testBlob(t))

	w := serve(server, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Blobs)

	w = serve(server, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "zentalk_blob_requests_total"), w.Body.String())
}

func TestRateLimit(t *testing.T) {
	config := DefaultConfig()
	config.RateLimit = 2
	server, _ := newTestServer(t, config)

	assert.Equal(t, http.StatusOK, serve(server, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, serve(server, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(server, http.MethodGet, "/health", nil).Code)
}
