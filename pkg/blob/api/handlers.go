package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZentaChain/zentalk-client/pkg/blob"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// UploadResponse is returned by POST /blob
type UploadResponse struct {
	BlobID string `json:"blobId"`
	Size   int    `json:"size"`
}

// BlobHealthResponse is returned by GET /blob/:id/health
type BlobHealthResponse struct {
	BlobID      string      `json:"blobId"`
	Health      blob.Health `json:"health"`
	ShardsAlive int         `json:"shardsAlive"`
	ShardsTotal int         `json:"shardsTotal"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Blobs      int    `json:"blobs"`
	TotalBytes int64  `json:"totalBytes"`
}

func blobID(c *gin.Context) (protocol.BlobID, bool) {
	id, err := protocol.ParseBlobID(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid blob id", err)
		return id, false
	}
	return id, true
}

// handleDownload handles GET and HEAD /blob/:id
func (s *Server) handleDownload(c *gin.Context) {
	id, ok := blobID(c)
	if !ok {
		return
	}

	data, err := s.store.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "Blob not found", nil)
		return
	case err != nil:
		s.log.Error("blob retrieval failed", "blob", id, "error", err)
		abortWithError(c, http.StatusInternalServerError, "Retrieval failed", err)
		return
	}

	c.Header("Cache-Control", "private, max-age=31536000, immutable")
	if c.Request.Method == http.MethodHead {
		c.Header("Content-Length", strconv.Itoa(len(data)))
		c.Status(http.StatusOK)
		return
	}

	s.metrics.BlobServed(len(data))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// handleUpload handles POST /blob with the raw encrypted blob as body
func (s *Server) handleUpload(c *gin.Context) {
	limit := int64(s.config.MaxUploadSizeMB) << 20
	if limit <= 0 || limit > blob.MaxBlobSize {
		limit = blob.MaxBlobSize
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	if int64(len(data)) > limit {
		abortWithError(c, http.StatusRequestEntityTooLarge, "Blob too large", nil)
		return
	}

	id, err := s.store.Put(c.Request.Context(), data)
	switch {
	case errors.Is(err, blob.ErrEmptyBlob):
		abortWithError(c, http.StatusBadRequest, "Empty blob", nil)
		return
	case errors.Is(err, blob.ErrBlobTooLarge):
		abortWithError(c, http.StatusRequestEntityTooLarge, "Blob too large", nil)
		return
	case err != nil:
		s.log.Error("blob upload failed", "error", err)
		abortWithError(c, http.StatusInternalServerError, "Upload failed", err)
		return
	}

	c.JSON(http.StatusCreated, UploadResponse{BlobID: id.String(), Size: len(data)})
}

// handleDelete handles DELETE /blob/:id
func (s *Server) handleDelete(c *gin.Context) {
	id, ok := blobID(c)
	if !ok {
		return
	}

	err := s.store.Delete(c.Request.Context(), id)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "Blob not found", nil)
	case err != nil:
		abortWithError(c, http.StatusInternalServerError, "Delete failed", err)
	default:
		c.Status(http.StatusNoContent)
	}
}

// handleBlobHealth handles GET /blob/:id/health
func (s *Server) handleBlobHealth(c *gin.Context) {
	id, ok := blobID(c)
	if !ok {
		return
	}

	health, alive, err := s.store.Health(c.Request.Context(), id)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "Blob not found", nil)
		return
	case err != nil:
		abortWithError(c, http.StatusInternalServerError, "Health check failed", err)
		return
	}

	if health.NeedsRepair() {
		if _, err := s.store.Repair(c.Request.Context(), id); err != nil {
			s.log.Warn("blob repair failed", "blob", id, "error", err)
		}
	}

	c.JSON(http.StatusOK, BlobHealthResponse{
		BlobID:      id.String(),
		Health:      health,
		ShardsAlive: alive,
		ShardsTotal: blob.TotalShards,
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		abortWithError(c, http.StatusServiceUnavailable, "Store unavailable", err)
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:     "ok",
		Uptime:     time.Since(s.startedAt).Round(time.Second).String(),
		Blobs:      stats.Blobs,
		TotalBytes: stats.TotalBytes,
	})
}
