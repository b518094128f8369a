package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZentaChain/zentalk-client/pkg/crypto"
	"github.com/ZentaChain/zentalk-client/pkg/protocol"
)

// HTTPFetcher fetches blobs from a blob server
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher for the blob server at baseURL. A nil
// client uses a client with a 60s timeout.
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPFetcher{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Fetch downloads a blob and checks it against its id
func (f *HTTPFetcher) Fetch(ctx context.Context, id protocol.BlobID) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/blob/"+id.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch blob %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	default:
		return nil, fmt.Errorf("fetch blob %s: unexpected status %s", id, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBlobSize+1))
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	if len(data) > MaxBlobSize {
		return nil, fmt.Errorf("%w: %s", ErrBlobTooLarge, id)
	}
	if !crypto.VerifyBlobID(data, id) {
		return nil, fmt.Errorf("%w: %s", ErrCorruptBlob, id)
	}
	return data, nil
}

// uploadResponse mirrors the blob server's POST /blob reply
type uploadResponse struct {
	BlobID string `json:"blobId"`
}

// Upload stores an encrypted blob on the server and returns its id
func (f *HTTPFetcher) Upload(ctx context.Context, data []byte) (protocol.BlobID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/blob", bytes.NewReader(data))
	if err != nil {
		return protocol.BlobID{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := f.client.Do(req)
	if err != nil {
		return protocol.BlobID{}, fmt.Errorf("upload blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return protocol.BlobID{}, fmt.Errorf("upload blob: unexpected status %s", resp.Status)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return protocol.BlobID{}, fmt.Errorf("upload blob: %w", err)
	}
	id, err := protocol.ParseBlobID(out.BlobID)
	if err != nil {
		return protocol.BlobID{}, fmt.Errorf("upload blob: %w", err)
	}
	if id != crypto.BlobIDFor(data) {
		return protocol.BlobID{}, fmt.Errorf("upload blob: server returned id %s for different content", id)
	}
	return id, nil
}
