// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/OCAP2/telemetry-synth/pkg/core"
)

const (
	runsEndpoint     = "/v1/runs/add"
	sessionsEndpoint = "/v1/sessions/add"

	defaultMaxTries        = 4
	defaultInitialInterval = 500 * time.Millisecond
)

// ErrRejected marks a 4xx answer from the ingest API; such uploads are not retried.
var ErrRejected = errors.New("upload rejected")

// Client uploads generated runs to the telemetry ingest API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	maxTries        uint
	initialInterval time.Duration
}

// RunUpload names the files of one exported run.
type RunUpload struct {
	Manifest string   // run manifest written at EndRun
	Sessions []string // raw session documents, uploaded before the manifest
	Meta     core.UploadMetadata
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		apiKey:          apiKey,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		maxTries:        defaultMaxTries,
		initialInterval: defaultInitialInterval,
	}
}

// Healthcheck checks if the ingest API is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create healthcheck request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// UploadRun sends every session document and then the run manifest. The
// manifest goes last so the server only sees a complete run once all of
// its sessions are stored. It stops at the first failed file.
func (c *Client) UploadRun(ctx context.Context, u RunUpload) error {
	for i, path := range u.Sessions {
		fields := map[string]string{
			"runId":     u.Meta.RunID,
			"kind":      "session",
			"sessionId": sessionIDFromFile(path),
		}
		if err := c.uploadFile(ctx, sessionsEndpoint, path, fields); err != nil {
			return fmt.Errorf("session %d of %d: %w", i+1, len(u.Sessions), err)
		}
	}

	fields := map[string]string{
		"runId":    u.Meta.RunID,
		"kind":     u.Meta.Kind,
		"sessions": strconv.Itoa(u.Meta.Sessions),
	}
	if err := c.uploadFile(ctx, runsEndpoint, u.Manifest, fields); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	return nil
}

// uploadFile builds the multipart body once and posts it with retries.
func (c *Client) uploadFile(ctx context.Context, endpoint, path string, fields map[string]string) error {
	body, contentType, err := c.buildForm(path, fields)
	if err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := ctx.Err(); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, c.post(ctx, endpoint, body, contentType)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.maxTries))
	if err != nil {
		return fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	return nil
}

func (c *Client) buildForm(path string, fields map[string]string) ([]byte, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	_ = writer.WriteField("secret", c.apiKey)
	_ = writer.WriteField("filename", filepath.Base(path))
	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to copy file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// post performs one attempt. 4xx other than 429 is permanent; transport
// errors, 429 and 5xx are retried.
func (c *Client) post(ctx context.Context, endpoint string, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("upload returned status %d", resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode))
	}
}

// sessionIDFromFile recovers the session id from "<sessionId>_<end>.json[.gz]".
func sessionIDFromFile(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '_'); i > 0 {
		return name[:i]
	}
	return strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".json")
}
