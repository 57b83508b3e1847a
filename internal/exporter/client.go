// Package exporter talks to the ordering platform's data export pipeline.
// It triggers a fresh export and downloads the snapshot CSV files the
// recommendation engine loads at startup.
package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// SnapshotFiles lists every CSV the export pipeline produces, in the order
// they are fetched.
var SnapshotFiles = []string{
	"users.csv",
	"dishes.csv",
	"stores.csv",
	"interaction.csv",
	"food_tags.csv",
	"taste_tags.csv",
	"cooking_method_tags.csv",
	"culture_tags.csv",
}

// ClientOptions configures the export pipeline client.
type ClientOptions struct {
	// BaseURL is the base URL of the export service (required).
	BaseURL string
	// APIKey authenticates against the export service.
	APIKey string
	// RetryMax is the maximum number of retries (default: 3)
	RetryMax int
	// Timeout is the HTTP client timeout (default: 2 minutes; exports are slow)
	Timeout time.Duration
}

// Client is the export pipeline client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *retryablehttp.Client
}

// NewClient creates an export pipeline client with default settings.
func NewClient(baseURL, apiKey string) *Client {
	return NewClientWithOptions(ClientOptions{BaseURL: baseURL, APIKey: apiKey})
}

// NewClientWithOptions creates an export pipeline client with custom options.
func NewClientWithOptions(opts ClientOptions) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil // Disable logging by default

	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: retryClient,
	}
}

// ExportResult describes a completed export run.
type ExportResult struct {
	ExportID   string `json:"export_id"`
	RowCounts  map[string]int
	FetchedDir string
}

type triggerResponse struct {
	ExportID string `json:"export_id"`
}

// TriggerExport asks the platform to materialize a fresh snapshot and
// returns its export id. The call blocks until the export is ready.
func (c *Client) TriggerExport(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", c.baseURL+"/admin/export-data", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			slog.Error("Failed to read error response body", "error", readErr)
		}
		return "", fmt.Errorf("export request failed with status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var trigger triggerResponse
	if err := json.Unmarshal(body, &trigger); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if trigger.ExportID == "" {
		return "", fmt.Errorf("export response missing export_id")
	}

	return trigger.ExportID, nil
}

// TriggerTraining asks the platform's training pipeline to retrain the model
// from the latest export. Training runs remotely; the serving layer picks up
// new weights on the next reload.
func (c *Client) TriggerTraining(ctx context.Context) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", c.baseURL+"/admin/train-model", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			slog.Error("Failed to read error response body", "error", readErr)
		}
		return fmt.Errorf("training request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// FetchSnapshot downloads every snapshot CSV for the given export into dir.
// Files are written to a temporary name first and renamed into place so a
// concurrent catalog load never sees a half-written file.
func (c *Client) FetchSnapshot(ctx context.Context, exportID, dir string) (*ExportResult, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	result := &ExportResult{
		ExportID:   exportID,
		RowCounts:  make(map[string]int, len(SnapshotFiles)),
		FetchedDir: dir,
	}
	for _, name := range SnapshotFiles {
		rows, err := c.fetchFile(ctx, exportID, name, dir)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", name, err)
		}
		result.RowCounts[name] = rows
	}

	return result, nil
}

// Export triggers a fresh export and fetches its snapshot into dir.
func (c *Client) Export(ctx context.Context, dir string) (*ExportResult, error) {
	exportID, err := c.TriggerExport(ctx)
	if err != nil {
		return nil, err
	}
	return c.FetchSnapshot(ctx, exportID, dir)
}

func (c *Client) fetchFile(ctx context.Context, exportID, name, dir string) (int, error) {
	reqURL := fmt.Sprintf("%s/admin/exports/%s/files/%s", c.baseURL, exportID, name)
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/csv")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			slog.Error("Failed to read error response body", "error", readErr)
		}
		return 0, fmt.Errorf("file request failed with status %d: %s", resp.StatusCode, string(body))
	}

	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if removeErr := os.Remove(tmp.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
			slog.Error("Failed to remove temp file", "file", tmp.Name(), "error", removeErr)
		}
	}()

	counter := &lineCounter{}
	if _, err := io.Copy(io.MultiWriter(tmp, counter), resp.Body); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return 0, fmt.Errorf("failed to move file into place: %w", err)
	}

	// Subtract the header line when the file is non-empty.
	rows := counter.lines
	if rows > 0 {
		rows--
	}
	return rows, nil
}

func (c *Client) setHeaders(req *retryablehttp.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Error("Failed to close response body", "error", err)
	}
}

type lineCounter struct {
	lines int
}

func (l *lineCounter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			l.lines++
		}
	}
	return len(p), nil
}
