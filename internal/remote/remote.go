// Package remote talks to the external transcription worker over its
// three-endpoint HTTP protocol: submit a job, poll its status, retrieve its
// finished transcript.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jo-hoe/sermonforge/internal/common"
	"github.com/jo-hoe/sermonforge/internal/config"
)

// Coordinator drives the remote transcription worker's job lifecycle.
type Coordinator struct {
	httpClient   *http.Client
	baseURL      string
	whisperModel string
}

// New builds a Coordinator from cfg.
func New(cfg config.RemoteConfig) *Coordinator {
	timeout := cfg.RetrieveTimeout
	if cfg.DeployTimeout > timeout {
		timeout = cfg.DeployTimeout
	}
	return &Coordinator{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		whisperModel: cfg.WhisperModel,
	}
}

// DeployResponse is the worker's immediate reply to a /new-job submission.
type DeployResponse struct {
	Status string `json:"status"`
}

// Deploy uploads the audio file at audioPath for ulid and returns the
// worker's reported status, which must be common.WorkerStatusDeployed on
// success.
func (c *Coordinator) Deploy(ctx context.Context, ulid, audioPath string) (DeployResponse, error) {
	f, err := os.Open(audioPath) // #nosec G304 - audioPath is produced by our own job-directory layout
	if err != nil {
		return DeployResponse{}, fmt.Errorf("open audio file: %w", err)
	}
	defer func() { _ = f.Close() }()

	body := &strings.Builder{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile(common.FieldFile, filepath.Base(audioPath))
	if err != nil {
		return DeployResponse{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return DeployResponse{}, fmt.Errorf("copy audio into form: %w", err)
	}
	if err := writer.WriteField(common.FieldWhisperModel, c.whisperModel); err != nil {
		return DeployResponse{}, fmt.Errorf("write whisper_model field: %w", err)
	}
	if err := writer.WriteField(common.FieldULID, ulid); err != nil {
		return DeployResponse{}, fmt.Errorf("write ulid field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return DeployResponse{}, fmt.Errorf("close multipart writer: %w", err)
	}

	u, err := url.JoinPath(c.baseURL, common.PathNewJob)
	if err != nil {
		return DeployResponse{}, fmt.Errorf("join url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(body.String()))
	if err != nil {
		return DeployResponse{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DeployResponse{}, fmt.Errorf("deploy job: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return DeployResponse{}, fmt.Errorf("deploy job: status %d: %s", resp.StatusCode, string(data))
	}

	var out DeployResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return DeployResponse{}, fmt.Errorf("parse deploy response: %w", err)
	}
	if out.Status != common.WorkerStatusDeployed {
		return out, fmt.Errorf("worker returned non-deployed status: %s", out.Status)
	}
	return out, nil
}

// StatusResponse is the worker's reply to a /report-job-status poll.
type StatusResponse struct {
	Status string `json:"status"`
}

// PollStatus asks the worker for ulid's current status.
func (c *Coordinator) PollStatus(ctx context.Context, ulid string) (StatusResponse, error) {
	u, err := url.JoinPath(c.baseURL, common.PathReportJobStatus, ulid)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("join url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("poll status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return StatusResponse{}, fmt.Errorf("poll status: status %d: %s", resp.StatusCode, string(data))
	}

	var out StatusResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return StatusResponse{}, fmt.Errorf("parse status response: %w", err)
	}
	return out, nil
}

// Retrieve downloads ulid's finished transcript as plain text.
func (c *Coordinator) Retrieve(ctx context.Context, ulid string) (string, error) {
	u, err := url.JoinPath(c.baseURL, common.PathRetrieveJob, ulid)
	if err != nil {
		return "", fmt.Errorf("join url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("retrieve transcript: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcript body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("retrieve transcript: status %d: %s", resp.StatusCode, string(data))
	}
	return string(data), nil
}

// waitablePollInterval is how often callers of a blocking wait loop (such as
// the transcribe stage's) should re-poll PollStatus.
const waitablePollInterval = 2 * time.Second

// PollInterval is exported for callers implementing their own wait loop.
func PollInterval() time.Duration { return waitablePollInterval }
