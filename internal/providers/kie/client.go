// Package kie talks to the generation provider. It is the only package that
// crosses the provider network boundary and it never retries on its own.
package kie

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tryon/internal/domain"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("kie: api key is required")

const (
	createTaskPath = "/api/v1/jobs/createTask"
	recordInfoPath = "/api/v1/jobs/recordInfo"
	uploadPath     = "/api/file-base64-upload"
)

// Options configures the provider client.
type Options struct {
	APIKey         string
	BaseURL        string
	UploadBaseURL  string
	UploadFolder   string
	HTTPClient     *http.Client
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the provider job API.
type Client struct {
	apiKey        string
	baseURL       string
	uploadBaseURL string
	uploadFolder  string
	httpClient    *http.Client
	logger        zerolog.Logger
}

// ImageJob describes one image generation submission.
type ImageJob struct {
	Model       string
	Prompt      string
	ImageInputs []string
	AspectRatio string
	Resolution  string
}

// VideoJob describes one video generation submission.
type VideoJob struct {
	Model       string
	Prompt      string
	ImageInput  string
	AspectRatio string
	Duration    int
	Sound       bool
}

// Status is a normalized provider task snapshot.
type Status struct {
	State      string
	Status     domain.TaskStatus
	Progress   int
	ResultURLs []string
	Error      string
}

// NewClient constructs a client with defaults filled in.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.kie.ai"
	}
	uploadBase := strings.TrimRight(opts.UploadBaseURL, "/")
	if uploadBase == "" {
		uploadBase = "https://kieai.redpandaai.co"
	}
	folder := strings.Trim(opts.UploadFolder, "/")
	if folder == "" {
		folder = "tryon/uploads"
	}
	return &Client{
		apiKey:        apiKey,
		baseURL:       baseURL,
		uploadBaseURL: uploadBase,
		uploadFolder:  folder,
		httpClient:    httpClient,
		logger:        opts.Logger,
	}, nil
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type createTaskRequest struct {
	Model string         `json:"model"`
	Input map[string]any `json:"input"`
}

type createTaskData struct {
	TaskID string `json:"taskId"`
}

type uploadRequest struct {
	Base64Data string `json:"base64Data"`
	UploadPath string `json:"uploadPath"`
	FileName   string `json:"fileName"`
}

type uploadData struct {
	DownloadURL string `json:"downloadUrl"`
	FileURL     string `json:"fileUrl"`
}

type recordInfoData struct {
	TaskID     string          `json:"taskId"`
	State      string          `json:"state"`
	ResultJSON json.RawMessage `json:"resultJson"`
	Progress   json.RawMessage `json:"progress"`
	FailCode   string          `json:"failCode"`
	FailMsg    string          `json:"failMsg"`
}

// UploadAsset sends raw bytes to the provider's temporary storage and returns
// the URL it assigned.
func (c *Client) UploadAsset(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("kie: upload payload is empty")
	}
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	payload := uploadRequest{
		Base64Data: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		UploadPath: c.uploadFolder,
		FileName:   uuid.NewString() + extensionFor(mimeType),
	}

	var out uploadData
	if err := c.do(ctx, "upload", http.MethodPost, c.uploadBaseURL+uploadPath, payload, &out); err != nil {
		return "", err
	}
	downloadURL := strings.TrimSpace(out.DownloadURL)
	if downloadURL == "" {
		downloadURL = strings.TrimSpace(out.FileURL)
	}
	if downloadURL == "" {
		return "", &ProviderError{Op: "upload", StatusCode: http.StatusOK, Code: 200, Message: "upload response has no download url"}
	}
	c.logger.Debug().Str("url", downloadURL).Int("bytes", len(data)).Msg("kie: uploaded asset")
	return downloadURL, nil
}

// SubmitImageJob creates an image task and returns its provider id.
func (c *Client) SubmitImageJob(ctx context.Context, job ImageJob) (string, error) {
	input := map[string]any{
		"prompt":        job.Prompt,
		"output_format": "png",
	}
	if len(job.ImageInputs) > 0 {
		input["image_input"] = job.ImageInputs
	}
	if job.AspectRatio != "" {
		input["aspect_ratio"] = job.AspectRatio
	}
	if job.Resolution != "" {
		input["resolution"] = job.Resolution
	}
	return c.createTask(ctx, job.Model, input)
}

// SubmitVideoJob creates a video task and returns its provider id. The aspect
// ratio is dropped when an image input is present since the image defines it.
func (c *Client) SubmitVideoJob(ctx context.Context, job VideoJob) (string, error) {
	input := map[string]any{
		"prompt": job.Prompt,
		"sound":  job.Sound,
	}
	if job.Duration > 0 {
		input["duration"] = fmt.Sprintf("%d", job.Duration)
	}
	if job.ImageInput != "" {
		input["image_urls"] = []string{job.ImageInput}
	} else if job.AspectRatio != "" {
		input["aspect_ratio"] = job.AspectRatio
	}
	return c.createTask(ctx, job.Model, input)
}

func (c *Client) createTask(ctx context.Context, model string, input map[string]any) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("kie: model is required")
	}
	var out createTaskData
	if err := c.do(ctx, "create task", http.MethodPost, c.baseURL+createTaskPath, createTaskRequest{Model: model, Input: input}, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.TaskID) == "" {
		return "", &ProviderError{Op: "create task", StatusCode: http.StatusOK, Code: 200, Message: "response has no task id"}
	}
	c.logger.Info().Str("model", model).Str("task_id", out.TaskID).Msg("kie: task created")
	return out.TaskID, nil
}

// QueryStatus reads the current state of a task.
func (c *Client) QueryStatus(ctx context.Context, taskID string) (Status, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return Status{}, errors.New("kie: task id is required")
	}
	endpoint := c.baseURL + recordInfoPath + "?taskId=" + url.QueryEscape(taskID)
	var out recordInfoData
	if err := c.do(ctx, "record info", http.MethodGet, endpoint, nil, &out); err != nil {
		return Status{}, err
	}

	st := Status{
		State:    out.State,
		Status:   mapState(out.State),
		Progress: parseProgress(out.Progress),
	}
	switch st.Status {
	case domain.TaskStatusCompleted:
		st.Progress = 100
		st.ResultURLs = ExtractResultURLs(out.ResultJSON)
	case domain.TaskStatusFailed:
		st.Error = strings.TrimSpace(out.FailMsg)
		if st.Error == "" && out.FailCode != "" {
			st.Error = "provider error " + out.FailCode
		}
	}
	return st, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("kie: encode %s request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("kie: build %s request: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("kie: %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kie: read %s response: %w", op, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(env.Msg)
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Code: env.Code, Message: msg}
	}
	if decodeErr != nil {
		return fmt.Errorf("kie: decode %s response: %w", op, decodeErr)
	}
	if env.Code != 200 {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Code: env.Code, Message: strings.TrimSpace(env.Msg)}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("kie: decode %s data: %w", op, err)
	}
	return nil
}

func mapState(state string) domain.TaskStatus {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "success":
		return domain.TaskStatusCompleted
	case "fail", "failed":
		return domain.TaskStatusFailed
	default:
		// waiting, queuing, generating and anything new
		return domain.TaskStatusProcessing
	}
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	default:
		return ".png"
	}
}
