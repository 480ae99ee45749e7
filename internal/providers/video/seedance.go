package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	seedanceProviderName   = "seedance"
	seedanceDefaultTimeout = 10 * time.Minute
	seedanceDefaultPoll    = 5 * time.Second
)

// Task statuses reported by the content generation API.
const (
	TaskQueued    = "queued"
	TaskRunning   = "running"
	TaskSucceeded = "succeeded"
	TaskFailed    = "failed"
	TaskCancelled = "cancelled"
)

type SeedanceOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	HTTPClient   *http.Client
	PollInterval time.Duration
	Timeout      time.Duration
}

// SeedanceGenerator creates a content generation task and polls it until the
// video is ready.
type SeedanceGenerator struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	poll    time.Duration
	timeout time.Duration
}

type seedanceContent struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *seedanceImageURL `json:"image_url,omitempty"`
}

type seedanceImageURL struct {
	URL string `json:"url"`
}

type seedanceCreateRequest struct {
	Model   string            `json:"model"`
	Content []seedanceContent `json:"content"`
}

type seedanceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type seedanceTask struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Content struct {
		VideoURL string `json:"video_url"`
	} `json:"content"`
	Error *seedanceError `json:"error,omitempty"`
}

func NewSeedanceGenerator(opts SeedanceOptions) (*SeedanceGenerator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("seedance api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("seedance base url is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "seedance-1-0-pro-250528"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = seedanceDefaultPoll
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = seedanceDefaultTimeout
	}
	return &SeedanceGenerator{
		apiKey:  opts.APIKey,
		baseURL: baseURL,
		model:   model,
		client:  client,
		poll:    poll,
		timeout: timeout,
	}, nil
}

func (g *SeedanceGenerator) Generate(ctx context.Context, req GenerateRequest, progress ProgressFunc) (*Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	taskID, err := g.createTask(ctx, req)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()
	for {
		task, err := g.getTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		switch task.Status {
		case TaskSucceeded:
			if task.Content.VideoURL == "" {
				return nil, fmt.Errorf("seedance task %s succeeded without a video url", taskID)
			}
			return &Asset{URL: task.Content.VideoURL, MIMEType: "video/mp4", TaskID: taskID, Provider: seedanceProviderName}, nil
		case TaskFailed, TaskCancelled:
			msg := task.Status
			if task.Error != nil && task.Error.Message != "" {
				msg = task.Error.Message
			}
			return nil, fmt.Errorf("seedance task %s: %s", taskID, msg)
		}
		if progress != nil {
			progress(task.Status)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("seedance task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (g *SeedanceGenerator) createTask(ctx context.Context, req GenerateRequest) (string, error) {
	payload := seedanceCreateRequest{
		Model:   g.model,
		Content: []seedanceContent{{Type: "text", Text: commandPrompt(req)}},
	}
	if url := strings.TrimSpace(req.SourceImageURL); url != "" {
		payload.Content = append(payload.Content, seedanceContent{Type: "image_url", ImageURL: &seedanceImageURL{URL: url}})
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return "", err
	}
	var task seedanceTask
	if err := g.do(ctx, http.MethodPost, g.baseURL+"/contents/generations/tasks", &buf, &task); err != nil {
		return "", fmt.Errorf("seedance create task: %w", err)
	}
	if task.ID == "" {
		return "", errors.New("seedance create task: missing task id")
	}
	return task.ID, nil
}

func (g *SeedanceGenerator) getTask(ctx context.Context, id string) (*seedanceTask, error) {
	var task seedanceTask
	if err := g.do(ctx, http.MethodGet, g.baseURL+"/contents/generations/tasks/"+id, nil, &task); err != nil {
		return nil, fmt.Errorf("seedance get task %s: %w", id, err)
	}
	return &task, nil
}

func (g *SeedanceGenerator) do(ctx context.Context, method, url string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error seedanceError `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.Unmarshal(raw, out)
}

// commandPrompt appends the inline generation flags the API reads from the text.
func commandPrompt(req GenerateRequest) string {
	prompt := strings.TrimSpace(req.Prompt)
	if req.AspectRatio != "" {
		prompt += " --ratio " + req.AspectRatio
	}
	duration := req.DurationSec
	if duration <= 0 {
		duration = 5
	}
	return fmt.Sprintf("%s --duration %d", prompt, duration)
}

var _ Generator = (*SeedanceGenerator)(nil)
