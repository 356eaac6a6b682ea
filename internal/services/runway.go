package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// Runway image-to-video service
// Deferred request pattern: submit image_to_video → poll task by id → download output[0].
// ---------------------------------------------------------------------------

const (
	runwayBaseURL        = "https://api.dev.runwayml.com/v1"
	runwayAPIVersion     = "2024-11-06"
	runwayModel          = "gen4_turbo"
	runwayDefaultRatio   = "720:1280" // portrait for mobile
	runwayDefaultSeconds = 5
	runwayInitialDelay   = 10 * time.Second // Tasks never finish in under 10s
	runwayPollInterval   = 10 * time.Second
	runwayMaxPollTime    = 10 * time.Minute
)

type RunwayService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	poll       PollConfig
}

var _ SceneVideoGenerator = (*RunwayService)(nil)

func NewRunwayService(apiKey string) *RunwayService {
	return &RunwayService{
		apiKey:  apiKey,
		baseURL: runwayBaseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second, // Image payloads are inlined as data URIs
		},
		poll: PollConfig{
			Provider:     "Runway",
			InitialDelay: runwayInitialDelay,
			Interval:     runwayPollInterval,
			Timeout:      runwayMaxPollTime,
		},
	}
}

// ---------------------------------------------------------------------------
// Request / Response types
// ---------------------------------------------------------------------------

type runwayImageToVideoRequest struct {
	Model       string `json:"model"`
	PromptImage string `json:"promptImage"` // data URI
	PromptText  string `json:"promptText,omitempty"`
	Ratio       string `json:"ratio"`
	Duration    int    `json:"duration"`
}

type runwayTaskCreated struct {
	ID string `json:"id"`
}

type runwayTask struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"` // PENDING, THROTTLED, RUNNING, SUCCEEDED, FAILED, CANCELLED
	Output      []string `json:"output"`
	Failure     string   `json:"failure"`
	FailureCode string   `json:"failureCode"`
}

// ---------------------------------------------------------------------------
// Public API
// ---------------------------------------------------------------------------

// GenerateVideo animates a still image according to the motion prompt and saves the clip.
func (s *RunwayService) GenerateVideo(ctx context.Context, image []byte, motionPrompt, aspectRatio, outputPath string) (string, error) {
	ratio := runwayRatio(aspectRatio)
	log.Printf("[Runway] Submitting image-to-video (ratio=%s, image=%d bytes, prompt=%q)",
		ratio, len(image), truncateString(motionPrompt, 80))

	videoURL, err := Poll(ctx, s.poll,
		func(ctx context.Context) (string, error) {
			return s.submit(ctx, image, motionPrompt, ratio)
		},
		s.status,
	)
	if err != nil {
		return "", err
	}

	if err := downloadFile(ctx, videoURL, outputPath); err != nil {
		return "", fmt.Errorf("failed to download runway video: %w", err)
	}

	log.Printf("[Runway] Video saved to %s", outputPath)
	return outputPath, nil
}

// runwayRatio maps common aspect ratios to the resolution strings Runway accepts.
func runwayRatio(aspectRatio string) string {
	switch aspectRatio {
	case "", "9:16":
		return runwayDefaultRatio
	case "16:9":
		return "1280:720"
	case "1:1":
		return "960:960"
	default:
		return aspectRatio
	}
}

func (s *RunwayService) submit(ctx context.Context, image []byte, prompt, ratio string) (string, error) {
	body, err := json.Marshal(runwayImageToVideoRequest{
		Model:       runwayModel,
		PromptImage: toDataURI(image),
		PromptText:  prompt,
		Ratio:       ratio,
		Duration:    runwayDefaultSeconds,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/image_to_video", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("runway API error (status %d): %s", resp.StatusCode, truncateString(string(respBody), 500))
	}

	var created runwayTaskCreated
	if err := json.Unmarshal(respBody, &created); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	log.Printf("[Runway] Task created: %s", created.ID)
	return created.ID, nil
}

func (s *RunwayService) status(ctx context.Context, taskID string) (RemoteTask[string], error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/tasks/%s", s.baseURL, taskID), nil)
	if err != nil {
		return RemoteTask[string]{}, fmt.Errorf("failed to create request: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return RemoteTask[string]{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RemoteTask[string]{}, fmt.Errorf("runway API error (status %d): %s", resp.StatusCode, readErrorBody(resp))
	}

	var task runwayTask
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return RemoteTask[string]{}, fmt.Errorf("failed to parse task: %w", err)
	}

	return task.toRemoteTask(), nil
}

func (t runwayTask) toRemoteTask() RemoteTask[string] {
	rt := RemoteTask[string]{ID: t.ID, Status: TaskPending}
	switch t.Status {
	case "SUCCEEDED":
		if len(t.Output) == 0 || t.Output[0] == "" {
			rt.Status = TaskFailed
			rt.Error = "succeeded without output"
			return rt
		}
		rt.Status = TaskSucceeded
		rt.Result = t.Output[0]
	case "FAILED", "CANCELLED":
		rt.Status = TaskFailed
		rt.Error = t.Failure
		if t.FailureCode != "" {
			rt.Error = fmt.Sprintf("%s (%s)", t.Failure, t.FailureCode)
		}
		if rt.Error == "" {
			rt.Error = "task " + t.Status
		}
	}
	return rt
}

func (s *RunwayService) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("X-Runway-Version", runwayAPIVersion)
	req.Header.Set("Accept", "application/json")
}
