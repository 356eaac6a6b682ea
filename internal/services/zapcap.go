package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ---------------------------------------------------------------------------
// ZapCap caption burn-in service
// upload video → create caption task → poll task → download captioned video
// ---------------------------------------------------------------------------

const (
	zapcapBaseURL           = "https://api.zapcap.ai"
	zapcapDefaultTemplateID = "d2018215-2125-41c1-940e-f13b411fff5c"
	zapcapPollInterval      = 2 * time.Second
	zapcapMaxPollDuration   = 10 * time.Minute
)

type ZapCapService struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient *http.Client
	poll       PollConfig
}

var _ Captioner = (*ZapCapService)(nil)

func NewZapCapService(apiKey, language string) *ZapCapService {
	if language == "" {
		language = "en"
	}
	return &ZapCapService{
		apiKey:   apiKey,
		baseURL:  zapcapBaseURL,
		language: language,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Uploads carry the whole video
		},
		poll: PollConfig{
			Provider: "ZapCap",
			Interval: zapcapPollInterval,
			Timeout:  zapcapMaxPollDuration,
		},
	}
}

type zapcapUploadResponse struct {
	ID string `json:"id"`
}

type zapcapTaskRequest struct {
	TemplateID  string `json:"templateId"`
	AutoApprove bool   `json:"autoApprove"`
	Language    string `json:"language"`
}

type zapcapTaskResponse struct {
	TaskID string `json:"taskId"`
}

type zapcapTaskStatus struct {
	Status      string `json:"status"` // pending, transcribing, rendering, completed, failed
	DownloadURL string `json:"downloadUrl"`
	Error       string `json:"error"`
}

// BurnIn uploads a video, renders captions with the given template and saves the result.
func (s *ZapCapService) BurnIn(ctx context.Context, videoPath, templateID, outputPath string) (string, error) {
	if templateID == "" {
		templateID = zapcapDefaultTemplateID
	}

	var videoID string
	downloadURL, err := Poll(ctx, s.poll,
		func(ctx context.Context) (string, error) {
			id, err := s.upload(ctx, videoPath)
			if err != nil {
				return "", fmt.Errorf("failed to upload video: %w", err)
			}
			videoID = id
			log.Printf("[ZapCap] Uploaded %s as video %s", filepath.Base(videoPath), videoID)
			return s.createTask(ctx, videoID, templateID)
		},
		func(ctx context.Context, taskID string) (RemoteTask[string], error) {
			return s.status(ctx, videoID, taskID)
		},
	)
	if err != nil {
		return "", err
	}

	if err := downloadFile(ctx, downloadURL, outputPath); err != nil {
		return "", fmt.Errorf("failed to download captioned video: %w", err)
	}

	log.Printf("[ZapCap] Captioned video saved to %s", outputPath)
	return outputPath, nil
}

func (s *ZapCapService) upload(ctx context.Context, videoPath string) (string, error) {
	f, err := os.Open(videoPath)
	if err != nil {
		return "", fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(videoPath))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("failed to read video: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/videos", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("x-api-key", s.apiKey)

	var result zapcapUploadResponse
	if err := s.doJSON(req, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("no video id in upload response")
	}
	return result.ID, nil
}

func (s *ZapCapService) createTask(ctx context.Context, videoID, templateID string) (string, error) {
	payload, err := json.Marshal(zapcapTaskRequest{
		TemplateID:  templateID,
		AutoApprove: true,
		Language:    s.language,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/videos/%s/task", s.baseURL, videoID), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)

	var result zapcapTaskResponse
	if err := s.doJSON(req, &result); err != nil {
		return "", err
	}
	return result.TaskID, nil
}

func (s *ZapCapService) status(ctx context.Context, videoID, taskID string) (RemoteTask[string], error) {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/videos/%s/task/%s", s.baseURL, videoID, taskID), nil)
	if err != nil {
		return RemoteTask[string]{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", s.apiKey)

	var result zapcapTaskStatus
	if err := s.doJSON(req, &result); err != nil {
		return RemoteTask[string]{}, err
	}

	task := RemoteTask[string]{ID: taskID, Status: TaskPending}
	switch result.Status {
	case "completed":
		task.Status = TaskSucceeded
		task.Result = result.DownloadURL
		if result.DownloadURL == "" {
			task.Status = TaskFailed
			task.Error = "completed without downloadUrl"
		}
	case "failed":
		task.Status = TaskFailed
		task.Error = result.Error
	}
	return task, nil
}

func (s *ZapCapService) doJSON(req *http.Request, out interface{}) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("zapcap API error (status %d): %s", resp.StatusCode, readErrorBody(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
