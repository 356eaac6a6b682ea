package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// ---------------------------------------------------------------------------
// fal.ai virtual try-on: places the product photo into a generated scene still.
// Queue API: submit → poll status_url → fetch response_url → download images[0].
// ---------------------------------------------------------------------------

const (
	falQueueBaseURL    = "https://queue.fal.run"
	falTryOnModel      = "fal-ai/fashn/tryon/v1.5"
	falPollInterval    = 3 * time.Second
	falMaxPollDuration = 5 * time.Minute
)

type FalTryOnService struct {
	apiKey     string
	baseURL    string
	model      string
	scenes     SceneImageGenerator // renders the person/scene the product is placed into
	httpClient *http.Client
	poll       PollConfig
}

var _ ProductCompositor = (*FalTryOnService)(nil)

func NewFalTryOnService(apiKey string, scenes SceneImageGenerator) *FalTryOnService {
	return &FalTryOnService{
		apiKey:  apiKey,
		baseURL: falQueueBaseURL,
		model:   falTryOnModel,
		scenes:  scenes,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		poll: PollConfig{
			Provider: "fal",
			Interval: falPollInterval,
			Timeout:  falMaxPollDuration,
		},
	}
}

type falTryOnInput struct {
	ModelImage   string `json:"model_image"`
	GarmentImage string `json:"garment_image"`
}

type falQueueResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type falStatusResponse struct {
	Status string `json:"status"` // IN_QUEUE, IN_PROGRESS, COMPLETED
	Error  string `json:"error"`
}

type falImageResult struct {
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// CompositeProduct renders a scene still from the prompt, then dresses it with the product photo.
func (s *FalTryOnService) CompositeProduct(ctx context.Context, productImage []byte, prompt string) ([]byte, error) {
	if len(productImage) == 0 {
		return nil, fmt.Errorf("fal: empty product image")
	}

	sceneImage, err := s.scenes.GenerateImage(ctx, prompt, ImageHints{SceneType: "lifestyle"})
	if err != nil {
		return nil, fmt.Errorf("failed to generate model image: %w", err)
	}

	var queued falQueueResponse
	responseURL, err := Poll(ctx, s.poll,
		func(ctx context.Context) (string, error) {
			q, err := s.submit(ctx, falTryOnInput{
				ModelImage:   toDataURI(sceneImage),
				GarmentImage: toDataURI(productImage),
			})
			if err != nil {
				return "", err
			}
			queued = q
			return q.RequestID, nil
		},
		func(ctx context.Context, requestID string) (RemoteTask[string], error) {
			return s.status(ctx, requestID, queued)
		},
	)
	if err != nil {
		return nil, err
	}

	var result falImageResult
	if err := s.getJSON(ctx, responseURL, &result); err != nil {
		return nil, fmt.Errorf("failed to fetch try-on result: %w", err)
	}
	if len(result.Images) == 0 || result.Images[0].URL == "" {
		return nil, fmt.Errorf("fal try-on returned no images")
	}

	img, err := downloadBytes(ctx, result.Images[0].URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download try-on image: %w", err)
	}

	log.Printf("[fal] Product composited into scene (%d bytes)", len(img))
	return img, nil
}

func (s *FalTryOnService) submit(ctx context.Context, input falTryOnInput) (falQueueResponse, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return falQueueResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/%s", s.baseURL, s.model), bytes.NewReader(body))
	if err != nil {
		return falQueueResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return falQueueResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return falQueueResponse{}, fmt.Errorf("fal API error (status %d): %s", resp.StatusCode, readErrorBody(resp))
	}

	var q falQueueResponse
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return falQueueResponse{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if q.StatusURL == "" {
		q.StatusURL = fmt.Sprintf("%s/%s/requests/%s/status", s.baseURL, s.model, q.RequestID)
	}
	if q.ResponseURL == "" {
		q.ResponseURL = fmt.Sprintf("%s/%s/requests/%s", s.baseURL, s.model, q.RequestID)
	}
	return q, nil
}

func (s *FalTryOnService) status(ctx context.Context, requestID string, q falQueueResponse) (RemoteTask[string], error) {
	var st falStatusResponse
	if err := s.getJSON(ctx, q.StatusURL, &st); err != nil {
		return RemoteTask[string]{}, err
	}

	task := RemoteTask[string]{ID: requestID, Status: TaskPending}
	switch {
	case st.Error != "":
		task.Status = TaskFailed
		task.Error = st.Error
	case st.Status == "COMPLETED":
		task.Status = TaskSucceeded
		task.Result = q.ResponseURL
	}
	return task, nil
}

func (s *FalTryOnService) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("fal API error (status %d): %s", resp.StatusCode, readErrorBody(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
