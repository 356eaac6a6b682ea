package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// HeyGen talking-avatar video service
// submit script → poll video_status by video_id → download video_url
// ---------------------------------------------------------------------------

const (
	heygenBaseURL         = "https://api.heygen.com"
	heygenDefaultAvatarID = "046b2b11e4424b5c81f8d0223d3281d5"
	heygenDefaultVoiceID  = "9e18bbe8306c43da9fd1f598289b03ca"
	heygenDefaultSpeed    = 1.1
	heygenPollInterval    = 5 * time.Second
	heygenMaxPollDuration = 20 * time.Minute
)

type HeyGenService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	poll       PollConfig
}

var _ AvatarVideoGenerator = (*HeyGenService)(nil)

func NewHeyGenService(apiKey string) *HeyGenService {
	return &HeyGenService{
		apiKey:  apiKey,
		baseURL: heygenBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		poll: PollConfig{
			Provider: "HeyGen",
			Interval: heygenPollInterval,
			Timeout:  heygenMaxPollDuration,
		},
	}
}

type heygenGenerateRequest struct {
	VideoInputs []heygenVideoInput `json:"video_inputs"`
	Dimension   heygenDimension    `json:"dimension"`
}

type heygenVideoInput struct {
	Character heygenCharacter `json:"character"`
	Voice     heygenVoice     `json:"voice"`
}

type heygenCharacter struct {
	Type        string `json:"type"`
	AvatarID    string `json:"avatar_id"`
	AvatarStyle string `json:"avatar_style"`
}

type heygenVoice struct {
	Type      string  `json:"type"`
	InputText string  `json:"input_text"`
	VoiceID   string  `json:"voice_id"`
	Speed     float64 `json:"speed"`
}

type heygenDimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type heygenGenerateResponse struct {
	Error json.RawMessage `json:"error"`
	Data  struct {
		VideoID string `json:"video_id"`
	} `json:"data"`
}

type heygenStatusResponse struct {
	Code int `json:"code"`
	Data struct {
		ID       string          `json:"id"`
		Status   string          `json:"status"` // waiting, pending, processing, completed, failed
		VideoURL string          `json:"video_url"`
		Duration float64         `json:"duration"`
		Error    json.RawMessage `json:"error"`
	} `json:"data"`
}

// RenderAvatar renders the narrated avatar video for a script and downloads it to outputPath.
func (s *HeyGenService) RenderAvatar(ctx context.Context, script string, opts AvatarOptions, outputPath string) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", fmt.Errorf("heygen: empty script")
	}
	opts = withAvatarDefaults(opts)

	log.Printf("[HeyGen] Rendering avatar %s (voice=%s, speed=%.2f, %dx%d, %d chars)",
		opts.AvatarID, opts.VoiceID, opts.VoiceSpeed, opts.Width, opts.Height, len(script))

	videoURL, err := Poll(ctx, s.poll,
		func(ctx context.Context) (string, error) {
			return s.submit(ctx, script, opts)
		},
		s.status,
	)
	if err != nil {
		return "", err
	}

	if err := downloadFile(ctx, videoURL, outputPath); err != nil {
		return "", fmt.Errorf("failed to download avatar video: %w", err)
	}

	log.Printf("[HeyGen] Avatar video saved to %s", outputPath)
	return outputPath, nil
}

func withAvatarDefaults(opts AvatarOptions) AvatarOptions {
	if opts.AvatarID == "" {
		opts.AvatarID = heygenDefaultAvatarID
	}
	if opts.VoiceID == "" {
		opts.VoiceID = heygenDefaultVoiceID
	}
	if opts.VoiceSpeed <= 0 {
		opts.VoiceSpeed = heygenDefaultSpeed
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 720, 1280
	}
	return opts
}

func (s *HeyGenService) submit(ctx context.Context, script string, opts AvatarOptions) (string, error) {
	reqBody := heygenGenerateRequest{
		VideoInputs: []heygenVideoInput{{
			Character: heygenCharacter{Type: "avatar", AvatarID: opts.AvatarID, AvatarStyle: "normal"},
			Voice:     heygenVoice{Type: "text", InputText: script, VoiceID: opts.VoiceID, Speed: opts.VoiceSpeed},
		}},
		Dimension: heygenDimension{Width: opts.Width, Height: opts.Height},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+"/v2/video/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("heygen API error (status %d): %s", resp.StatusCode, readErrorBody(resp))
	}

	var result heygenGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Data.VideoID == "" {
		return "", fmt.Errorf("no video_id in response (error: %s)", rawErrorString(result.Error))
	}

	return result.Data.VideoID, nil
}

func (s *HeyGenService) status(ctx context.Context, videoID string) (RemoteTask[string], error) {
	endpoint := fmt.Sprintf("%s/v1/video_status.get?video_id=%s", s.baseURL, url.QueryEscape(videoID))
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return RemoteTask[string]{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return RemoteTask[string]{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RemoteTask[string]{}, fmt.Errorf("heygen API error (status %d): %s", resp.StatusCode, readErrorBody(resp))
	}

	var result heygenStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return RemoteTask[string]{}, fmt.Errorf("failed to parse status: %w", err)
	}

	task := RemoteTask[string]{ID: videoID, Status: TaskPending}
	switch result.Data.Status {
	case "completed":
		if result.Data.VideoURL == "" {
			task.Status = TaskFailed
			task.Error = "completed without video_url"
			break
		}
		task.Status = TaskSucceeded
		task.Result = result.Data.VideoURL
	case "failed":
		task.Status = TaskFailed
		task.Error = rawErrorString(result.Data.Error)
	}

	return task, nil
}

// rawErrorString flattens an error field that may be a string, an object or null.
func rawErrorString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}

	var obj struct {
		Code    interface{} `json:"code"`
		Message string      `json:"message"`
		Detail  string      `json:"detail"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && (obj.Message != "" || obj.Detail != "") {
		return strings.TrimSpace(obj.Message + " " + obj.Detail)
	}

	return string(raw)
}
