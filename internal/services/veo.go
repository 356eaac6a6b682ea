package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Veo image-to-video service
// Uses the Google Gen AI SDK. The scene still is passed as the first frame and
// the motion prompt describes camera and subject movement.
// ---------------------------------------------------------------------------

const (
	defaultVeoModel    = "veo-3.1-generate-preview"
	veoPollInterval    = 10 * time.Second
	veoMaxPollDuration = 5 * time.Minute // Max time to wait for a single clip
)

// VeoService is the alternative SceneVideoGenerator to Runway.
type VeoService struct {
	apiKey string
	model  string
	poll   PollConfig
}

var _ SceneVideoGenerator = (*VeoService)(nil)

// NewVeoService creates a Veo client. The Gemini API key works for both.
func NewVeoService(apiKey, model string) *VeoService {
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoService{
		apiKey: apiKey,
		model:  model,
		poll: PollConfig{
			Provider:     "Veo",
			InitialDelay: veoPollInterval,
			Interval:     veoPollInterval,
			Timeout:      veoMaxPollDuration,
		},
	}
}

// buildVeoPrompt appends product-ad motion direction to the scene's motion prompt.
func buildVeoPrompt(motionPrompt string) string {
	return fmt.Sprintf(`%s

Motion direction: smooth, commercial-grade camera work. Keep the product in frame, in focus and unaltered. Favor gentle push-ins, slow orbits and soft natural light changes over fast cuts or morphing.

No generated audio or dialogue. Silent video only.`, motionPrompt)
}

// GenerateVideo animates the still with Veo and writes the MP4 to outputPath.
func (s *VeoService) GenerateVideo(ctx context.Context, image []byte, motionPrompt, aspectRatio, outputPath string) (string, error) {
	if aspectRatio == "" {
		aspectRatio = "9:16"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}

	prompt := buildVeoPrompt(motionPrompt)
	firstFrame := &genai.Image{
		ImageBytes: image,
		MIMEType:   imageMIMEType(image),
	}
	config := &genai.GenerateVideosConfig{
		AspectRatio:      aspectRatio,
		PersonGeneration: "allow_adult",
		NumberOfVideos:   1,
	}

	log.Printf("[Veo] Starting video generation (model=%s, ratio=%s, image=%d bytes)", s.model, aspectRatio, len(image))

	var operation *genai.GenerateVideosOperation
	video, err := Poll(ctx, s.poll,
		func(ctx context.Context) (string, error) {
			op, err := client.Models.GenerateVideos(ctx, s.model, prompt, firstFrame, config)
			if err != nil {
				return "", err
			}
			operation = op
			return op.Name, nil
		},
		func(ctx context.Context, name string) (RemoteTask[*genai.Video], error) {
			op, err := client.Operations.GetVideosOperation(ctx, operation, nil)
			if err != nil {
				return RemoteTask[*genai.Video]{}, err
			}
			operation = op
			return veoTask(name, op), nil
		},
	)
	if err != nil {
		return "", err
	}

	data, err := client.Files.Download(ctx, genai.NewDownloadURIFromVideo(video), nil)
	if err != nil {
		return "", fmt.Errorf("failed to download generated video: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("downloaded video is empty (0 bytes)")
	}

	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write video: %w", err)
	}

	log.Printf("[Veo] Video saved to %s (%d bytes)", outputPath, len(data))
	return outputPath, nil
}

// veoTask interprets a Veo long-running operation as a RemoteTask.
func veoTask(name string, op *genai.GenerateVideosOperation) RemoteTask[*genai.Video] {
	task := RemoteTask[*genai.Video]{ID: name, Status: TaskPending}
	if op == nil || !op.Done {
		return task
	}

	task.Status = TaskFailed
	switch {
	case len(op.Error) > 0:
		errJSON, _ := json.Marshal(op.Error)
		task.Error = string(errJSON)
	case op.Response == nil:
		task.Error = "no response in completed operation"
	case op.Response.RAIMediaFilteredCount > 0:
		reasons := "unknown"
		if len(op.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(op.Response.RAIMediaFilteredReasons, ", ")
		}
		task.Error = fmt.Sprintf("blocked by safety filters (%d filtered): %s", op.Response.RAIMediaFilteredCount, reasons)
	case len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil:
		task.Error = "no videos in response"
	default:
		task.Status = TaskSucceeded
		task.Result = op.Response.GeneratedVideos[0].Video
	}
	return task
}
