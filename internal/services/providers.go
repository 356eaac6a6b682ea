package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/bobarin/adreel/internal/models"
)

// Capability interfaces for the generation providers. Each concrete client in
// this package implements one of them; the pipeline only sees the interface.

type ScriptGenerator interface {
	GenerateScript(ctx context.Context, info models.ProductInfo) (string, error)
}

// AvatarOptions selects the presenter and voice for the narrated base video.
type AvatarOptions struct {
	AvatarID   string
	VoiceID    string
	VoiceSpeed float64
	Width      int
	Height     int
}

type AvatarVideoGenerator interface {
	RenderAvatar(ctx context.Context, script string, opts AvatarOptions, outputPath string) (string, error)
}

type Transcriber interface {
	TranscribeSegments(ctx context.Context, mediaPath, language string) ([]models.TranscriptSegment, error)
}

// SceneDescriber is the text-model side of scene planning. It proposes; the
// pipeline validates.
type SceneDescriber interface {
	EstimateSceneCount(ctx context.Context, transcript []models.TranscriptSegment) (int, error)
	DescribeNextScene(ctx context.Context, transcript []models.TranscriptSegment, accepted []models.SceneDescription) (models.SceneDescription, error)
}

type PromptDeriver interface {
	StaticPrompt(ctx context.Context, description string) (string, error)
	MotionPrompt(ctx context.Context, description string) (string, error)
}

// ImageHints carries composition hints for a still image request.
type ImageHints struct {
	SceneType     string // "product", "lifestyle", "environment"
	StyleKeywords []string
	Size          string // e.g. "1024x1536"
}

type SceneImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, hints ImageHints) ([]byte, error)
}

// ProductCompositor places a supplied product photo into a generated scene still.
type ProductCompositor interface {
	CompositeProduct(ctx context.Context, productImage []byte, prompt string) ([]byte, error)
}

type SceneVideoGenerator interface {
	GenerateVideo(ctx context.Context, image []byte, motionPrompt, aspectRatio, outputPath string) (string, error)
}

type Captioner interface {
	BurnIn(ctx context.Context, videoPath, templateID, outputPath string) (string, error)
}

// CompositorBackend does the pixel work for a CompositionPlan.
type CompositorBackend interface {
	Compose(ctx context.Context, plan models.CompositionPlan, outputPath string) error
	Duration(ctx context.Context, path string) (float64, error)
	Resolution(ctx context.Context, path string) (int, int, error)
}

// ---------------------------------------------------------------------------
// Shared helpers for provider clients
// ---------------------------------------------------------------------------

// downloadFile streams a provider result URL to disk.
func downloadFile(ctx context.Context, url, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	// Separate client with a longer timeout for large video files
	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	written, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("failed to write download: %w", err)
	}
	if written == 0 {
		os.Remove(outputPath)
		return fmt.Errorf("downloaded file is empty")
	}

	return nil
}

// downloadBytes fetches a small result (an image) into memory.
func downloadBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// readErrorBody returns a short excerpt of a failed response for error messages.
func readErrorBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return truncateString(string(body), 500)
}

// imageMIMEType sniffs the content type of image bytes.
func imageMIMEType(data []byte) string {
	ct := http.DetectContentType(data)
	switch ct {
	case "image/png", "image/jpeg", "image/webp", "image/gif":
		return ct
	default:
		return "image/png"
	}
}

// ImageExtension returns the file extension matching the sniffed image type.
func ImageExtension(data []byte) string {
	switch imageMIMEType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// toDataURI inlines image bytes for providers that accept data URIs.
func toDataURI(image []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", imageMIMEType(image), base64.StdEncoding.EncodeToString(image))
}
