package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/bobarin/adreel/internal/models"
	"github.com/bobarin/adreel/internal/services"
)

type fakeScript struct{ err error }

func (f fakeScript) GenerateScript(ctx context.Context, info models.ProductInfo) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Meet " + info.ProductName + ".", nil
}

type fakeAvatar struct {
	err   error
	calls int
	opts  services.AvatarOptions
}

func (f *fakeAvatar) RenderAvatar(ctx context.Context, script string, opts services.AvatarOptions, outputPath string) (string, error) {
	f.calls++
	f.opts = opts
	if f.err != nil {
		return "", f.err
	}
	return outputPath, os.WriteFile(outputPath, []byte("avatar"), 0644)
}

type fakeTranscriber struct{ err error }

func (f fakeTranscriber) TranscribeSegments(ctx context.Context, mediaPath, language string) ([]models.TranscriptSegment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.TranscriptSegment{{Start: 0, End: 53, Text: "narration"}}, nil
}

// fakeDescriber replays proposals in order.
type fakeDescriber struct {
	mu        sync.Mutex
	count     int
	countErr  error
	proposals []models.SceneDescription
	calls     int
	seen      [][]models.SceneDescription
}

func (f *fakeDescriber) EstimateSceneCount(ctx context.Context, transcript []models.TranscriptSegment) (int, error) {
	return f.count, f.countErr
}

func (f *fakeDescriber) DescribeNextScene(ctx context.Context, transcript []models.TranscriptSegment, accepted []models.SceneDescription) (models.SceneDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, append([]models.SceneDescription(nil), accepted...))
	if f.calls >= len(f.proposals) {
		f.calls++
		return models.SceneDescription{}, errors.New("no more ideas")
	}
	p := f.proposals[f.calls]
	f.calls++
	return p, nil
}

type fakePrompts struct{}

func (fakePrompts) StaticPrompt(ctx context.Context, description string) (string, error) {
	return "still of " + description, nil
}

func (fakePrompts) MotionPrompt(ctx context.Context, description string) (string, error) {
	return "motion for " + description, nil
}

type fakeImages struct {
	mu    sync.Mutex
	hints []services.ImageHints
}

func (f *fakeImages) GenerateImage(ctx context.Context, prompt string, hints services.ImageHints) ([]byte, error) {
	f.mu.Lock()
	f.hints = append(f.hints, hints)
	f.mu.Unlock()
	return []byte("png:" + prompt), nil
}

type fakeProducts struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeProducts) CompositeProduct(ctx context.Context, productImage []byte, prompt string) ([]byte, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return append([]byte("tryon:"), productImage...), nil
}

// fakeVideos fails any scene whose motion prompt ends with one of failFor.
type fakeVideos struct {
	failFor []string
	err     error
}

func (f fakeVideos) GenerateVideo(ctx context.Context, image []byte, motionPrompt, aspectRatio, outputPath string) (string, error) {
	for _, d := range f.failFor {
		if strings.HasSuffix(motionPrompt, " "+d) {
			if f.err != nil {
				return "", f.err
			}
			return "", &services.RemoteTaskFailedError{Provider: "fake", TaskID: d, Reason: "moderation"}
		}
	}
	return outputPath, os.WriteFile(outputPath, image, 0644)
}

type fakeCaptioner struct {
	err   error
	calls int
}

func (f *fakeCaptioner) BurnIn(ctx context.Context, videoPath, templateID, outputPath string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return outputPath, os.WriteFile(outputPath, []byte("captioned"), 0644)
}

// fakeMedia records compositions and writes placeholder files.
type fakeMedia struct {
	duration   float64
	composeErr error
	plans      []models.CompositionPlan
	extracted  int
}

func (f *fakeMedia) Compose(ctx context.Context, plan models.CompositionPlan, outputPath string) error {
	f.plans = append(f.plans, plan)
	if f.composeErr != nil {
		return f.composeErr
	}
	return os.WriteFile(outputPath, []byte(fmt.Sprintf("composite with %d overlays", len(plan.Scenes))), 0644)
}

func (f *fakeMedia) Duration(ctx context.Context, path string) (float64, error) {
	return f.duration, nil
}

func (f *fakeMedia) Resolution(ctx context.Context, path string) (int, int, error) {
	return 720, 1280, nil
}

func (f *fakeMedia) ExtractAudio(ctx context.Context, videoPath, outputPath string) error {
	f.extracted++
	return os.WriteFile(outputPath, []byte("mp3"), 0644)
}
