package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bobarin/adreel/internal/models"
	"github.com/bobarin/adreel/internal/services"
	"github.com/google/uuid"
)

// MediaBackend is the compositor backend plus audio extraction for transcription.
type MediaBackend interface {
	services.CompositorBackend
	ExtractAudio(ctx context.Context, videoPath, outputPath string) error
}

// Providers are the collaborators a run needs. Transcriber, Describer, Products
// and Captioner are optional; a nil one skips the feature it backs.
type Providers struct {
	Script      services.ScriptGenerator
	Avatar      services.AvatarVideoGenerator
	Transcriber services.Transcriber
	Describer   services.SceneDescriber
	Prompts     services.PromptDeriver
	Images      services.SceneImageGenerator
	Products    services.ProductCompositor
	Videos      services.SceneVideoGenerator
	Captioner   services.Captioner
	Media       MediaBackend
}

type Options struct {
	WorkRoot          string
	SceneWorkers      int
	MaxScenes         int
	AspectRatio       string
	ImageSize         string
	CaptionTemplateID string
	Avatar            services.AvatarOptions
	Now               func() time.Time
}

// JobInput is everything one run is built from.
type JobInput struct {
	Product      models.ProductInfo
	ProductImage []byte
	AvatarID     string
	VoiceID      string
}

// StageObserver is told about every stage the job reaches, including FAILED.
// It runs on the job's goroutine.
type StageObserver func(stage models.JobStage, result *models.JobResult)

type Orchestrator struct {
	providers  Providers
	planner    *ScenePlanner
	renderer   *SceneRenderer
	compositor *TimelineCompositor
	opts       Options
}

func New(p Providers, opts Options) *Orchestrator {
	if opts.WorkRoot == "" {
		opts.WorkRoot = "work"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	o := &Orchestrator{
		providers:  p,
		compositor: NewTimelineCompositor(p.Media),
		renderer: NewSceneRenderer(p.Prompts, p.Images, p.Products, p.Videos, RendererOptions{
			AspectRatio: opts.AspectRatio,
			ImageSize:   opts.ImageSize,
			Workers:     opts.SceneWorkers,
		}),
		opts: opts,
	}
	if p.Describer != nil {
		o.planner = NewScenePlanner(p.Describer, opts.MaxScenes)
	}
	return o
}

// Run drives one job through every stage. The result is always non-nil and
// reports the stage reached; err is a *StageError when the job FAILED.
func (o *Orchestrator) Run(ctx context.Context, jobID uuid.UUID, in JobInput, observe StageObserver) (*models.JobResult, error) {
	result := &models.JobResult{JobID: jobID, Stage: models.StageStart}
	if observe == nil {
		observe = func(models.JobStage, *models.JobResult) {}
	}

	advance := func(stage models.JobStage) {
		result.Stage = stage
		log.Printf("[Orchestrator] Job %s: %s", jobID, stage)
		observe(stage, result)
	}
	fail := func(stage models.JobStage, err error) (*models.JobResult, error) {
		stageErr := &StageError{Stage: stage, Err: err}
		result.Stage = models.StageFailed
		result.Failure = &models.JobFailure{Stage: stage, Error: err.Error()}
		result.FinalVideoPath = ""
		log.Printf("[Orchestrator] Job %s FAILED at %s: %v", jobID, stage, err)
		observe(models.StageFailed, result)
		return result, stageErr
	}
	// aborts routes every stage error: hard stages end the job, soft ones are
	// logged and the run continues with a degraded result.
	aborts := func(stage models.JobStage, err error) bool {
		if stage.IsHard() {
			return true
		}
		log.Printf("[Orchestrator] Job %s: %s failed, continuing without it: %v", jobID, stage, err)
		return false
	}

	ws, err := NewWorkspace(o.opts.WorkRoot, o.opts.Now())
	if err != nil {
		return fail(models.StageStart, err)
	}
	result.WorkDir = ws.Dir
	observe(models.StageStart, result)

	// Script
	script, err := o.providers.Script.GenerateScript(ctx, in.Product)
	if err != nil && aborts(models.StageScriptGenerated, err) {
		return fail(models.StageScriptGenerated, fmt.Errorf("failed to generate script: %w", err))
	}
	result.Script = script
	advance(models.StageScriptGenerated)

	// Avatar
	avatarOpts := o.opts.Avatar
	if in.AvatarID != "" {
		avatarOpts.AvatarID = in.AvatarID
	}
	if in.VoiceID != "" {
		avatarOpts.VoiceID = in.VoiceID
	}
	avatarPath, err := o.providers.Avatar.RenderAvatar(ctx, script, avatarOpts, ws.AvatarPath())
	if err != nil && aborts(models.StageAvatarRendered, err) {
		return fail(models.StageAvatarRendered, fmt.Errorf("failed to render avatar: %w", err))
	}
	result.AvatarVideoPath = avatarPath
	advance(models.StageAvatarRendered)

	// Planning
	scenes, err := o.planScenes(ctx, ws, avatarPath, in.Product.Language, jobID)
	if err != nil && aborts(models.StageScenesPlanned, err) {
		return fail(models.StageScenesPlanned, err)
	}
	result.Scenes = scenes
	result.ScenesPlanned = len(scenes)
	advance(models.StageScenesPlanned)

	// Rendering, failures isolated per scene
	rendered, failures := o.renderer.RenderAll(ctx, ws, scenes, in.ProductImage)
	for _, r := range rendered {
		result.Scenes[r.Index].ArtifactPath = r.VideoPath
		result.Scenes[r.Index].StaticPrompt = r.StaticPrompt
		result.Scenes[r.Index].MotionPrompt = r.MotionPrompt
	}
	result.ScenesRendered = len(rendered)
	result.SceneFailures = failures
	advance(models.StageScenesRendered)

	// Composition
	if _, err := o.compositor.Compose(ctx, avatarPath, rendered, ws.CompositePath()); err != nil && aborts(models.StageComposited, err) {
		return fail(models.StageComposited, err)
	}
	result.CompositeVideoPath = ws.CompositePath()
	result.FinalVideoPath = result.CompositeVideoPath
	advance(models.StageComposited)

	// Captioning
	if o.providers.Captioner != nil {
		captioned, err := o.providers.Captioner.BurnIn(ctx, result.CompositeVideoPath, o.opts.CaptionTemplateID, ws.CaptionedPath())
		if err != nil {
			if aborts(models.StageCaptioned, err) {
				return fail(models.StageCaptioned, err)
			}
			result.CaptioningError = err.Error()
		} else {
			result.CaptionedVideoPath = captioned
			result.FinalVideoPath = captioned
			advance(models.StageCaptioned)
		}
	}

	advance(models.StageDone)
	log.Printf("[Orchestrator] Job %s done: %d/%d scenes, final %s", jobID, result.ScenesRendered, result.ScenesPlanned, result.FinalVideoPath)
	return result, nil
}

// planScenes transcribes the avatar narration and asks the planner for windows.
// A nil error with no scenes means planning is not configured. On error the
// scenes accepted so far (possibly none) are still returned.
func (o *Orchestrator) planScenes(ctx context.Context, ws Workspace, avatarPath, language string, jobID uuid.UUID) ([]models.SceneDescription, error) {
	if o.planner == nil || o.providers.Transcriber == nil {
		log.Printf("[Orchestrator] Job %s: no scene planner configured, continuing without b-roll", jobID)
		return nil, nil
	}

	if err := o.providers.Media.ExtractAudio(ctx, avatarPath, ws.AvatarAudioPath()); err != nil {
		return nil, fmt.Errorf("failed to extract avatar audio: %w", err)
	}

	transcript, err := o.providers.Transcriber.TranscribeSegments(ctx, ws.AvatarAudioPath(), language)
	if err != nil {
		return nil, fmt.Errorf("failed to transcribe avatar audio: %w", err)
	}

	duration, err := o.providers.Media.Duration(ctx, avatarPath)
	if err != nil {
		log.Printf("[Orchestrator] Job %s: could not probe avatar duration, windows unclamped: %v", jobID, err)
		duration = 0
	}

	scenes, err := o.planner.Plan(ctx, transcript, duration)
	if err != nil {
		return scenes, fmt.Errorf("planning stopped early: %w", err)
	}
	return scenes, nil
}
