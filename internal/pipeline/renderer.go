package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/bobarin/adreel/internal/models"
	"github.com/bobarin/adreel/internal/services"
	"golang.org/x/sync/errgroup"
)

const DefaultSceneWorkers = 2

// SceneRenderer turns scene descriptions into clips. A failure stays with its scene.
type SceneRenderer struct {
	prompts     services.PromptDeriver
	images      services.SceneImageGenerator
	products    services.ProductCompositor // optional, used for the anchor scene
	videos      services.SceneVideoGenerator
	aspectRatio string
	imageSize   string
	workers     int
}

type RendererOptions struct {
	AspectRatio string // default 9:16
	ImageSize   string // default 1024x1536
	Workers     int    // default DefaultSceneWorkers
}

func NewSceneRenderer(prompts services.PromptDeriver, images services.SceneImageGenerator, products services.ProductCompositor, videos services.SceneVideoGenerator, opts RendererOptions) *SceneRenderer {
	if opts.AspectRatio == "" {
		opts.AspectRatio = "9:16"
	}
	if opts.ImageSize == "" {
		opts.ImageSize = "1024x1536"
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultSceneWorkers
	}
	return &SceneRenderer{
		prompts:     prompts,
		images:      images,
		products:    products,
		videos:      videos,
		aspectRatio: opts.AspectRatio,
		imageSize:   opts.ImageSize,
		workers:     opts.Workers,
	}
}

// Render produces one clip. productImage is only honored for the anchor scene
// (index 0); pass nil for every other scene. Errors are *SceneRenderError.
func (r *SceneRenderer) Render(ctx context.Context, ws Workspace, scene models.SceneDescription, productImage []byte) (models.RenderedScene, error) {
	fail := func(err error) (models.RenderedScene, error) {
		return models.RenderedScene{}, &SceneRenderError{Index: scene.Index, Err: err}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := r.prompts.StaticPrompt(gctx, scene.Description)
		scene.StaticPrompt = p
		return err
	})
	g.Go(func() error {
		p, err := r.prompts.MotionPrompt(gctx, scene.Description)
		scene.MotionPrompt = p
		return err
	})
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	still, err := r.still(ctx, scene, productImage)
	if err != nil {
		return fail(err)
	}
	imagePath := ws.SceneImagePath(scene.Index, services.ImageExtension(still))
	if err := os.WriteFile(imagePath, still, 0644); err != nil {
		return fail(fmt.Errorf("failed to save still: %w", err))
	}

	videoPath, err := r.videos.GenerateVideo(ctx, still, scene.MotionPrompt, r.aspectRatio, ws.SceneVideoPath(scene.Index))
	if err != nil {
		return fail(fmt.Errorf("failed to generate video: %w", err))
	}

	scene.ArtifactPath = videoPath
	return models.RenderedScene{SceneDescription: scene, VideoPath: videoPath}, nil
}

func (r *SceneRenderer) still(ctx context.Context, scene models.SceneDescription, productImage []byte) ([]byte, error) {
	if scene.Index == 0 && len(productImage) > 0 && r.products != nil {
		img, err := r.products.CompositeProduct(ctx, productImage, scene.StaticPrompt)
		if err != nil {
			return nil, fmt.Errorf("failed to composite product: %w", err)
		}
		return img, nil
	}

	sceneType := "lifestyle"
	if scene.Index == 0 {
		sceneType = "product"
	}
	img, err := r.images.GenerateImage(ctx, scene.StaticPrompt, services.ImageHints{SceneType: sceneType, Size: r.imageSize})
	if err != nil {
		return nil, fmt.Errorf("failed to generate still: %w", err)
	}
	return img, nil
}

// RenderAll renders every scene with bounded parallelism and returns once all
// have settled. Rendered scenes come back in index order; failures are dropped
// from the set and reported separately.
func (r *SceneRenderer) RenderAll(ctx context.Context, ws Workspace, scenes []models.SceneDescription, productImage []byte) ([]models.RenderedScene, []models.SceneFailure) {
	results := make([]models.RenderedScene, len(scenes))
	errs := make([]error, len(scenes))

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, scene := range scenes {
		var product []byte
		if scene.Index == 0 {
			product = productImage
		}
		g.Go(func() error {
			results[i], errs[i] = r.Render(ctx, ws, scene, product)
			return nil
		})
	}
	g.Wait()

	var rendered []models.RenderedScene
	var failures []models.SceneFailure
	for i, err := range errs {
		if err != nil {
			log.Printf("[Renderer] Dropping scene %d (%.2f-%.2f): %v", scenes[i].Index, scenes[i].Start, scenes[i].End, err)
			failures = append(failures, models.SceneFailure{Index: scenes[i].Index, Error: err.Error()})
			continue
		}
		rendered = append(rendered, results[i])
	}
	return rendered, failures
}
