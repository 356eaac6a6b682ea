package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/bobarin/adreel/internal/models"
	"github.com/bobarin/adreel/internal/services"
)

// TimelineCompositor builds the declarative plan and hands the pixel work to a backend.
type TimelineCompositor struct {
	backend services.CompositorBackend
}

func NewTimelineCompositor(backend services.CompositorBackend) *TimelineCompositor {
	return &TimelineCompositor{backend: backend}
}

// BuildPlan sorts scenes by start (stable) and drops any that cannot be shown:
// no clip, an empty window, a start past the end of the base, or a window
// overlapping an earlier kept scene. Ends are clamped to the base duration when known.
func BuildPlan(basePath string, baseDuration float64, width, height int, scenes []models.RenderedScene) models.CompositionPlan {
	sorted := append([]models.RenderedScene(nil), scenes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	plan := models.CompositionPlan{
		BasePath:     basePath,
		BaseDuration: baseDuration,
		Width:        width,
		Height:       height,
	}

	lastEnd := 0.0
	for _, s := range sorted {
		if baseDuration > 0 && s.End > baseDuration {
			s.End = baseDuration
		}
		switch {
		case s.VideoPath == "":
			log.Printf("[Compositor] Skipping scene %d: no clip", s.Index)
			continue
		case s.Start < 0 || s.Start >= s.End:
			log.Printf("[Compositor] Skipping scene %d: empty window %.2f-%.2f", s.Index, s.Start, s.End)
			continue
		case len(plan.Scenes) > 0 && s.Start < lastEnd:
			log.Printf("[Compositor] Skipping scene %d: overlaps previous overlay ending at %.2f", s.Index, lastEnd)
			continue
		}
		plan.Scenes = append(plan.Scenes, s)
		lastEnd = s.End
	}

	return plan
}

// Compose writes the composite to outputPath and returns the plan it used.
// Any backend failure is a *CompositionError and leaves no output behind.
func (c *TimelineCompositor) Compose(ctx context.Context, basePath string, scenes []models.RenderedScene, outputPath string) (models.CompositionPlan, error) {
	duration, err := c.backend.Duration(ctx, basePath)
	if err != nil {
		return models.CompositionPlan{}, &CompositionError{Overlays: len(scenes), Err: fmt.Errorf("failed to probe base video: %w", err)}
	}

	width, height, err := c.backend.Resolution(ctx, basePath)
	if err != nil {
		log.Printf("[Compositor] Could not probe base resolution, overlays keep their size: %v", err)
		width, height = 0, 0
	}

	plan := BuildPlan(basePath, duration, width, height, scenes)
	log.Printf("[Compositor] Plan: %d overlays on %.2fs base", len(plan.Scenes), duration)

	if err := c.backend.Compose(ctx, plan, outputPath); err != nil {
		os.Remove(outputPath)
		return plan, &CompositionError{Overlays: len(plan.Scenes), Err: err}
	}
	if info, err := os.Stat(outputPath); err != nil || info.Size() == 0 {
		os.Remove(outputPath)
		return plan, &CompositionError{Overlays: len(plan.Scenes), Err: fmt.Errorf("backend produced no output at %s", outputPath)}
	}

	return plan, nil
}
