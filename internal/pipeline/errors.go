package pipeline

import (
	"errors"
	"fmt"

	"github.com/bobarin/adreel/internal/models"
)

var (
	ErrSceneRenderFailed = errors.New("scene render failed")
	ErrCompositionFailed = errors.New("composition failed")
	ErrStageFatal        = errors.New("stage failed")
)

// SceneRenderError scopes a render failure to one scene. It never aborts a job.
type SceneRenderError struct {
	Index int
	Err   error
}

func (e *SceneRenderError) Error() string {
	return fmt.Sprintf("scene %d: %v", e.Index, e.Err)
}

func (e *SceneRenderError) Unwrap() error { return e.Err }

func (e *SceneRenderError) Is(target error) bool {
	return target == ErrSceneRenderFailed
}

type CompositionError struct {
	Overlays int
	Err      error
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("composition of %d overlays failed: %v", e.Overlays, e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

func (e *CompositionError) Is(target error) bool {
	return target == ErrCompositionFailed
}

// StageError terminates a job. Stage names the stage that could not be produced.
type StageError struct {
	Stage models.JobStage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool {
	return target == ErrStageFatal
}
