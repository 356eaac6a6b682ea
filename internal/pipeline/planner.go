package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/bobarin/adreel/internal/models"
	"github.com/bobarin/adreel/internal/services"
)

const (
	DefaultMaxScenes       = 3
	defaultSceneCount      = 3
	defaultMinSceneSeconds = 0.5
	// requests allowed per wanted scene before the planner gives up
	requestsPerScene = 3
)

// ScenePlanner asks the text model for b-roll windows one at a time and keeps
// only proposals that fit the timeline.
type ScenePlanner struct {
	describer   services.SceneDescriber
	maxScenes   int
	minDuration float64
}

func NewScenePlanner(describer services.SceneDescriber, maxScenes int) *ScenePlanner {
	if maxScenes <= 0 {
		maxScenes = DefaultMaxScenes
	}
	return &ScenePlanner{
		describer:   describer,
		maxScenes:   maxScenes,
		minDuration: defaultMinSceneSeconds,
	}
}

// Plan returns accepted scenes sorted by start and indexed from 0.
// baseDuration <= 0 means the base length is unknown and windows are not clamped to it.
func (p *ScenePlanner) Plan(ctx context.Context, transcript []models.TranscriptSegment, baseDuration float64) ([]models.SceneDescription, error) {
	want, err := p.describer.EstimateSceneCount(ctx, transcript)
	if err != nil {
		log.Printf("[Planner] Scene count estimate failed, using %d: %v", defaultSceneCount, err)
		want = defaultSceneCount
	}
	if want > p.maxScenes {
		want = p.maxScenes
	}
	if want <= 0 {
		return nil, nil
	}

	var accepted []models.SceneDescription
	maxRequests := want * requestsPerScene
	for requests := 0; len(accepted) < want && requests < maxRequests; requests++ {
		if err := ctx.Err(); err != nil {
			return sortScenes(accepted), fmt.Errorf("planning cancelled: %w", err)
		}

		candidate, err := p.describer.DescribeNextScene(ctx, transcript, accepted)
		if err != nil {
			log.Printf("[Planner] Scene request %d failed: %v", requests+1, err)
			continue
		}

		scene, ok, reason := AcceptScene(accepted, candidate, baseDuration, p.minDuration)
		if !ok {
			log.Printf("[Planner] Rejected scene %.2f-%.2f: %s", candidate.Start, candidate.End, reason)
			continue
		}
		if scene.End != candidate.End {
			log.Printf("[Planner] Clipped scene %.2f-%.2f to end at %.2f", candidate.Start, candidate.End, scene.End)
		}

		accepted = sortScenes(append(accepted, scene))
	}

	log.Printf("[Planner] Accepted %d/%d scenes", len(accepted), want)
	return accepted, nil
}

// AcceptScene validates one proposal against the already accepted windows.
// A proposal starting inside an accepted window is rejected; one that runs into
// the next accepted window is clipped to end where it starts. The result always
// has Start < End and is at least minDuration long.
func AcceptScene(accepted []models.SceneDescription, candidate models.SceneDescription, baseDuration, minDuration float64) (models.SceneDescription, bool, string) {
	scene := candidate
	if scene.Start < 0 {
		scene.Start = 0
	}
	if baseDuration > 0 && scene.End > baseDuration {
		scene.End = baseDuration
	}
	if scene.Start >= scene.End {
		return candidate, false, "empty or inverted window"
	}

	for _, a := range accepted {
		if scene.Start >= a.Start && scene.Start < a.End {
			return candidate, false, fmt.Sprintf("starts inside accepted scene %.2f-%.2f", a.Start, a.End)
		}
		if a.Start > scene.Start && a.Start < scene.End {
			scene.End = a.Start
		}
	}

	if scene.End-scene.Start < minDuration {
		return candidate, false, fmt.Sprintf("shorter than %.2fs after clipping", minDuration)
	}
	return scene, true, ""
}

// sortScenes orders by start and reassigns indices.
func sortScenes(scenes []models.SceneDescription) []models.SceneDescription {
	sort.SliceStable(scenes, func(i, j int) bool { return scenes[i].Start < scenes[j].Start })
	for i := range scenes {
		scenes[i].Index = i
	}
	return scenes
}
