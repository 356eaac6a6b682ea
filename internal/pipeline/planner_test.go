package pipeline

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/bobarin/adreel/internal/models"
)

func TestAcceptScene(t *testing.T) {
	accepted := []models.SceneDescription{
		{Start: 10, End: 15},
		{Start: 30, End: 35},
	}

	tests := []struct {
		name    string
		in      models.SceneDescription
		ok      bool
		wantEnd float64
	}{
		{"before all", models.SceneDescription{Start: 0, End: 5}, true, 5},
		{"clipped by next", models.SceneDescription{Start: 20, End: 32}, true, 30},
		{"clipped by first", models.SceneDescription{Start: 8, End: 12}, true, 10},
		{"starts inside", models.SceneDescription{Start: 12, End: 18}, false, 0},
		{"starts at accepted start", models.SceneDescription{Start: 30, End: 33}, false, 0},
		{"starts at accepted end", models.SceneDescription{Start: 15, End: 20}, true, 20},
		{"inverted", models.SceneDescription{Start: 20, End: 18}, false, 0},
		{"empty", models.SceneDescription{Start: 20, End: 20}, false, 0},
		{"too short after clip", models.SceneDescription{Start: 29.8, End: 33}, false, 0},
		{"clamped to base", models.SceneDescription{Start: 50, End: 60}, true, 53},
		{"past base end", models.SceneDescription{Start: 54, End: 58}, false, 0},
		{"covers accepted", models.SceneDescription{Start: 16, End: 40}, true, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, reason := AcceptScene(accepted, tt.in, 53, 0.5)
			if ok != tt.ok {
				t.Fatalf("ok = %v (%s), want %v", ok, reason, tt.ok)
			}
			if ok && got.End != tt.wantEnd {
				t.Errorf("End = %v, want %v", got.End, tt.wantEnd)
			}
		})
	}
}

// Any sequence of proposals yields pairwise non-overlapping, non-empty windows.
func TestAcceptSceneNeverOverlaps(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		var accepted []models.SceneDescription
		for i := 0; i < 20; i++ {
			start := rng.Float64()*70 - 5
			candidate := models.SceneDescription{Start: start, End: start + rng.Float64()*20 - 2}
			if scene, ok, _ := AcceptScene(accepted, candidate, 53, 0.5); ok {
				accepted = sortScenes(append(accepted, scene))
			}
		}

		for i, a := range accepted {
			if !(a.Start < a.End) || a.Start < 0 || a.End > 53 {
				t.Fatalf("trial %d: invalid window %+v", trial, a)
			}
			for _, b := range accepted[i+1:] {
				if a.Overlaps(b) {
					t.Fatalf("trial %d: %v overlaps %v", trial, a, b)
				}
			}
		}
	}
}

func TestPlanStopsAtCap(t *testing.T) {
	d := &fakeDescriber{count: 10, proposals: []models.SceneDescription{
		{Start: 0, End: 4, Description: "one"},
		{Start: 10, End: 14, Description: "two"},
		{Start: 20, End: 24, Description: "three"},
		{Start: 30, End: 34, Description: "four"},
	}}
	scenes, err := NewScenePlanner(d, 3).Plan(t.Context(), nil, 53)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(scenes) != 3 {
		t.Fatalf("scenes = %d, want 3", len(scenes))
	}
	if d.calls != 3 {
		t.Errorf("describer calls = %d, want 3", d.calls)
	}
}

func TestPlanSortsAndConditionsOnHistory(t *testing.T) {
	d := &fakeDescriber{count: 3, proposals: []models.SceneDescription{
		{Start: 20, End: 25, Description: "late"},
		{Start: 22, End: 30, Description: "overlapping"},
		{Start: 2, End: 6, Description: "early"},
		{Start: 40, End: 44, Description: "end"},
	}}
	scenes, err := NewScenePlanner(d, 3).Plan(t.Context(), nil, 53)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	want := []string{"early", "late", "end"}
	if len(scenes) != len(want) {
		t.Fatalf("scenes = %+v", scenes)
	}
	for i, s := range scenes {
		if s.Description != want[i] || s.Index != i {
			t.Errorf("scene %d = %q (index %d), want %q", i, s.Description, s.Index, want[i])
		}
	}
	// the fourth request sees both accepted scenes, sorted
	if len(d.seen[3]) != 2 || d.seen[3][0].Description != "early" {
		t.Errorf("history on 4th request = %+v", d.seen[3])
	}
}

func TestPlanDefaultsCountOnEstimateFailure(t *testing.T) {
	d := &fakeDescriber{countErr: errors.New("bad json"), proposals: adScenes()}
	scenes, err := NewScenePlanner(d, 0).Plan(t.Context(), nil, 53)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(scenes) != 3 {
		t.Errorf("scenes = %d, want 3", len(scenes))
	}
}

func TestPlanBoundsRequests(t *testing.T) {
	d := &fakeDescriber{count: 2}
	scenes, err := NewScenePlanner(d, 3).Plan(t.Context(), nil, 53)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(scenes) != 0 {
		t.Errorf("scenes = %d, want 0", len(scenes))
	}
	if d.calls != 2*requestsPerScene {
		t.Errorf("describer calls = %d, want %d", d.calls, 2*requestsPerScene)
	}
}

func TestPlanZeroCount(t *testing.T) {
	d := &fakeDescriber{count: 0, proposals: adScenes()}
	scenes, _ := NewScenePlanner(d, 3).Plan(t.Context(), nil, 53)
	if len(scenes) != 0 || d.calls != 0 {
		t.Errorf("scenes = %d, calls = %d", len(scenes), d.calls)
	}
}
