package services

import (
	"strings"
	"testing"

	"github.com/bobarin/adreel/internal/models"
)

func renderedScene(index int, start, end float64, path string) models.RenderedScene {
	return models.RenderedScene{
		SceneDescription: models.SceneDescription{Index: index, Start: start, End: end},
		VideoPath:        path,
	}
}

// argValues returns every value that follows flag.
func argValues(args []string, flag string) []string {
	var values []string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			values = append(values, args[i+1])
		}
	}
	return values
}

func hasArg(args []string, arg string) bool {
	for _, a := range args {
		if a == arg {
			return true
		}
	}
	return false
}

func TestBuildOverlayFilterChainsInOrder(t *testing.T) {
	plan := models.CompositionPlan{
		BasePath:     "avatar.mp4",
		BaseDuration: 53,
		Scenes: []models.RenderedScene{
			renderedScene(0, 0, 3.3, "a.mp4"),
			renderedScene(1, 15.4, 21.7, "b.mp4"),
			renderedScene(2, 31.3, 37.6, "c.mp4"),
		},
	}

	filter, label := BuildOverlayFilter(plan)
	if label != "[v3]" {
		t.Errorf("expected final label [v3], got %s", label)
	}

	parts := strings.Split(filter, ";")
	if len(parts) != 6 {
		t.Fatalf("expected 6 filter chains (shift + overlay per scene), got %d: %s", len(parts), filter)
	}

	wantShift := []string{
		"[1:v]tpad=stop_mode=clone:stop_duration=3.3,setpts=PTS-STARTPTS+0/TB[ov1]",
		"[2:v]tpad=stop_mode=clone:stop_duration=6.3,setpts=PTS-STARTPTS+15.4/TB[ov2]",
		"[3:v]tpad=stop_mode=clone:stop_duration=6.3,setpts=PTS-STARTPTS+31.3/TB[ov3]",
	}
	wantOverlay := []string{
		"[0:v][ov1]overlay=eof_action=pass:enable='gte(t,0)*lt(t,3.3)'[v1]",
		"[v1][ov2]overlay=eof_action=pass:enable='gte(t,15.4)*lt(t,21.7)'[v2]",
		"[v2][ov3]overlay=eof_action=pass:enable='gte(t,31.3)*lt(t,37.6)'[v3]",
	}
	for i := range wantShift {
		if parts[2*i] != wantShift[i] {
			t.Errorf("shift chain %d:\n got  %s\n want %s", i, parts[2*i], wantShift[i])
		}
		if parts[2*i+1] != wantOverlay[i] {
			t.Errorf("overlay chain %d:\n got  %s\n want %s", i, parts[2*i+1], wantOverlay[i])
		}
	}
}

func TestBuildOverlayFilterScalesToBase(t *testing.T) {
	plan := models.CompositionPlan{
		BasePath: "avatar.mp4",
		Width:    720,
		Height:   1280,
		Scenes:   []models.RenderedScene{renderedScene(0, 2, 4, "a.mp4")},
	}

	filter, _ := BuildOverlayFilter(plan)
	if !strings.HasPrefix(filter, "[1:v]scale=720:1280:force_original_aspect_ratio=increase,crop=720:1280,setsar=1,tpad=") {
		t.Errorf("expected overlay to be scaled to base resolution, got %s", filter)
	}
}

func TestBuildComposeArgsKeepsBaseAudio(t *testing.T) {
	for _, n := range []int{0, 1, 3} {
		plan := models.CompositionPlan{BasePath: "avatar.mp4", BaseDuration: 53}
		for i := 0; i < n; i++ {
			plan.Scenes = append(plan.Scenes, renderedScene(i, float64(i*10), float64(i*10+5), "s.mp4"))
		}

		args := BuildComposeArgs(plan, "out.mp4")

		maps := argValues(args, "-map")
		if len(maps) != 2 || maps[1] != "0:a?" {
			t.Errorf("n=%d: expected optional audio mapped from base input only, got maps %v", n, maps)
		}
		if hasArg(args, "-shortest") || hasArg(args, "-t") {
			t.Errorf("n=%d: composition must not trim output length: %v", n, args)
		}
		if inputs := argValues(args, "-i"); len(inputs) != n+1 || inputs[0] != "avatar.mp4" {
			t.Errorf("n=%d: expected base as input 0 plus %d overlays, got %v", n, n, inputs)
		}
		if args[len(args)-1] != "out.mp4" {
			t.Errorf("n=%d: expected output path last, got %s", n, args[len(args)-1])
		}
	}
}

func TestBuildComposeArgsAudioCopy(t *testing.T) {
	plan := models.CompositionPlan{
		BasePath: "avatar.mp4",
		Scenes:   []models.RenderedScene{renderedScene(0, 1, 2, "a.mp4")},
	}
	args := BuildComposeArgs(plan, "out.mp4")

	if codecs := argValues(args, "-c:a"); len(codecs) != 1 || codecs[0] != "copy" {
		t.Errorf("expected audio stream copy, got %v", codecs)
	}
	if maps := argValues(args, "-map"); maps[0] != "[v1]" {
		t.Errorf("expected video from last overlay stage, got %s", maps[0])
	}
}

func TestBuildComposeArgsCopyThrough(t *testing.T) {
	args := BuildComposeArgs(models.CompositionPlan{BasePath: "avatar.mp4"}, "out.mp4")

	if hasArg(args, "-filter_complex") {
		t.Errorf("expected no filter graph without overlays: %v", args)
	}
	if codecs := argValues(args, "-c"); len(codecs) != 1 || codecs[0] != "copy" {
		t.Errorf("expected stream copy, got %v", codecs)
	}
}

func TestParseProbeOutput(t *testing.T) {
	d, err := parseProbeDuration("53.280000\n")
	if err != nil || d != 53.28 {
		t.Errorf("parseProbeDuration = %v, %v", d, err)
	}

	if _, err := parseProbeDuration("N/A"); err == nil {
		t.Error("expected error for N/A duration")
	}

	w, h, err := parseProbeResolution("720x1280\n")
	if err != nil || w != 720 || h != 1280 {
		t.Errorf("parseProbeResolution = %d, %d, %v", w, h, err)
	}
}

func TestEscapeFFmpegFilterPath(t *testing.T) {
	got := escapeFFmpegFilterPath("C:\\work\\it's.ass")
	want := "C\\:\\\\work\\\\it'\\''s.ass"
	if got != want {
		t.Errorf("escapeFFmpegFilterPath = %q, want %q", got, want)
	}
}
