package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bobarin/adreel/internal/models"
)

// ---------------------------------------------------------------------------
// FFmpegService is the compositor backend plus media utilities.
// ---------------------------------------------------------------------------

type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
}

var _ CompositorBackend = (*FFmpegService)(nil)

func NewFFmpegService(ffmpegPath, ffprobePath string) *FFmpegService {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegService{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// Compose overlays every scene of the plan onto the base video. The base video
// drives the output length and its audio stream is copied through untouched.
// On failure the partial output file is removed.
func (s *FFmpegService) Compose(ctx context.Context, plan models.CompositionPlan, outputPath string) error {
	args := BuildComposeArgs(plan, outputPath)
	log.Printf("[FFmpeg] Compositing %d overlays onto %s", len(plan.Scenes), plan.BasePath)

	if err := s.run(ctx, args); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg composite failed (%d overlays): %w", len(plan.Scenes), err)
	}

	return nil
}

// BuildComposeArgs returns the ffmpeg argument list for a plan. With no scenes
// the result is a stream copy of the base video.
func BuildComposeArgs(plan models.CompositionPlan, outputPath string) []string {
	if len(plan.Scenes) == 0 {
		return []string{
			"-i", plan.BasePath,
			"-map", "0:v",
			"-map", "0:a?",
			"-c", "copy", // Degenerate composite: nothing to overlay
			"-movflags", "+faststart",
			"-y",
			outputPath,
		}
	}

	args := []string{"-i", plan.BasePath} // Input 0: base (a-roll) video
	for _, scene := range plan.Scenes {
		args = append(args, "-i", scene.VideoPath) // Inputs 1..N: overlays in start order
	}

	filter, videoLabel := BuildOverlayFilter(plan)
	args = append(args,
		"-filter_complex", filter,
		"-map", videoLabel, // Last stage of the overlay chain
		"-map", "0:a?", // Base audio only (if any); overlay audio is discarded
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-c:a", "copy", // Keep the base audio bit-identical
		"-movflags", "+faststart",
		"-y",
		outputPath,
	)

	return args
}

// BuildOverlayFilter builds the filter_complex graph for a plan and returns it
// with the label of the final video stage.
//
// Each overlay is time-shifted (not trimmed) so its first frame lands on its
// window start, its last frame is held if the clip is shorter than the window,
// and it is only enabled while start <= t < end. Overlays chain in plan order:
// [0:v] + [ov1] → [v1], [v1] + [ov2] → [v2], ...
func BuildOverlayFilter(plan models.CompositionPlan) (string, string) {
	if len(plan.Scenes) == 0 {
		return "", "0:v"
	}

	var parts []string
	prev := "0:v"

	for i, scene := range plan.Scenes {
		input := i + 1
		start := formatSeconds(scene.Start)
		end := formatSeconds(scene.End)
		window := formatSeconds(scene.End - scene.Start)

		var chain strings.Builder
		fmt.Fprintf(&chain, "[%d:v]", input)
		if plan.Width > 0 && plan.Height > 0 {
			fmt.Fprintf(&chain, "scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1,",
				plan.Width, plan.Height, plan.Width, plan.Height)
		}
		fmt.Fprintf(&chain, "tpad=stop_mode=clone:stop_duration=%s,setpts=PTS-STARTPTS+%s/TB[ov%d]",
			window, start, input)
		parts = append(parts, chain.String())

		out := fmt.Sprintf("v%d", input)
		parts = append(parts, fmt.Sprintf("[%s][ov%d]overlay=eof_action=pass:enable='gte(t,%s)*lt(t,%s)'[%s]",
			prev, input, start, end, out))
		prev = out
	}

	return strings.Join(parts, ";"), "[" + prev + "]"
}

// ExtractAudio writes the audio track of a video to an mp3 file (for transcription).
func (s *FFmpegService) ExtractAudio(ctx context.Context, videoPath, outputPath string) error {
	args := []string{
		"-i", videoPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "2",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg extract audio failed: %w", err)
	}

	return nil
}

// BurnSubtitles renders an ASS subtitle file into the video, copying the audio.
func (s *FFmpegService) BurnSubtitles(ctx context.Context, videoPath, subtitlePath, outputPath string) error {
	log.Printf("[FFmpeg] Burning in subtitles from %s", subtitlePath)

	args := []string{
		"-i", videoPath,
		"-vf", fmt.Sprintf("ass='%s'", escapeFFmpegFilterPath(subtitlePath)),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		"-y",
		outputPath,
	}

	if err := s.run(ctx, args); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("ffmpeg burn subtitles failed: %w", err)
	}

	return nil
}

// Duration returns the container duration of a media file in seconds.
func (s *FFmpegService) Duration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	cmd := exec.CommandContext(ctx, s.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration failed: %w", err)
	}

	return parseProbeDuration(string(output))
}

// Resolution returns the width and height of the first video stream.
func (s *FFmpegService) Resolution(ctx context.Context, path string) (int, int, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		path,
	}

	cmd := exec.CommandContext(ctx, s.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe resolution failed: %w", err)
	}

	return parseProbeResolution(string(output))
}

// run executes ffmpeg, streaming its stderr to the process log and keeping a
// tail of it for the returned error.
func (s *FFmpegService) run(ctx context.Context, args []string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ffmpegPath, append([]string{"-hide_banner"}, args...)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = io.MultiWriter(os.Stderr, &stderr)

	if err := cmd.Run(); err != nil {
		tail := strings.TrimSpace(stderr.String())
		if len(tail) > 500 {
			tail = tail[len(tail)-500:]
		}
		return fmt.Errorf("%w: %s", err, tail)
	}

	return nil
}

func parseProbeDuration(output string) (float64, error) {
	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(output), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(output), err)
	}
	return durationSec, nil
}

func parseProbeResolution(output string) (int, int, error) {
	var width, height int
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(output), "\n", 2)[0])
	if _, err := fmt.Sscanf(line, "%dx%d", &width, &height); err != nil {
		return 0, 0, fmt.Errorf("failed to parse resolution %q: %w", line, err)
	}
	return width, height, nil
}

// formatSeconds renders seconds at millisecond precision without float noise.
func formatSeconds(sec float64) string {
	return strconv.FormatFloat(math.Round(sec*1000)/1000, 'f', -1, 64)
}

// escapeFFmpegFilterPath escapes special characters in file paths for FFmpeg filter syntax.
// FFmpeg filter strings treat colons, backslashes, and single quotes specially.
func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}
