package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// WordTranscriber returns word-level timings for an audio file.
type WordTranscriber interface {
	TranscribeWords(ctx context.Context, mediaPath, language string) ([]WordTimestamp, error)
}

// SubtitleBurner is the ffmpeg side of local captioning.
type SubtitleBurner interface {
	ExtractAudio(ctx context.Context, videoPath, outputPath string) error
	BurnSubtitles(ctx context.Context, videoPath, subtitlePath, outputPath string) error
}

// LocalCaptioner burns word-highlight captions without a hosted captioning service:
// extract audio → Whisper word timestamps → ASS → ffmpeg burn-in.
type LocalCaptioner struct {
	words    WordTranscriber
	burner   SubtitleBurner
	language string
	styles   map[string]CaptionStyle
}

var _ Captioner = (*LocalCaptioner)(nil)

func NewLocalCaptioner(words WordTranscriber, burner SubtitleBurner, language string) *LocalCaptioner {
	return &LocalCaptioner{
		words:    words,
		burner:   burner,
		language: language,
		styles:   map[string]CaptionStyle{"default": DefaultCaptionStyle()},
	}
}

// BurnIn captions videoPath into outputPath. templateID picks a registered
// CaptionStyle; unknown ids use the default style.
func (c *LocalCaptioner) BurnIn(ctx context.Context, videoPath, templateID, outputPath string) (string, error) {
	style, ok := c.styles[templateID]
	if !ok {
		style = c.styles["default"]
	}

	base := strings.TrimSuffix(outputPath, filepath.Ext(outputPath))
	audioPath := base + "_audio.mp3"
	assPath := base + ".ass"
	defer os.Remove(audioPath)

	if err := c.burner.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return "", fmt.Errorf("failed to extract audio: %w", err)
	}

	words, err := c.words.TranscribeWords(ctx, audioPath, c.language)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe words: %w", err)
	}

	if err := style.WriteASS(words, assPath); err != nil {
		return "", err
	}

	if err := c.burner.BurnSubtitles(ctx, videoPath, assPath, outputPath); err != nil {
		return "", fmt.Errorf("failed to burn captions: %w", err)
	}

	log.Printf("[Captions] Burned %d words into %s", len(words), filepath.Base(outputPath))
	return outputPath, nil
}
