package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/adreel/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultTextModel  = "gpt-4o"
	defaultImageModel = "gpt-image-1"
	defaultImageSize  = "1024x1536" // portrait
)

// OpenAIOptions configures the OpenAI-backed collaborators.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string // optional, for proxies and tests
	TextModel  string
	ImageModel string
	Styles     PromptStyles
}

// OpenAIService fronts every text, image and transcription call the pipeline makes to OpenAI.
type OpenAIService struct {
	client     *openai.Client
	textModel  string
	imageModel string
	styles     PromptStyles
}

var (
	_ ScriptGenerator     = (*OpenAIService)(nil)
	_ SceneDescriber      = (*OpenAIService)(nil)
	_ PromptDeriver       = (*OpenAIService)(nil)
	_ SceneImageGenerator = (*OpenAIService)(nil)
	_ Transcriber         = (*OpenAIService)(nil)
)

func NewOpenAIService(opts OpenAIOptions) *OpenAIService {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.TextModel == "" {
		opts.TextModel = defaultTextModel
	}
	if opts.ImageModel == "" {
		opts.ImageModel = defaultImageModel
	}
	return &OpenAIService{
		client:     openai.NewClientWithConfig(cfg),
		textModel:  opts.TextModel,
		imageModel: opts.ImageModel,
		styles:     opts.Styles,
	}
}

// chat runs a single system+user completion and returns the trimmed content.
func (s *OpenAIService) chat(ctx context.Context, system, user string, temperature float32, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: s.textModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("openai returned empty content")
	}
	return content, nil
}

// chatJSON runs a JSON-mode completion and decodes it into out.
func (s *OpenAIService) chatJSON(ctx context.Context, tag, system, user string, out interface{}) error {
	raw, err := s.chat(ctx, system, user, 0.7, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		log.Printf("[OpenAI %s] parse failed: %v, raw response: %s", tag, err, truncateString(raw, 2000))
		return fmt.Errorf("failed to parse %s response: %w", tag, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Script generation: research → outline → critique → final script
// ---------------------------------------------------------------------------

type scriptCritique struct {
	GoodQuality bool   `json:"good_quality"`
	Feedback    string `json:"feedback"`
}

// GenerateScript writes the narration for the avatar in four chained calls.
// Only the critique step is optional; any other failure fails the script.
func (s *OpenAIService) GenerateScript(ctx context.Context, info models.ProductInfo) (string, error) {
	product := formatProductInfo(info)

	research, err := s.chat(ctx,
		"You are an expert market research analyst. Produce actionable insights for short-form video marketing.",
		fmt.Sprintf("Analyze this product.\n%s\nCover: unique selling points, customer motivations and pain points, "+
			"relevant market trends, competitive threats, and positioning. Answer in full sentences.", product),
		0.7, false)
	if err != nil {
		return "", fmt.Errorf("failed to generate market research: %w", err)
	}
	log.Printf("[OpenAI script] research done (%d chars)", len(research))

	outline, err := s.chat(ctx,
		"You are a marketing expert who outlines short marketing video scripts.",
		fmt.Sprintf("Product:\n%s\nMarket research:\n%s\n\nWrite an outline of the marketing pitch flow. "+
			"Return only the outline, not the script.", product, research),
		0.7, false)
	if err != nil {
		return "", fmt.Errorf("failed to generate script outline: %w", err)
	}
	log.Printf("[OpenAI script] outline done (%d chars)", len(outline))

	var critique scriptCritique
	if err := s.chatJSON(ctx, "critique",
		"You judge marketing script outlines by how engaging they would be on video. "+
			`Respond with JSON: {"good_quality": bool, "feedback": string}.`,
		outline, &critique); err != nil {
		log.Printf("[OpenAI script] critique failed, continuing without feedback: %v", err)
	} else {
		log.Printf("[OpenAI script] critique: good_quality=%v", critique.GoodQuality)
	}

	language := info.Language
	if language == "" {
		language = "English"
	}

	var feedback string
	if critique.Feedback != "" && !critique.GoodQuality {
		feedback = "\nReviewer feedback on the outline (address it):\n" + critique.Feedback + "\n"
	}

	script, err := s.chat(ctx,
		"You are a marketing expert who writes compelling, concise scripts for short marketing videos.",
		fmt.Sprintf("Product:\n%s\nMarket research:\n%s\nOutline:\n%s\n%s\n"+
			"Write only the lines the speaker says: no labels, no stage directions, no section titles. "+
			"Use the language: %s. Keep it natural and around 30 seconds when spoken.",
			product, research, outline, feedback, language),
		0.7, false)
	if err != nil {
		return "", fmt.Errorf("failed to generate final script: %w", err)
	}

	log.Printf("[OpenAI script] script generated (%d chars): %q", len(script), truncateString(script, 80))
	return script, nil
}

func formatProductInfo(info models.ProductInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- Product Name: %s\n", info.ProductName)
	fmt.Fprintf(&sb, "- Language: %s\n", info.Language)
	fmt.Fprintf(&sb, "- Description: %s\n", info.Description)
	if info.Price != "" {
		fmt.Fprintf(&sb, "- Price: %s\n", info.Price)
	}
	if info.PromotionDetail != "" {
		fmt.Fprintf(&sb, "- Promotion Detail: %s\n", info.PromotionDetail)
	}
	if info.TargetAudience != "" {
		fmt.Fprintf(&sb, "- Target Audience: %s\n", info.TargetAudience)
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Scene planning. These are proposals only; the pipeline validates them.
// ---------------------------------------------------------------------------

type sceneCountResponse struct {
	Count int `json:"count"`
}

type sceneProposal struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Description string  `json:"description"`
}

func (s *OpenAIService) EstimateSceneCount(ctx context.Context, transcript []models.TranscriptSegment) (int, error) {
	var resp sceneCountResponse
	err := s.chatJSON(ctx, "scene count",
		"Decide how many b-roll scenes the given video transcript needs. Ideally 3 or fewer. "+
			`Respond with JSON: {"count": integer}.`,
		"Transcript:\n"+FormatTranscript(transcript),
		&resp)
	if err != nil {
		return 0, err
	}
	if resp.Count < 0 {
		return 0, fmt.Errorf("invalid scene count %d", resp.Count)
	}
	return resp.Count, nil
}

func (s *OpenAIService) DescribeNextScene(ctx context.Context, transcript []models.TranscriptSegment, accepted []models.SceneDescription) (models.SceneDescription, error) {
	history := "None yet."
	if len(accepted) > 0 {
		lines := make([]string, len(accepted))
		for i, scene := range accepted {
			lines[i] = fmt.Sprintf("- %.2fs to %.2fs: %s", scene.Start, scene.End, scene.Description)
		}
		history = strings.Join(lines, "\n")
	}

	var resp sceneProposal
	err := s.chatJSON(ctx, "scene",
		"You are a video editor's assistant. Choose and describe one new, simple b-roll scene for the transcript. "+
			"It may span several transcript segments. "+
			`Respond with JSON: {"start": seconds, "end": seconds, "description": string}.`,
		fmt.Sprintf("Transcript:\n%s\nSelected b-roll scenes so far:\n%s\n\n"+
			"Choose one more scene that does not overlap the ones above and describe what it shows.",
			FormatTranscript(transcript), history),
		&resp)
	if err != nil {
		return models.SceneDescription{}, err
	}

	return models.SceneDescription{
		Start:       resp.Start,
		End:         resp.End,
		Description: strings.TrimSpace(resp.Description),
	}, nil
}

// FormatTranscript renders segments as "[start-end] text" lines.
func FormatTranscript(segments []models.TranscriptSegment) string {
	var sb strings.Builder
	for _, seg := range segments {
		fmt.Fprintf(&sb, "[%.2f-%.2f] %s\n", seg.Start, seg.End, seg.Text)
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Prompt derivation
// ---------------------------------------------------------------------------

func (s *OpenAIService) StaticPrompt(ctx context.Context, description string) (string, error) {
	prompt, err := s.chat(ctx,
		"You are a professional photographer and art director. Convert dynamic video descriptions into compelling static image prompts.",
		fmt.Sprintf("Convert this video scene description into a static image prompt that captures its most impactful moment. "+
			"Describe a single frame: composition, lighting and focus.\n\nVideo description:\n%s\n\n"+
			"Respond with just the image description.", description),
		0.7, false)
	if err != nil {
		return "", fmt.Errorf("failed to derive static prompt: %w", err)
	}
	return prompt, nil
}

func (s *OpenAIService) MotionPrompt(ctx context.Context, description string) (string, error) {
	m := s.styles.Motion
	prompt, err := s.chat(ctx,
		"You are a professional cinematographer. Create concise motion prompts focusing on camera movement, lighting, and motion effects.",
		fmt.Sprintf("Convert this video scene description into an image-to-video motion prompt. "+
			"Describe motion and cinematography, not the image contents. Use these keywords only when relevant:\n"+
			"- Camera styles: %s\n- Lighting: %s\n- Movement speeds: %s\n- Movement types: %s\n- Style and aesthetic: %s\n\n"+
			"Video description:\n%s\n\nRespond with just the motion prompt, purely descriptive.",
			strings.Join(m.CameraStyles, ", "), strings.Join(m.Lighting, ", "),
			strings.Join(m.MovementSpeeds, ", "), strings.Join(m.MovementTypes, ", "),
			strings.Join(m.Aesthetics, ", "), description),
		0.7, false)
	if err != nil {
		return "", fmt.Errorf("failed to derive motion prompt: %w", err)
	}
	return prompt, nil
}

// ---------------------------------------------------------------------------
// Image generation
// ---------------------------------------------------------------------------

// BuildImagePrompt appends style keywords and the portrait composition suffix.
func (p PromptStyles) BuildImagePrompt(prompt string, hints ImageHints) string {
	keywords := p.ImageKeywords(hints)
	if len(keywords) > 0 {
		prompt = prompt + ", " + strings.Join(keywords, ", ")
	}
	if p.Image.PortraitSuffix != "" {
		prompt = prompt + ". " + p.Image.PortraitSuffix
	}
	return prompt
}

func (s *OpenAIService) GenerateImage(ctx context.Context, prompt string, hints ImageHints) ([]byte, error) {
	size := hints.Size
	if size == "" {
		size = defaultImageSize
	}

	resp, err := s.client.CreateImage(ctx, openai.ImageRequest{
		Model:   s.imageModel,
		Prompt:  s.styles.BuildImagePrompt(prompt, hints),
		Size:    size,
		Quality: "high",
		N:       1,
	})
	if err != nil {
		return nil, fmt.Errorf("openai image generation failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no images")
	}

	data := resp.Data[0]
	if data.B64JSON != "" {
		img, err := base64.StdEncoding.DecodeString(data.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		log.Printf("[OpenAI image] generated %d bytes (size=%s)", len(img), size)
		return img, nil
	}
	if data.URL != "" {
		return downloadBytes(ctx, data.URL)
	}

	return nil, fmt.Errorf("openai image response has neither data nor url")
}

// ---------------------------------------------------------------------------
// Whisper transcription
// ---------------------------------------------------------------------------

// WordTimestamp represents a single word with its precise timing from Whisper.
// Used to generate word-by-word highlighted subtitles.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
}

func (s *OpenAIService) transcribe(ctx context.Context, mediaPath, language string, granularity openai.TranscriptionTimestampGranularity) (openai.AudioResponse, error) {
	audioData, err := os.ReadFile(mediaPath)
	if err != nil {
		return openai.AudioResponse{}, fmt.Errorf("failed to read audio: %w", err)
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audioData),
		FilePath: filepath.Base(mediaPath), // Filename hint for the API (required by the library)
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: whisperLanguage(language),
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			granularity,
		},
	})
	if err != nil {
		return openai.AudioResponse{}, fmt.Errorf("whisper transcription failed: %w", err)
	}
	return resp, nil
}

// TranscribeSegments returns sentence-level segments with times rounded to centiseconds.
func (s *OpenAIService) TranscribeSegments(ctx context.Context, mediaPath, language string) ([]models.TranscriptSegment, error) {
	resp, err := s.transcribe(ctx, mediaPath, language, openai.TranscriptionTimestampGranularitySegment)
	if err != nil {
		return nil, err
	}

	if len(resp.Segments) == 0 {
		return nil, fmt.Errorf("whisper returned no segments (text: %q)", resp.Text)
	}

	segments := make([]models.TranscriptSegment, len(resp.Segments))
	for i, seg := range resp.Segments {
		segments[i] = models.TranscriptSegment{
			Start: roundCenti(seg.Start),
			End:   roundCenti(seg.End),
			Text:  strings.TrimSpace(seg.Text),
		}
	}

	log.Printf("[Whisper] Transcribed %d segments (duration: %.1fs, text: %q)",
		len(segments), resp.Duration, truncateString(resp.Text, 80))

	return segments, nil
}

// TranscribeWords returns word-level timestamps for subtitle generation.
func (s *OpenAIService) TranscribeWords(ctx context.Context, mediaPath, language string) ([]WordTimestamp, error) {
	resp, err := s.transcribe(ctx, mediaPath, language, openai.TranscriptionTimestampGranularityWord)
	if err != nil {
		return nil, err
	}

	if len(resp.Words) == 0 {
		return nil, fmt.Errorf("whisper returned no word timestamps (text: %q)", resp.Text)
	}

	words := make([]WordTimestamp, len(resp.Words))
	for i, w := range resp.Words {
		words[i] = WordTimestamp{
			Word:  strings.TrimSpace(w.Word),
			Start: w.Start,
			End:   w.End,
		}
	}

	log.Printf("[Whisper] Transcribed %d words (duration: %.1fs)", len(words), resp.Duration)
	return words, nil
}

// whisperLanguage maps free-form language names to ISO 639-1 where known.
// Unknown values are left empty so Whisper auto-detects.
func whisperLanguage(language string) string {
	l := strings.ToLower(strings.TrimSpace(language))
	if len(l) == 2 {
		return l
	}
	switch l {
	case "english":
		return "en"
	case "spanish":
		return "es"
	case "french":
		return "fr"
	case "german":
		return "de"
	case "italian":
		return "it"
	case "portuguese":
		return "pt"
	case "chinese", "mandarin":
		return "zh"
	case "japanese":
		return "ja"
	case "korean":
		return "ko"
	case "thai":
		return "th"
	case "vietnamese":
		return "vi"
	case "indonesian":
		return "id"
	}
	return ""
}

func roundCenti(v float64) float64 {
	return math.Round(v*100) / 100
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
