package main

import (
	"context"
	"fmt"
	"log"

	"github.com/bobarin/adreel/internal/config"
	"github.com/bobarin/adreel/internal/pipeline"
	"github.com/bobarin/adreel/internal/services"
	"github.com/bobarin/adreel/internal/storage"
)

// buildProviders wires the pipeline collaborators selected by config.
func buildProviders(cfg *config.Config) (pipeline.Providers, error) {
	styles, err := services.LoadPromptStyles(cfg.PromptStylesFile)
	if err != nil {
		return pipeline.Providers{}, err
	}
	if cfg.PromptStylesFile != "" {
		log.Printf("Prompt styles loaded from %s", cfg.PromptStylesFile)
	}

	openaiSvc := services.NewOpenAIService(services.OpenAIOptions{
		APIKey:     cfg.OpenAIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		TextModel:  cfg.OpenAITextModel,
		ImageModel: cfg.OpenAIImageModel,
		Styles:     styles,
	})
	ffmpegSvc := services.NewFFmpegService(cfg.FFmpegPath, cfg.FFprobePath)

	p := pipeline.Providers{
		Script:      openaiSvc,
		Avatar:      services.NewHeyGenService(cfg.HeyGenKey),
		Transcriber: openaiSvc,
		Describer:   openaiSvc,
		Prompts:     openaiSvc,
		Media:       ffmpegSvc,
	}

	switch cfg.SceneImageProvider {
	case "gemini":
		p.Images = services.NewGeminiImageService(cfg.GeminiKey, cfg.GeminiImageModel, styles)
		log.Printf("Scene images: Gemini (model: %s)", cfg.GeminiImageModel)
	default:
		p.Images = openaiSvc
		log.Printf("Scene images: OpenAI (model: %s)", cfg.OpenAIImageModel)
	}

	switch cfg.SceneVideoProvider {
	case "veo":
		p.Videos = services.NewVeoService(cfg.GeminiKey, cfg.VeoModel)
		log.Printf("Scene videos: Veo (model: %s)", cfg.VeoModel)
	default:
		p.Videos = services.NewRunwayService(cfg.RunwayKey)
		log.Println("Scene videos: Runway gen4_turbo")
	}

	if cfg.FalKey != "" {
		p.Products = services.NewFalTryOnService(cfg.FalKey, p.Images)
		log.Println("Anchor scene product compositing: fal.ai try-on")
	}

	switch cfg.CaptionProvider {
	case "zapcap":
		p.Captioner = services.NewZapCapService(cfg.ZapCapKey, cfg.CaptionLanguage)
		log.Println("Captions: ZapCap")
	case "local":
		p.Captioner = services.NewLocalCaptioner(openaiSvc, ffmpegSvc, cfg.CaptionLanguage)
		log.Println("Captions: local Whisper + ffmpeg burn-in")
	default:
		log.Println("Captions disabled")
	}

	return p, nil
}

// buildArtifactStore returns nil when artifacts stay on local disk.
func buildArtifactStore(ctx context.Context, cfg *config.Config) (storage.ArtifactStore, error) {
	switch cfg.ArtifactStore {
	case "supabase":
		return storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket), nil
	case "s3":
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 store: %w", err)
		}
		return store, nil
	default:
		return nil, nil
	}
}
