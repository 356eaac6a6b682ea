package services

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PromptStyles holds the keyword vocabularies used when turning a scene
// description into image and motion prompts. It can be overridden from YAML.
type PromptStyles struct {
	Motion MotionKeywords     `yaml:"motion"`
	Image  ImageStyleKeywords `yaml:"image"`
}

type MotionKeywords struct {
	CameraStyles   []string `yaml:"camera_styles"`
	Lighting       []string `yaml:"lighting"`
	MovementSpeeds []string `yaml:"movement_speeds"`
	MovementTypes  []string `yaml:"movement_types"`
	Aesthetics     []string `yaml:"aesthetics"`
}

type ImageStyleKeywords struct {
	Default        []string            `yaml:"default"`
	SceneTypes     map[string][]string `yaml:"scene_types"`
	PortraitSuffix string              `yaml:"portrait_suffix"`
}

// DefaultPromptStyles returns the built-in vocabulary.
func DefaultPromptStyles() PromptStyles {
	return PromptStyles{
		Motion: MotionKeywords{
			CameraStyles: []string{
				"low angle", "high angle", "overhead", "FPV", "handheld", "wide angle",
				"close up", "macro cinematography", "over the shoulder", "tracking",
				"establishing wide", "50mm lens", "SnorriCam", "realistic documentary", "camcorder",
			},
			Lighting: []string{
				"diffused lighting", "silhouette", "lens flare", "back lit", "side lit", "venetian lighting",
			},
			MovementSpeeds: []string{"dynamic motion", "slow motion", "fast motion", "timelapse"},
			MovementTypes: []string{
				"grows", "emerges", "explodes", "ascends", "undulates", "warps",
				"transforms", "ripples", "shatters", "unfolds", "vortex",
			},
			Aesthetics: []string{"moody", "cinematic", "iridescent", "home video VHS", "glitchcore"},
		},
		Image: ImageStyleKeywords{
			Default: []string{
				"photorealistic", "high detail", "professional photography", "4K resolution", "natural lighting",
			},
			SceneTypes: map[string][]string{
				"product": {
					"product photography", "studio lighting", "commercial quality",
					"white background", "professional product shot",
				},
				"lifestyle": {
					"lifestyle photography", "candid moment", "natural environment",
					"authentic scene", "real life setting",
				},
				"environment": {
					"environmental photography", "wide angle", "establishing shot",
					"scenic view", "location photography",
				},
			},
			PortraitSuffix: "Compose this as a vertical/portrait shot with 9:16 aspect ratio.",
		},
	}
}

// LoadPromptStyles reads a YAML override file. Sections missing from the file
// keep their built-in values. An empty path returns the defaults.
func LoadPromptStyles(path string) (PromptStyles, error) {
	styles := DefaultPromptStyles()
	if path == "" {
		return styles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return styles, fmt.Errorf("failed to read prompt styles: %w", err)
	}

	var override PromptStyles
	if err := yaml.Unmarshal(data, &override); err != nil {
		return styles, fmt.Errorf("failed to parse prompt styles %s: %w", path, err)
	}

	styles.merge(override)
	return styles, nil
}

func (p *PromptStyles) merge(o PromptStyles) {
	mergeList(&p.Motion.CameraStyles, o.Motion.CameraStyles)
	mergeList(&p.Motion.Lighting, o.Motion.Lighting)
	mergeList(&p.Motion.MovementSpeeds, o.Motion.MovementSpeeds)
	mergeList(&p.Motion.MovementTypes, o.Motion.MovementTypes)
	mergeList(&p.Motion.Aesthetics, o.Motion.Aesthetics)
	mergeList(&p.Image.Default, o.Image.Default)
	for sceneType, keywords := range o.Image.SceneTypes {
		p.Image.SceneTypes[sceneType] = keywords
	}
	if o.Image.PortraitSuffix != "" {
		p.Image.PortraitSuffix = o.Image.PortraitSuffix
	}
}

func mergeList(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}

// ImageKeywords returns the style keywords for a still image request:
// explicit hints first, then the scene type's vocabulary, falling back to the defaults.
func (p PromptStyles) ImageKeywords(hints ImageHints) []string {
	keywords := append([]string(nil), hints.StyleKeywords...)
	keywords = append(keywords, p.Image.SceneTypes[hints.SceneType]...)
	if len(keywords) == 0 {
		keywords = append(keywords, p.Image.Default...)
	}
	return keywords
}
