package model

// PlatformFitScore grades how well a reference image fits the platform
type PlatformFitScore struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// CreativeSuggestions carries the creative guidance derived from an image
type CreativeSuggestions struct {
	ContentStyle         []string `json:"content_style"`
	Tags                 []string `json:"tags"`
	RecommendedFramework string   `json:"recommended_framework"`
}

// VisualAnalysis is the structured feature set extracted from a reference
// image by the vision service.
type VisualAnalysis struct {
	Style               string              `json:"visual_style"`
	Mood                string              `json:"mood_atmosphere"`
	Composition         string              `json:"composition"`
	ColorPalette        []string            `json:"color_palette"`
	SubjectElements     []string            `json:"subject_elements"`
	SceneType           string              `json:"scene_type"`
	PlatformFit         PlatformFitScore    `json:"platform_fit"`
	CreativeSuggestions CreativeSuggestions `json:"creative_suggestions"`
	Note                string              `json:"note,omitempty"`
}

// FallbackAnalysis is the generic analysis substituted when the vision
// service is unavailable, annotated with the failure reason.
func FallbackAnalysis(reason string) *VisualAnalysis {
	return &VisualAnalysis{
		Style:           "clean and minimal",
		Mood:            "light and relaxed",
		Composition:     "centered",
		ColorPalette:    []string{"warm tones", "soft"},
		SubjectElements: []string{"clear subject"},
		SceneType:       "unknown",
		PlatformFit: PlatformFitScore{
			Score:  5,
			Reason: "vision analysis unavailable, using default analysis",
		},
		CreativeSuggestions: CreativeSuggestions{
			ContentStyle:         []string{"general style"},
			Tags:                 []string{"#life", "#share"},
			RecommendedFramework: "通用框架",
		},
		Note: "vision analysis failed: " + reason,
	}
}
