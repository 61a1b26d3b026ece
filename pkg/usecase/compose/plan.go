package compose

import (
	"bytes"
	"context"
	_ "embed"
	"log/slog"
	"text/template"

	"github.com/m-mizutani/notecraft/pkg/adapter"
	"github.com/m-mizutani/notecraft/pkg/model"
	"github.com/m-mizutani/notecraft/pkg/utils/llmjson"
)

// Step identifies one pipeline step. The vocabulary is closed: planner
// output naming anything else is discarded.
type Step string

const (
	StepMultimodalAnalysis  Step = "multimodal-analysis"
	StepFrameworkMatch      Step = "framework-match"
	StepMemoryRetrieve      Step = "memory-retrieve"
	StepContentGenerate     Step = "content-generate"
	StepQualityAssess       Step = "quality-assess"
	StepImagePromptGenerate Step = "image-prompt-generate"
	StepImageGenerate       Step = "image-generate"
	StepMemoryStore         Step = "memory-store"
)

var stepVocabulary = []Step{
	StepMultimodalAnalysis,
	StepFrameworkMatch,
	StepMemoryRetrieve,
	StepContentGenerate,
	StepQualityAssess,
	StepImagePromptGenerate,
	StepImageGenerate,
	StepMemoryStore,
}

// Plan is the ordered step sequence for one request. Transient: recomputed
// every request, never persisted.
type Plan []Step

// Has reports whether the plan contains the step
func (p Plan) Has(step Step) bool {
	for _, s := range p {
		if s == step {
			return true
		}
	}
	return false
}

// DefaultPlan is the deterministic fallback used when the planning call
// fails or returns garbage. It depends on nothing remote.
func DefaultPlan(hasReferenceImage bool) Plan {
	plan := make(Plan, 0, len(stepVocabulary))
	if hasReferenceImage {
		plan = append(plan, StepMultimodalAnalysis)
	}
	return append(plan,
		StepFrameworkMatch,
		StepMemoryRetrieve,
		StepContentGenerate,
		StepQualityAssess,
		StepImagePromptGenerate,
		StepImageGenerate,
		StepMemoryStore,
	)
}

//go:embed prompt/plan.md
var planPromptRaw string

var planPromptTmpl = template.Must(template.New("plan").Parse(planPromptRaw))

// planner asks the model which steps to run for a request
type planner struct {
	text   adapter.TextModel
	logger *slog.Logger
}

// Generate returns the plan for the input. It never fails: any planning
// error degrades to DefaultPlan.
func (p *planner) Generate(ctx context.Context, input *model.GenerateInput) Plan {
	var buf bytes.Buffer
	if err := planPromptTmpl.Execute(&buf, map[string]any{
		"Keywords":    input.Keywords,
		"UserMessage": input.UserMessage,
		"HasImage":    input.HasReferenceImage(),
		"Steps":       stepVocabulary,
	}); err != nil {
		p.logger.Warn("failed to render plan prompt, using default plan", "error", err)
		return DefaultPlan(input.HasReferenceImage())
	}

	raw, err := p.text.Complete(ctx, buf.String())
	if err != nil {
		p.logger.Warn("planning call failed, using default plan", "error", err)
		return DefaultPlan(input.HasReferenceImage())
	}

	var parsed struct {
		Steps  []string `json:"steps"`
		Reason string   `json:"reason"`
	}
	if err := llmjson.Decode(raw, &parsed); err != nil || len(parsed.Steps) == 0 {
		p.logger.Warn("malformed plan response, using default plan", "error", err)
		return DefaultPlan(input.HasReferenceImage())
	}

	plan := make(Plan, 0, len(parsed.Steps))
	for _, name := range parsed.Steps {
		step := Step(name)
		for _, known := range stepVocabulary {
			if step == known {
				plan = append(plan, step)
				break
			}
		}
	}

	if len(plan) == 0 {
		p.logger.Warn("plan contained no known steps, using default plan")
		return DefaultPlan(input.HasReferenceImage())
	}

	p.logger.Debug("execution plan generated", "steps", plan, "reason", parsed.Reason)
	return plan
}
