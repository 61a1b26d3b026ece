// Package compose orchestrates the content generation pipeline: plan the
// steps, analyze the reference image, match a writing framework, recall
// past work, draft the post, score it, self-correct below threshold, and
// render matching images.
package compose

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/notecraft/pkg/adapter"
	"github.com/m-mizutani/notecraft/pkg/memory"
	"github.com/m-mizutani/notecraft/pkg/model"
	"github.com/m-mizutani/notecraft/pkg/service/framework"
	"github.com/m-mizutani/notecraft/pkg/utils/llmjson"
)

const (
	// QualityThreshold separates publishable content from drafts that get a
	// self-correction pass. Content at or above it is memorized.
	QualityThreshold = 7.0

	// MaxGenerateAttempts bounds the full-mode generate/assess loop
	MaxGenerateAttempts = 3

	// memoryRetrieveLimit caps how many past records feed the draft prompt
	memoryRetrieveLimit = 2

	// imagePromptCount is how many image scenes each post gets
	imagePromptCount = 3
)

//go:embed prompt/content.md
var contentPromptRaw string

//go:embed prompt/quality.md
var qualityPromptRaw string

//go:embed prompt/image_prompts.md
var imagePromptsRaw string

var (
	tmplFuncs = template.FuncMap{"join": strings.Join}

	contentTmpl      = template.Must(template.New("content").Funcs(tmplFuncs).Parse(contentPromptRaw))
	qualityTmpl      = template.Must(template.New("quality").Parse(qualityPromptRaw))
	imagePromptsTmpl = template.Must(template.New("image_prompts").Parse(imagePromptsRaw))
)

// Agent runs the pipeline. Build one with New and reuse it across
// requests; it holds no per-request state.
type Agent struct {
	text    adapter.TextModel
	vision  adapter.VisionModel
	image   adapter.ImageModel
	store   *memory.Store
	catalog *framework.Catalog
	planner *planner
	logger  *slog.Logger
}

// NewInput wires the agent's dependencies. Text and Memory are required;
// a nil Vision or Image model disables the corresponding stages.
type NewInput struct {
	Text    adapter.TextModel
	Vision  adapter.VisionModel
	Image   adapter.ImageModel
	Memory  *memory.Store
	Catalog *framework.Catalog
	Logger  *slog.Logger
}

func New(input NewInput) (*Agent, error) {
	if input.Text == nil {
		return nil, goerr.New("text model is required")
	}
	if input.Memory == nil {
		return nil, goerr.New("memory store is required")
	}

	catalog := input.Catalog
	if catalog == nil {
		var err error
		if catalog, err = framework.NewCatalog(); err != nil {
			return nil, err
		}
	}

	logger := input.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		text:    input.Text,
		vision:  input.Vision,
		image:   input.Image,
		store:   input.Memory,
		catalog: catalog,
		planner: &planner{text: input.Text, logger: logger},
		logger:  logger,
	}, nil
}

// Execute runs the planned pipeline for one request. It always returns a
// structured response: stage failures are recorded per stage, and only
// invalid input fails the envelope itself.
func (x *Agent) Execute(ctx context.Context, input *model.GenerateInput) *Response {
	if err := input.Validate(); err != nil {
		return errResponse(err)
	}

	plan := x.planner.Generate(ctx, input)
	result := &Result{Plan: plan}
	keywords := input.KeywordList()

	x.logger.Info("pipeline started", "keywords", keywords, "steps", len(plan))

	if plan.Has(StepMultimodalAnalysis) && input.HasReferenceImage() {
		result.Multimodal = ok(x.analyzeImage(ctx, input.UploadedImageURL))
	}

	if plan.Has(StepFrameworkMatch) {
		result.Framework = ok(x.matchFramework(input, keywords))
	}

	if plan.Has(StepMemoryRetrieve) && len(keywords) > 0 {
		result.Memory = ok(x.retrieveMemories(keywords))
	}

	if plan.Has(StepContentGenerate) {
		content, err := x.generateContent(ctx, input, result)
		if err != nil {
			result.Content = fail[*ContentData](err)
		} else {
			result.Content = ok(&ContentData{Content: content})
		}
	}

	// Everything downstream depends on a successful draft
	if result.Content == nil || !result.Content.Success {
		x.logger.Warn("content generation did not complete, skipping downstream stages")
		return &Response{Success: true, Data: result}
	}

	if plan.Has(StepQualityAssess) {
		x.assessAndCorrect(ctx, input, result)
	}

	if plan.Has(StepImagePromptGenerate) {
		x.renderImages(ctx, input, result, plan.Has(StepImageGenerate))
	}

	x.logger.Info("pipeline finished",
		"contentOK", result.Content.Success,
		"saved", result.SavedMemoryID != "")

	return &Response{Success: true, Data: result}
}

// analyzeImage never fails the stage: a vision error degrades to a
// generic fallback analysis so content generation can proceed.
func (x *Agent) analyzeImage(ctx context.Context, imageRef string) *model.VisualAnalysis {
	if x.vision == nil {
		return model.FallbackAnalysis("vision model not configured")
	}

	analysis, err := x.vision.Analyze(ctx, imageRef)
	if err != nil {
		x.logger.Warn("vision analysis failed, using fallback", "error", err)
		return model.FallbackAnalysis(err.Error())
	}

	return analysis
}

func (x *Agent) matchFramework(input *model.GenerateInput, keywords []string) *FrameworkData {
	if input.Framework != "" {
		data := &FrameworkData{RecommendedFramework: input.Framework, Pinned: true}
		if fw := x.catalog.Get(input.Framework); fw != nil {
			data.Description = fw.Description
		}
		return data
	}

	matches := x.catalog.MatchKeywords(keywords)
	top := matches[0]
	return &FrameworkData{
		RecommendedFramework: top.Name,
		Description:          top.Description,
		AllMatches:           matches,
	}
}

// retrieveMemories prefers keyword hits and tops up with embedding
// similarity when keywords alone come up short.
func (x *Agent) retrieveMemories(keywords []string) *MemoryData {
	records := x.store.RetrieveByKeywords(keywords, memoryRetrieveLimit)

	if len(records) < memoryRetrieveLimit {
		seen := make(map[model.MemoryID]bool, len(records))
		for _, rec := range records {
			seen[rec.ID] = true
		}
		for _, rec := range x.store.RetrieveSimilar(strings.Join(keywords, " "), memoryRetrieveLimit) {
			if !seen[rec.ID] && len(records) < memoryRetrieveLimit {
				records = append(records, rec)
			}
		}
	}

	return &MemoryData{Memories: records, Count: len(records)}
}

func (x *Agent) generateContent(ctx context.Context, input *model.GenerateInput, result *Result) (string, error) {
	data := map[string]any{
		"Keywords":        input.Keywords,
		"UserMessage":     input.UserMessage,
		"ExistingContent": input.ExistingContent,
	}

	if fwName := recommendedFramework(input, result); fwName != "" {
		data["Framework"] = fwName
		if fw := x.catalog.Get(fwName); fw != nil {
			data["Guidance"] = fw.Guidance
		}
	}

	if result.Multimodal != nil && result.Multimodal.Success {
		data["Analysis"] = result.Multimodal.Data
	}

	if result.Memory != nil && result.Memory.Success && result.Memory.Data.Count > 0 {
		data["MemoryContext"] = memoryContext(result.Memory.Data.Memories)
	}

	var buf bytes.Buffer
	if err := contentTmpl.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render content prompt")
	}

	raw, err := x.text.Complete(ctx, buf.String())
	if err != nil {
		return "", goerr.Wrap(err, "content generation failed")
	}

	content := strings.TrimSpace(raw)
	if content == "" {
		return "", goerr.New("model returned empty content")
	}

	return content, nil
}

// assessAndCorrect scores the draft and, below threshold, runs one
// critique-and-rewrite pass followed by a re-score. The corrected draft
// replaces the original even if the re-score stays low. Content at or
// above threshold is saved to memory.
func (x *Agent) assessAndCorrect(ctx context.Context, input *model.GenerateInput, result *Result) {
	fwName := recommendedFramework(input, result)
	content := result.Content.Data.Content

	score, err := x.assess(ctx, content, fwName)
	if err != nil {
		result.Quality = fail[*model.QualityScore](err)
		return
	}
	result.Quality = ok(score)

	if score.OverallScore < QualityThreshold {
		x.logger.Info("quality below threshold, running self-correction",
			"score", score.OverallScore, "threshold", QualityThreshold)

		corrected, err := x.correct(ctx, content, score, fwName)
		if err != nil {
			x.logger.Warn("self-correction failed, keeping original draft", "error", err)
		} else {
			result.Content.Data.Content = corrected
			result.Content.Data.IsImproved = true
			result.Content.Data.OriginalQuality = score.OverallScore
			content = corrected

			rescored, err := x.assess(ctx, corrected, fwName)
			if err != nil {
				result.Quality = fail[*model.QualityScore](err)
				return
			}
			result.Quality = ok(rescored)
			score = rescored
		}
	}

	if score.OverallScore >= QualityThreshold && result.Plan.Has(StepMemoryStore) {
		id, err := x.store.Save(ctx, content, model.Metadata{
			Keywords:     input.KeywordList(),
			Framework:    fwName,
			QualityScore: score.OverallScore,
		})
		if err != nil {
			x.logger.Warn("failed to memorize content", "error", err)
			return
		}
		result.SavedMemoryID = id
		x.logger.Info("content memorized", "id", id, "score", score.OverallScore)
	}
}

// assess scores content on six dimensions. A remote failure is an error;
// an unparseable or scoreless response degrades to the neutral default
// so one flaky evaluation cannot sink the pipeline.
func (x *Agent) assess(ctx context.Context, content, fwName string) (*model.QualityScore, error) {
	var buf bytes.Buffer
	if err := qualityTmpl.Execute(&buf, map[string]any{
		"Content":   content,
		"Framework": fwName,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to render quality prompt")
	}

	raw, err := x.text.Complete(ctx, buf.String())
	if err != nil {
		return nil, goerr.Wrap(err, "quality assessment failed")
	}

	var score model.QualityScore
	if err := llmjson.Decode(raw, &score); err != nil || score.OverallScore == 0 {
		x.logger.Warn("unparseable quality response, using default score", "error", err)
		return model.DefaultQualityScore(), nil
	}

	score.FillDefaults()
	return &score, nil
}

func recommendedFramework(input *model.GenerateInput, result *Result) string {
	if input.Framework != "" {
		return input.Framework
	}
	if result.Framework != nil && result.Framework.Success {
		return result.Framework.Data.RecommendedFramework
	}
	return ""
}

func memoryContext(records []*model.MemoryRecord) string {
	parts := make([]string, 0, len(records))
	for i, rec := range records {
		content := rec.Content
		if runes := []rune(content); len(runes) > 200 {
			content = string(runes[:200]) + "..."
		}
		parts = append(parts, fmt.Sprintf("参考作品 %d:\n%s", i+1, content))
	}
	return strings.Join(parts, "\n\n")
}

func qualityJSON(score *model.QualityScore) string {
	data, err := json.MarshalIndent(score, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
