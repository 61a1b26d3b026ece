package compose

import (
	"context"
	"strings"

	"github.com/m-mizutani/notecraft/pkg/model"
)

// Quick drafts content in a single model call: no planning, no quality
// gate, no images, nothing memorized.
func (x *Agent) Quick(ctx context.Context, input *model.GenerateInput) *Response {
	if err := input.Validate(); err != nil {
		return errResponse(err)
	}

	result := &Result{}

	if len(input.KeywordList()) > 0 {
		result.Framework = ok(x.matchFramework(input, input.KeywordList()))
	}

	content, err := x.generateContent(ctx, input, result)
	if err != nil {
		return &Response{Success: false, Data: result, Error: err.Error()}
	}

	result.Content = ok(&ContentData{Content: content})
	return &Response{Success: true, Data: result}
}

// Full loops generate-then-assess until the draft clears the quality
// threshold or the attempt budget runs out, feeding each round's
// suggestions back into the next draft. Exhausting the budget is not a
// failure: the best effort ships with a warning. Images are rendered for
// whatever content the loop settles on.
func (x *Agent) Full(ctx context.Context, input *model.GenerateInput) *Response {
	if err := input.Validate(); err != nil {
		return errResponse(err)
	}

	result := &Result{}
	keywords := input.KeywordList()

	if input.HasReferenceImage() {
		result.Multimodal = ok(x.analyzeImage(ctx, input.UploadedImageURL))
	}
	result.Framework = ok(x.matchFramework(input, keywords))
	if len(keywords) > 0 {
		result.Memory = ok(x.retrieveMemories(keywords))
	}

	fwName := recommendedFramework(input, result)
	work := *input

	var content string
	for attempt := 1; attempt <= MaxGenerateAttempts; attempt++ {
		draft, err := x.generateContent(ctx, &work, result)
		if err != nil {
			return &Response{Success: false, Data: result, Error: err.Error()}
		}
		content = draft
		result.Content = ok(&ContentData{Content: content})

		score, err := x.assess(ctx, content, fwName)
		if err != nil {
			result.Quality = fail[*model.QualityScore](err)
			break
		}
		result.Quality = ok(score)

		if score.OverallScore >= QualityThreshold {
			x.logger.Info("quality threshold reached", "attempt", attempt, "score", score.OverallScore)
			break
		}

		if attempt == MaxGenerateAttempts {
			result.Warning = "quality threshold not reached within attempt budget"
			x.logger.Warn("attempt budget exhausted below quality threshold",
				"attempts", attempt, "score", score.OverallScore)
			break
		}

		x.logger.Info("retrying generation with feedback",
			"attempt", attempt, "score", score.OverallScore)
		work.ExistingContent = content + "\n\n改进方向:\n" + strings.Join(score.Suggestions, "\n")
	}

	if result.Quality != nil && result.Quality.Success &&
		result.Quality.Data.OverallScore >= QualityThreshold {
		id, err := x.store.Save(ctx, content, model.Metadata{
			Keywords:     keywords,
			Framework:    fwName,
			QualityScore: result.Quality.Data.OverallScore,
		})
		if err != nil {
			x.logger.Warn("failed to memorize content", "error", err)
		} else {
			result.SavedMemoryID = id
		}
	}

	// Ship images for the final draft even when the score stayed low
	x.renderImages(ctx, input, result, true)

	return &Response{Success: true, Data: result}
}
