package compose

import (
	"bytes"
	"context"
	_ "embed"
	"regexp"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/notecraft/pkg/model"
)

//go:embed prompt/critique.md
var critiquePromptRaw string

//go:embed prompt/rewrite.md
var rewritePromptRaw string

var (
	critiqueTmpl = template.Must(template.New("critique").Parse(critiquePromptRaw))
	rewriteTmpl  = template.Must(template.New("rewrite").Parse(rewritePromptRaw))
)

var listPrefix = regexp.MustCompile(`^\d+[.、)）]?\s*`)

// correct runs one critique-and-rewrite pass: ask the model what is weak
// about the draft given its scores, then rewrite against those
// suggestions.
func (x *Agent) correct(ctx context.Context, content string, score *model.QualityScore, fwName string) (string, error) {
	var buf bytes.Buffer
	if err := critiqueTmpl.Execute(&buf, map[string]any{
		"Content":     content,
		"QualityJSON": qualityJSON(score),
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render critique prompt")
	}

	raw, err := x.text.Complete(ctx, buf.String())
	if err != nil {
		return "", goerr.Wrap(err, "critique failed")
	}

	suggestions := parseSuggestions(raw)
	if len(suggestions) == 0 {
		return "", goerr.New("critique produced no suggestions")
	}

	return x.rewrite(ctx, content, suggestions, fwName)
}

func (x *Agent) rewrite(ctx context.Context, content string, suggestions []string, fwName string) (string, error) {
	var buf bytes.Buffer
	if err := rewriteTmpl.Execute(&buf, map[string]any{
		"Content":     content,
		"Suggestions": suggestions,
		"Framework":   fwName,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to render rewrite prompt")
	}

	raw, err := x.text.Complete(ctx, buf.String())
	if err != nil {
		return "", goerr.Wrap(err, "rewrite failed")
	}

	rewritten := strings.TrimSpace(raw)
	if rewritten == "" {
		return "", goerr.New("rewrite returned empty content")
	}

	return rewritten, nil
}

// Refine rewrites content against free-form user feedback. Used by the
// interactive refine loop, where the user plays critic.
func (x *Agent) Refine(ctx context.Context, content, feedback, fwName string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", goerr.New("content is empty")
	}
	if strings.TrimSpace(feedback) == "" {
		return "", goerr.New("feedback is empty")
	}

	return x.rewrite(ctx, content, []string{feedback}, fwName)
}

// parseSuggestions splits a model response into suggestion lines,
// dropping blanks and numbering prefixes.
func parseSuggestions(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = listPrefix.ReplaceAllString(line, "")
		line = strings.TrimPrefix(line, "- ")
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
