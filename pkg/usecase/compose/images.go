package compose

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/notecraft/pkg/adapter"
	"github.com/m-mizutani/notecraft/pkg/model"
)

// renderImages derives scene prompts from the final content and, when
// asked, synthesizes one image per prompt. Failures stay local to their
// stage.
func (x *Agent) renderImages(ctx context.Context, input *model.GenerateInput, result *Result, generate bool) {
	prompts, err := x.imagePrompts(ctx, result.Content.Data.Content, input.HasReferenceImage())
	if err != nil {
		result.ImagePrompts = fail[[]string](err)
		return
	}
	result.ImagePrompts = ok(prompts)

	if !generate {
		return
	}

	data, err := x.generateImages(ctx, prompts, input)
	if err != nil {
		result.Images = fail[*ImageData](err)
		return
	}
	result.Images = ok(data)
}

func (x *Agent) imagePrompts(ctx context.Context, content string, hasReference bool) ([]string, error) {
	var buf bytes.Buffer
	if err := imagePromptsTmpl.Execute(&buf, map[string]any{
		"Content":           content,
		"Count":             imagePromptCount,
		"HasReferenceImage": hasReference,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to render image prompt template")
	}

	raw, err := x.text.Complete(ctx, buf.String())
	if err != nil {
		return nil, goerr.Wrap(err, "image prompt generation failed")
	}

	prompts := parseSuggestions(raw)
	if len(prompts) == 0 {
		return nil, goerr.New("no image prompts in response")
	}

	// Pad by cycling over what the model gave us so every slot has a prompt
	for n := len(prompts); len(prompts) < imagePromptCount; {
		prompts = append(prompts, prompts[len(prompts)%n])
	}

	return prompts[:imagePromptCount], nil
}

// generateImages fans out one synthesis call per prompt and keeps
// whatever succeeds. It fails only when every call failed.
func (x *Agent) generateImages(ctx context.Context, prompts []string, input *model.GenerateInput) (*ImageData, error) {
	if x.image == nil {
		return nil, goerr.New("image model not configured")
	}

	mode := adapter.ModeTextToImage
	var refs []string
	if input.HasReferenceImage() {
		mode = adapter.ModeImageToImage
		refs = []string{input.UploadedImageURL}
	}

	results := make([][]string, len(prompts))
	var wg sync.WaitGroup
	for i, prompt := range prompts {
		wg.Add(1)
		go func() {
			defer wg.Done()

			urls, err := x.image.Synthesize(ctx, &adapter.ImageRequest{
				Prompt:          prompt,
				Mode:            mode,
				ReferenceImages: refs,
				Count:           1,
			})
			if err != nil {
				x.logger.Warn("image synthesis failed", "error", err, "slot", i)
				return
			}
			results[i] = urls
		}()
	}
	wg.Wait()

	var urls []string
	for _, r := range results {
		urls = append(urls, r...)
	}
	if len(urls) == 0 {
		return nil, goerr.New("all image synthesis calls failed")
	}

	return &ImageData{Mode: mode, ImageURLs: urls, Count: len(urls)}, nil
}

// Images generates images for existing content outside the pipeline,
// used by the standalone image command.
func (x *Agent) Images(ctx context.Context, content string, input *model.GenerateInput) (*ImageData, error) {
	if strings.TrimSpace(content) == "" {
		return nil, goerr.New("content is empty")
	}

	prompts, err := x.imagePrompts(ctx, content, input.HasReferenceImage())
	if err != nil {
		return nil, err
	}

	return x.generateImages(ctx, prompts, input)
}
