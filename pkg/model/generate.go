package model

import (
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrEmptyInput = goerr.New("keywords or user message is required")

	keywordSeparators = regexp.MustCompile(`[,，、]`)
)

// GenerateInput is the user request for one generation run
type GenerateInput struct {
	Keywords         string `json:"keywords"`
	UserMessage      string `json:"userMessage"`
	UploadedImageURL string `json:"uploadedImageUrl,omitempty"`

	// Framework pins the writing framework instead of matching one
	Framework string `json:"framework,omitempty"`

	// ExistingContent carries the previous draft plus feedback when a
	// retry loop regenerates content
	ExistingContent string `json:"existingContent,omitempty"`
}

// Validate rejects empty requests before any remote call is attempted
func (x *GenerateInput) Validate() error {
	if x == nil {
		return ErrEmptyInput
	}
	if strings.TrimSpace(x.Keywords) == "" && strings.TrimSpace(x.UserMessage) == "" {
		return ErrEmptyInput
	}
	return nil
}

// KeywordList splits the keyword string on the separators the platform's
// users actually type (ASCII and fullwidth commas, ideographic comma).
func (x *GenerateInput) KeywordList() []string {
	if strings.TrimSpace(x.Keywords) == "" {
		return nil
	}
	parts := keywordSeparators.Split(x.Keywords, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// HasReferenceImage reports whether the request carries a reference image
func (x *GenerateInput) HasReferenceImage() bool {
	return strings.TrimSpace(x.UploadedImageURL) != ""
}
