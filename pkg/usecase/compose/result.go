package compose

import (
	"github.com/m-mizutani/notecraft/pkg/adapter"
	"github.com/m-mizutani/notecraft/pkg/model"
	"github.com/m-mizutani/notecraft/pkg/service/framework"
)

// Stage records one pipeline stage's outcome. A failed stage carries its
// error message instead of data so the caller sees exactly where the
// pipeline degraded.
type Stage[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok[T any](data T) *Stage[T] {
	return &Stage[T]{Success: true, Data: data}
}

func fail[T any](err error) *Stage[T] {
	return &Stage[T]{Success: false, Error: err.Error()}
}

// ContentData is the content-generate stage payload. IsImproved and
// OriginalQuality are set only when a self-correction pass replaced the
// first draft.
type ContentData struct {
	Content         string  `json:"content"`
	IsImproved      bool    `json:"isImproved,omitempty"`
	OriginalQuality float64 `json:"originalQuality,omitempty"`
}

// FrameworkData is the framework-match stage payload
type FrameworkData struct {
	RecommendedFramework string             `json:"recommendedFramework"`
	Description          string             `json:"description,omitempty"`
	AllMatches           []*framework.Match `json:"allMatches,omitempty"`
	Pinned               bool               `json:"pinned,omitempty"`
}

// MemoryData is the memory-retrieve stage payload
type MemoryData struct {
	Memories []*model.MemoryRecord `json:"memories"`
	Count    int                   `json:"count"`
}

// ImageData is the image-generate stage payload
type ImageData struct {
	Mode      adapter.ImageMode `json:"mode"`
	ImageURLs []string          `json:"imageUrls"`
	Count     int               `json:"count"`
}

// Result aggregates every stage of one request. Stages the plan skipped
// stay nil.
type Result struct {
	Plan          Plan                         `json:"plan"`
	Multimodal    *Stage[*model.VisualAnalysis] `json:"multimodal,omitempty"`
	Framework     *Stage[*FrameworkData]        `json:"framework,omitempty"`
	Memory        *Stage[*MemoryData]           `json:"memory,omitempty"`
	Content       *Stage[*ContentData]          `json:"content,omitempty"`
	Quality       *Stage[*model.QualityScore]   `json:"quality,omitempty"`
	ImagePrompts  *Stage[[]string]              `json:"imagePrompts,omitempty"`
	Images        *Stage[*ImageData]            `json:"images,omitempty"`
	SavedMemoryID model.MemoryID               `json:"savedMemoryId,omitempty"`
	Warning       string                       `json:"warning,omitempty"`
}

// Response is the top-level envelope every entry point returns. Success
// reports whether the request was handled; stage-level failures live
// inside Data.
type Response struct {
	Success bool    `json:"success"`
	Data    *Result `json:"data,omitempty"`
	Error   string  `json:"error,omitempty"`
}

func errResponse(err error) *Response {
	return &Response{Success: false, Error: err.Error()}
}
