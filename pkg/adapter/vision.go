package adapter

import (
	"context"

	"github.com/m-mizutani/notecraft/pkg/model"
)

// VisionModel analyzes a reference image (GCS URI or inline data URI) into a
// structured visual-feature object. Callers substitute
// model.FallbackAnalysis on error instead of propagating it.
type VisionModel interface {
	Analyze(ctx context.Context, imageRef string) (*model.VisualAnalysis, error)
}
