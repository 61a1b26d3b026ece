package adapter

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

type ImageMode string

const (
	ModeTextToImage  ImageMode = "text-to-image"
	ModeImageToImage ImageMode = "image-to-image"
	ModeMultiFusion  ImageMode = "multi-fusion"
)

const (
	// MaxFusionReferences caps the reference set in multi-fusion mode
	MaxFusionReferences = 6

	// maxInlineImageBytes rejects oversized inline-encoded reference images
	// before dispatch, so a huge payload cannot destabilize the process
	maxInlineImageBytes = 10 << 20
)

var (
	ErrMissingReference = goerr.New("reference image is required for this mode")
	ErrOversizedImage   = goerr.New("inline reference image exceeds size limit")
	ErrUnknownImageMode = goerr.New("unsupported image generation mode")
)

// ImageRequest describes one image synthesis call
type ImageRequest struct {
	Prompt          string
	Mode            ImageMode
	ReferenceImages []string
	Count           int
	Size            string
}

// Validate checks the request before any network dispatch
func (x *ImageRequest) Validate() error {
	if strings.TrimSpace(x.Prompt) == "" {
		return goerr.New("image prompt is empty")
	}

	switch x.Mode {
	case ModeTextToImage:
	case ModeImageToImage, ModeMultiFusion:
		if len(x.ReferenceImages) == 0 {
			return goerr.Wrap(ErrMissingReference, "", goerr.V("mode", x.Mode))
		}
	default:
		return goerr.Wrap(ErrUnknownImageMode, "", goerr.V("mode", x.Mode))
	}

	for _, ref := range x.ReferenceImages {
		if !strings.HasPrefix(ref, "data:") {
			continue
		}
		// base64 expands by 4/3, so the decoded payload is roughly 3/4
		if len(ref)*3/4 > maxInlineImageBytes {
			return goerr.Wrap(ErrOversizedImage, "",
				goerr.V("approx_bytes", len(ref)*3/4))
		}
	}

	return nil
}

// ImageModel is the opaque image synthesis service. Synthesize returns the
// URLs (or data URIs) of the generated images.
type ImageModel interface {
	Synthesize(ctx context.Context, req *ImageRequest) ([]string, error)
}
