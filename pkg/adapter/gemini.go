package adapter

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/notecraft/pkg/model"
	"github.com/m-mizutani/notecraft/pkg/utils/llmjson"
	"google.golang.org/genai"
)

// Fixed per-call timeouts. Image editing gets the longest one because
// inline-encoded reference payloads are large.
const (
	textTimeout   = 120 * time.Second
	visionTimeout = 60 * time.Second
	imageTimeout  = 60 * time.Second
	editTimeout   = 180 * time.Second
)

// GeminiConfig selects the backend: API key for the Gemini API, or
// project/location for Vertex AI.
type GeminiConfig struct {
	APIKey   string
	Project  string
	Location string
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	visionModel     string
	imageModel      string
	editModel       string
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(m string) GeminiOption {
	return func(g *GeminiClient) { g.generativeModel = m }
}

func WithVisionModel(m string) GeminiOption {
	return func(g *GeminiClient) { g.visionModel = m }
}

func WithImageModel(m string) GeminiOption {
	return func(g *GeminiClient) { g.imageModel = m }
}

func NewGemini(ctx context.Context, cfg GeminiConfig, opts ...GeminiOption) (*GeminiClient, error) {
	clientCfg := &genai.ClientConfig{}
	if cfg.APIKey != "" {
		clientCfg.APIKey = cfg.APIKey
		clientCfg.Backend = genai.BackendGeminiAPI
	} else {
		clientCfg.Project = cfg.Project
		clientCfg.Location = cfg.Location
		clientCfg.Backend = genai.BackendVertexAI
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: "gemini-2.5-flash",
		visionModel:     "gemini-2.5-flash",
		imageModel:      "imagen-3.0-generate-002",
		editModel:       "imagen-3.0-capability-001",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, textTimeout)
	defer cancel()

	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, genai.Text(prompt), nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content")
	}

	text := firstText(resp)
	if text == "" {
		return "", goerr.Wrap(ErrEmptyResponse, "", goerr.V("model", g.generativeModel))
	}

	return text, nil
}

const visionPrompt = `Analyze this reference image for social media content creation.
Return a single JSON object (no markdown fences) with exactly these fields:
{
  "visual_style": "...",
  "mood_atmosphere": "...",
  "composition": "...",
  "color_palette": ["..."],
  "subject_elements": ["..."],
  "scene_type": "...",
  "platform_fit": {"score": 1-10, "reason": "..."},
  "creative_suggestions": {
    "content_style": ["..."],
    "tags": ["#..."],
    "recommended_framework": "..."
  }
}`

func (g *GeminiClient) Analyze(ctx context.Context, imageRef string) (*model.VisualAnalysis, error) {
	if strings.TrimSpace(imageRef) == "" {
		return nil, goerr.New("image reference is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, visionTimeout)
	defer cancel()

	imgPart, err := imagePart(imageRef)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(visionPrompt),
			imgPart,
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.visionModel, contents, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to analyze image")
	}

	text := firstText(resp)
	if text == "" {
		return nil, goerr.Wrap(ErrEmptyResponse, "vision analysis returned no content")
	}

	var analysis model.VisualAnalysis
	if err := llmjson.Decode(text, &analysis); err != nil {
		return nil, goerr.Wrap(err, "failed to parse vision analysis")
	}

	return &analysis, nil
}

func (g *GeminiClient) Synthesize(ctx context.Context, req *ImageRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	count := req.Count
	if count < 1 {
		count = 1
	}

	switch req.Mode {
	case ModeTextToImage:
		ctx, cancel := context.WithTimeout(ctx, imageTimeout)
		defer cancel()

		resp, err := g.client.Models.GenerateImages(ctx, g.imageModel, req.Prompt,
			&genai.GenerateImagesConfig{NumberOfImages: int32(count)})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to generate images")
		}
		return imageURLs(resp.GeneratedImages)

	case ModeImageToImage, ModeMultiFusion:
		ctx, cancel := context.WithTimeout(ctx, editTimeout)
		defer cancel()

		// The vendor call only consumes a single reference. Multi-fusion
		// uses the first image and carries the rest as a prompt note.
		prompt := req.Prompt
		refs := req.ReferenceImages
		if req.Mode == ModeMultiFusion {
			if len(refs) > MaxFusionReferences {
				refs = refs[:MaxFusionReferences]
			}
			if len(refs) > 1 {
				prompt += "\nBlend in the style of the additional reference images provided with the original request."
			}
		}

		img, err := imageFromRef(refs[0])
		if err != nil {
			return nil, err
		}

		resp, err := g.client.Models.EditImage(ctx, g.editModel, prompt,
			[]genai.ReferenceImage{
				&genai.RawReferenceImage{ReferenceImage: img, ReferenceID: 1},
			},
			&genai.EditImageConfig{NumberOfImages: int32(count)})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to edit image")
		}
		return imageURLs(resp.GeneratedImages)

	default:
		return nil, goerr.Wrap(ErrUnknownImageMode, "", goerr.V("mode", req.Mode))
	}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func imagePart(ref string) (*genai.Part, error) {
	if strings.HasPrefix(ref, "data:") {
		mime, data, err := decodeDataURI(ref)
		if err != nil {
			return nil, err
		}
		return genai.NewPartFromBytes(data, mime), nil
	}
	return genai.NewPartFromURI(ref, guessMIME(ref)), nil
}

func imageFromRef(ref string) (*genai.Image, error) {
	if strings.HasPrefix(ref, "data:") {
		mime, data, err := decodeDataURI(ref)
		if err != nil {
			return nil, err
		}
		return &genai.Image{ImageBytes: data, MIMEType: mime}, nil
	}
	return &genai.Image{GCSURI: ref}, nil
}

func imageURLs(images []*genai.GeneratedImage) ([]string, error) {
	var urls []string
	for _, img := range images {
		if img == nil || img.Image == nil {
			continue
		}
		if img.Image.GCSURI != "" {
			urls = append(urls, img.Image.GCSURI)
			continue
		}
		if len(img.Image.ImageBytes) > 0 {
			mime := img.Image.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			urls = append(urls, "data:"+mime+";base64,"+
				base64.StdEncoding.EncodeToString(img.Image.ImageBytes))
		}
	}

	if len(urls) == 0 {
		return nil, goerr.New("image synthesis returned no images")
	}
	return urls, nil
}

func decodeDataURI(uri string) (string, []byte, error) {
	header, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return "", nil, goerr.New("malformed data URI")
	}

	mime := "image/jpeg"
	if meta := strings.TrimPrefix(header, "data:"); meta != "" {
		if m, _, found := strings.Cut(meta, ";"); found && m != "" {
			mime = m
		} else if meta != "" && !found {
			mime = meta
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, goerr.Wrap(err, "failed to decode inline image")
	}

	return mime, data, nil
}

func guessMIME(ref string) string {
	switch {
	case strings.HasSuffix(ref, ".png"):
		return "image/png"
	case strings.HasSuffix(ref, ".webp"):
		return "image/webp"
	case strings.HasSuffix(ref, ".gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
