package compose_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/notecraft/pkg/memory"
	"github.com/m-mizutani/notecraft/pkg/model"
	"github.com/m-mizutani/notecraft/pkg/usecase/compose"

	"github.com/m-mizutani/notecraft/pkg/adapter"
)

// mockText routes prompts to scripted responses by the prompt's role
// marker and counts calls per role.
type mockText struct {
	mu sync.Mutex

	planResp     string
	contentResps []string
	qualityResps []string
	critiqueResp string
	rewriteResp  string
	promptsResp  string

	calls             map[string]int
	lastContentPrompt string
}

func (m *mockText) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.calls == nil {
		m.calls = map[string]int{}
	}

	switch {
	case strings.Contains(prompt, "调度器"):
		m.calls["plan"]++
		return m.planResp, nil
	case strings.Contains(prompt, "质量评估专家"):
		n := m.calls["quality"]
		m.calls["quality"]++
		if n >= len(m.qualityResps) {
			return "", goerr.New("no scripted quality response")
		}
		return m.qualityResps[n], nil
	case strings.Contains(prompt, "优化顾问"):
		m.calls["critique"]++
		return m.critiqueResp, nil
	case strings.Contains(prompt, "请根据改进建议重写"):
		m.calls["rewrite"]++
		return m.rewriteResp, nil
	case strings.Contains(prompt, "配图策划"):
		m.calls["prompts"]++
		return m.promptsResp, nil
	case strings.Contains(prompt, "创作一篇小红书笔记"):
		n := m.calls["content"]
		m.calls["content"]++
		m.lastContentPrompt = prompt
		if n >= len(m.contentResps) {
			return "", goerr.New("no scripted content response")
		}
		return m.contentResps[n], nil
	}

	return "", goerr.New("unexpected prompt", goerr.V("prompt", prompt[:min(80, len(prompt))]))
}

func (m *mockText) count(role string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[role]
}

type mockVision struct {
	analysis *model.VisualAnalysis
	err      error
}

func (m *mockVision) Analyze(ctx context.Context, imageRef string) (*model.VisualAnalysis, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.analysis, nil
}

type mockImage struct {
	calls atomic.Int32
	err   error
}

func (m *mockImage) Synthesize(ctx context.Context, req *adapter.ImageRequest) ([]string, error) {
	n := m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return []string{fmt.Sprintf("https://images.example.com/%d.png", n)}, nil
}

// nullStorage backs the memory store in tests
type nullStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

type nullWriter struct {
	bytes.Buffer
	commit func([]byte)
}

func (w *nullWriter) Close() error {
	w.commit(w.Bytes())
	return nil
}

func (s *nullStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return &nullWriter{commit: func(data []byte) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.objects == nil {
			s.objects = map[string][]byte{}
		}
		s.objects[key] = data
	}}, nil
}

func (s *nullStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, goerr.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.New(context.Background(), &nullStorage{})
	gt.NoError(t, err)
	return store
}

func newTestAgent(t *testing.T, text *mockText, vision *mockVision, image *mockImage, store *memory.Store) *compose.Agent {
	t.Helper()

	input := compose.NewInput{Text: text, Memory: store}
	if vision != nil {
		input.Vision = vision
	}
	if image != nil {
		input.Image = image
	}

	agent, err := compose.New(input)
	gt.NoError(t, err)
	return agent
}

func qualityJSON(overall float64, suggestions ...string) string {
	if len(suggestions) == 0 {
		suggestions = []string{"加强开头钩子"}
	}
	quoted := make([]string, len(suggestions))
	for i, s := range suggestions {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	dim := `{"score": 8, "comment": "ok"}`
	return fmt.Sprintf(`{
		"visual_impact": %s, "hook_effectiveness": %s, "platform_fit": %s,
		"engagement": %s, "information_value": %s, "language_fluency": %s,
		"overall_score": %.1f, "suggestions": [%s]
	}`, dim, dim, dim, dim, dim, dim, overall, strings.Join(quoted, ","))
}

const threePrompts = "a cozy cafe table with latte art\nwarm window light over a wooden counter\nclose-up of a ceramic cup"

func TestExecuteHighQualityContent(t *testing.T) {
	text := &mockText{
		planResp:     "完全不是JSON的回复",
		contentResps: []string{"这家咖啡店值得专程来一趟"},
		qualityResps: []string{qualityJSON(8.5)},
		promptsResp:  threePrompts,
	}
	store := newTestStore(t)
	agent := newTestAgent(t, text, nil, &mockImage{}, store)

	resp := agent.Execute(context.Background(), &model.GenerateInput{Keywords: "咖啡,探店"})

	gt.True(t, resp.Success)
	result := resp.Data
	gt.V(t, result).NotNil()

	// Garbage plan response degrades to the default plan
	gt.A(t, result.Plan).Length(7)

	gt.True(t, result.Content.Success)
	gt.Equal(t, result.Content.Data.Content, "这家咖啡店值得专程来一趟")
	gt.False(t, result.Content.Data.IsImproved)

	gt.True(t, result.Quality.Success)
	gt.Equal(t, result.Quality.Data.OverallScore, 8.5)
	gt.Equal(t, text.count("quality"), 1)
	gt.Equal(t, text.count("critique"), 0)

	// High quality content is memorized
	gt.True(t, result.SavedMemoryID != "")
	gt.Equal(t, store.Len(), 1)
	rec := store.GetByID(result.SavedMemoryID)
	gt.V(t, rec).NotNil()
	gt.Equal(t, rec.Metadata.QualityScore, 8.5)
	gt.Equal(t, rec.Metadata.Framework, "生活记录")

	gt.True(t, result.Images.Success)
	gt.Equal(t, result.Images.Data.Count, 3)
	gt.Equal(t, result.Images.Data.Mode, adapter.ModeTextToImage)
}

func TestExecuteSelfCorrection(t *testing.T) {
	text := &mockText{
		planResp:     "no json here",
		contentResps: []string{"平淡的初稿"},
		qualityResps: []string{qualityJSON(6.0, "开头太平", "缺少细节"), qualityJSON(7.5)},
		critiqueResp: "1. 开头改成提问式\n2. 补充价格信息\n3. 结尾加互动话题",
		rewriteResp:  "改进后的内容，开头更抓人",
		promptsResp:  threePrompts,
	}
	store := newTestStore(t)
	agent := newTestAgent(t, text, nil, &mockImage{}, store)

	resp := agent.Execute(context.Background(), &model.GenerateInput{Keywords: "咖啡"})

	gt.True(t, resp.Success)
	result := resp.Data

	// One critique-and-rewrite pass, then a re-score
	gt.Equal(t, text.count("critique"), 1)
	gt.Equal(t, text.count("rewrite"), 1)
	gt.Equal(t, text.count("quality"), 2)

	gt.True(t, result.Content.Data.IsImproved)
	gt.Equal(t, result.Content.Data.OriginalQuality, 6.0)
	gt.Equal(t, result.Content.Data.Content, "改进后的内容，开头更抓人")
	gt.Equal(t, result.Quality.Data.OverallScore, 7.5)

	// The corrected draft is what gets memorized
	rec := store.GetByID(result.SavedMemoryID)
	gt.V(t, rec).NotNil()
	gt.Equal(t, rec.Content, "改进后的内容，开头更抓人")
	gt.Equal(t, rec.Metadata.QualityScore, 7.5)
}

func TestExecuteCorrectionFailureKeepsOriginal(t *testing.T) {
	text := &mockText{
		planResp:     "no json",
		contentResps: []string{"初稿"},
		qualityResps: []string{qualityJSON(6.0)},
		critiqueResp: "",
		promptsResp:  threePrompts,
	}
	store := newTestStore(t)
	agent := newTestAgent(t, text, nil, &mockImage{}, store)

	resp := agent.Execute(context.Background(), &model.GenerateInput{Keywords: "咖啡"})

	gt.True(t, resp.Success)
	result := resp.Data

	// Empty critique means no suggestions: keep the first draft and score
	gt.False(t, result.Content.Data.IsImproved)
	gt.Equal(t, result.Content.Data.Content, "初稿")
	gt.Equal(t, result.Quality.Data.OverallScore, 6.0)

	// Below threshold, so nothing is memorized
	gt.Equal(t, string(result.SavedMemoryID), "")
	gt.Equal(t, store.Len(), 0)
}

func TestExecuteUnparseableQualityDefaults(t *testing.T) {
	text := &mockText{
		planResp:     "no json",
		contentResps: []string{"内容"},
		qualityResps: []string{"抱歉，我无法评估"},
		promptsResp:  threePrompts,
	}
	store := newTestStore(t)
	agent := newTestAgent(t, text, nil, &mockImage{}, store)

	resp := agent.Execute(context.Background(), &model.GenerateInput{Keywords: "咖啡"})

	gt.True(t, resp.Success)
	gt.Equal(t, resp.Data.Quality.Data.OverallScore, 7.0)
	// Default score sits exactly on the threshold, so it memorizes
	gt.Equal(t, store.Len(), 1)
	gt.Equal(t, text.count("critique"), 0)
}

func TestExecutePlanFiltersUnknownSteps(t *testing.T) {
	text := &mockText{
		planResp:     `{"steps": ["content-generate", "brew-coffee", "quality-assess"], "reason": "minimal"}`,
		contentResps: []string{"内容"},
		qualityResps: []string{qualityJSON(9.0)},
	}
	store := newTestStore(t)
	agent := newTestAgent(t, text, nil, nil, store)

	resp := agent.Execute(context.Background(), &model.GenerateInput{Keywords: "咖啡"})

	gt.True(t, resp.Success)
	result := resp.Data

	gt.Equal(t, result.Plan, compose.Plan{compose.StepContentGenerate, compose.StepQualityAssess})
	gt.V(t, result.Framework).Nil()
	gt.V(t, result.Memory).Nil()
	gt.V(t, result.ImagePrompts).Nil()

	// memory-store was not planned
	gt.Equal(t, store.Len(), 0)
}

func TestExecuteVisionFallback(t *testing.T) {
	text := &mockText{
		planResp:     "no json",
		contentResps: []string{"内容"},
		qualityResps: []string{qualityJSON(8.0)},
		promptsResp:  threePrompts,
	}
	vision := &mockVision{err: goerr.New("vision service down")}
	image := &mockImage{}
	store := newTestStore(t)
	agent := newTestAgent(t, text, vision, image, store)

	resp := agent.Execute(context.Background(), &model.GenerateInput{
		Keywords:         "咖啡",
		UploadedImageURL: "gs://bucket/ref.jpg",
	})

	gt.True(t, resp.Success)
	result := resp.Data

	// Default plan with a reference image starts with multimodal analysis
	gt.Equal(t, result.Plan[0], compose.StepMultimodalAnalysis)

	// Vision failure degrades to a fallback analysis, not a stage failure
	gt.True(t, result.Multimodal.Success)
	gt.S(t, result.Multimodal.Data.Note).Contains("vision service down")

	// Reference image switches image synthesis mode
	gt.Equal(t, result.Images.Data.Mode, adapter.ModeImageToImage)
}

func TestExecuteContentFailureShortCircuits(t *testing.T) {
	text := &mockText{
		planResp:     "no json",
		contentResps: nil, // scripted to fail
	}
	store := newTestStore(t)
	agent := newTestAgent(t, text, nil, &mockImage{}, store)

	resp := agent.Execute(context.Background(), &model.GenerateInput{Keywords: "咖啡"})

	// The request is handled; the failure is recorded on the stage
	gt.True(t, resp.Success)
	result := resp.Data
	gt.False(t, result.Content.Success)
	gt.S(t, result.Content.Error).Contains("content")

	gt.V(t, result.Quality).Nil()
	gt.V(t, result.ImagePrompts).Nil()
	gt.V(t, result.Images).Nil()
	gt.Equal(t, store.Len(), 0)
}

func TestExecuteInvalidInput(t *testing.T) {
	store := newTestStore(t)
	agent := newTestAgent(t, &mockText{}, nil, nil, store)

	resp := agent.Execute(context.Background(), &model.GenerateInput{})
	gt.False(t, resp.Success)
	gt.S(t, resp.Error).Contains("required")
}

func TestExecuteRetrievesMemories(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Save(context.Background(), "上次的咖啡探店笔记", model.Metadata{
		Keywords:     []string{"咖啡", "探店"},
		QualityScore: 8.0,
	})
	gt.NoError(t, err)

	text := &mockText{
		planResp:     "no json",
		contentResps: []string{"新的咖啡内容"},
		qualityResps: []string{qualityJSON(8.0)},
		promptsResp:  threePrompts,
	}
	agent := newTestAgent(t, text, nil, &mockImage{}, store)

	resp := agent.Execute(context.Background(), &model.GenerateInput{Keywords: "咖啡"})

	gt.True(t, resp.Success)
	memoryStage := resp.Data.Memory
	gt.V(t, memoryStage).NotNil()
	gt.Equal(t, memoryStage.Data.Count, 1)
	gt.Equal(t, memoryStage.Data.Memories[0].Content, "上次的咖啡探店笔记")
}

func TestExecutePadsShortPromptResponse(t *testing.T) {
	text := &mockText{
		planResp:     "no json",
		contentResps: []string{"内容"},
		qualityResps: []string{qualityJSON(8.0)},
		promptsResp:  "a single cozy cafe scene",
	}
	store := newTestStore(t)
	agent := newTestAgent(t, text, nil, &mockImage{}, store)

	resp := agent.Execute(context.Background(), &model.GenerateInput{Keywords: "咖啡"})

	// One prompt line is cycled to fill every slot, not a crashed request
	gt.True(t, resp.Success)
	result := resp.Data
	gt.True(t, result.ImagePrompts.Success)
	gt.A(t, result.ImagePrompts.Data).Length(3)
	for _, p := range result.ImagePrompts.Data {
		gt.Equal(t, p, "a single cozy cafe scene")
	}
	gt.True(t, result.Images.Success)
	gt.Equal(t, result.Images.Data.Count, 3)
}

func TestExecutePadsTwoPromptLines(t *testing.T) {
	text := &mockText{
		planResp:     "no json",
		contentResps: []string{"内容"},
		qualityResps: []string{qualityJSON(8.0)},
		promptsResp:  "scene one\nscene two",
	}
	store := newTestStore(t)
	agent := newTestAgent(t, text, nil, &mockImage{}, store)

	resp := agent.Execute(context.Background(), &model.GenerateInput{Keywords: "咖啡"})

	gt.True(t, resp.Success)
	prompts := resp.Data.ImagePrompts.Data
	gt.A(t, prompts).Length(3)
	gt.Equal(t, prompts[2], "scene one")
}

func TestExecuteAllImageCallsFail(t *testing.T) {
	text := &mockText{
		planResp:     "no json",
		contentResps: []string{"内容"},
		qualityResps: []string{qualityJSON(8.0)},
		promptsResp:  threePrompts,
	}
	image := &mockImage{err: goerr.New("imagen unavailable")}
	store := newTestStore(t)
	agent := newTestAgent(t, text, nil, image, store)

	resp := agent.Execute(context.Background(), &model.GenerateInput{Keywords: "咖啡"})

	gt.True(t, resp.Success)
	result := resp.Data

	// Prompts succeeded, synthesis did not; content is unaffected
	gt.True(t, result.ImagePrompts.Success)
	gt.False(t, result.Images.Success)
	gt.True(t, result.Content.Success)
	gt.Equal(t, store.Len(), 1)
}
