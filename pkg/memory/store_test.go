package memory_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/notecraft/pkg/memory"
	"github.com/m-mizutani/notecraft/pkg/model"
)

// fakeStorage is an in-memory adapter.Storage for tests
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

type fakeWriter struct {
	bytes.Buffer
	commit func([]byte)
}

func (w *fakeWriter) Close() error {
	w.commit(w.Bytes())
	return nil
}

func (s *fakeStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return &fakeWriter{commit: func(data []byte) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.objects[key] = data
	}}, nil
}

func (s *fakeStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, goerr.New("object not found", goerr.V("key", key))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newStore(t *testing.T, storage *fakeStorage, opts ...memory.Option) *memory.Store {
	t.Helper()
	store, err := memory.New(context.Background(), storage, opts...)
	gt.NoError(t, err)
	return store
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage())

	id, err := store.Save(ctx, "今天的咖啡店探店分享", model.Metadata{
		Keywords:     []string{"咖啡", "探店"},
		Framework:    "生活记录",
		QualityScore: 8.0,
	})
	gt.NoError(t, err)
	gt.S(t, string(id)).Contains("mem_")

	rec := store.GetByID(id)
	gt.V(t, rec).NotNil()
	gt.Equal(t, rec.Content, "今天的咖啡店探店分享")
	gt.Equal(t, rec.Metadata.Platform, model.PlatformTag)
	gt.A(t, rec.Embedding).Length(64)
	gt.False(t, rec.Metadata.Timestamp.IsZero())
}

func TestSaveEmptyContent(t *testing.T) {
	store := newStore(t, newFakeStorage())

	_, err := store.Save(context.Background(), "   ", model.Metadata{})
	gt.Error(t, err)
}

func TestGetByIDUnknown(t *testing.T) {
	store := newStore(t, newFakeStorage())
	gt.V(t, store.GetByID("mem_nope")).Nil()
}

func TestSnapshotReload(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage()

	store := newStore(t, storage)
	id, err := store.Save(ctx, "值得复刻的周末食谱", model.Metadata{QualityScore: 7.5})
	gt.NoError(t, err)

	reloaded := newStore(t, storage)
	gt.Equal(t, reloaded.Len(), 1)

	rec := reloaded.GetByID(id)
	gt.V(t, rec).NotNil()
	gt.Equal(t, rec.Content, "值得复刻的周末食谱")
	gt.Equal(t, rec.Metadata.QualityScore, 7.5)
	gt.A(t, rec.Embedding).Length(64)
}

func TestCorruptSnapshotStartsEmpty(t *testing.T) {
	storage := newFakeStorage()
	storage.objects[memory.DefaultSnapshotKey] = []byte("not json at all")

	store := newStore(t, storage)
	gt.Equal(t, store.Len(), 0)
}

func TestCapacityEviction(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage(), memory.WithMaxSize(3))

	ids := make([]model.MemoryID, 0, 5)
	for _, content := range []string{"第一篇", "第二篇", "第三篇", "第四篇", "第五篇"} {
		id, err := store.Save(ctx, content, model.Metadata{})
		gt.NoError(t, err)
		ids = append(ids, id)
	}

	gt.Equal(t, store.Len(), 3)
	gt.V(t, store.GetByID(ids[0])).Nil()
	gt.V(t, store.GetByID(ids[1])).Nil()
	gt.V(t, store.GetByID(ids[4])).NotNil()
}

func TestRetrieveSimilar(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage())

	_, err := store.Save(ctx, "咖啡店探店，拿铁和环境都很棒", model.Metadata{})
	gt.NoError(t, err)
	_, err = store.Save(ctx, "健身房增肌训练的一周计划", model.Metadata{})
	gt.NoError(t, err)

	results := store.RetrieveSimilar("咖啡店探店分享", 5)
	gt.A(t, results).Longer(0)
	gt.S(t, results[0].Content).Contains("咖啡店")
	gt.True(t, results[0].Score > 0.1)

	for i := 1; i < len(results); i++ {
		gt.True(t, results[i-1].Score >= results[i].Score)
	}
}

func TestRetrieveSimilarLimit(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage())

	for _, content := range []string{"咖啡分享一", "咖啡分享二", "咖啡分享三"} {
		_, err := store.Save(ctx, content, model.Metadata{})
		gt.NoError(t, err)
	}

	results := store.RetrieveSimilar("咖啡分享", 2)
	gt.A(t, results).Length(2)
}

func TestRetrieveSimilarEmptyQuery(t *testing.T) {
	store := newStore(t, newFakeStorage())
	gt.A(t, store.RetrieveSimilar("", 5)).Length(0)
}

func TestRetrieveByKeywords(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage())

	_, err := store.Save(ctx, "咖啡内容", model.Metadata{Keywords: []string{"咖啡", "探店"}})
	gt.NoError(t, err)
	_, err = store.Save(ctx, "健身内容", model.Metadata{Keywords: []string{"健身"}})
	gt.NoError(t, err)

	results := store.RetrieveByKeywords([]string{"咖啡"}, 5)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Content, "咖啡内容")
	gt.Equal(t, results[0].Score, 1.0)
}

func TestRetrieveByKeywordsSubstring(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage())

	_, err := store.Save(ctx, "内容", model.Metadata{Keywords: []string{"咖啡店"}})
	gt.NoError(t, err)

	// Either direction of containment counts as a match
	gt.A(t, store.RetrieveByKeywords([]string{"咖啡"}, 5)).Length(1)
	gt.A(t, store.RetrieveByKeywords([]string{"城南咖啡店"}, 5)).Length(1)
}

func TestRetrieveByKeywordsNoOverlap(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage())

	_, err := store.Save(ctx, "内容", model.Metadata{Keywords: []string{"咖啡"}})
	gt.NoError(t, err)

	gt.A(t, store.RetrieveByKeywords([]string{"滑雪"}, 5)).Length(0)
}

func TestHighQuality(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage())

	for _, tc := range []struct {
		content string
		score   float64
	}{
		{"低分内容", 5.0},
		{"及格内容", 7.0},
		{"高分内容", 9.0},
	} {
		_, err := store.Save(ctx, tc.content, model.Metadata{QualityScore: tc.score})
		gt.NoError(t, err)
	}

	results := store.HighQuality(7.0, 10)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Content, "高分内容")
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage())

	id, err := store.Save(ctx, "原始内容", model.Metadata{QualityScore: 6.0})
	gt.NoError(t, err)
	before := store.GetByID(id)

	newContent := "更新后的内容"
	updated := store.Update(ctx, id, memory.UpdateRequest{
		Content:  &newContent,
		Metadata: map[string]any{"qualityScore": 8.0, "mood": "upbeat"},
	})

	gt.V(t, updated).NotNil()
	gt.Equal(t, updated.Content, newContent)
	gt.Equal(t, updated.Metadata.QualityScore, 8.0)
	gt.Equal(t, updated.Metadata.Extra["mood"], "upbeat")
	gt.V(t, updated.Metadata.UpdatedAt).NotNil()
	gt.False(t, bytesEqual(before.Embedding, updated.Embedding))
}

func TestUpdateUnknownID(t *testing.T) {
	store := newStore(t, newFakeStorage())
	gt.V(t, store.Update(context.Background(), "mem_nope", memory.UpdateRequest{})).Nil()
}

func TestDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage())

	id, err := store.Save(ctx, "临时内容", model.Metadata{})
	gt.NoError(t, err)
	_, err = store.Save(ctx, "另一条", model.Metadata{})
	gt.NoError(t, err)

	store.Delete(ctx, id)
	gt.Equal(t, store.Len(), 1)
	gt.V(t, store.GetByID(id)).Nil()

	store.Clear(ctx)
	gt.Equal(t, store.Len(), 0)
	gt.NoError(t, store.Flush(ctx))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage())

	_, err := store.Save(ctx, "内容一", model.Metadata{QualityScore: 8.0, Framework: "干货分享"})
	gt.NoError(t, err)
	_, err = store.Save(ctx, "内容二", model.Metadata{QualityScore: 6.0, Framework: "干货分享"})
	gt.NoError(t, err)
	_, err = store.Save(ctx, "内容三", model.Metadata{
		QualityScore: 7.0,
		Timestamp:    time.Now().Add(-30 * 24 * time.Hour),
	})
	gt.NoError(t, err)

	stats := store.Stats()
	gt.Equal(t, stats.TotalMemories, 3)
	gt.Equal(t, stats.AvgQualityScore, 7.0)
	gt.Equal(t, stats.Frameworks["干货分享"], 2)
	gt.Equal(t, stats.Frameworks["unknown"], 1)
	gt.Equal(t, stats.RecentCount, 2)
}

func TestStatsEmpty(t *testing.T) {
	stats := newStore(t, newFakeStorage()).Stats()
	gt.Equal(t, stats.TotalMemories, 0)
	gt.Equal(t, stats.AvgQualityScore, 0.0)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage())

	id, err := store.Save(ctx, "原始内容", model.Metadata{QualityScore: 8.0})
	gt.NoError(t, err)

	// Mutating results must not reach the store's canonical state
	all := store.GetAll()
	all[0].Content = "被篡改的内容"
	all[0].Metadata.QualityScore = 1.0

	best := store.HighQuality(7.0, 10)
	gt.A(t, best).Length(1)
	best[0].Content = "另一处篡改"

	rec := store.GetByID(id)
	gt.Equal(t, rec.Content, "原始内容")
	gt.Equal(t, rec.Metadata.QualityScore, 8.0)
}

func TestGetAllOrder(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, newFakeStorage())

	_, err := store.Save(ctx, "旧内容", model.Metadata{Timestamp: time.Now().Add(-time.Hour)})
	gt.NoError(t, err)
	_, err = store.Save(ctx, "新内容", model.Metadata{})
	gt.NoError(t, err)

	all := store.GetAll()
	gt.A(t, all).Length(2)
	gt.Equal(t, all[0].Content, "新内容")
}

func bytesEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
