// Package memory implements a bounded, similarity-searchable store of
// generated content. It is an LRU cache first and a durable store second:
// the in-memory record set is the source of truth, and every mutation
// re-serializes it to a JSON snapshot on a best-effort basis.
package memory

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/notecraft/pkg/adapter"
	"github.com/m-mizutani/notecraft/pkg/embedding"
	"github.com/m-mizutani/notecraft/pkg/model"
	"github.com/samber/lo"
)

const (
	// DefaultMaxSize bounds the number of live records
	DefaultMaxSize = 100

	// DefaultSnapshotKey is the snapshot object name in the storage backend
	DefaultSnapshotKey = "notecraft_memory.json"

	// similarityFloor drops near-zero matches from similarity retrieval
	similarityFloor = 0.1

	recentWindow = 7 * 24 * time.Hour
)

// Store is safe for concurrent use. Mutating operations serialize through a
// single mutex; snapshot writes happen while it is held so the file always
// reflects a consistent record set.
type Store struct {
	mu      sync.Mutex
	cache   *lru.Cache[model.MemoryID, *model.MemoryRecord]
	storage adapter.Storage
	key     string
	logger  *slog.Logger
}

type Option func(*Store)

func WithMaxSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			cache, _ := lru.New[model.MemoryID, *model.MemoryRecord](n)
			s.cache = cache
		}
	}
}

func WithSnapshotKey(key string) Option {
	return func(s *Store) { s.key = key }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New builds a store and rehydrates it from the snapshot. A missing or
// corrupt snapshot is not an error: the store just starts empty.
func New(ctx context.Context, storage adapter.Storage, opts ...Option) (*Store, error) {
	cache, err := lru.New[model.MemoryID, *model.MemoryRecord](DefaultMaxSize)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LRU cache")
	}

	s := &Store{
		cache:   cache,
		storage: storage,
		key:     DefaultSnapshotKey,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.load(ctx)

	return s, nil
}

// Save creates a new record from content, embeds it and persists the store.
// Returns the new record ID.
func (s *Store) Save(ctx context.Context, content string, meta model.Metadata) (model.MemoryID, error) {
	if strings.TrimSpace(content) == "" {
		return "", goerr.New("content is empty")
	}

	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}
	if meta.Platform == "" {
		meta.Platform = model.PlatformTag
	}

	rec := &model.MemoryRecord{
		ID:        model.NewMemoryID(),
		Content:   content,
		Metadata:  meta,
		Embedding: embedding.Embed(content),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Add(rec.ID, rec)
	s.persist(ctx)

	return rec.ID, nil
}

// GetAll returns copies of every live record, most recently stamped first
func (s *Store) GetAll() []*model.MemoryRecord {
	s.mu.Lock()
	records := s.snapshotValues()
	s.mu.Unlock()

	copied := lo.Map(records, func(rec *model.MemoryRecord, _ int) *model.MemoryRecord {
		c := *rec
		return &c
	})

	sort.Slice(copied, func(i, j int) bool {
		return copied[i].Metadata.LastTouched().After(copied[j].Metadata.LastTouched())
	})

	return copied
}

// GetByID returns the record, or nil when the id is unknown. A hit counts
// as an access and refreshes the record's eviction age.
func (s *Store) GetByID(id model.MemoryID) *model.MemoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cache.Get(id)
	if !ok {
		return nil
	}
	copied := *rec
	return &copied
}

// UpdateRequest describes a partial record update. Metadata values are
// merged over the existing metadata; content replacement re-embeds.
type UpdateRequest struct {
	Content  *string
	Metadata map[string]any
}

// Update applies the request and persists. Returns nil when the id is
// unknown; a missing record is a normal query result, not an error.
func (s *Store) Update(ctx context.Context, id model.MemoryID, req UpdateRequest) *model.MemoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.cache.Get(id)
	if !ok {
		return nil
	}

	updated := *existing
	if req.Content != nil && *req.Content != existing.Content {
		updated.Content = *req.Content
		updated.Embedding = embedding.Embed(*req.Content)
	}
	updated.Metadata.Apply(req.Metadata)
	now := time.Now()
	updated.Metadata.UpdatedAt = &now

	s.cache.Add(id, &updated)
	s.persist(ctx)

	copied := updated
	return &copied
}

// RetrieveSimilar returns up to k records whose embedding similarity to the
// query exceeds the floor, best first. Each returned record's Score holds
// the similarity computed for this request.
func (s *Store) RetrieveSimilar(query string, k int) []*model.MemoryRecord {
	queryVec := embedding.Embed(query)
	if queryVec == nil {
		return nil
	}

	s.mu.Lock()
	records := s.snapshotValues()
	s.mu.Unlock()

	scored := lo.FilterMap(records, func(rec *model.MemoryRecord, _ int) (*model.MemoryRecord, bool) {
		score := embedding.Cosine(queryVec, rec.Embedding)
		if score <= similarityFloor {
			return nil, false
		}
		copied := *rec
		copied.Score = score
		return &copied, true
	})

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return capSlice(scored, k)
}

// RetrieveByKeywords scores each record by the fraction of query keywords
// that substring-match (in either direction) any of its stored keywords.
func (s *Store) RetrieveByKeywords(keywords []string, k int) []*model.MemoryRecord {
	if len(keywords) == 0 {
		return nil
	}

	s.mu.Lock()
	records := s.snapshotValues()
	s.mu.Unlock()

	scored := lo.FilterMap(records, func(rec *model.MemoryRecord, _ int) (*model.MemoryRecord, bool) {
		score := keywordMatchScore(keywords, rec.Metadata.Keywords)
		if score <= 0 {
			return nil, false
		}
		copied := *rec
		copied.Score = score
		return &copied, true
	})

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return capSlice(scored, k)
}

// HighQuality returns copies of records at or above minScore, best first
func (s *Store) HighQuality(minScore float64, limit int) []*model.MemoryRecord {
	s.mu.Lock()
	records := s.snapshotValues()
	s.mu.Unlock()

	kept := lo.FilterMap(records, func(rec *model.MemoryRecord, _ int) (*model.MemoryRecord, bool) {
		if rec.Metadata.QualityScore < minScore {
			return nil, false
		}
		c := *rec
		return &c, true
	})

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Metadata.QualityScore > kept[j].Metadata.QualityScore
	})
	return capSlice(kept, limit)
}

// Delete removes one record and persists
func (s *Store) Delete(ctx context.Context, id model.MemoryID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Remove(id)
	s.persist(ctx)
}

// Clear removes every record and persists
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Purge()
	s.persist(ctx)
}

// Stats summarizes the live record set
func (s *Store) Stats() *model.MemoryStats {
	s.mu.Lock()
	records := s.snapshotValues()
	s.mu.Unlock()

	stats := &model.MemoryStats{
		TotalMemories: len(records),
		Frameworks:    map[string]int{},
	}

	var sum float64
	for _, rec := range records {
		sum += rec.Metadata.QualityScore

		fw := rec.Metadata.Framework
		if fw == "" {
			fw = "unknown"
		}
		stats.Frameworks[fw]++

		if time.Since(rec.Metadata.Timestamp) <= recentWindow {
			stats.RecentCount++
		}
	}

	if len(records) > 0 {
		stats.AvgQualityScore = sum / float64(len(records))
	}

	return stats
}

// Flush writes the snapshot explicitly, for shutdown paths
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeSnapshot(ctx)
}

// Len returns the number of live records
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// snapshotValues copies the value slice without touching recency. Callers
// must hold s.mu.
func (s *Store) snapshotValues() []*model.MemoryRecord {
	return s.cache.Values()
}

func (s *Store) load(ctx context.Context) {
	r, err := s.storage.Get(ctx, s.key)
	if err != nil {
		// First start or deleted snapshot. Not fatal.
		s.logger.Info("no memory snapshot found, starting empty", "key", s.key)
		return
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		s.logger.Warn("failed to read memory snapshot", "error", err)
		return
	}

	var records map[model.MemoryID]*model.MemoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("failed to parse memory snapshot, starting empty", "error", err)
		return
	}

	// Insert oldest first so eviction age mirrors the stamped recency
	ordered := lo.Values(records)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Metadata.LastTouched().Before(ordered[j].Metadata.LastTouched())
	})

	for _, rec := range ordered {
		s.cache.Add(rec.ID, rec)
	}

	s.logger.Info("loaded memory snapshot", "records", len(ordered))
}

// persist writes the snapshot and logs failures without rolling back the
// in-memory mutation. Callers must hold s.mu.
func (s *Store) persist(ctx context.Context) {
	if err := s.writeSnapshot(ctx); err != nil {
		s.logger.Error("failed to persist memory snapshot", "error", err)
	}
}

func (s *Store) writeSnapshot(ctx context.Context) error {
	records := make(map[model.MemoryID]*model.MemoryRecord, s.cache.Len())
	for _, rec := range s.cache.Values() {
		records[rec.ID] = rec
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to marshal memory snapshot")
	}

	w, err := s.storage.Put(ctx, s.key)
	if err != nil {
		return goerr.Wrap(err, "failed to open snapshot for writing")
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write snapshot")
	}

	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to close snapshot")
	}

	return nil
}

func keywordMatchScore(query, stored []string) float64 {
	if len(query) == 0 || len(stored) == 0 {
		return 0
	}

	matches := 0
	for _, qk := range query {
		for _, sk := range stored {
			if strings.Contains(qk, sk) || strings.Contains(sk, qk) {
				matches++
				break
			}
		}
	}

	return float64(matches) / float64(max(len(query), 1))
}

func capSlice[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
