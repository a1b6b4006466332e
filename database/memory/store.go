// Package memory is an in-process store with the same capabilities as the
// Postgres store. It backs tests and demos.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// Store keeps documents, chunks, embeddings, jobs and source statistics in maps.
// A document's chunks and embeddings become visible in a single locked write.
type Store struct {
	mu         sync.RWMutex
	documents  map[uuid.UUID]*model.Document
	versions   map[string]map[int]uuid.UUID
	chunks     map[uuid.UUID]*model.Chunk
	order      []uuid.UUID
	embeddings map[model.EmbeddingType]map[uuid.UUID]*model.Embedding
	jobs       map[uuid.UUID]*model.IngestionJob
	sources    map[string]*model.SourceStats
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		documents:  make(map[uuid.UUID]*model.Document),
		versions:   make(map[string]map[int]uuid.UUID),
		chunks:     make(map[uuid.UUID]*model.Chunk),
		embeddings: make(map[model.EmbeddingType]map[uuid.UUID]*model.Embedding),
		jobs:       make(map[uuid.UUID]*model.IngestionJob),
		sources:    make(map[string]*model.SourceStats),
	}
}

// DocumentExists reports whether the (source id, version) pair was ingested.
func (s *Store) DocumentExists(ctx context.Context, sourceID string, version int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.versions[sourceID][version]
	return ok, nil
}

// SaveDocument stores a document with all its chunks and embeddings at once.
func (s *Store) SaveDocument(ctx context.Context, doc *model.Document, chunks []*model.Chunk, embeddings []*model.Embedding) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.versions[doc.SourceID][doc.Version]; ok {
		return helper.NewError("save document", fmt.Errorf("%w: %s@%d", model.ErrDocumentVersionExists, doc.SourceID, doc.Version))
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	stored := *doc
	stored.Content = ""
	stored.Metadata = doc.Metadata.Clone()
	s.documents[doc.ID] = &stored
	if s.versions[doc.SourceID] == nil {
		s.versions[doc.SourceID] = make(map[int]uuid.UUID)
	}
	s.versions[doc.SourceID][doc.Version] = doc.ID

	for _, c := range chunks {
		s.chunks[c.ID] = cloneChunk(c)
		s.order = append(s.order, c.ID)
	}
	for _, e := range embeddings {
		if s.embeddings[e.Type] == nil {
			s.embeddings[e.Type] = make(map[uuid.UUID]*model.Embedding)
		}
		copied := *e
		copied.Vector = append([]float32(nil), e.Vector...)
		s.embeddings[e.Type][e.ChunkID] = &copied
	}
	return nil
}

// Document returns a document by id.
func (s *Store) Document(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, helper.NewError("select document", fmt.Errorf("%w: document %s", model.ErrNotFound, id))
	}
	copied := *doc
	return &copied, nil
}

// DocumentsBySource returns all versions of a source ordered by version.
func (s *Store) DocumentsBySource(ctx context.Context, sourceID string) ([]*model.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []*model.Document
	for _, id := range s.versions[sourceID] {
		copied := *s.documents[id]
		docs = append(docs, &copied)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Version < docs[j].Version })
	return docs, nil
}

// Chunk returns a chunk by id.
func (s *Store) Chunk(ctx context.Context, id uuid.UUID) (*model.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return nil, helper.NewError("select chunk", fmt.Errorf("%w: chunk %s", model.ErrNotFound, id))
	}
	return cloneChunk(c), nil
}

// Chunks returns the chunks with the given ids in request order, skipping unknown ids.
func (s *Store) Chunks(ctx context.Context, ids []uuid.UUID) ([]*model.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := make([]*model.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			chunks = append(chunks, cloneChunk(c))
		}
	}
	return chunks, nil
}

// ChunksByDocument returns the chunks of a document ordered by chunk index.
func (s *Store) ChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*model.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chunks []*model.Chunk
	for _, id := range s.order {
		if c := s.chunks[id]; c.DocumentID == documentID {
			chunks = append(chunks, cloneChunk(c))
		}
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

// Embeddings returns all embeddings of a chunk.
func (s *Store) Embeddings(ctx context.Context, chunkID uuid.UUID) ([]*model.Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var embeddings []*model.Embedding
	for _, t := range model.EmbeddingTypes {
		if e, ok := s.embeddings[t][chunkID]; ok {
			copied := *e
			copied.Vector = append([]float32(nil), e.Vector...)
			embeddings = append(embeddings, &copied)
		}
	}
	return embeddings, nil
}

// Nearest scores every embedding of the type against vector with an exhaustive scan.
func (s *Store) Nearest(ctx context.Context, vector []float32, embeddingType model.EmbeddingType, metric model.Metric, k int, threshold float64, filter model.QueryFilter) ([]*model.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []*model.ScoredChunk
	for chunkID, e := range s.embeddings[embeddingType] {
		c, ok := s.chunks[chunkID]
		if !ok || !matches(c, filter) {
			continue
		}
		score := metric.Similarity(vector, e.Vector)
		if score < threshold {
			continue
		}
		scored = append(scored, &model.ScoredChunk{Chunk: cloneChunk(c), Score: score})
	}
	return top(scored, k), nil
}

// KeywordSearch scores chunks by the share of query terms they contain.
func (s *Store) KeywordSearch(ctx context.Context, terms []string, k int, filter model.QueryFilter) ([]*model.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []*model.ScoredChunk
	for _, id := range s.order {
		c := s.chunks[id]
		if !matches(c, filter) {
			continue
		}
		words := helper.WordSet(c.Content, 0)
		matched := 0
		for _, term := range terms {
			if _, ok := words[strings.ToLower(term)]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		scored = append(scored, &model.ScoredChunk{Chunk: cloneChunk(c), Score: float64(matched) / float64(len(terms))})
	}
	return top(scored, k), nil
}

// UpsertJob inserts or replaces an ingestion job.
func (s *Store) UpsertJob(ctx context.Context, job *model.IngestionJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job.UpdatedAt = time.Now()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// Job returns an ingestion job by id.
func (s *Store) Job(ctx context.Context, id uuid.UUID) (*model.IngestionJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, helper.NewError("select job", fmt.Errorf("%w: job %s", model.ErrNotFound, id))
	}
	return cloneJob(job), nil
}

// Jobs returns all jobs of a source ordered by creation time.
func (s *Store) Jobs(ctx context.Context, sourceID string) ([]*model.IngestionJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []*model.IngestionJob
	for _, job := range s.jobs {
		if job.SourceID == sourceID {
			jobs = append(jobs, cloneJob(job))
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}

// IncrementSourceStats atomically adds one document's counts to the source aggregate.
func (s *Store) IncrementSourceStats(ctx context.Context, sourceID string, version, chunks, embeddings int) (*model.SourceStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.sources[sourceID]
	if !ok {
		stats = &model.SourceStats{SourceID: sourceID}
		s.sources[sourceID] = stats
	}
	stats.Documents++
	stats.Chunks += chunks
	stats.Embeddings += embeddings
	stats.LatestVersion = max(stats.LatestVersion, version)
	stats.LastIngestedAt = time.Now()
	copied := *stats
	return &copied, nil
}

// SourceStats returns the aggregate of a source.
func (s *Store) SourceStats(ctx context.Context, sourceID string) (*model.SourceStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.sources[sourceID]
	if !ok {
		return nil, helper.NewError("select source stats", fmt.Errorf("%w: source %s", model.ErrNotFound, sourceID))
	}
	copied := *stats
	return &copied, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func matches(c *model.Chunk, filter model.QueryFilter) bool {
	if c.QualityScore < filter.MinQuality {
		return false
	}
	if len(filter.SourceIDs) > 0 && !contains(filter.SourceIDs, c.SourceID) {
		return false
	}
	if len(filter.DocumentIDs) > 0 && !contains(filter.DocumentIDs, c.DocumentID) {
		return false
	}
	if len(filter.Scales) > 0 && !contains(filter.Scales, c.Scale) {
		return false
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func top(scored []*model.ScoredChunk, k int) []*model.ScoredChunk {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID.String() < scored[j].Chunk.ID.String()
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func cloneChunk(c *model.Chunk) *model.Chunk {
	copied := *c
	copied.HierarchyPath = append([]string(nil), c.HierarchyPath...)
	copied.ChildIDs = append([]uuid.UUID(nil), c.ChildIDs...)
	copied.SiblingIDs = append([]uuid.UUID(nil), c.SiblingIDs...)
	copied.Metadata = c.Metadata.Clone()
	if c.ParentID != nil {
		parent := *c.ParentID
		copied.ParentID = &parent
	}
	if c.Page != nil {
		page := *c.Page
		copied.Page = &page
	}
	return &copied
}

func cloneJob(job *model.IngestionJob) *model.IngestionJob {
	copied := *job
	copied.Stats.ChunksByScale = make(map[model.Scale]int, len(job.Stats.ChunksByScale))
	for k, v := range job.Stats.ChunksByScale {
		copied.Stats.ChunksByScale[k] = v
	}
	copied.Stats.StepDurations = make(map[model.JobStep]time.Duration, len(job.Stats.StepDurations))
	for k, v := range job.Stats.StepDurations {
		copied.Stats.StepDurations[k] = v
	}
	return &copied
}
