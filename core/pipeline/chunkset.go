package pipeline

import (
	"sort"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/model"
)

// ChunkSet is the flat chunk table of one document.
// Relations between chunks are ids resolved through the index.
type ChunkSet struct {
	Chunks []*model.Chunk
	index  map[uuid.UUID]int
}

// NewChunkSet creates an empty chunk set.
func NewChunkSet() *ChunkSet {
	return &ChunkSet{index: make(map[uuid.UUID]int)}
}

// Add appends a chunk to the set.
func (s *ChunkSet) Add(chunk *model.Chunk) {
	s.index[chunk.ID] = len(s.Chunks)
	s.Chunks = append(s.Chunks, chunk)
}

// Len returns the number of chunks.
func (s *ChunkSet) Len() int {
	return len(s.Chunks)
}

// Get looks a chunk up by id.
func (s *ChunkSet) Get(id uuid.UUID) (*model.Chunk, bool) {
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.Chunks[i], true
}

// ByScale returns the chunks of one scale in set order.
func (s *ChunkSet) ByScale(scale model.Scale) []*model.Chunk {
	var chunks []*model.Chunk
	for _, c := range s.Chunks {
		if c.Scale == scale {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// Parent returns the parent chunk, if linked.
func (s *ChunkSet) Parent(chunk *model.Chunk) (*model.Chunk, bool) {
	if chunk.ParentID == nil {
		return nil, false
	}
	return s.Get(*chunk.ParentID)
}

// Children returns the linked child chunks.
func (s *ChunkSet) Children(chunk *model.Chunk) []*model.Chunk {
	return s.resolve(chunk.ChildIDs)
}

// Siblings returns the linked sibling chunks.
func (s *ChunkSet) Siblings(chunk *model.Chunk) []*model.Chunk {
	return s.resolve(chunk.SiblingIDs)
}

func (s *ChunkSet) resolve(ids []uuid.UUID) []*model.Chunk {
	chunks := make([]*model.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.Get(id); ok {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// Replace swaps the chunk with id for the given chunks at the same position.
func (s *ChunkSet) Replace(id uuid.UUID, replacements []*model.Chunk) {
	i, ok := s.index[id]
	if !ok {
		return
	}
	chunks := make([]*model.Chunk, 0, len(s.Chunks)+len(replacements)-1)
	chunks = append(chunks, s.Chunks[:i]...)
	chunks = append(chunks, replacements...)
	chunks = append(chunks, s.Chunks[i+1:]...)
	s.reset(chunks)
}

// Filter keeps the chunks for which keep returns true and returns the number removed.
func (s *ChunkSet) Filter(keep func(chunk *model.Chunk) bool) int {
	kept := make([]*model.Chunk, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		if keep(c) {
			kept = append(kept, c)
		}
	}
	removed := len(s.Chunks) - len(kept)
	s.reset(kept)
	return removed
}

// Sort orders chunks coarsest scale first, then by position, and renumbers ChunkIndex.
func (s *ChunkSet) Sort() {
	sort.SliceStable(s.Chunks, func(i, j int) bool {
		a, b := s.Chunks[i], s.Chunks[j]
		if a.Scale.Rank() != b.Scale.Rank() {
			return a.Scale.Rank() > b.Scale.Rank()
		}
		return a.StartPos < b.StartPos
	})
	for i, c := range s.Chunks {
		c.ChunkIndex = i
	}
	s.reset(s.Chunks)
}

func (s *ChunkSet) reset(chunks []*model.Chunk) {
	s.Chunks = chunks
	s.index = make(map[uuid.UUID]int, len(chunks))
	for i, c := range chunks {
		s.index[c.ID] = i
	}
}

// Stats counts the chunks per scale.
func (s *ChunkSet) Stats() map[model.Scale]int {
	byScale := make(map[model.Scale]int)
	for _, c := range s.Chunks {
		byScale[c.Scale]++
	}
	return byScale
}
