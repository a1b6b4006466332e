package graph

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockChunkGraph is a map backed ChunkGraph for testing
type MockChunkGraph struct {
	chunks map[uuid.UUID]*model.Chunk
	calls  int
}

func NewMockChunkGraph(chunks ...*model.Chunk) *MockChunkGraph {
	m := &MockChunkGraph{chunks: make(map[uuid.UUID]*model.Chunk)}
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return m
}

func (m *MockChunkGraph) Chunk(ctx context.Context, id uuid.UUID) (*model.Chunk, error) {
	chunk, ok := m.chunks[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return chunk, nil
}

func (m *MockChunkGraph) Chunks(ctx context.Context, ids []uuid.UUID) ([]*model.Chunk, error) {
	m.calls++
	var chunks []*model.Chunk
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			chunks = append(chunks, c)
		}
	}
	return chunks, nil
}

// hierarchy builds
//
//	doc
//	├── s1
//	│   ├── p1
//	│   └── p2
//	└── s2 (with a dangling child id)
func hierarchy() (*MockChunkGraph, map[string]*model.Chunk) {
	doc := &model.Chunk{ID: uuid.New(), Scale: model.ScaleDocument}
	s1 := &model.Chunk{ID: uuid.New(), Scale: model.ScaleSection, ParentID: &doc.ID}
	s2 := &model.Chunk{ID: uuid.New(), Scale: model.ScaleSection, ParentID: &doc.ID}
	p1 := &model.Chunk{ID: uuid.New(), Scale: model.ScaleParagraph, ParentID: &s1.ID}
	p2 := &model.Chunk{ID: uuid.New(), Scale: model.ScaleParagraph, ParentID: &s1.ID}

	doc.ChildIDs = []uuid.UUID{s1.ID, s2.ID}
	s1.ChildIDs = []uuid.UUID{p1.ID, p2.ID}
	s2.ChildIDs = []uuid.UUID{uuid.New()}
	s1.SiblingIDs = []uuid.UUID{s2.ID}
	s2.SiblingIDs = []uuid.UUID{s1.ID}
	p1.SiblingIDs = []uuid.UUID{p2.ID}
	p2.SiblingIDs = []uuid.UUID{p1.ID}

	chunks := map[string]*model.Chunk{"doc": doc, "s1": s1, "s2": s2, "p1": p1, "p2": p2}
	return NewMockChunkGraph(doc, s1, s2, p1, p2), chunks
}

func ids(results []*TraversalResult) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(results))
	for _, r := range results {
		out = append(out, r.Chunk.ID)
	}
	return out
}

func TestBFS(t *testing.T) {
	t.Run("BFS from source with max hops 1", func(t *testing.T) {
		db, c := hierarchy()
		results, err := BFS(context.Background(), db, c["p1"].ID, 1, nil)
		require.NoError(t, err, "Expected BFS to not return an error")

		assert.Equal(t, []uuid.UUID{c["p1"].ID, c["s1"].ID, c["p2"].ID}, ids(results))
		assert.Equal(t, 0, results[0].Distance, "Expected source distance to be 0")
		assert.Equal(t, RelationParent, results[1].Relation)
		assert.Equal(t, RelationSibling, results[2].Relation)
	})

	t.Run("BFS loads each level with one lookup", func(t *testing.T) {
		db, c := hierarchy()
		results, err := BFS(context.Background(), db, c["doc"].ID, 2, []Relation{RelationChild})
		require.NoError(t, err)

		assert.Len(t, results, 5, "Expected the dangling child to be skipped")
		assert.Equal(t, 2, db.calls)
		assert.Equal(t, []uuid.UUID{c["doc"].ID, c["s1"].ID, c["p1"].ID}, results[3].Path)
	})

	t.Run("BFS with zero hops returns the source", func(t *testing.T) {
		db, c := hierarchy()
		results, err := BFS(context.Background(), db, c["s2"].ID, 0, nil)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{c["s2"].ID}, ids(results))
	})

	t.Run("BFS from unknown chunk", func(t *testing.T) {
		db, _ := hierarchy()
		_, err := BFS(context.Background(), db, uuid.New(), 2, nil)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestDFS(t *testing.T) {
	t.Run("DFS descends before visiting siblings", func(t *testing.T) {
		db, c := hierarchy()
		results, err := DFS(context.Background(), db, c["doc"].ID, 3, []Relation{RelationChild})
		require.NoError(t, err, "Expected DFS to not return an error")

		assert.Equal(t, []uuid.UUID{c["doc"].ID, c["s1"].ID, c["p1"].ID, c["p2"].ID, c["s2"].ID}, ids(results))
		assert.Equal(t, 2, results[2].Distance)
	})

	t.Run("DFS visits every chunk once", func(t *testing.T) {
		db, c := hierarchy()
		results, err := DFS(context.Background(), db, c["p1"].ID, 4, nil)
		require.NoError(t, err)

		seen := map[uuid.UUID]bool{}
		for _, id := range ids(results) {
			assert.False(t, seen[id], "Expected no chunk to be visited twice")
			seen[id] = true
		}
		assert.Len(t, seen, 5)
	})
}

func TestNeighbors(t *testing.T) {
	t.Run("Valid call Neighbors", func(t *testing.T) {
		db, c := hierarchy()
		neighbors, err := Neighbors(context.Background(), db, c["s1"].ID, nil)
		require.NoError(t, err)

		assert.Len(t, neighbors, 4, "Expected parent, two children and one sibling")
		assert.Equal(t, c["doc"].ID, neighbors[0].ID)
	})
}

func TestAncestors(t *testing.T) {
	t.Run("Valid call Ancestors", func(t *testing.T) {
		db, c := hierarchy()
		ancestors, err := Ancestors(context.Background(), db, c["p2"].ID)
		require.NoError(t, err)

		require.Len(t, ancestors, 2)
		assert.Equal(t, c["s1"].ID, ancestors[0].ID)
		assert.Equal(t, c["doc"].ID, ancestors[1].ID)
	})

	t.Run("Document chunk has no ancestors", func(t *testing.T) {
		db, c := hierarchy()
		ancestors, err := Ancestors(context.Background(), db, c["doc"].ID)
		require.NoError(t, err)
		assert.Empty(t, ancestors)
	})
}
