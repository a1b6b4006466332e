package graph

import (
	"context"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/model"
)

// ChunkGraph loads chunks by id. Relations are read from the chunks themselves.
type ChunkGraph interface {
	Chunk(ctx context.Context, id uuid.UUID) (*model.Chunk, error)
	Chunks(ctx context.Context, ids []uuid.UUID) ([]*model.Chunk, error)
}

// Relation is one kind of chunk relationship pointer.
type Relation string

const (
	RelationParent  Relation = "parent"
	RelationChild   Relation = "child"
	RelationSibling Relation = "sibling"
)

// AllRelations is used when no relation is given.
var AllRelations = []Relation{RelationParent, RelationChild, RelationSibling}

// TraversalResult contains a chunk and its distance from the source
type TraversalResult struct {
	Chunk    *model.Chunk
	Distance int
	Relation Relation    // Relation of the last hop, empty for the source
	Path     []uuid.UUID // Path from source to this chunk
}

type edge struct {
	target   uuid.UUID
	relation Relation
}

// edges returns the related ids of chunk in relation order.
func edges(chunk *model.Chunk, relations []Relation) []edge {
	if len(relations) == 0 {
		relations = AllRelations
	}
	var out []edge
	for _, relation := range relations {
		switch relation {
		case RelationParent:
			if chunk.ParentID != nil {
				out = append(out, edge{*chunk.ParentID, relation})
			}
		case RelationChild:
			for _, id := range chunk.ChildIDs {
				out = append(out, edge{id, relation})
			}
		case RelationSibling:
			for _, id := range chunk.SiblingIDs {
				out = append(out, edge{id, relation})
			}
		}
	}
	return out
}

// BFS performs breadth-first search from a source chunk. Each level is
// loaded with one batch lookup. Dangling ids are skipped.
func BFS(ctx context.Context, db ChunkGraph, sourceID uuid.UUID, maxHops int, relations []Relation) ([]*TraversalResult, error) {
	source, err := db.Chunk(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	visited := map[uuid.UUID]bool{sourceID: true}
	frontier := []*TraversalResult{{Chunk: source, Path: []uuid.UUID{sourceID}}}
	results := []*TraversalResult{frontier[0]}

	for distance := 1; distance <= maxHops && len(frontier) > 0; distance++ {
		var next []*TraversalResult
		var ids []uuid.UUID
		for _, current := range frontier {
			for _, e := range edges(current.Chunk, relations) {
				if visited[e.target] {
					continue
				}
				visited[e.target] = true
				ids = append(ids, e.target)
				next = append(next, &TraversalResult{
					Distance: distance,
					Relation: e.relation,
					Path:     appendPath(current.Path, e.target),
				})
			}
		}
		if len(ids) == 0 {
			break
		}

		chunks, err := db.Chunks(ctx, ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[uuid.UUID]*model.Chunk, len(chunks))
		for _, c := range chunks {
			byID[c.ID] = c
		}

		frontier = nil
		for _, r := range next {
			chunk, ok := byID[r.Path[len(r.Path)-1]]
			if !ok {
				continue
			}
			r.Chunk = chunk
			frontier = append(frontier, r)
			results = append(results, r)
		}
	}

	return results, nil
}

// DFS performs depth-first search from a source chunk
func DFS(ctx context.Context, db ChunkGraph, sourceID uuid.UUID, maxHops int, relations []Relation) ([]*TraversalResult, error) {
	source, err := db.Chunk(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	visited := map[uuid.UUID]bool{}
	var results []*TraversalResult
	err = dfs(ctx, db, &TraversalResult{Chunk: source, Path: []uuid.UUID{sourceID}}, maxHops, relations, visited, &results)
	if err != nil {
		return nil, err
	}
	return results, nil
}

func dfs(ctx context.Context, db ChunkGraph, current *TraversalResult, maxHops int, relations []Relation, visited map[uuid.UUID]bool, results *[]*TraversalResult) error {
	visited[current.Chunk.ID] = true
	*results = append(*results, current)

	if current.Distance >= maxHops {
		return nil
	}

	for _, e := range edges(current.Chunk, relations) {
		if visited[e.target] {
			continue
		}
		chunks, err := db.Chunks(ctx, []uuid.UUID{e.target})
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			continue
		}

		next := &TraversalResult{
			Chunk:    chunks[0],
			Distance: current.Distance + 1,
			Relation: e.relation,
			Path:     appendPath(current.Path, e.target),
		}
		if err := dfs(ctx, db, next, maxHops, relations, visited, results); err != nil {
			return err
		}
	}
	return nil
}

// Neighbors retrieves the 1-hop neighbours of a chunk.
func Neighbors(ctx context.Context, db ChunkGraph, chunkID uuid.UUID, relations []Relation) ([]*model.Chunk, error) {
	results, err := BFS(ctx, db, chunkID, 1, relations)
	if err != nil {
		return nil, err
	}

	neighbors := make([]*model.Chunk, 0, len(results)-1)
	for _, r := range results[1:] {
		neighbors = append(neighbors, r.Chunk)
	}
	return neighbors, nil
}

// Ancestors follows parent pointers up to the document scale chunk.
// The nearest ancestor comes first.
func Ancestors(ctx context.Context, db ChunkGraph, chunkID uuid.UUID) ([]*model.Chunk, error) {
	results, err := BFS(ctx, db, chunkID, len(model.Scales), []Relation{RelationParent})
	if err != nil {
		return nil, err
	}

	ancestors := make([]*model.Chunk, 0, len(results)-1)
	for _, r := range results[1:] {
		ancestors = append(ancestors, r.Chunk)
	}
	return ancestors, nil
}

func appendPath(path []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(path), len(path)+1)
	copy(out, path)
	return append(out, id)
}
