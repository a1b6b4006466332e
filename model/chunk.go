package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Scale is the granularity of a chunk.
type Scale string

const (
	ScaleDocument  Scale = "document"
	ScaleSection   Scale = "section"
	ScaleParagraph Scale = "paragraph"
	ScaleSentence  Scale = "sentence"
)

// Scales lists all scales from coarsest to finest.
var Scales = []Scale{ScaleDocument, ScaleSection, ScaleParagraph, ScaleSentence}

// Rank orders scales by coarseness; the document scale has the highest rank.
func (s Scale) Rank() int {
	switch s {
	case ScaleDocument:
		return 3
	case ScaleSection:
		return 2
	case ScaleParagraph:
		return 1
	case ScaleSentence:
		return 0
	default:
		return -1
	}
}

// Coarser returns the scale one level up, or false for the document scale.
func (s Scale) Coarser() (Scale, bool) {
	switch s {
	case ScaleSection:
		return ScaleDocument, true
	case ScaleParagraph:
		return ScaleSection, true
	case ScaleSentence:
		return ScaleParagraph, true
	default:
		return "", false
	}
}

// Valid reports whether s is one of the known scales.
func (s Scale) Valid() bool {
	return s.Rank() >= 0
}

// Chunk represents a retrievable unit of a document at one scale.
// Relations to other chunks are held by id only.
type Chunk struct {
	ID              uuid.UUID   `json:"id"`
	DocumentID      uuid.UUID   `json:"document_id"`
	DocumentVersion int         `json:"document_version"`
	SourceID        string      `json:"source_id"`
	DocumentTitle   string      `json:"document_title,omitempty"`
	Scale           Scale       `json:"scale"`
	TokenCount      int         `json:"token_count"`
	Content         string      `json:"content"`
	Heading         string      `json:"heading,omitempty"`
	HierarchyPath   []string    `json:"hierarchy_path,omitempty"`
	QualityScore    float64     `json:"quality_score"`
	ParentID        *uuid.UUID  `json:"parent_id,omitempty"`
	ChildIDs        []uuid.UUID `json:"child_ids,omitempty"`
	SiblingIDs      []uuid.UUID `json:"sibling_ids,omitempty"`
	ChunkIndex      int         `json:"chunk_index"`
	StartPos        int         `json:"start_pos"`
	EndPos          int         `json:"end_pos"`
	Page            *int        `json:"page,omitempty"`
	Refined         bool        `json:"refined,omitempty"`
	Metadata        Metadata    `json:"metadata,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// TopLevelAncestor returns the first heading of the hierarchy path,
// or an empty string for chunks above any section.
func (c *Chunk) TopLevelAncestor() string {
	if len(c.HierarchyPath) == 0 {
		return ""
	}
	return c.HierarchyPath[0]
}

// Locator returns a human readable position such as "p. 3, Installation".
func (c *Chunk) Locator() string {
	locator := ""
	if c.Page != nil {
		locator = "p. " + strconv.Itoa(*c.Page)
	}
	if c.Heading != "" {
		if locator != "" {
			locator += ", "
		}
		locator += c.Heading
	}
	return locator
}

// ScoredChunk is a chunk with a score returned by the store.
type ScoredChunk struct {
	Chunk *Chunk
	Score float64
}
