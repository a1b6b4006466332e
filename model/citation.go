package model

import "github.com/google/uuid"

// CitationFormat selects how citations are rendered.
type CitationFormat string

const (
	CitationInline   CitationFormat = "inline"
	CitationNumbered CitationFormat = "numbered"
	CitationAcademic CitationFormat = "academic"
	CitationDetailed CitationFormat = "detailed"
)

// Citation is a source reference derived from a retrieval result.
// Citations are never persisted on their own.
type Citation struct {
	Marker    string     `json:"marker,omitempty"`
	Number    int        `json:"number,omitempty"`
	SourceID  string     `json:"source_id"`
	Title     string     `json:"title,omitempty"`
	ChunkID   *uuid.UUID `json:"chunk_id,omitempty"`
	Page      *int       `json:"page,omitempty"`
	Section   string     `json:"section,omitempty"`
	Claim     string     `json:"claim,omitempty"`
	Valid     bool       `json:"valid"`
	Relevance float64    `json:"relevance"`
	Formatted string     `json:"formatted,omitempty"`
}

// BibliographyEntry is one distinct source with all cited pages.
type BibliographyEntry struct {
	SourceID string   `json:"source_id"`
	Title    string   `json:"title"`
	Pages    []int    `json:"pages,omitempty"`
	Sections []string `json:"sections,omitempty"`
}

// CitationReport is the validation result for a generated answer.
type CitationReport struct {
	Citations    []*Citation          `json:"citations"`
	Total        int                  `json:"total"`
	Validated    int                  `json:"validated"`
	Quality      float64              `json:"quality"`
	Bibliography []*BibliographyEntry `json:"bibliography,omitempty"`
}
