package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/helper"
)

// Document represents a source document.
// A document is immutable once ingested under its (SourceID, Version) pair;
// a new version is a new document.
type Document struct {
	ID        uuid.UUID `json:"id"`
	SourceID  string    `json:"source_id" validate:"required,max=255"`
	Version   int       `json:"version" validate:"gte=1"`
	Title     string    `json:"title" validate:"max=1024"`
	Source    string    `json:"source,omitempty"`
	Content   string    `json:"content,omitempty" db:"-"` // Used for processing, not stored in DB
	PageCount int       `json:"page_count"`
	CharCount int       `json:"char_count"`
	WordCount int       `json:"word_count"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewDocumentFromFile reads a pre-extracted plain text file and creates a Document.
// The title defaults to the filename without extension, and source to the file path.
func NewDocumentFromFile(filePath string, sourceID string, version int, metadata Metadata) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	if title == "" {
		title = filename
	}

	return &Document{
		SourceID: sourceID,
		Version:  version,
		Title:    title,
		Source:   filePath,
		Content:  string(content),
		Metadata: metadata,
	}, nil
}

// ComputeStats fills the structural counters from the content.
// Pages are separated by form feeds.
func (d *Document) ComputeStats() {
	d.CharCount = len([]rune(d.Content))
	d.WordCount = helper.CountWords(d.Content)
	d.PageCount = strings.Count(d.Content, "\f") + 1
	if strings.TrimSpace(d.Content) == "" {
		d.PageCount = 0
	}
}

// Validate checks the struct tags of the document.
func (d *Document) Validate() error {
	if err := helper.Validate(d); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
