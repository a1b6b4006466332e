package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// Chunker produces multi-scale chunks from a document's structure tree.
type Chunker struct {
	config    model.ChunkingConfig
	counter   TokenCounter
	validator *QualityValidator
	logger    *slog.Logger
}

// NewChunker creates a chunker. A nil counter uses the approximate counter.
func NewChunker(config model.ChunkingConfig, counter TokenCounter, logger *slog.Logger) *Chunker {
	if counter == nil {
		counter = ApproximateCounter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{
		config:    config,
		counter:   counter,
		validator: NewQualityValidator(config.IdealBand, config.MinQuality),
		logger:    logger,
	}
}

// Counter returns the token counter used by the chunker.
func (c *Chunker) Counter() TokenCounter {
	return c.counter
}

// Chunk runs the whole chunking pipeline for a document: structure parsing,
// building, optional refinement, quality filtering and linking.
func (c *Chunker) Chunk(ctx context.Context, doc *model.Document, refiner *Refiner) (*ChunkSet, ChunkStats) {
	root := ParseStructure(doc.Content)
	set, stats := c.Build(doc, root)
	if refiner != nil {
		stats.Refined = c.Refine(ctx, set, refiner)
	}
	stats.Rejected += c.Finalize(set, doc)
	stats.Created = set.Len()
	stats.ByScale = set.Stats()
	return set, stats
}

// Build creates the chunks of every scale. Nodes above their scale's
// maximum are split into packed sentence groups; pieces below the
// minimum are dropped and counted as rejected.
func (c *Chunker) Build(doc *model.Document, root *StructureNode) (*ChunkSet, ChunkStats) {
	set := NewChunkSet()
	stats := ChunkStats{}
	text := doc.Content

	docHeading := doc.Title
	if docHeading == "" {
		docHeading = doc.SourceID
	}

	root.Walk(func(node *StructureNode, path []string) {
		switch node.Kind {
		case NodeDocument:
			stats.Rejected += c.emit(set, doc, model.ScaleDocument, node.Start, node.End, docHeading, nil)
		case NodeSection:
			stats.Rejected += c.emit(set, doc, model.ScaleSection, node.Start, node.End, node.Heading, path)
		case NodeParagraph:
			heading := ""
			if len(path) > 0 {
				heading = path[len(path)-1]
			}
			stats.Rejected += c.emit(set, doc, model.ScaleParagraph, node.Start, node.End, heading, path)
			for _, span := range helper.SentenceSpans(node.Text(text)) {
				stats.Rejected += c.emit(set, doc, model.ScaleSentence, node.Start+span.Start, node.Start+span.End, heading, path)
			}
		}
	})

	return set, stats
}

// Refine runs the boundary refiner over paragraph and sentence chunks and
// returns the number of chunks that were subdivided.
func (c *Chunker) Refine(ctx context.Context, set *ChunkSet, refiner *Refiner) int {
	refined := 0
	candidates := append(set.ByScale(model.ScaleParagraph), set.ByScale(model.ScaleSentence)...)
	for _, chunk := range candidates {
		if ctx.Err() != nil {
			return refined
		}
		subs := refiner.Refine(ctx, chunk)
		if len(subs) == 1 && subs[0] == chunk {
			continue
		}
		set.Replace(chunk.ID, subs)
		refined++
	}
	return refined
}

// Finalize scores and filters chunks, links parents and siblings and
// renumbers the set. It returns the number of quality rejections.
func (c *Chunker) Finalize(set *ChunkSet, doc *model.Document) int {
	rejected := set.Filter(func(chunk *model.Chunk) bool {
		chunk.QualityScore = c.validator.Score(chunk)
		return c.validator.Accept(chunk)
	})
	set.Sort()

	LinkParents(set, c.config.ParentThreshold, len(doc.Content))
	LinkSiblings(set)

	c.logger.Debug("Chunks finalized", slog.String("source_id", doc.SourceID), slog.Int("chunks", set.Len()), slog.Int("rejected", rejected))
	return rejected
}

// emit adds the chunks for the span [start,end) and returns how many pieces were dropped.
func (c *Chunker) emit(set *ChunkSet, doc *model.Document, scale model.Scale, start, end int, heading string, path []string) int {
	band := c.config.Band(scale)
	text := doc.Content
	if strings.TrimSpace(text[start:end]) == "" {
		return 0
	}

	var pieces []helper.Span
	if c.counter.Count(text[start:end]) > band.Max {
		pieces = c.pack(text, start, end, band)
	} else {
		pieces = []helper.Span{{Start: start, End: end}}
	}

	dropped := 0
	for _, piece := range pieces {
		content := text[piece.Start:piece.End]
		tokens := c.counter.Count(content)
		if !band.Contains(tokens) {
			dropped++
			continue
		}
		page := PageAt(text, piece.Start)
		set.Add(&model.Chunk{
			ID:              uuid.New(),
			DocumentID:      doc.ID,
			DocumentVersion: doc.Version,
			SourceID:        doc.SourceID,
			DocumentTitle:   doc.Title,
			Scale:           scale,
			TokenCount:      tokens,
			Content:         content,
			Heading:         heading,
			HierarchyPath:   append([]string(nil), path...),
			StartPos:        piece.Start,
			EndPos:          piece.End,
			Page:            &page,
			Metadata: model.Metadata{
				"chunking_method": "hierarchical",
				"split":           len(pieces) > 1,
			},
			CreatedAt: time.Now(),
		})
	}
	return dropped
}

// pack greedily groups sentences of [start,end) into spans of at most band.Max tokens.
// A sentence above the maximum is split by words. A trailing group below the
// minimum is merged into the previous group when the result still fits.
func (c *Chunker) pack(text string, start, end int, band model.TokenBand) []helper.Span {
	var units []helper.Span
	for _, s := range helper.SentenceSpans(text[start:end]) {
		sentence := helper.Span{Start: start + s.Start, End: start + s.End}
		if c.counter.Count(text[sentence.Start:sentence.End]) > band.Max {
			units = append(units, c.splitWords(text, sentence, band.Max)...)
			continue
		}
		units = append(units, sentence)
	}

	var groups []helper.Span
	var current *helper.Span
	for _, unit := range units {
		if current != nil && c.counter.Count(text[current.Start:unit.End]) <= band.Max {
			current.End = unit.End
			continue
		}
		if current != nil {
			groups = append(groups, *current)
		}
		current = &helper.Span{Start: unit.Start, End: unit.End}
	}
	if current != nil {
		groups = append(groups, *current)
	}

	if n := len(groups); n > 1 {
		last := groups[n-1]
		if c.counter.Count(text[last.Start:last.End]) < band.Min {
			prev := groups[n-2]
			if c.counter.Count(text[prev.Start:last.End]) <= band.Max {
				groups[n-2].End = last.End
				groups = groups[:n-1]
			}
		}
	}
	return groups
}

// splitWords cuts an oversized sentence into word runs of at most max tokens.
func (c *Chunker) splitWords(text string, sentence helper.Span, max int) []helper.Span {
	var words []helper.Span
	inWord := false
	for i := sentence.Start; i < sentence.End; i++ {
		space := text[i] == ' ' || text[i] == '\n' || text[i] == '\t' || text[i] == '\r' || text[i] == '\f'
		switch {
		case !space && !inWord:
			words = append(words, helper.Span{Start: i})
			inWord = true
		case space && inWord:
			words[len(words)-1].End = i
			inWord = false
		}
	}
	if inWord {
		words[len(words)-1].End = sentence.End
	}

	var pieces []helper.Span
	var current *helper.Span
	for _, w := range words {
		if current != nil && c.counter.Count(text[current.Start:w.End]) <= max {
			current.End = w.End
			continue
		}
		if current != nil {
			pieces = append(pieces, *current)
		}
		current = &helper.Span{Start: w.Start, End: w.End}
	}
	if current != nil {
		pieces = append(pieces, *current)
	}
	return pieces
}
