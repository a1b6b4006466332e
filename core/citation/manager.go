package citation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// Manager validates and formats citations against retrieval results.
type Manager struct {
	config model.CitationConfig
}

// NewManager creates a new citation manager
func NewManager(config model.CitationConfig) *Manager {
	return &Manager{config: config}
}

// FromResults numbers the results in their given order as the citable sources of a response.
func (m *Manager) FromResults(results []*model.RetrievalResult) []*model.Citation {
	citations := make([]*model.Citation, 0, len(results))
	for i, r := range results {
		c := fromChunk(r.Chunk)
		c.Number = i + 1
		c.Marker = fmt.Sprintf("[%d]", i+1)
		c.Valid = true
		c.Relevance = r.Score
		c.Formatted = Format(c, m.config.Format)
		citations = append(citations, c)
	}
	return citations
}

// Validate extracts the citations of answer and checks each against results.
// A citation is valid only if it resolves to one of the results and its
// claim is plausibly taken from that chunk. Numbered markers refer to the
// results in the order they were given.
func (m *Manager) Validate(answer string, results []*model.RetrievalResult) *model.CitationReport {
	citations := Extract(answer)
	report := &model.CitationReport{Citations: citations, Total: len(citations)}

	for _, c := range citations {
		result, support := m.resolve(c, results)
		if result != nil {
			resolved := fromChunk(result.Chunk)
			c.SourceID = resolved.SourceID
			c.Title = resolved.Title
			c.ChunkID = resolved.ChunkID
			c.Section = resolved.Section
			if c.Page == nil {
				c.Page = resolved.Page
			}
			c.Relevance = support
			c.Valid = support >= m.config.MinClaimOverlap && support > 0
		}
		if c.Valid {
			report.Validated++
		}
		c.Formatted = Format(c, m.config.Format)
	}

	if report.Total > 0 {
		report.Quality = float64(report.Validated) / float64(report.Total)
	}
	report.Bibliography = Bibliography(citations)
	return report
}

// resolve returns the result a citation refers to and how well its claim
// is supported by that result's content.
func (m *Manager) resolve(c *model.Citation, results []*model.RetrievalResult) (*model.RetrievalResult, float64) {
	if c.Number > 0 {
		if c.Number > len(results) {
			return nil, 0
		}
		r := results[c.Number-1]
		return r, Support(c.Claim, r.Chunk.Content)
	}

	var candidates []*model.RetrievalResult
	for _, r := range results {
		if strings.EqualFold(r.Chunk.SourceID, c.SourceID) || (r.Chunk.DocumentTitle != "" && strings.EqualFold(r.Chunk.DocumentTitle, c.SourceID)) {
			candidates = append(candidates, r)
		}
	}
	if c.Page != nil {
		var onPage []*model.RetrievalResult
		paged := false
		for _, r := range candidates {
			if r.Chunk.Page != nil {
				paged = true
				if *r.Chunk.Page == *c.Page {
					onPage = append(onPage, r)
				}
			}
		}
		if paged {
			candidates = onPage
		}
	}

	var best *model.RetrievalResult
	bestSupport := -1.0
	for _, r := range candidates {
		if support := Support(c.Claim, r.Chunk.Content); support > bestSupport {
			best, bestSupport = r, support
		}
	}
	if best == nil {
		return nil, 0
	}
	return best, bestSupport
}

// Support is 1 if the claim occurs verbatim in content, otherwise the share
// of the claim's keywords found in content.
func Support(claim, content string) float64 {
	claim = strings.TrimSpace(strings.TrimRight(claim, ".!?"))
	if claim == "" {
		return 0
	}
	if strings.Contains(strings.ToLower(content), strings.ToLower(claim)) {
		return 1
	}
	keywords := helper.Keywords(claim)
	if len(keywords) == 0 {
		return 0
	}
	words := helper.WordSet(content, 0)
	found := 0
	for _, k := range keywords {
		if _, ok := words[k]; ok {
			found++
		}
	}
	return float64(found) / float64(len(keywords))
}

// Format renders a citation in the given style.
func Format(c *model.Citation, format model.CitationFormat) string {
	title := c.Title
	if title == "" {
		title = c.SourceID
	}
	page := ""
	if c.Page != nil {
		page = fmt.Sprintf("p. %d", *c.Page)
	}

	switch format {
	case model.CitationInline:
		return "(" + join(", ", title, page) + ")"
	case model.CitationAcademic:
		parts := []string{title + "."}
		if c.Section != "" {
			parts = append(parts, fmt.Sprintf("%q.", c.Section))
		}
		if page != "" {
			parts = append(parts, page+".")
		}
		return strings.Join(parts, " ")
	case model.CitationDetailed:
		var b strings.Builder
		if c.Number > 0 {
			fmt.Fprintf(&b, "[%d] ", c.Number)
		}
		b.WriteString(title)
		if c.Section != "" {
			fmt.Fprintf(&b, " | Section: %s", c.Section)
		}
		if c.Page != nil {
			fmt.Fprintf(&b, " | Page: %d", *c.Page)
		}
		fmt.Fprintf(&b, " | Relevance: %.2f", c.Relevance)
		if c.ChunkID != nil {
			fmt.Fprintf(&b, " | Chunk: %s", c.ChunkID)
		}
		return b.String()
	default:
		prefix := ""
		if c.Number > 0 {
			prefix = fmt.Sprintf("[%d] ", c.Number)
		}
		return prefix + join(", ", title, c.Section, page)
	}
}

// Bibliography lists each distinct source once in order of first citation,
// with all its cited pages and sections. Invalid citations are skipped.
func Bibliography(citations []*model.Citation) []*model.BibliographyEntry {
	var entries []*model.BibliographyEntry
	bySource := make(map[string]*model.BibliographyEntry)
	for _, c := range citations {
		if !c.Valid || c.SourceID == "" {
			continue
		}
		entry, ok := bySource[c.SourceID]
		if !ok {
			entry = &model.BibliographyEntry{SourceID: c.SourceID, Title: c.Title}
			if entry.Title == "" {
				entry.Title = c.SourceID
			}
			bySource[c.SourceID] = entry
			entries = append(entries, entry)
		}
		if c.Page != nil && !containsInt(entry.Pages, *c.Page) {
			entry.Pages = append(entry.Pages, *c.Page)
			sort.Ints(entry.Pages)
		}
		if c.Section != "" && !containsString(entry.Sections, c.Section) {
			entry.Sections = append(entry.Sections, c.Section)
		}
	}
	return entries
}

func fromChunk(chunk *model.Chunk) *model.Citation {
	id := chunk.ID
	c := &model.Citation{
		SourceID: chunk.SourceID,
		Title:    chunk.DocumentTitle,
		ChunkID:  &id,
		Section:  chunk.Heading,
	}
	if chunk.Page != nil {
		page := *chunk.Page
		c.Page = &page
	}
	return c
}

func join(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
