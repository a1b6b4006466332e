package citation

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

var (
	numberedMarker = regexp.MustCompile(`\[(\d{1,3})\]`)
	sourceMarker   = regexp.MustCompile(`\[Source:\s*([^,\]]+?)\s*(?:,\s*(?:p|pp|page)\.?\s*(\d+))?\]`)
	authorMarker   = regexp.MustCompile(`\(([A-Z][^(),]{1,80}?),\s*(?:p|pp|page)\.?\s*(\d+)\)`)
)

var punctuationSpace = strings.NewReplacer(" .", ".", " ,", ",", " !", "!", " ?", "?", " ;", ";")

type marker struct {
	start, end int
	citation   *model.Citation
}

// Extract finds the citation markers of a generated text in order of
// appearance. Supported forms are [n], [Source: name, p. N] and (Name, p. N).
// The claim of a citation is the sentence it annotates with all markers removed.
func Extract(text string) []*model.Citation {
	var markers []marker
	for _, m := range numberedMarker.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil || n == 0 {
			continue
		}
		markers = append(markers, marker{m[0], m[1], &model.Citation{Marker: text[m[0]:m[1]], Number: n}})
	}
	for _, pattern := range []*regexp.Regexp{sourceMarker, authorMarker} {
		for _, m := range pattern.FindAllStringSubmatchIndex(text, -1) {
			c := &model.Citation{Marker: text[m[0]:m[1]], SourceID: strings.TrimSpace(text[m[2]:m[3]])}
			if m[4] >= 0 {
				if page, err := strconv.Atoi(text[m[4]:m[5]]); err == nil {
					c.Page = &page
				}
			}
			markers = append(markers, marker{m[0], m[1], c})
		}
	}
	sort.SliceStable(markers, func(i, j int) bool { return markers[i].start < markers[j].start })

	spans := helper.SentenceSpans(text)
	citations := make([]*model.Citation, 0, len(markers))
	for _, m := range markers {
		m.citation.Claim = claimAt(text, spans, m.start)
		citations = append(citations, m.citation)
	}
	return citations
}

// claimAt returns the sentence containing offset. A marker opening a
// sentence annotates the previous one.
func claimAt(text string, spans []helper.Span, offset int) string {
	for i, span := range spans {
		if offset < span.Start || offset >= span.End {
			continue
		}
		claim := stripMarkers(text[span.Start:span.End])
		if strings.TrimSpace(stripMarkers(text[span.Start:offset])) == "" && i > 0 {
			claim = stripMarkers(text[spans[i-1].Start:spans[i-1].End])
		}
		return claim
	}
	return ""
}

func stripMarkers(s string) string {
	for _, pattern := range []*regexp.Regexp{numberedMarker, sourceMarker, authorMarker} {
		s = pattern.ReplaceAllString(s, "")
	}
	return punctuationSpace.Replace(strings.Join(strings.Fields(s), " "))
}
