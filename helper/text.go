package helper

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Span is a half-open byte range [Start, End) into a text.
type Span struct {
	Start int
	End   int
}

var abbreviations = map[string]bool{
	"e.g.": true, "i.e.": true, "etc.": true, "vs.": true, "mr.": true,
	"mrs.": true, "ms.": true, "dr.": true, "prof.": true, "no.": true,
	"fig.": true, "approx.": true, "p.": true, "pp.": true,
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "been": true, "but": true, "by": true, "can": true, "did": true,
	"do": true, "does": true, "for": true, "from": true, "had": true, "has": true,
	"have": true, "how": true, "if": true, "in": true, "into": true, "is": true,
	"it": true, "its": true, "not": true, "of": true, "on": true, "or": true,
	"should": true, "so": true, "such": true, "that": true, "the": true,
	"their": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "those": true, "to": true, "was": true, "were": true,
	"what": true, "when": true, "where": true, "which": true, "while": true,
	"who": true, "why": true, "will": true, "with": true, "would": true,
	"you": true, "your": true, "about": true, "also": true, "all": true,
	"any": true, "each": true, "more": true, "most": true, "other": true,
	"some": true, "than": true, "them": true, "we": true, "our": true,
}

// SentenceSpans returns the byte spans of the sentences in text.
// A sentence ends at '.', '!' or '?' followed by whitespace, or at a blank line.
// Leading and trailing whitespace is excluded from every span.
func SentenceSpans(text string) []Span {
	var spans []Span
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		for end > start && unicode.IsSpace(rune(text[end-1])) {
			end--
		}
		if end > start {
			spans = append(spans, Span{Start: start, End: end})
		}
		start = -1
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if start < 0 {
			if !isSpaceByte(c) {
				start = i
			}
			continue
		}

		switch {
		case c == '\n' && i+1 < len(text) && text[i+1] == '\n':
			flush(i)
		case c == '.' || c == '!' || c == '?':
			end := i + 1
			for end < len(text) && (text[end] == '"' || text[end] == '\'' || text[end] == ')') {
				end++
			}
			if end < len(text) && !isSpaceByte(text[end]) {
				continue
			}
			if c == '.' && isAbbreviation(text[start:end]) {
				continue
			}
			flush(end)
			i = end - 1
		}
	}
	flush(len(text))

	return spans
}

// SplitSentences splits text into trimmed sentences.
func SplitSentences(text string) []string {
	spans := SentenceSpans(text)
	sentences := make([]string, 0, len(spans))
	for _, s := range spans {
		sentences = append(sentences, text[s.Start:s.End])
	}
	return sentences
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r' || c == '\f' || c == '\v'
}

func isAbbreviation(sentence string) bool {
	idx := strings.LastIndexAny(sentence, " \n\t")
	last := strings.ToLower(sentence[idx+1:])
	if abbreviations[last] {
		return true
	}
	// Single letter initials such as "J."
	return len(last) == 2 && unicode.IsLetter(rune(last[0]))
}

// Words returns the lower-cased alphanumeric tokens of text.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// CountWords counts whitespace separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// WordSet returns the set of words in text that are longer than minLen characters.
func WordSet(text string, minLen int) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range Words(text) {
		if len([]rune(w)) > minLen {
			set[w] = struct{}{}
		}
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets have similarity 0.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// Overlap returns |a ∩ b| / min(|a|, |b|).
func Overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	return float64(intersection) / float64(min(len(a), len(b)))
}

// WordJaccard is Jaccard over the word sets of two texts.
func WordJaccard(a, b string, minLen int) float64 {
	return Jaccard(WordSet(a, minLen), WordSet(b, minLen))
}

// IsStopword reports whether w is a common English function word.
func IsStopword(w string) bool {
	return stopwords[strings.ToLower(w)]
}

// Keywords returns the distinct non-stopword words longer than two characters
// in order of first appearance.
func Keywords(text string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, w := range Words(text) {
		if len([]rune(w)) <= 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

// ContentHash returns the hex sha256 of the parts joined by a NUL byte.
func ContentHash(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
