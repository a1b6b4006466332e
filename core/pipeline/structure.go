package pipeline

import (
	"regexp"
	"strings"
	"unicode"
)

// NodeKind is the kind of a structure node.
type NodeKind string

const (
	NodeDocument  NodeKind = "document"
	NodeSection   NodeKind = "section"
	NodeParagraph NodeKind = "paragraph"
)

// StructureNode is a node of the parsed document tree. Spans are byte
// offsets into the parsed text. The tree is discarded after chunking.
type StructureNode struct {
	Kind     NodeKind
	Level    int
	Heading  string
	Start    int
	End      int
	Children []*StructureNode
}

// Text returns the node's span of text.
func (n *StructureNode) Text(text string) string {
	return text[n.Start:n.End]
}

// Walk visits n and its descendants depth first. The path holds the
// headings of the enclosing sections, including n's own heading for sections.
func (n *StructureNode) Walk(fn func(node *StructureNode, path []string)) {
	n.walk(nil, fn)
}

func (n *StructureNode) walk(path []string, fn func(node *StructureNode, path []string)) {
	if n.Kind == NodeSection {
		path = append(path[:len(path):len(path)], n.Heading)
	}
	fn(n, path)
	for _, child := range n.Children {
		child.walk(path, fn)
	}
}

var (
	markdownHeading = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*$`)
	numberedHeading = regexp.MustCompile(`^(\d+(?:\.\d+)*)\.?\s+(\p{Lu}[^.!?:;]*)$`)
)

const (
	maxNumberedHeadingWords = 10
	maxCapsHeadingWords     = 8
)

type textLine struct {
	start int
	end   int
}

// ParseStructure builds the section/paragraph tree of a plain text document.
// Headings are markdown "#" lines, numbered lines such as "2.1 Setup" and
// short ALL-CAPS lines. Paragraphs are separated by blank lines; form feeds
// act as line breaks.
func ParseStructure(text string) *StructureNode {
	root := &StructureNode{Kind: NodeDocument}
	lines := splitLines(text)

	stack := []*StructureNode{root}
	paraStart, paraEnd := -1, -1
	closeParagraph := func() {
		if paraStart < 0 {
			return
		}
		top := stack[len(stack)-1]
		top.Children = append(top.Children, &StructureNode{
			Kind:  NodeParagraph,
			Level: top.Level + 1,
			Start: paraStart,
			End:   paraEnd,
		})
		paraStart, paraEnd = -1, -1
	}

	blockStart := true
	for i, ln := range lines {
		raw := text[ln.start:ln.end]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			closeParagraph()
			blockStart = true
			continue
		}
		lead := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
		trail := len(strings.TrimRightFunc(raw, unicode.IsSpace))

		if blockStart {
			next := ""
			if i+1 < len(lines) {
				next = strings.TrimSpace(text[lines[i+1].start:lines[i+1].end])
			}
			if heading, level, ok := detectHeading(trimmed, next); ok {
				closeParagraph()
				for len(stack) > 1 && stack[len(stack)-1].Level >= level {
					stack = stack[:len(stack)-1]
				}
				section := &StructureNode{
					Kind:    NodeSection,
					Level:   level,
					Heading: heading,
					Start:   ln.start + lead,
					End:     ln.start + trail,
				}
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, section)
				stack = append(stack, section)
				continue
			}
		}

		if paraStart < 0 {
			paraStart = ln.start + lead
		}
		paraEnd = ln.start + trail
		blockStart = false
	}
	closeParagraph()

	root.Start = len(text) - len(strings.TrimLeftFunc(text, unicode.IsSpace))
	root.End = len(strings.TrimRightFunc(text, unicode.IsSpace))
	if root.End < root.Start {
		root.End = root.Start
	}
	extendSections(root)

	return root
}

// extendSections stretches every section over its descendants.
func extendSections(node *StructureNode) int {
	end := node.End
	for _, child := range node.Children {
		if childEnd := extendSections(child); childEnd > end {
			end = childEnd
		}
	}
	if node.Kind == NodeSection {
		node.End = end
	}
	return end
}

func splitLines(text string) []textLine {
	var lines []textLine
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' || text[i] == '\f' {
			lines = append(lines, textLine{start: start, end: i})
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, textLine{start: start, end: len(text)})
	}
	return lines
}

// detectHeading reports whether line is a heading and returns its title and level.
// next is the following line, used to tell numbered headings from list items.
func detectHeading(line string, next string) (string, int, bool) {
	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[2]), len(m[1]), true
	}

	if m := numberedHeading.FindStringSubmatch(line); m != nil {
		if numberedHeading.MatchString(next) {
			return "", 0, false
		}
		if len(strings.Fields(m[2])) > maxNumberedHeadingWords {
			return "", 0, false
		}
		return line, strings.Count(m[1], ".") + 1, true
	}

	if isCapsHeading(line) {
		return line, 1, true
	}

	return "", 0, false
}

func isCapsHeading(line string) bool {
	if len(line) > 80 || strings.HasSuffix(line, ".") {
		return false
	}
	if len(strings.Fields(line)) > maxCapsHeadingWords {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 2
}

// PageAt returns the 1-based page of a byte offset; pages are separated by form feeds.
func PageAt(text string, offset int) int {
	if offset > len(text) {
		offset = len(text)
	}
	return strings.Count(text[:offset], "\f") + 1
}
