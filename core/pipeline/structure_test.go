package pipeline

import (
	"testing"

	"github.com/siherrmann/grounder/helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructure(t *testing.T) {
	t.Run("Valid call with numbered headings", func(t *testing.T) {
		text := helper.SampleHandbook()
		root := ParseStructure(text)

		assert.Equal(t, NodeDocument, root.Kind)
		require.Len(t, root.Children, 3)
		for i, section := range root.Children {
			assert.Equal(t, NodeSection, section.Kind)
			assert.Equal(t, helper.SampleHandbookHeadings[i], section.Heading)
			assert.Equal(t, 1, section.Level)
			assert.Len(t, section.Children, 4)
			for _, paragraph := range section.Children {
				assert.Equal(t, NodeParagraph, paragraph.Kind)
				assert.GreaterOrEqual(t, paragraph.Start, section.Start)
				assert.LessOrEqual(t, paragraph.End, section.End)
			}
		}
		assert.Equal(t, helper.SampleHandbookSentence(0, 0, 0), root.Children[0].Children[0].Text(text)[:len(helper.SampleHandbookSentence(0, 0, 0))])
	})

	t.Run("Markdown headings nest by level", func(t *testing.T) {
		text := "# Guide\n\nIntro text here.\n\n## Setup\n\nInstall it.\n\n## Usage\n\nRun it.\n\n# Appendix\n\nExtra notes."
		root := ParseStructure(text)

		require.Len(t, root.Children, 2)
		guide := root.Children[0]
		assert.Equal(t, "Guide", guide.Heading)
		require.Len(t, guide.Children, 3)
		assert.Equal(t, NodeParagraph, guide.Children[0].Kind)
		assert.Equal(t, "Setup", guide.Children[1].Heading)
		assert.Equal(t, 2, guide.Children[1].Level)
		assert.Equal(t, "Appendix", root.Children[1].Heading)

		var paths [][]string
		root.Walk(func(node *StructureNode, path []string) {
			if node.Kind == NodeParagraph {
				paths = append(paths, path)
			}
		})
		assert.Equal(t, [][]string{{"Guide"}, {"Guide", "Setup"}, {"Guide", "Usage"}, {"Appendix"}}, paths)
	})

	t.Run("All caps headings and preamble", func(t *testing.T) {
		text := "Preamble paragraph.\n\nOVERVIEW\nThe overview text.\n\nDETAILS\n\nThe detail text."
		root := ParseStructure(text)

		require.Len(t, root.Children, 3)
		assert.Equal(t, NodeParagraph, root.Children[0].Kind)
		assert.Equal(t, "OVERVIEW", root.Children[1].Heading)
		assert.Equal(t, "The overview text.", root.Children[1].Children[0].Text(text))
		assert.Equal(t, "DETAILS", root.Children[2].Heading)
	})

	t.Run("Numbered list items are not headings", func(t *testing.T) {
		text := "Steps\n\n1. Download the archive\n2. Verify the checksum\n3. Start the service"
		root := ParseStructure(text)
		for _, child := range root.Children {
			assert.Equal(t, NodeParagraph, child.Kind)
		}
	})

	t.Run("Empty text", func(t *testing.T) {
		root := ParseStructure("   \n\n ")
		assert.Empty(t, root.Children)
		assert.Equal(t, root.Start, root.End)
	})
}

func TestPageAt(t *testing.T) {
	text := "page one\fpage two\fpage three"
	assert.Equal(t, 1, PageAt(text, 0))
	assert.Equal(t, 2, PageAt(text, 10))
	assert.Equal(t, 3, PageAt(text, len(text)))
}
