package pipeline

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/grounder/helper"
	"github.com/siherrmann/grounder/model"
)

// Parent-child score weights.
const (
	ContainmentWeight = 0.4
	HierarchyWeight   = 0.3
	ProximityWeight   = 0.2
	OverlapWeight     = 0.1
)

const scoreEpsilon = 1e-9

// ContainmentScore is 1 when the parent text contains the child text,
// otherwise the Jaccard similarity of their word sets.
func ContainmentScore(parent, child *model.Chunk) float64 {
	if strings.Contains(parent.Content, child.Content) {
		return 1
	}
	return helper.WordJaccard(parent.Content, child.Content, 2)
}

// HierarchyScore is 1 when the parent's hierarchy path is a prefix of the child's.
func HierarchyScore(parent, child *model.Chunk) float64 {
	if len(parent.HierarchyPath) > len(child.HierarchyPath) {
		return 0
	}
	for i, heading := range parent.HierarchyPath {
		if child.HierarchyPath[i] != heading {
			return 0
		}
	}
	return 1
}

// ProximityScore rates how closely the parent's span encloses the child's
// span. Enclosing parents score by tightness, others by their distance.
func ProximityScore(parent, child *model.Chunk, documentLength int) float64 {
	if documentLength <= 0 {
		return 0
	}
	length := float64(documentLength)
	if parent.StartPos <= child.StartPos && parent.EndPos >= child.EndPos {
		slack := float64((parent.EndPos - parent.StartPos) - (child.EndPos - child.StartPos))
		return 0.5 + 0.5*(1-math.Min(1, slack/length))
	}
	gap := 0
	switch {
	case child.StartPos >= parent.EndPos:
		gap = child.StartPos - parent.EndPos
	case parent.StartPos >= child.EndPos:
		gap = parent.StartPos - child.EndPos
	}
	return 0.5 * (1 - math.Min(1, float64(gap)/length))
}

// OverlapScore is the word overlap coefficient of the two chunks.
func OverlapScore(parent, child *model.Chunk) float64 {
	return helper.Overlap(helper.WordSet(parent.Content, 2), helper.WordSet(child.Content, 2))
}

// ParentChildScore is the weighted sum of the four component scores.
func ParentChildScore(parent, child *model.Chunk, documentLength int) float64 {
	return ContainmentWeight*ContainmentScore(parent, child) +
		HierarchyWeight*HierarchyScore(parent, child) +
		ProximityWeight*ProximityScore(parent, child, documentLength) +
		OverlapWeight*OverlapScore(parent, child)
}

// LinkParents assigns every chunk the best scoring chunk one scale coarser
// whose score is at least threshold. Equal scores are broken by the lowest
// start position, then by the lowest id.
func LinkParents(set *ChunkSet, threshold float64, documentLength int) {
	byScale := make(map[model.Scale][]*model.Chunk)
	for _, c := range set.Chunks {
		c.ParentID = nil
		c.ChildIDs = nil
		byScale[c.Scale] = append(byScale[c.Scale], c)
	}

	for _, child := range set.Chunks {
		coarser, ok := child.Scale.Coarser()
		if !ok {
			continue
		}

		var best *model.Chunk
		bestScore := 0.0
		for _, candidate := range byScale[coarser] {
			if candidate.DocumentID != child.DocumentID {
				continue
			}
			score := ParentChildScore(candidate, child, documentLength)
			if score < threshold || score <= 0 {
				continue
			}
			if best == nil || score > bestScore+scoreEpsilon ||
				(math.Abs(score-bestScore) <= scoreEpsilon && precedes(candidate, best)) {
				best = candidate
				bestScore = score
			}
		}

		if best != nil {
			parentID := best.ID
			child.ParentID = &parentID
			best.ChildIDs = append(best.ChildIDs, child.ID)
		}
	}
}

func precedes(a, b *model.Chunk) bool {
	if a.StartPos != b.StartPos {
		return a.StartPos < b.StartPos
	}
	return a.ID.String() < b.ID.String()
}

// LinkSiblings links all chunks of the same document and scale that share
// the same top-level hierarchy ancestor.
func LinkSiblings(set *ChunkSet) {
	type groupKey struct {
		document uuid.UUID
		scale    model.Scale
		ancestor string
	}
	groups := make(map[groupKey][]*model.Chunk)
	var keys []groupKey
	for _, c := range set.Chunks {
		key := groupKey{document: c.DocumentID, scale: c.Scale, ancestor: c.TopLevelAncestor()}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], c)
	}

	for _, key := range keys {
		members := groups[key]
		sort.SliceStable(members, func(i, j int) bool { return members[i].StartPos < members[j].StartPos })
		for _, c := range members {
			c.SiblingIDs = make([]uuid.UUID, 0, len(members)-1)
			for _, other := range members {
				if other.ID != c.ID {
					c.SiblingIDs = append(c.SiblingIDs, other.ID)
				}
			}
		}
	}
}
