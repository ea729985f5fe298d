// Package classify assigns a single dominant ChangeType to a conflict
// hunk. The cascade below is an ordered list of predicate/tag pairs;
// first match wins, which is the designed tie-break between overlapping
// categories (a whitespace-equivalent include block is WhitespaceOnly,
// not IncludeReorder).
package classify

import (
	"github.com/releaseagent/internal/patterns"
	"github.com/releaseagent/pkg/models"
)

// Rule is one step of the classification cascade.
type Rule struct {
	Name  string
	Tag   models.ChangeType
	Match func(ours, theirs []string) bool
}

// Cascade is the fixed, ordered rule list. It is data rather than code so
// each rule stays independently inspectable and testable.
var Cascade = []Rule{
	{
		Name: "whitespace-only",
		Tag:  models.ChangeWhitespaceOnly,
		Match: func(ours, theirs []string) bool {
			return patterns.NormalizedEquivalent(ours, theirs)
		},
	},
	{
		Name: "include-reorder",
		Tag:  models.ChangeIncludeReorder,
		Match: func(ours, theirs []string) bool {
			return patterns.IsIncludeBlock(ours) && patterns.IsIncludeBlock(theirs)
		},
	},
	{
		Name: "comment-only",
		Tag:  models.ChangeCommentOnly,
		Match: func(ours, theirs []string) bool {
			return patterns.IsCommentBlock(ours) && patterns.IsCommentBlock(theirs)
		},
	},
	{
		Name: "null-check-added",
		Tag:  models.ChangeNullCheckAdded,
		Match: func(ours, theirs []string) bool {
			return patterns.HasNullCheck(ours) != patterns.HasNullCheck(theirs)
		},
	},
	{
		Name: "error-handling",
		Tag:  models.ChangeErrorHandling,
		Match: func(ours, theirs []string) bool {
			return patterns.HasErrorHandling(ours) != patterns.HasErrorHandling(theirs)
		},
	},
	{
		Name:  "brace-style",
		Tag:   models.ChangeBraceStyle,
		Match: braceStyleOnly,
	},
}

// Classify returns the dominant ChangeType for a pair of conflicting
// blocks. It is deterministic and side-effect-free; Functional is the
// universal fallback bucket, so classification never fails.
func Classify(ours, theirs []string) models.ChangeType {
	for _, r := range Cascade {
		if r.Match(ours, theirs) {
			return r.Tag
		}
	}
	return models.ChangeFunctional
}

// braceStyleOnly reports whether the two sides become identical once
// lines holding only a brace are dropped, while differing with those
// lines kept (Allman vs brace-elided placement).
func braceStyleOnly(ours, theirs []string) bool {
	na := normalizedLines(ours)
	nb := normalizedLines(theirs)
	if equalLines(na, nb) {
		return false // whitespace-only, caught earlier in the cascade
	}
	da, db := dropBraceLines(na), dropBraceLines(nb)
	return len(da) > 0 && equalLines(da, db)
}

func normalizedLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if n := patterns.NormalizeLine(l); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func dropBraceLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l == "{" || l == "}" {
			continue
		}
		out = append(out, l)
	}
	return out
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
