// Package strategy maps a classified conflict hunk to a resolution and a
// confidence level. Deterministic rules produce High or Medium only;
// anything the rules cannot justify is deferred to the bounded external
// reasoner, and an unvalidated answer is downgraded to Review rather than
// hidden behind a guess.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/releaseagent/internal/classify"
	"github.com/releaseagent/internal/patterns"
	"github.com/releaseagent/pkg/models"
)

// BracePreference selects the tie-break for brace-style conflicts. The
// more-lines default assumes brace-on-own-line projects; it is a policy
// choice, not a correctness requirement.
type BracePreference string

const (
	BraceMoreLines BracePreference = "more-lines"
	BraceModeSide  BracePreference = "mode-side"
)

// ConflictQuery carries one hunk plus its surrounding context to the
// external reasoner.
type ConflictQuery struct {
	File          string
	Hunk          int
	Ours          []string
	Theirs        []string
	ContextBefore []string
	ContextAfter  []string
	Mode          models.Mode
}

// ReasonerOutcome is what the reasoner adapter hands back. A nil outcome
// means no candidate was produced (budget exhausted, transport failure,
// timeout); Valid=false means a candidate was produced but failed
// validation and must not be trusted beyond Review confidence.
type ReasonerOutcome struct {
	Lines     []string
	Valid     bool
	Provider  string
	Model     string
	Rationale string
}

// Reasoner is the bounded external reasoning capability. Implementations
// must be safe for concurrent use; the engine treats every answer as
// untrusted.
type Reasoner interface {
	ResolveConflict(ctx context.Context, q ConflictQuery) (*ReasonerOutcome, error)
}

// Options configure the deterministic rules.
type Options struct {
	Mode         models.Mode
	SafetyPrefer bool
	BracePref    BracePreference
}

// Engine resolves classified hunks. The zero reasoner is valid: functional
// conflicts then fall straight through to the Review fallback.
type Engine struct {
	opts     Options
	reasoner Reasoner
}

// New creates an Engine. reasoner may be nil.
func New(opts Options, reasoner Reasoner) *Engine {
	if opts.BracePref == "" {
		opts.BracePref = BraceMoreLines
	}
	return &Engine{opts: opts, reasoner: reasoner}
}

// Resolve classifies and resolves a single hunk. It always returns a
// result with a non-empty reason; it never errors, because classification
// is total and reasoner failure degrades to the deterministic fallback.
func (e *Engine) Resolve(ctx context.Context, q ConflictQuery) models.ResolutionResult {
	changeType := classify.Classify(q.Ours, q.Theirs)

	switch changeType {
	case models.ChangeWhitespaceOnly:
		return models.ResolutionResult{
			ResolvedLines: e.modeSide(q.Ours, q.Theirs),
			Confidence:    models.ConfidenceHigh,
			ChangeType:    changeType,
			Reason:        "changes are whitespace/formatting only - semantically identical",
		}

	case models.ChangeIncludeReorder:
		return models.ResolutionResult{
			ResolvedLines: MergeIncludes(q.Ours, q.Theirs),
			Confidence:    models.ConfidenceHigh,
			ChangeType:    changeType,
			Reason:        "both sides modify include directives - merged, deduplicated and grouped",
		}

	case models.ChangeCommentOnly:
		preferred, label := q.Theirs, "theirs"
		if blockContentLen(q.Ours) > blockContentLen(q.Theirs) {
			preferred, label = q.Ours, "ours"
		}
		return models.ResolutionResult{
			ResolvedLines: preferred,
			Confidence:    models.ConfidenceHigh,
			ChangeType:    changeType,
			Reason:        fmt.Sprintf("both sides are comment changes - kept %s (more descriptive)", label),
		}

	case models.ChangeBraceStyle:
		preferred, label := e.bracePick(q.Ours, q.Theirs)
		return models.ResolutionResult{
			ResolvedLines: preferred,
			Confidence:    models.ConfidenceMedium,
			ChangeType:    changeType,
			Reason:        fmt.Sprintf("brace style difference - kept %s (%s preference)", label, e.opts.BracePref),
		}

	case models.ChangeNullCheckAdded, models.ChangeErrorHandling:
		if e.opts.SafetyPrefer {
			if res, ok := e.safetyPick(changeType, q.Ours, q.Theirs); ok {
				return res
			}
		}
		// No safety resolution applies; treat as functional.
		return e.resolveFunctional(ctx, changeType, q)
	}

	return e.resolveFunctional(ctx, changeType, q)
}

// safetyPick implements the safety-preference rules: keep the side that
// adds the defensive pattern, or concatenate when both sides add
// independent defenses.
func (e *Engine) safetyPick(changeType models.ChangeType, ours, theirs []string) (models.ResolutionResult, bool) {
	oursSafe := patterns.LooksSafer(ours)
	theirsSafe := patterns.LooksSafer(theirs)

	switch {
	case theirsSafe && !oursSafe:
		return models.ResolutionResult{
			ResolvedLines: theirs,
			Confidence:    models.ConfidenceMedium,
			ChangeType:    changeType,
			Reason:        "theirs adds safety checks (NULL/error handling) - preferred for robustness",
		}, true
	case oursSafe && !theirsSafe:
		return models.ResolutionResult{
			ResolvedLines: ours,
			Confidence:    models.ConfidenceMedium,
			ChangeType:    changeType,
			Reason:        "ours adds safety checks (NULL/error handling) - preferred for robustness",
		}, true
	case oursSafe && theirsSafe && independentlyAppendable(ours, theirs):
		merged := make([]string, 0, len(ours)+len(theirs))
		merged = append(merged, ours...)
		merged = append(merged, theirs...)
		return models.ResolutionResult{
			ResolvedLines: merged,
			Confidence:    models.ConfidenceMedium,
			ChangeType:    changeType,
			Reason:        "both sides add safety improvements - kept both (ours then theirs)",
		}, true
	}
	return models.ResolutionResult{}, false
}

// resolveFunctional defers to the reasoner when one is configured and
// otherwise falls back to the mode-preferred side at Review confidence.
func (e *Engine) resolveFunctional(ctx context.Context, changeType models.ChangeType, q ConflictQuery) models.ResolutionResult {
	if e.reasoner != nil {
		outcome, err := e.reasoner.ResolveConflict(ctx, q)
		if err == nil && outcome != nil {
			if outcome.Valid {
				return models.ResolutionResult{
					ResolvedLines: outcome.Lines,
					Confidence:    models.ConfidenceMedium,
					ChangeType:    changeType,
					Reason: fmt.Sprintf("reasoner-resolved (%s/%s): %s",
						outcome.Provider, outcome.Model, outcome.Rationale),
				}
			}
			return models.ResolutionResult{
				ResolvedLines: e.modeSide(q.Ours, q.Theirs),
				Confidence:    models.ConfidenceReview,
				ChangeType:    changeType,
				Reason: fmt.Sprintf("reasoner candidate (%s/%s) failed validation - kept %s; requires manual verification",
					outcome.Provider, outcome.Model, e.opts.Mode.PreferredLabel()),
			}
		}
		// Transport error or exhausted budget: fall through.
	}

	return models.ResolutionResult{
		ResolvedLines: e.modeSide(q.Ours, q.Theirs),
		Confidence:    models.ConfidenceReview,
		ChangeType:    changeType,
		Reason: fmt.Sprintf("functional conflict - fallback to %s; requires manual verification",
			e.opts.Mode.PreferredLabel()),
	}
}

// modeSide returns the block the current mode keeps on ties.
func (e *Engine) modeSide(ours, theirs []string) []string {
	if e.opts.Mode.PreferTheirs() {
		return theirs
	}
	return ours
}

func (e *Engine) bracePick(ours, theirs []string) ([]string, string) {
	if e.opts.BracePref == BraceModeSide {
		if e.opts.Mode.PreferTheirs() {
			return theirs, "theirs"
		}
		return ours, "ours"
	}
	// more-lines: brace-on-own-line formatting spans more lines.
	if len(theirs) > len(ours) {
		return theirs, "theirs"
	}
	return ours, "ours"
}

// independentlyAppendable reports whether two blocks can coexist when
// concatenated: neither is a whitespace rewrite of the other and neither
// side's content is a strict subset of the other's.
func independentlyAppendable(ours, theirs []string) bool {
	if patterns.NormalizedEquivalent(ours, theirs) {
		return false
	}
	return !normalizedSubset(ours, theirs) && !normalizedSubset(theirs, ours)
}

// normalizedSubset reports whether every normalized line of a appears in b.
func normalizedSubset(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, l := range b {
		if n := patterns.NormalizeLine(l); n != "" {
			set[n] = struct{}{}
		}
	}
	for _, l := range a {
		n := patterns.NormalizeLine(l)
		if n == "" {
			continue
		}
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

// blockContentLen measures total content for the comment verbosity
// tie-break.
func blockContentLen(lines []string) int {
	total := 0
	for _, l := range lines {
		total += len(l)
	}
	return total
}

// MergeIncludes unions two include blocks: deduplicated by
// whitespace-normalized text, quoted ("local") includes grouped before
// angle-bracket ("system") includes, each group sorted
// case-insensitively. Merging an already-merged list with itself yields
// the same list.
func MergeIncludes(ours, theirs []string) []string {
	seen := make(map[string]struct{})
	var merged []string
	for _, inc := range append(patterns.ExtractIncludes(ours), patterns.ExtractIncludes(theirs)...) {
		n := patterns.NormalizeLine(inc)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		merged = append(merged, inc)
	}

	var local, system, other []string
	for _, inc := range merged {
		switch {
		case strings.Contains(inc, `"`):
			local = append(local, inc)
		case strings.Contains(inc, "<") && strings.Contains(inc, ">"):
			system = append(system, inc)
		default:
			other = append(other, inc)
		}
	}

	sortIncludes(local)
	sortIncludes(system)

	out := make([]string, 0, len(merged))
	out = append(out, local...)
	out = append(out, system...)
	out = append(out, other...)
	return out
}

func sortIncludes(lines []string) {
	// Case-insensitive sort on the trimmed directive text.
	sort.SliceStable(lines, func(i, j int) bool {
		return includeKey(lines[i]) < includeKey(lines[j])
	})
}

func includeKey(line string) string {
	return strings.ToLower(strings.TrimSpace(line))
}
