package models

import (
	"fmt"
	"strings"
	"time"
)

// Mode indicates the direction of the release operation: integrating a PR
// into the release branch (cherry-pick) or removing one from it (revert).
type Mode string

const (
	ModeCherryPick Mode = "cherry-pick"
	ModeRevert     Mode = "revert"
)

// PreferTheirs reports whether the mode's tie-break side is "theirs".
// In cherry-pick mode "theirs" is the incoming PR commit; in revert mode
// "ours" is the current branch content we want to keep.
func (m Mode) PreferTheirs() bool {
	return m == ModeCherryPick
}

// PreferredLabel names the side the mode keeps on ties, for rationale strings.
func (m Mode) PreferredLabel() string {
	if m.PreferTheirs() {
		return "theirs (incoming PR)"
	}
	return "ours (current branch)"
}

// ChangeType classifies the dominant semantic nature of a conflict hunk.
type ChangeType string

const (
	ChangeWhitespaceOnly ChangeType = "whitespace_only"
	ChangeIncludeReorder ChangeType = "include_reorder"
	ChangeCommentOnly    ChangeType = "comment_only"
	ChangeNullCheckAdded ChangeType = "null_check_added"
	ChangeErrorHandling  ChangeType = "error_handling"
	ChangeBraceStyle     ChangeType = "brace_style"
	ChangeFunctional     ChangeType = "functional"
	ChangeMixed          ChangeType = "mixed"
)

// Confidence expresses how safe it is to accept a resolution without human
// review. The levels are totally ordered so thresholds compare structurally.
type Confidence int

const (
	// ConfidenceLow is reserved for catastrophic, non-textual failures
	// (e.g. the file could not be read).
	ConfidenceLow Confidence = iota + 1
	// ConfidenceReview marks resolutions that need a human pass: an
	// unverified reasoner candidate or an unresolved functional conflict.
	ConfidenceReview
	// ConfidenceMedium marks resolutions justified by a safety heuristic
	// or a validated reasoner candidate.
	ConfidenceMedium
	// ConfidenceHigh marks resolutions justified structurally (whitespace,
	// include merge, comment pick).
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "HIGH"
	case ConfidenceMedium:
		return "MEDIUM"
	case ConfidenceReview:
		return "REVIEW"
	case ConfidenceLow:
		return "LOW"
	}
	return fmt.Sprintf("Confidence(%d)", int(c))
}

// Meets reports whether c satisfies the given minimum threshold.
func (c Confidence) Meets(min Confidence) bool {
	return c >= min
}

// ParseConfidence converts a config string ("high", "medium", "review",
// "low") into a Confidence level.
func ParseConfidence(s string) (Confidence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh, nil
	case "medium":
		return ConfidenceMedium, nil
	case "review":
		return ConfidenceReview, nil
	case "low":
		return ConfidenceLow, nil
	}
	return 0, fmt.Errorf("unknown confidence level %q", s)
}

// ConflictHunk is one conflicting region of a file, bounded by conflict
// markers. A hunk is immutable once created; classification and resolution
// produce new records rather than mutating it.
type ConflictHunk struct {
	Index       int      // 0-based position within the file
	OursLines   []string // current branch side, without markers
	TheirsLines []string // incoming side, without markers
	BaseLines   []string // merge base (diff3 style), nil when absent
	StartLine   int      // offset of the opening marker in the original file
	EndLine     int      // offset of the closing marker
}

// ResolutionResult is the outcome of resolving a single hunk. Reason is
// mandatory: the engine never resolves a conflict without an auditable
// rationale.
type ResolutionResult struct {
	ResolvedLines []string
	Confidence    Confidence
	ChangeType    ChangeType
	Reason        string
}

// HunkResolution is the per-hunk record appended to the run's resolution
// log, in the stable shape the reporting layer consumes.
type HunkResolution struct {
	File       string     `json:"file"`
	PR         string     `json:"pr,omitempty"`
	Hunk       int        `json:"hunk"`
	ChangeType ChangeType `json:"change_type"`
	Confidence string     `json:"confidence"`
	Reason     string     `json:"reason"`
}

// PRRecord is the pull-request metadata fetched once per run from the
// code-hosting provider and cached for the run's duration.
type PRRecord struct {
	Number       int       `json:"number"`
	Title        string    `json:"title"`
	FilesChanged []string  `json:"files_changed"`
	MergedAt     time.Time `json:"merged_at"`
	MergeSHA     string    `json:"merge_commit_sha,omitempty"`
	DiffText     string    `json:"-"`
}

// TouchesFile reports whether the PR changes the given path.
func (p *PRRecord) TouchesFile(path string) bool {
	for _, f := range p.FilesChanged {
		if f == path {
			return true
		}
	}
	return false
}

// DependencyVerdict is the reasoner's judgement of whether one PR builds
// on another, and if so whether picking it without the other would break
// the build or runtime behavior.
type DependencyVerdict struct {
	Dependent bool   `json:"dependent"`
	Critical  bool   `json:"critical"`
	Rationale string `json:"rationale,omitempty"`
}

// DependencyFinding records that an included PR appears to build on an
// earlier, non-included PR. AutoIncluded flips false to true exactly once,
// when the dependency is judged critical and the operation list is
// recomputed.
type DependencyFinding struct {
	IncludedPR     int      `json:"included_pr"`
	IncludedTitle  string   `json:"included_title,omitempty"`
	DependsOnPR    int      `json:"depends_on_pr"`
	DependsOnTitle string   `json:"depends_on_title,omitempty"`
	SharedFiles    []string `json:"shared_files"`
	IsCritical     bool     `json:"is_critical"`
	AutoIncluded   bool     `json:"auto_included"`
	Rationale      string   `json:"rationale,omitempty"`
}
