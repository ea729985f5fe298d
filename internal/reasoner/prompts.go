package reasoner

import (
	"fmt"
	"strings"

	"github.com/releaseagent/pkg/models"
)

const conflictSystemPrompt = `You are an expert C developer resolving a merge conflict in an embedded networking codebase.

Rules:
1. Output ONLY the resolved code lines, with no markdown fences, no commentary, no conflict markers.
2. Never invent function calls, variables, or macros that do not appear in the conflict or its surrounding context.
3. Preserve the indentation style of the surrounding code.
4. When both sides make independent changes, combine them; when they genuinely conflict, keep the change that matches the operation described.
5. If you cannot produce a safe resolution, output the side the operation prefers, unchanged.`

const dependencySystemPrompt = `You judge whether one pull request depends on an earlier pull request that touched the same files.

Respond with a single JSON object, nothing else:
{"verdict": "YES_CRITICAL" | "YES_OPTIONAL" | "NO", "rationale": "<one sentence>"}

YES_CRITICAL means picking the newer PR without the earlier one would break compilation or runtime behavior.
YES_OPTIONAL means the newer PR builds on the earlier one but works without it.
NO means the PRs are unrelated beyond touching the same files.`

func buildConflictPrompt(q conflictPromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "File: %s\n", q.File)
	fmt.Fprintf(&b, "Operation: %s\n\n", operationDescription(q.Mode))

	if len(q.ContextBefore) > 0 {
		b.WriteString("Context before the conflict:\n")
		b.WriteString(strings.Join(q.ContextBefore, "\n"))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Side currently on the branch (%s):\n", currentLabel(q.Mode))
	b.WriteString(strings.Join(q.Ours, "\n"))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Side being applied (%s):\n", incomingLabel(q.Mode))
	b.WriteString(strings.Join(q.Theirs, "\n"))
	b.WriteString("\n\n")

	if len(q.ContextAfter) > 0 {
		b.WriteString("Context after the conflict:\n")
		b.WriteString(strings.Join(q.ContextAfter, "\n"))
		b.WriteString("\n\n")
	}

	b.WriteString("Output the resolved code lines only.")
	return b.String()
}

type conflictPromptInput struct {
	File          string
	Ours          []string
	Theirs        []string
	ContextBefore []string
	ContextAfter  []string
	Mode          models.Mode
}

func buildDependencyPrompt(included, earlier models.PRRecord, shared []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "PR being included: #%d %q\n", included.Number, included.Title)
	fmt.Fprintf(&b, "Earlier merged PR: #%d %q\n", earlier.Number, earlier.Title)
	fmt.Fprintf(&b, "Shared files: %s\n\n", strings.Join(shared, ", "))

	if included.DiffText != "" {
		fmt.Fprintf(&b, "Diff of PR #%d:\n%s\n\n", included.Number, clipDiff(included.DiffText))
	}
	if earlier.DiffText != "" {
		fmt.Fprintf(&b, "Diff of PR #%d:\n%s\n\n", earlier.Number, clipDiff(earlier.DiffText))
	}

	fmt.Fprintf(&b, "Does PR #%d depend on PR #%d?", included.Number, earlier.Number)
	return b.String()
}

// clipDiff keeps prompts inside model context windows. Large diffs lose
// their tail, which is acceptable for a dependency judgement.
func clipDiff(diff string) string {
	const maxChars = 12000
	if len(diff) <= maxChars {
		return diff
	}
	return diff[:maxChars] + "\n... (diff truncated)"
}

func operationDescription(mode models.Mode) string {
	if mode == models.ModeRevert {
		return "reverting a previously merged change from the release branch"
	}
	return "cherry-picking an approved change onto the release branch"
}

func currentLabel(mode models.Mode) string {
	if mode == models.ModeRevert {
		return "release branch state, including the change being removed"
	}
	return "release branch state"
}

func incomingLabel(mode models.Mode) string {
	if mode == models.ModeRevert {
		return "the revert"
	}
	return "the cherry-picked change"
}
