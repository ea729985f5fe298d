// Package patterns is the fixed library of structural matchers the hunk
// classifier and strategy engine are built on. Every predicate here is a
// pure, total function over a sequence of source lines: no side effects,
// no errors, tuned for C-family source.
package patterns

import (
	"regexp"
	"strings"
)

var (
	reInclude      = regexp.MustCompile(`^\s*#\s*include\s+[<"].*[>"]`)
	reCommentLine  = regexp.MustCompile(`^\s*(/\*.*\*/|//.*|\*.*|\*/)\s*$`)
	reCommentStart = regexp.MustCompile(`^\s*/\*`)
	reCommentEnd   = regexp.MustCompile(`\*/\s*$`)

	reNullCheck = regexp.MustCompile(`(?i)(if\s*\(\s*!?\s*\w+\s*(==|!=)\s*NULL\s*\)|` +
		`if\s*\(\s*NULL\s*(==|!=)\s*\w+\s*\)|` +
		`if\s*\(\s*!\s*\w+\s*\)|` +
		`if\s*\(\s*\w+\s*\))`)

	reErrorHandling = regexp.MustCompile(`(?i)(return\s+ANSC_STATUS_FAILURE|` +
		`return\s+(-1|NULL|false)|` +
		`exit\s*\(\s*1\s*\)|` +
		`CcspTraceError|CcspTraceWarning|` +
		`ERR_CHK|` +
		`goto\s+\w*error\w*|goto\s+\w*fail\w*)`)

	// Defensive patterns beyond plain NULL checks: bounds-checked copies,
	// resource releases, guarded returns. Secondary signal only; never a
	// sole classifier.
	reSafety = regexp.MustCompile(`(?i)(if\s*\(\s*!\s*\w+\s*\)|` +
		`if\s*\(\s*\w+\s*==\s*NULL|` +
		`if\s*\(\s*NULL\s*==|` +
		`snprintf\s*\(|` +
		`close\s*\(\s*\w+\s*\)|` +
		`free\s*\(\s*\w+\s*\)|` +
		`exit\s*\(\s*1\s*\)|` +
		`va_end\s*\(|` +
		`fclose\s*\()`)

	reAnySpace = regexp.MustCompile(`\s+`)
)

// NormalizeLine strips all whitespace from a line for comparison.
func NormalizeLine(line string) string {
	return reAnySpace.ReplaceAllString(strings.TrimRight(line, "\n"), "")
}

// normalizeBlock normalizes every line and drops those that are empty after
// normalization.
func normalizeBlock(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if n := NormalizeLine(l); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// NormalizedEquivalent reports whether two blocks are identical once all
// whitespace is stripped from every line.
func NormalizedEquivalent(a, b []string) bool {
	na, nb := normalizeBlock(a), normalizeBlock(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

// IsIncludeBlock reports whether every non-blank line is an include
// directive. Blank-only blocks are not include blocks.
func IsIncludeBlock(lines []string) bool {
	seen := false
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if !reInclude.MatchString(l) {
			return false
		}
		seen = true
	}
	return seen
}

// IsCommentBlock reports whether every non-blank line is inside a line or
// block comment, tracking block open/close state across lines.
func IsCommentBlock(lines []string) bool {
	seen := false
	inBlock := false
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		seen = true
		if inBlock {
			if reCommentEnd.MatchString(l) {
				inBlock = false
			}
			continue
		}
		if reCommentLine.MatchString(l) {
			continue
		}
		if reCommentStart.MatchString(l) {
			if !reCommentEnd.MatchString(l) {
				inBlock = true
			}
			continue
		}
		return false
	}
	return seen
}

// HasNullCheck reports whether any line contains a NULL/pointer guard.
func HasNullCheck(lines []string) bool {
	for _, l := range lines {
		if reNullCheck.MatchString(l) {
			return true
		}
	}
	return false
}

// HasErrorHandling reports whether any line contains an error-handling
// shape (failure return, error trace, cleanup goto).
func HasErrorHandling(lines []string) bool {
	for _, l := range lines {
		if reErrorHandling.MatchString(l) {
			return true
		}
	}
	return false
}

// LooksSafer reports whether any line matches the broader defensive
// pattern set.
func LooksSafer(lines []string) bool {
	for _, l := range lines {
		if reSafety.MatchString(l) {
			return true
		}
	}
	return false
}

// ExtractIncludes returns the include-directive lines, trailing newlines
// removed, in their original order.
func ExtractIncludes(lines []string) []string {
	var out []string
	for _, l := range lines {
		if reInclude.MatchString(l) {
			out = append(out, strings.TrimRight(l, "\n"))
		}
	}
	return out
}

// IsInclude reports whether a single line is an include directive.
func IsInclude(line string) bool {
	return reInclude.MatchString(line)
}
