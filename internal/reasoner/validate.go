package reasoner

import (
	"fmt"
	"regexp"
	"strings"
)

// Candidate validation. Every answer from the external reasoner is
// untrusted until it passes all checks here. A failed check never raises
// an error: it downgrades the candidate to manual-review territory.

var reFunctionCall = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// cKeywords are constructs that look like calls but are not.
var cKeywords = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "return": {},
	"sizeof": {}, "typeof": {}, "defined": {}, "else": {}, "case": {}, "do": {},
}

// safeIdentifiers are well-known C standard library names a candidate may
// introduce without them appearing in either conflict side.
var safeIdentifiers = map[string]struct{}{
	"printf": {}, "fprintf": {}, "snprintf": {}, "strcmp": {}, "strncmp": {},
	"strlen": {}, "malloc": {}, "calloc": {}, "realloc": {}, "free": {},
	"memset": {}, "memcpy": {}, "close": {}, "fclose": {}, "open": {}, "fopen": {},
	"NULL": {},
}

// ValidateCandidate checks a reasoner-produced resolution against the
// conflict it claims to resolve. It returns ok=false with a human-readable
// reason on the first failed check.
func ValidateCandidate(candidate, ours, theirs []string) (bool, string) {
	if len(nonBlank(candidate)) == 0 {
		return false, "candidate is empty"
	}

	maxLen := 2*maxInt(len(ours), len(theirs)) + 5
	if len(candidate) > maxLen {
		return false, fmt.Sprintf("candidate is %d lines, limit is %d", len(candidate), maxLen)
	}

	for _, pair := range [][2]rune{{'{', '}'}, {'(', ')'}, {'[', ']'}} {
		if net := netBalance(candidate, pair[0], pair[1]); net != 0 {
			return false, fmt.Sprintf("unbalanced %c%c: candidate net %d", pair[0], pair[1], net)
		}
	}

	// Only names that appear as calls in the conflict itself are allowed;
	// a variable of the same name is not license to call it.
	allowed := make(map[string]struct{})
	for _, block := range [][]string{ours, theirs} {
		for _, call := range extractFunctionCalls(block) {
			allowed[call] = struct{}{}
		}
	}
	for _, call := range extractFunctionCalls(candidate) {
		if _, ok := allowed[call]; ok {
			continue
		}
		if _, ok := safeIdentifiers[call]; ok {
			continue
		}
		return false, fmt.Sprintf("candidate invents function call %q not present in either side", call)
	}

	return true, ""
}

// extractFunctionCalls returns call-site names from code lines, skipping
// preprocessor directives and comment lines.
func extractFunctionCalls(lines []string) []string {
	var calls []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") ||
			strings.HasPrefix(trimmed, "//") ||
			strings.HasPrefix(trimmed, "*") ||
			strings.HasPrefix(trimmed, "/*") {
			continue
		}
		for _, m := range reFunctionCall.FindAllStringSubmatch(line, -1) {
			name := m[1]
			if _, isKeyword := cKeywords[name]; isKeyword {
				continue
			}
			calls = append(calls, name)
		}
	}
	return calls
}

func netBalance(lines []string, open, close rune) int {
	net := 0
	for _, line := range lines {
		for _, ch := range line {
			switch ch {
			case open:
				net++
			case close:
				net--
			}
		}
	}
	return net
}

func nonBlank(lines []string) []string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
