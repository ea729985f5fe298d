package reasoner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	reTrailingComma = regexp.MustCompile(`,\s*([}\]])`)
	reBareKey       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)(\s*:)`)
	reJSONObject    = regexp.MustCompile(`(?s)\{.*\}`)
)

// decodeLooseJSON extracts and parses a JSON object from a model response
// that may be wrapped in prose or markdown fences and may be slightly
// malformed. Cheap fixes are tried first; the jsonrepair library is the
// fallback for anything they miss.
func decodeLooseJSON(raw string, out interface{}) error {
	candidate := stripCodeFences(raw)
	if m := reJSONObject.FindString(candidate); m != "" {
		candidate = m
	}

	if json.Unmarshal([]byte(candidate), out) == nil {
		return nil
	}

	fixed := reTrailingComma.ReplaceAllString(candidate, "$1")
	fixed = reBareKey.ReplaceAllString(fixed, `$1"$2"$3`)
	if json.Unmarshal([]byte(fixed), out) == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(fixed)
	if err != nil {
		return fmt.Errorf("response is not parseable JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("response is not parseable JSON after repair: %w", err)
	}
	return nil
}

// stripCodeFences removes a surrounding markdown code fence, with or
// without a language tag.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return trimmed
	}
	lines = lines[1:]
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
