package reasoner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdictPayload struct {
	Verdict   string `json:"verdict"`
	Rationale string `json:"rationale"`
}

func TestDecodeLooseJSONCleanInput(t *testing.T) {
	var out verdictPayload
	require.NoError(t, decodeLooseJSON(`{"verdict": "NO", "rationale": "unrelated"}`, &out))
	assert.Equal(t, "NO", out.Verdict)
}

func TestDecodeLooseJSONFencedInput(t *testing.T) {
	raw := "```json\n{\"verdict\": \"YES_OPTIONAL\", \"rationale\": \"builds on it\"}\n```"
	var out verdictPayload
	require.NoError(t, decodeLooseJSON(raw, &out))
	assert.Equal(t, "YES_OPTIONAL", out.Verdict)
}

func TestDecodeLooseJSONSurroundingProse(t *testing.T) {
	raw := `Here is my assessment:
{"verdict": "YES_CRITICAL", "rationale": "shares a struct"}
Let me know if you need more detail.`
	var out verdictPayload
	require.NoError(t, decodeLooseJSON(raw, &out))
	assert.Equal(t, "YES_CRITICAL", out.Verdict)
}

func TestDecodeLooseJSONTrailingComma(t *testing.T) {
	var out verdictPayload
	require.NoError(t, decodeLooseJSON(`{"verdict": "NO", "rationale": "none",}`, &out))
	assert.Equal(t, "NO", out.Verdict)
}

func TestDecodeLooseJSONBareKeys(t *testing.T) {
	var out verdictPayload
	require.NoError(t, decodeLooseJSON(`{verdict: "NO", rationale: "none"}`, &out))
	assert.Equal(t, "NO", out.Verdict)
}

func TestDecodeLooseJSONHopelessInput(t *testing.T) {
	var out verdictPayload
	assert.Error(t, decodeLooseJSON("I cannot answer that.", &out))
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, "int x = 1;", stripCodeFences("```c\nint x = 1;\n```"))
	assert.Equal(t, "int x = 1;", stripCodeFences("```\nint x = 1;\n```"))
	assert.Equal(t, "plain text", stripCodeFences("plain text"))
}

func TestPreviewTruncates(t *testing.T) {
	lines := []string{"a", "b", "c", "d", "e", "f", "g"}
	p := Preview(lines)
	assert.Contains(t, p, "a")
	assert.Contains(t, p, "e")
	assert.NotContains(t, p, "f")

	long := Preview([]string{string(make([]byte, 500))})
	assert.LessOrEqual(t, len(long), 210)
}
