package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/releaseagent/pkg/models"
)

func sampleSummary() *RunSummary {
	start := time.Date(2026, 7, 20, 10, 0, 0, 0, time.UTC)
	return &RunSummary{
		RunID:      "a1b2c3d4",
		Mode:       "cherry-pick",
		StartedAt:  start,
		FinishedAt: start.Add(42 * time.Second),
		Operations: []models.PRRecord{
			{Number: 101, Title: "Add telemetry | field"},
			{Number: 120, Title: "Use telemetry field"},
		},
		Files: []FileReport{
			{
				Path:   "src/device.c",
				Status: FileResolved,
				Resolutions: []models.HunkResolution{
					{File: "src/device.c", Hunk: 1, ChangeType: models.ChangeWhitespaceOnly, Confidence: "HIGH", Reason: "sides differ only in whitespace"},
				},
			},
			{
				Path:   "src/core.c",
				Status: FileAborted,
				Resolutions: []models.HunkResolution{
					{File: "src/core.c", Hunk: 1, ChangeType: models.ChangeFunctional, Confidence: "REVIEW", Reason: "no validated candidate"},
				},
			},
			{Path: "src/deleted.c", Status: FileResolved, Action: "delete"},
			{Path: "src/ok.c", Status: FileClean},
		},
		Findings: []models.DependencyFinding{
			{IncludedPR: 120, DependsOnPR: 101, IsCritical: true, AutoIncluded: true, Rationale: "uses new field"},
		},
	}
}

func TestMarkdownSections(t *testing.T) {
	md := Markdown(sampleSummary())

	assert.Contains(t, md, "# Release triage run a1b2c3d4")
	assert.Contains(t, md, "- Mode: `cherry-pick`")
	assert.Contains(t, md, "- Files: 2 resolved, 1 left conflicted, 1 clean")

	assert.Contains(t, md, "## Operations")
	// Pipes in titles must not break the table.
	assert.Contains(t, md, `Add telemetry \| field`)

	assert.Contains(t, md, "## Files requiring manual resolution")
	assert.Contains(t, md, "`src/core.c`")
	assert.Contains(t, md, "hunk 1: functional (REVIEW) no validated candidate")

	assert.Contains(t, md, "## Resolved files")
	assert.Contains(t, md, "whitespace_only")
	assert.Contains(t, md, "| `src/deleted.c` | - | - | - | delete |")

	assert.Contains(t, md, "## Dependency findings")
	assert.Contains(t, md, "| #120 | #101 | true | true | uses new field |")
}

func TestMarkdownOmitsEmptySections(t *testing.T) {
	md := Markdown(&RunSummary{RunID: "empty", Mode: "deps"})

	assert.NotContains(t, md, "## Operations")
	assert.NotContains(t, md, "## Resolved files")
	assert.NotContains(t, md, "## Files requiring manual resolution")
	assert.NotContains(t, md, "## Dependency findings")
}

func TestWriteHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.html")
	require.NoError(t, WriteHTML(sampleSummary(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "<!DOCTYPE html>")
	assert.Contains(t, html, "<title>Release triage run a1b2c3d4</title>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "src/device.c")
}

func TestWriteJSONRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	summary := sampleSummary()
	require.NoError(t, WriteJSON(summary, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded RunSummary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, summary.RunID, decoded.RunID)
	assert.Len(t, decoded.Files, 4)
	assert.Equal(t, FileAborted, decoded.Files[1].Status)
}

func TestEscapeCell(t *testing.T) {
	assert.Equal(t, `a \| b`, escapeCell("a | b"))
	assert.Equal(t, "two lines", escapeCell("two\nlines"))
}
