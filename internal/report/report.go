// Package report renders the per-run summary humans review before
// trusting an automated triage: every hunk decision with its confidence,
// every file left conflicted, and every dependency finding.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/releaseagent/pkg/models"
)

// FileStatus summarizes how one file fared in a run.
type FileStatus string

const (
	FileResolved FileStatus = "resolved"
	FileAborted  FileStatus = "aborted"
	FileClean    FileStatus = "clean"
)

// FileReport is the per-file section of a run summary.
type FileReport struct {
	Path        string                  `json:"path"`
	Status      FileStatus              `json:"status"`
	Action      string                  `json:"action,omitempty"`
	Resolutions []models.HunkResolution `json:"resolutions,omitempty"`
}

// RunSummary aggregates everything a run decided.
type RunSummary struct {
	RunID      string                     `json:"run_id"`
	Mode       string                     `json:"mode"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Operations []models.PRRecord          `json:"operations,omitempty"`
	Files      []FileReport               `json:"files,omitempty"`
	Findings   []models.DependencyFinding `json:"findings,omitempty"`
}

// counts tallies files by status.
func (s *RunSummary) counts() (resolved, aborted, clean int) {
	for _, f := range s.Files {
		switch f.Status {
		case FileResolved:
			resolved++
		case FileAborted:
			aborted++
		case FileClean:
			clean++
		}
	}
	return
}

// Markdown renders the summary as GitHub-flavored markdown.
func Markdown(s *RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Release triage run %s\n\n", s.RunID)
	fmt.Fprintf(&b, "- Mode: `%s`\n", s.Mode)
	fmt.Fprintf(&b, "- Started: %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Second))

	resolved, aborted, clean := s.counts()
	fmt.Fprintf(&b, "- Files: %d resolved, %d left conflicted, %d clean\n\n", resolved, aborted, clean)

	if len(s.Operations) > 0 {
		b.WriteString("## Operations\n\n")
		b.WriteString("| Order | PR | Title |\n|---|---|---|\n")
		for i, pr := range s.Operations {
			fmt.Fprintf(&b, "| %d | #%d | %s |\n", i+1, pr.Number, escapeCell(pr.Title))
		}
		b.WriteString("\n")
	}

	if aborted > 0 {
		b.WriteString("## Files requiring manual resolution\n\n")
		for _, f := range s.Files {
			if f.Status != FileAborted {
				continue
			}
			fmt.Fprintf(&b, "- `%s`\n", f.Path)
			for _, r := range f.Resolutions {
				fmt.Fprintf(&b, "  - hunk %d: %s (%s) %s\n", r.Hunk, r.ChangeType, r.Confidence, r.Reason)
			}
		}
		b.WriteString("\n")
	}

	if resolved > 0 {
		b.WriteString("## Resolved files\n\n")
		b.WriteString("| File | Hunk | Type | Confidence | Reason |\n|---|---|---|---|---|\n")
		for _, f := range s.Files {
			if f.Status != FileResolved {
				continue
			}
			if len(f.Resolutions) == 0 {
				fmt.Fprintf(&b, "| `%s` | - | - | - | %s |\n", f.Path, escapeCell(f.Action))
				continue
			}
			for _, r := range f.Resolutions {
				fmt.Fprintf(&b, "| `%s` | %d | %s | %s | %s |\n",
					f.Path, r.Hunk, r.ChangeType, r.Confidence, escapeCell(r.Reason))
			}
		}
		b.WriteString("\n")
	}

	if len(s.Findings) > 0 {
		b.WriteString("## Dependency findings\n\n")
		b.WriteString("| PR | Depends on | Critical | Auto-included | Rationale |\n|---|---|---|---|---|\n")
		for _, f := range s.Findings {
			fmt.Fprintf(&b, "| #%d | #%d | %v | %v | %s |\n",
				f.IncludedPR, f.DependsOnPR, f.IsCritical, f.AutoIncluded, escapeCell(f.Rationale))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// WriteHTML renders the markdown summary to a standalone HTML file.
func WriteHTML(s *RunSummary, path string) error {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(goldmarkhtml.WithHardWraps()),
	)

	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(s)), &body); err != nil {
		return fmt.Errorf("failed to render report HTML: %w", err)
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Release triage run %s</title>
<style>
body { font-family: sans-serif; max-width: 960px; margin: 2em auto; padding: 0 1em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
code { background: #f4f4f4; padding: 1px 4px; }
</style>
</head>
<body>
%s
</body>
</html>
`, s.RunID, body.String())

	if err := os.WriteFile(path, []byte(page), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteJSON writes the machine-readable summary.
func WriteJSON(s *RunSummary, path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}

// escapeCell keeps free-form text from breaking markdown table rows.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
