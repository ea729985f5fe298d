// Package merge parses git conflict markers out of working-tree files and
// reassembles fully resolved content. A file is written back only when
// every one of its hunks resolved at or above the configured confidence
// floor; otherwise the file is left untouched for manual resolution.
package merge

import (
	"fmt"
	"strings"

	"github.com/releaseagent/pkg/models"
)

// Segment is a run of lines from a conflicted file: either plain text or
// one conflict hunk. Segments concatenate back to the original file.
type Segment struct {
	Text []string
	Hunk *models.ConflictHunk
}

// ParsedFile is a conflicted file split into ordered segments.
type ParsedFile struct {
	Path     string
	Segments []Segment
	// trailingNewline records whether the original content ended with a
	// newline so reassembly is byte-faithful outside the hunks.
	trailingNewline bool
}

const contextLines = 10

type parseState int

const (
	stateText parseState = iota
	stateOurs
	stateBase
	stateTheirs
)

// ParseConflicts splits file content on git conflict markers, including
// the diff3 base section when merge.conflictStyle produces one. An
// unterminated conflict is an error: guessing at marker boundaries risks
// writing garbage back to the tree.
func ParseConflicts(path, content string) (*ParsedFile, error) {
	trailingNewline := strings.HasSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	if trailingNewline {
		lines = lines[:len(lines)-1]
	}

	parsed := &ParsedFile{Path: path, trailingNewline: trailingNewline}
	state := stateText
	var text []string
	var hunk *models.ConflictHunk
	hunkCount := 0

	for i, line := range lines {
		lineNo := i + 1
		switch {
		case strings.HasPrefix(line, "<<<<<<<"):
			if state != stateText {
				return nil, fmt.Errorf("%s:%d: nested conflict marker", path, lineNo)
			}
			if len(text) > 0 {
				parsed.Segments = append(parsed.Segments, Segment{Text: text})
				text = nil
			}
			hunkCount++
			hunk = &models.ConflictHunk{Index: hunkCount, StartLine: lineNo}
			state = stateOurs

		case strings.HasPrefix(line, "|||||||"):
			if state != stateOurs {
				return nil, fmt.Errorf("%s:%d: unexpected base marker", path, lineNo)
			}
			state = stateBase

		case strings.HasPrefix(line, "======="):
			if state != stateOurs && state != stateBase {
				return nil, fmt.Errorf("%s:%d: unexpected separator marker", path, lineNo)
			}
			state = stateTheirs

		case strings.HasPrefix(line, ">>>>>>>"):
			if state != stateTheirs {
				return nil, fmt.Errorf("%s:%d: unexpected closing marker", path, lineNo)
			}
			hunk.EndLine = lineNo
			parsed.Segments = append(parsed.Segments, Segment{Hunk: hunk})
			hunk = nil
			state = stateText

		default:
			switch state {
			case stateText:
				text = append(text, line)
			case stateOurs:
				hunk.OursLines = append(hunk.OursLines, line)
			case stateBase:
				hunk.BaseLines = append(hunk.BaseLines, line)
			case stateTheirs:
				hunk.TheirsLines = append(hunk.TheirsLines, line)
			}
		}
	}

	if state != stateText {
		return nil, fmt.Errorf("%s: unterminated conflict starting at line %d", path, hunk.StartLine)
	}
	if len(text) > 0 {
		parsed.Segments = append(parsed.Segments, Segment{Text: text})
	}

	return parsed, nil
}

// Hunks returns the conflict hunks in file order.
func (p *ParsedFile) Hunks() []*models.ConflictHunk {
	var hunks []*models.ConflictHunk
	for _, seg := range p.Segments {
		if seg.Hunk != nil {
			hunks = append(hunks, seg.Hunk)
		}
	}
	return hunks
}

// ContextBefore returns up to 10 plain-text lines preceding the segment
// at index segIdx.
func (p *ParsedFile) ContextBefore(segIdx int) []string {
	if segIdx <= 0 || p.Segments[segIdx-1].Hunk != nil {
		return nil
	}
	text := p.Segments[segIdx-1].Text
	if len(text) > contextLines {
		text = text[len(text)-contextLines:]
	}
	return text
}

// ContextAfter returns up to 10 plain-text lines following the segment
// at index segIdx.
func (p *ParsedFile) ContextAfter(segIdx int) []string {
	if segIdx >= len(p.Segments)-1 || p.Segments[segIdx+1].Hunk != nil {
		return nil
	}
	text := p.Segments[segIdx+1].Text
	if len(text) > contextLines {
		text = text[:contextLines]
	}
	return text
}

// Reassemble concatenates segments back into file content, substituting
// resolved lines for each hunk. resolved is keyed by hunk index.
func (p *ParsedFile) Reassemble(resolved map[int][]string) (string, error) {
	var out []string
	for _, seg := range p.Segments {
		if seg.Hunk == nil {
			out = append(out, seg.Text...)
			continue
		}
		lines, ok := resolved[seg.Hunk.Index]
		if !ok {
			return "", fmt.Errorf("%s: no resolution for hunk %d", p.Path, seg.Hunk.Index)
		}
		out = append(out, lines...)
	}

	content := strings.Join(out, "\n")
	if p.trailingNewline {
		content += "\n"
	}
	return content, nil
}
