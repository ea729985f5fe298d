// Package vcs wraps the git operations a triage run needs: applying
// cherry-picks and reverts, inspecting unmerged paths, and staging
// resolutions. All commands run against an explicit repository directory.
package vcs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

// Git runs git commands in a fixed repository directory.
type Git struct {
	repoDir string
}

// NewGit creates a Git bound to repoDir.
func NewGit(repoDir string) *Git {
	return &Git{repoDir: repoDir}
}

// RepoDir returns the repository directory this instance operates on.
func (g *Git) RepoDir() string {
	return g.repoDir
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", g.repoDir}, args...)...)
	out, err := cmd.CombinedOutput()
	output := strings.TrimRight(string(out), "\n")

	log.Debug().
		Str("args", strings.Join(args, " ")).
		Bool("failed", err != nil).
		Msg("Executed git command")

	if err != nil {
		return output, fmt.Errorf("git %s failed: %w: %s", args[0], err, output)
	}
	return output, nil
}

// StatusEntry is one line of porcelain status output.
type StatusEntry struct {
	XY   string
	Path string
}

// UnmergedEntries returns porcelain status entries for paths in a
// conflicted state. Entries in settled states are skipped.
func (g *Git) UnmergedEntries(ctx context.Context) ([]StatusEntry, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseUnmergedStatus(out), nil
}

func parseUnmergedStatus(out string) []StatusEntry {
	var entries []StatusEntry
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		xy := line[:2]
		if !strings.Contains(xy, "U") && xy != "AA" && xy != "DD" {
			continue
		}
		path := strings.TrimSpace(line[3:])
		// Rename entries carry "orig -> new"; the new path is the one in
		// the working tree.
		if idx := strings.Index(path, " -> "); idx != -1 {
			path = path[idx+4:]
		}
		entries = append(entries, StatusEntry{XY: xy, Path: strings.Trim(path, `"`)})
	}
	return entries
}

// CherryPick applies a commit without committing, leaving conflicts in
// the working tree for triage.
func (g *Git) CherryPick(ctx context.Context, sha string) error {
	_, err := g.run(ctx, "cherry-pick", "--no-commit", sha)
	return err
}

// Revert applies the inverse of a commit without committing.
func (g *Git) Revert(ctx context.Context, sha string) error {
	_, err := g.run(ctx, "revert", "--no-commit", sha)
	return err
}

// CheckoutSide restores a conflicted path from one side and stages it.
// side is "ours" or "theirs".
func (g *Git) CheckoutSide(ctx context.Context, path, side string) error {
	if _, err := g.run(ctx, "checkout", "--"+side, "--", path); err != nil {
		return err
	}
	return g.Add(ctx, path)
}

// Add stages a path.
func (g *Git) Add(ctx context.Context, path string) error {
	_, err := g.run(ctx, "add", "--", path)
	return err
}

// Remove deletes a path from the index and working tree.
func (g *Git) Remove(ctx context.Context, path string) error {
	_, err := g.run(ctx, "rm", "-f", "--", path)
	return err
}

// Commit records the staged state with the given message.
func (g *Git) Commit(ctx context.Context, message string) error {
	_, err := g.run(ctx, "commit", "-m", message)
	return err
}

// AbortOperation abandons an in-progress cherry-pick or revert, restoring
// the pre-operation tree.
func (g *Git) AbortOperation(ctx context.Context, op string) error {
	_, err := g.run(ctx, op, "--abort")
	return err
}

// HeadSHA returns the current HEAD commit.
func (g *Git) HeadSHA(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "HEAD")
}
