// Package triage drives a whole run: apply each cherry-pick or revert,
// classify what git could not merge, resolve what the rules allow, and
// leave everything else conflicted for a human.
package triage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/releaseagent/internal/logging"
	"github.com/releaseagent/internal/merge"
	"github.com/releaseagent/internal/report"
	"github.com/releaseagent/internal/strategy"
	"github.com/releaseagent/internal/vcs"
	"github.com/releaseagent/pkg/models"
)

// Options configure a triage run.
type Options struct {
	Mode          models.Mode
	RepoDir       string
	MinConfidence models.Confidence
	SafetyPrefer  bool
	BracePref     strategy.BracePreference
	Parallelism   int
	// AlwaysFallback resolves below-floor files to the mode-preferred
	// side instead of leaving them conflicted. Every such hunk is
	// recorded at Review confidence.
	AlwaysFallback bool
}

// Runner executes operations against a working tree.
type Runner struct {
	opts     Options
	git      *vcs.Git
	resolver *merge.FileResolver
	logger   *logging.RunLogger
}

// NewRunner builds a Runner. reasoner may be nil.
func NewRunner(opts Options, reasoner strategy.Reasoner, logger *logging.RunLogger) *Runner {
	engine := strategy.New(strategy.Options{
		Mode:         opts.Mode,
		SafetyPrefer: opts.SafetyPrefer,
		BracePref:    opts.BracePref,
	}, reasoner)

	return &Runner{
		opts:     opts,
		git:      vcs.NewGit(opts.RepoDir),
		resolver: merge.NewFileResolver(engine, opts.Mode, opts.MinConfidence, opts.Parallelism, logger),
		logger:   logger,
	}
}

// Run applies each operation in order. It stops at the first operation
// that leaves files needing manual resolution, keeping the tree in that
// state so a human can finish it.
func (r *Runner) Run(ctx context.Context, operations []models.PRRecord) ([]report.FileReport, error) {
	var all []report.FileReport
	for _, pr := range operations {
		r.logger.LogSection(fmt.Sprintf("%s PR #%d: %s", r.opts.Mode, pr.Number, pr.Title))

		files, err := r.ApplyOperation(ctx, pr)
		all = append(all, files...)
		if err != nil {
			return all, fmt.Errorf("PR #%d: %w", pr.Number, err)
		}
	}
	return all, nil
}

// ApplyOperation applies one cherry-pick or revert and triages its
// conflicts. The operation is committed only when every conflicted file
// was resolved; otherwise the working tree keeps the partial state and an
// error describes what is left.
func (r *Runner) ApplyOperation(ctx context.Context, pr models.PRRecord) ([]report.FileReport, error) {
	if pr.MergeSHA == "" {
		return nil, fmt.Errorf("no merge commit recorded for PR #%d", pr.Number)
	}

	var applyErr error
	switch r.opts.Mode {
	case models.ModeRevert:
		applyErr = r.git.Revert(ctx, pr.MergeSHA)
	default:
		applyErr = r.git.CherryPick(ctx, pr.MergeSHA)
	}

	entries, err := r.git.UnmergedEntries(ctx)
	if err != nil {
		return nil, err
	}
	if applyErr != nil && len(entries) == 0 {
		// The operation failed for a reason other than conflicts.
		return nil, applyErr
	}

	files, unresolved := r.triageEntries(ctx, entries)
	if unresolved > 0 {
		return files, fmt.Errorf("%d file(s) need manual resolution", unresolved)
	}

	message := fmt.Sprintf("%s PR #%d: %s", commitVerb(r.opts.Mode), pr.Number, pr.Title)
	if err := r.git.Commit(ctx, message); err != nil {
		return files, err
	}
	return files, nil
}

func (r *Runner) triageEntries(ctx context.Context, entries []vcs.StatusEntry) ([]report.FileReport, int) {
	var files []report.FileReport
	unresolved := 0

	for _, entry := range entries {
		action, why := vcs.Triage(entry.XY, r.opts.Mode)
		log.Info().
			Str("file", entry.Path).
			Str("state", entry.XY).
			Str("action", action.String()).
			Msg(why)
		r.logger.Log("TRIAGE %s [%s]: %s", entry.Path, entry.XY, why)

		fr := r.applyAction(ctx, entry, action, why)
		if fr.Status == report.FileAborted {
			unresolved++
		}
		files = append(files, fr)
	}

	return files, unresolved
}

func (r *Runner) applyAction(ctx context.Context, entry vcs.StatusEntry, action vcs.Action, why string) report.FileReport {
	switch action {
	case vcs.ActionResolveContent:
		return r.resolveContent(ctx, entry.Path)

	case vcs.ActionKeepOurs, vcs.ActionKeepTheirs:
		side := "ours"
		if action == vcs.ActionKeepTheirs {
			side = "theirs"
		}
		if err := r.git.CheckoutSide(ctx, entry.Path, side); err != nil {
			// add/add and rename states sometimes have no stage for the
			// requested side; the marker-level resolver still can.
			r.logger.LogError("checkout --"+side+" "+entry.Path, err)
			return r.resolveContent(ctx, entry.Path)
		}
		return report.FileReport{Path: entry.Path, Status: report.FileResolved, Action: why}

	case vcs.ActionDelete:
		if err := r.git.Remove(ctx, entry.Path); err != nil {
			r.logger.LogError("git rm "+entry.Path, err)
			return report.FileReport{Path: entry.Path, Status: report.FileAborted, Action: err.Error()}
		}
		return report.FileReport{Path: entry.Path, Status: report.FileResolved, Action: why}
	}

	return report.FileReport{Path: entry.Path, Status: report.FileAborted, Action: why}
}

// resolveContent runs the marker-level resolver on one file and writes
// the result back only when nothing fell below the confidence floor.
func (r *Runner) resolveContent(ctx context.Context, path string) report.FileReport {
	fullPath := filepath.Join(r.opts.RepoDir, path)

	data, err := os.ReadFile(fullPath)
	if err != nil {
		// Losing access to the file mid-run is the catastrophic case:
		// record it at the floor-proof Low confidence and keep hands off.
		r.logger.LogError("read "+path, err)
		return report.FileReport{
			Path:   path,
			Status: report.FileAborted,
			Action: err.Error(),
			Resolutions: []models.HunkResolution{{
				File:       path,
				Hunk:       0,
				ChangeType: models.ChangeFunctional,
				Confidence: models.ConfidenceLow.String(),
				Reason:     "file could not be read: " + err.Error(),
			}},
		}
	}

	outcome, err := r.resolver.Resolve(ctx, path, string(data))
	if err != nil {
		r.logger.LogError("resolve "+path, err)
		return report.FileReport{Path: path, Status: report.FileAborted, Action: err.Error()}
	}

	if outcome.Aborted && r.opts.AlwaysFallback {
		outcome, err = r.resolver.ResolvePreferred(path, string(data))
		if err != nil {
			r.logger.LogError("fallback resolve "+path, err)
			return report.FileReport{Path: path, Status: report.FileAborted, Action: err.Error()}
		}
	}

	if outcome.Aborted {
		return report.FileReport{
			Path:        path,
			Status:      report.FileAborted,
			Action:      "a hunk fell below the confidence floor",
			Resolutions: outcome.Resolutions,
		}
	}

	if err := os.WriteFile(fullPath, []byte(outcome.Content), 0644); err != nil {
		r.logger.LogError("write "+path, err)
		return report.FileReport{Path: path, Status: report.FileAborted, Action: err.Error()}
	}
	if err := r.git.Add(ctx, path); err != nil {
		r.logger.LogError("git add "+path, err)
		return report.FileReport{Path: path, Status: report.FileAborted, Action: err.Error()}
	}

	return report.FileReport{
		Path:        path,
		Status:      report.FileResolved,
		Resolutions: outcome.Resolutions,
	}
}

func commitVerb(mode models.Mode) string {
	if mode == models.ModeRevert {
		return "Revert"
	}
	return "Cherry-pick"
}
