package merge

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/releaseagent/internal/logging"
	"github.com/releaseagent/internal/strategy"
	"github.com/releaseagent/pkg/models"
)

// FileResolver resolves all conflict hunks in one file. Hunks are
// independent, so they fan out across workers; the abort decision waits
// for every hunk to finish.
type FileResolver struct {
	engine        *strategy.Engine
	mode          models.Mode
	minConfidence models.Confidence
	parallelism   int
	logger        *logging.RunLogger
}

// FileOutcome reports how one file fared. When Aborted is true Content is
// empty and the caller must not write anything back.
type FileOutcome struct {
	Path        string
	Content     string
	Aborted     bool
	Resolutions []models.HunkResolution
	// Lowest is the weakest confidence among the file's hunks; it drives
	// the abort decision and the run summary.
	Lowest models.Confidence
}

// NewFileResolver creates a resolver. parallelism <= 0 means sequential.
func NewFileResolver(engine *strategy.Engine, mode models.Mode, minConfidence models.Confidence, parallelism int, logger *logging.RunLogger) *FileResolver {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &FileResolver{
		engine:        engine,
		mode:          mode,
		minConfidence: minConfidence,
		parallelism:   parallelism,
		logger:        logger,
	}
}

// Resolve parses content, resolves every hunk, and either reassembles the
// file or marks it aborted. All hunks are resolved before the abort
// decision so the records show the full picture even for aborted files.
func (r *FileResolver) Resolve(ctx context.Context, path, content string) (*FileOutcome, error) {
	parsed, err := ParseConflicts(path, content)
	if err != nil {
		return nil, err
	}

	type slot struct {
		segIdx int
		hunk   *models.ConflictHunk
	}
	var slots []slot
	for i, seg := range parsed.Segments {
		if seg.Hunk != nil {
			slots = append(slots, slot{segIdx: i, hunk: seg.Hunk})
		}
	}

	if len(slots) == 0 {
		return &FileOutcome{Path: path, Content: content, Lowest: models.ConfidenceHigh}, nil
	}

	results := make([]models.ResolutionResult, len(slots))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, s := range slots {
		g.Go(func() error {
			results[i] = r.engine.Resolve(gctx, strategy.ConflictQuery{
				File:          path,
				Hunk:          s.hunk.Index,
				Ours:          s.hunk.OursLines,
				Theirs:        s.hunk.TheirsLines,
				ContextBefore: parsed.ContextBefore(s.segIdx),
				ContextAfter:  parsed.ContextAfter(s.segIdx),
				Mode:          r.mode,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outcome := &FileOutcome{Path: path, Lowest: models.ConfidenceHigh}
	resolved := make(map[int][]string, len(slots))
	for i, s := range slots {
		res := results[i]
		if res.Confidence < outcome.Lowest {
			outcome.Lowest = res.Confidence
		}
		resolved[s.hunk.Index] = res.ResolvedLines
		outcome.Resolutions = append(outcome.Resolutions, models.HunkResolution{
			File:       path,
			Hunk:       s.hunk.Index,
			ChangeType: res.ChangeType,
			Confidence: res.Confidence.String(),
			Reason:     res.Reason,
		})
		r.logger.LogHunk(path, s.hunk.Index, string(res.ChangeType), res.Confidence.String(), res.Reason)
	}

	if !outcome.Lowest.Meets(r.minConfidence) {
		outcome.Aborted = true
		log.Info().
			Str("file", path).
			Str("lowest_confidence", outcome.Lowest.String()).
			Str("min_confidence", r.minConfidence.String()).
			Msg("File left conflicted: a hunk fell below the confidence floor")
		return outcome, nil
	}

	contentOut, err := parsed.Reassemble(resolved)
	if err != nil {
		return nil, err
	}
	outcome.Content = contentOut
	return outcome, nil
}

// ResolvePreferred resolves every hunk to the mode-preferred side at
// Review confidence. This is the last-resort pass for files the main
// resolver aborted, used only when the run is configured to always
// produce a tree without markers.
func (r *FileResolver) ResolvePreferred(path, content string) (*FileOutcome, error) {
	parsed, err := ParseConflicts(path, content)
	if err != nil {
		return nil, err
	}

	outcome := &FileOutcome{Path: path, Lowest: models.ConfidenceReview}
	resolved := make(map[int][]string)
	preferLabel := r.mode.PreferredLabel()
	for _, hunk := range parsed.Hunks() {
		lines := hunk.OursLines
		if r.mode.PreferTheirs() {
			lines = hunk.TheirsLines
		}
		resolved[hunk.Index] = lines
		outcome.Resolutions = append(outcome.Resolutions, models.HunkResolution{
			File:       path,
			Hunk:       hunk.Index,
			ChangeType: models.ChangeFunctional,
			Confidence: models.ConfidenceReview.String(),
			Reason:     "standard pass: kept " + preferLabel + "; requires manual verification",
		})
	}
	if len(resolved) == 0 {
		outcome.Lowest = models.ConfidenceHigh
		outcome.Content = content
		return outcome, nil
	}

	contentOut, err := parsed.Reassemble(resolved)
	if err != nil {
		return nil, err
	}
	outcome.Content = contentOut
	return outcome, nil
}
