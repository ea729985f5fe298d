// Package deps finds hidden prerequisites among the PRs selected for a
// release: an included PR that builds on an earlier merged PR which is
// not in the selection. File overlap nominates candidate pairs cheaply;
// the reasoner then judges whether the overlap is a real dependency.
package deps

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/releaseagent/pkg/models"
)

// Evaluator judges whether one PR depends on an earlier one. Implemented
// by the reasoner client.
type Evaluator interface {
	EvaluateDependency(ctx context.Context, included, earlier models.PRRecord, shared []string) (models.DependencyVerdict, error)
}

// Options tune the analyzer.
type Options struct {
	// AssumeDependentOnFailure controls the verdict when evaluation
	// fails: true records a non-critical dependency so a human sees the
	// pair, false drops it.
	AssumeDependentOnFailure bool
}

// Analyzer correlates included PRs against the merge history.
type Analyzer struct {
	eval Evaluator
	opts Options
}

// NewAnalyzer creates an Analyzer. eval may be nil, in which case every
// file-overlap pair follows the failure policy.
func NewAnalyzer(eval Evaluator, opts Options) *Analyzer {
	return &Analyzer{eval: eval, opts: opts}
}

// Analyze returns a finding for every included PR that depends on an
// earlier merged PR outside the selection. Candidate pairs come from file
// overlap; only PRs merged strictly before the included PR qualify, since
// a PR cannot build on code that landed after it.
func (a *Analyzer) Analyze(ctx context.Context, included, merged []models.PRRecord) []models.DependencyFinding {
	includedSet := make(map[int]struct{}, len(included))
	for _, pr := range included {
		includedSet[pr.Number] = struct{}{}
	}

	fileIndex := make(map[string][]models.PRRecord)
	for _, pr := range merged {
		for _, f := range pr.FilesChanged {
			fileIndex[f] = append(fileIndex[f], pr)
		}
	}

	var findings []models.DependencyFinding
	for _, inc := range included {
		shared := make(map[int][]string)
		earlierByNumber := make(map[int]models.PRRecord)
		for _, f := range inc.FilesChanged {
			for _, other := range fileIndex[f] {
				if other.Number == inc.Number {
					continue
				}
				if _, isIncluded := includedSet[other.Number]; isIncluded {
					continue
				}
				if !other.MergedAt.Before(inc.MergedAt) {
					continue
				}
				shared[other.Number] = append(shared[other.Number], f)
				earlierByNumber[other.Number] = other
			}
		}

		// Deterministic pair order keeps reruns comparable.
		numbers := make([]int, 0, len(shared))
		for n := range shared {
			numbers = append(numbers, n)
		}
		sort.Ints(numbers)

		for _, n := range numbers {
			earlier := earlierByNumber[n]
			verdict := a.evaluate(ctx, inc, earlier, shared[n])
			if !verdict.Dependent {
				continue
			}
			findings = append(findings, models.DependencyFinding{
				IncludedPR:     inc.Number,
				IncludedTitle:  inc.Title,
				DependsOnPR:    earlier.Number,
				DependsOnTitle: earlier.Title,
				SharedFiles:    shared[n],
				IsCritical:     verdict.Critical,
				Rationale:      verdict.Rationale,
			})
		}
	}

	return findings
}

func (a *Analyzer) evaluate(ctx context.Context, inc, earlier models.PRRecord, shared []string) models.DependencyVerdict {
	if a.eval == nil {
		return models.DependencyVerdict{
			Dependent: a.opts.AssumeDependentOnFailure,
			Rationale: "no evaluator configured; file overlap only",
		}
	}

	verdict, err := a.eval.EvaluateDependency(ctx, inc, earlier, shared)
	if err != nil {
		log.Warn().Err(err).
			Int("included_pr", inc.Number).
			Int("earlier_pr", earlier.Number).
			Msg("Dependency evaluation failed, applying failure policy")
		return models.DependencyVerdict{
			Dependent: a.opts.AssumeDependentOnFailure,
			Rationale: "evaluation failed: " + err.Error(),
		}
	}
	return verdict
}

// OrderOperations inserts each critical dependency into the operation
// list immediately before its earliest dependent, preserving the caller's
// order otherwise. AutoIncluded flips on the affected findings exactly
// once; reapplying the function is a no-op.
func OrderOperations(included []models.PRRecord, findings []models.DependencyFinding, lookup func(int) (models.PRRecord, bool)) []models.PRRecord {
	out := append([]models.PRRecord{}, included...)

	indexOf := func(number int) int {
		for i, pr := range out {
			if pr.Number == number {
				return i
			}
		}
		return -1
	}

	for i := range findings {
		f := &findings[i]
		if !f.IsCritical || f.AutoIncluded {
			continue
		}
		if indexOf(f.DependsOnPR) != -1 {
			f.AutoIncluded = true
			continue
		}

		dep, ok := lookup(f.DependsOnPR)
		if !ok {
			log.Warn().Int("pr", f.DependsOnPR).Msg("Critical dependency not found in merge history, cannot auto-include")
			continue
		}

		// Earliest position among every critical dependent of this PR.
		insertAt := len(out)
		for _, other := range findings {
			if other.DependsOnPR != f.DependsOnPR || !other.IsCritical {
				continue
			}
			if idx := indexOf(other.IncludedPR); idx != -1 && idx < insertAt {
				insertAt = idx
			}
		}

		out = append(out, models.PRRecord{})
		copy(out[insertAt+1:], out[insertAt:])
		out[insertAt] = dep

		for j := range findings {
			if findings[j].DependsOnPR == f.DependsOnPR && findings[j].IsCritical {
				findings[j].AutoIncluded = true
			}
		}

		log.Info().
			Int("pr", dep.Number).
			Int("before_pr", out[insertAt+1].Number).
			Msg("Auto-included critical dependency")
	}

	return out
}
