package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/releaseagent/pkg/models"
)

type fakeReasoner struct {
	outcome *ReasonerOutcome
	err     error
	calls   int
}

func (f *fakeReasoner) ResolveConflict(ctx context.Context, q ConflictQuery) (*ReasonerOutcome, error) {
	f.calls++
	return f.outcome, f.err
}

func newEngine(mode models.Mode, r Reasoner) *Engine {
	return New(Options{Mode: mode, SafetyPrefer: true}, r)
}

func resolve(t *testing.T, e *Engine, ours, theirs []string) models.ResolutionResult {
	t.Helper()
	return e.Resolve(context.Background(), ConflictQuery{
		File:   "src/demo.c",
		Ours:   ours,
		Theirs: theirs,
		Mode:   models.ModeCherryPick,
	})
}

func TestResolveWhitespaceOnly(t *testing.T) {
	e := newEngine(models.ModeCherryPick, nil)
	res := resolve(t, e, []string{"  int x=1;  "}, []string{"int x=1;"})

	assert.Equal(t, models.ChangeWhitespaceOnly, res.ChangeType)
	assert.Equal(t, models.ConfidenceHigh, res.Confidence)
	assert.Equal(t, []string{"int x=1;"}, res.ResolvedLines)
}

func TestResolveIncludeMerge(t *testing.T) {
	e := newEngine(models.ModeCherryPick, nil)
	res := resolve(t, e,
		[]string{`#include <stdio.h>`},
		[]string{`#include <stdio.h>`, `#include <string.h>`},
	)

	assert.Equal(t, models.ChangeIncludeReorder, res.ChangeType)
	assert.Equal(t, models.ConfidenceHigh, res.Confidence)

	counts := map[string]int{}
	for _, l := range res.ResolvedLines {
		counts[l]++
	}
	assert.Equal(t, 1, counts[`#include <stdio.h>`])
	assert.Equal(t, 1, counts[`#include <string.h>`])
}

func TestResolveSafetyPrefersNullCheck(t *testing.T) {
	e := newEngine(models.ModeCherryPick, nil)
	res := resolve(t, e, []string{"x = 42;"}, []string{"if (ptr == NULL) return;"})

	assert.Equal(t, models.ChangeNullCheckAdded, res.ChangeType)
	assert.Equal(t, models.ConfidenceMedium, res.Confidence)
	assert.Equal(t, []string{"if (ptr == NULL) return;"}, res.ResolvedLines)
}

func TestResolveFunctionalFallbackByMode(t *testing.T) {
	ours := []string{"return 1;"}
	theirs := []string{"return 2;"}

	cherry := newEngine(models.ModeCherryPick, nil)
	res := cherry.Resolve(context.Background(), ConflictQuery{
		File: "a.c", Ours: ours, Theirs: theirs, Mode: models.ModeCherryPick,
	})
	assert.Equal(t, models.ChangeFunctional, res.ChangeType)
	assert.Equal(t, models.ConfidenceReview, res.Confidence)
	assert.Equal(t, theirs, res.ResolvedLines)
	assert.Contains(t, res.Reason, "manual verification")

	revert := newEngine(models.ModeRevert, nil)
	res = revert.Resolve(context.Background(), ConflictQuery{
		File: "a.c", Ours: ours, Theirs: theirs, Mode: models.ModeRevert,
	})
	assert.Equal(t, models.ConfidenceReview, res.Confidence)
	assert.Equal(t, ours, res.ResolvedLines)
}

func TestResolveCommentPrefersMoreVerbose(t *testing.T) {
	e := newEngine(models.ModeCherryPick, nil)
	res := resolve(t, e,
		[]string{"// detailed explanation of the invariant at play"},
		[]string{"// note"},
	)

	assert.Equal(t, models.ChangeCommentOnly, res.ChangeType)
	assert.Equal(t, models.ConfidenceHigh, res.Confidence)
	assert.Equal(t, []string{"// detailed explanation of the invariant at play"}, res.ResolvedLines)
}

func TestResolveBothSidesAddSafety(t *testing.T) {
	e := newEngine(models.ModeCherryPick, nil)
	ours := []string{"free(buffer);"}
	theirs := []string{"if (ptr == NULL) return;"}
	res := resolve(t, e, ours, theirs)

	assert.Equal(t, models.ConfidenceMedium, res.Confidence)
	assert.Equal(t, append(append([]string{}, ours...), theirs...), res.ResolvedLines)
}

func TestResolveValidReasonerCandidate(t *testing.T) {
	fake := &fakeReasoner{outcome: &ReasonerOutcome{
		Lines:     []string{"return 3;"},
		Valid:     true,
		Provider:  "fake",
		Model:     "fake-1",
		Rationale: "combined both changes",
	}}
	e := newEngine(models.ModeCherryPick, fake)
	res := resolve(t, e, []string{"return 1;"}, []string{"return 2;"})

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, models.ConfidenceMedium, res.Confidence)
	assert.Equal(t, []string{"return 3;"}, res.ResolvedLines)
}

func TestResolveInvalidReasonerCandidateDowngrades(t *testing.T) {
	fake := &fakeReasoner{outcome: &ReasonerOutcome{
		Lines:    []string{"call_nonexistent();"},
		Valid:    false,
		Provider: "fake",
		Model:    "fake-1",
	}}
	e := newEngine(models.ModeCherryPick, fake)
	res := resolve(t, e, []string{"return 1;"}, []string{"return 2;"})

	assert.Equal(t, models.ConfidenceReview, res.Confidence)
	assert.Equal(t, []string{"return 2;"}, res.ResolvedLines)
	assert.Contains(t, res.Reason, "manual verification")
}

func TestResolveReasonerErrorFallsBack(t *testing.T) {
	fake := &fakeReasoner{err: errors.New("budget exhausted")}
	e := newEngine(models.ModeCherryPick, fake)
	res := resolve(t, e, []string{"return 1;"}, []string{"return 2;"})

	assert.Equal(t, models.ConfidenceReview, res.Confidence)
	assert.Equal(t, []string{"return 2;"}, res.ResolvedLines)
}

func TestDeterministicStrategiesNeverCallReasoner(t *testing.T) {
	fake := &fakeReasoner{outcome: &ReasonerOutcome{Valid: true}}
	e := newEngine(models.ModeCherryPick, fake)

	resolve(t, e, []string{"  int x=1;  "}, []string{"int x=1;"})
	resolve(t, e, []string{`#include <a.h>`}, []string{`#include <b.h>`})
	resolve(t, e, []string{"// a"}, []string{"// bb"})

	assert.Equal(t, 0, fake.calls)
}

func TestMergeIncludesGroupingAndOrder(t *testing.T) {
	merged := MergeIncludes(
		[]string{`#include <zlib.h>`, `#include "local_b.h"`},
		[]string{`#include <ansc_platform.h>`, `#include "local_a.h"`, `#include <zlib.h>`},
	)

	require.Equal(t, []string{
		`#include "local_a.h"`,
		`#include "local_b.h"`,
		`#include <ansc_platform.h>`,
		`#include <zlib.h>`,
	}, merged)
}

func TestMergeIncludesIdempotent(t *testing.T) {
	once := MergeIncludes(
		[]string{`#include <stdio.h>`, `#include "x.h"`},
		[]string{`#include <string.h>`},
	)
	twice := MergeIncludes(once, once)
	assert.Equal(t, once, twice)
}
