package reasoner

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/releaseagent/internal/strategy"
	"github.com/releaseagent/pkg/models"
)

// fakeModel implements llms.Model with canned responses.
type fakeModel struct {
	response string
	err      error
	calls    int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	f.calls++
	return f.response, f.err
}

func newTestClient(t *testing.T, model llms.Model, maxCalls int) *Client {
	t.Helper()
	c, err := NewClientForModel(model, Options{
		Provider:          "fake",
		Model:             "fake-1",
		MaxCalls:          maxCalls,
		RequestsPerMinute: 6000,
		AuditLogPath:      filepath.Join(t.TempDir(), "audit.jsonl"),
	}, "testrun", nil)
	require.NoError(t, err)
	// No backoff delays in tests.
	c.retryCfg.MaxRetries = 0
	return c
}

func sampleQuery() strategy.ConflictQuery {
	return strategy.ConflictQuery{
		File:   "src/device.c",
		Hunk:   1,
		Ours:   []string{"rc = apply(cfg);"},
		Theirs: []string{"if (cfg == NULL) { return -1; }", "rc = apply(cfg);"},
		Mode:   models.ModeCherryPick,
	}
}

func TestResolveConflictAcceptsValidCandidate(t *testing.T) {
	model := &fakeModel{response: "if (cfg == NULL) {\n    return -1;\n}\nrc = apply(cfg);"}
	c := newTestClient(t, model, 5)

	outcome, err := c.ResolveConflict(context.Background(), sampleQuery())
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.True(t, outcome.Valid)
	assert.Equal(t, []string{
		"if (cfg == NULL) {",
		"    return -1;",
		"}",
		"rc = apply(cfg);",
	}, outcome.Lines)
}

func TestResolveConflictStripsFences(t *testing.T) {
	model := &fakeModel{response: "```c\nrc = apply(cfg);\n```"}
	c := newTestClient(t, model, 5)

	outcome, err := c.ResolveConflict(context.Background(), sampleQuery())
	require.NoError(t, err)
	assert.Equal(t, []string{"rc = apply(cfg);"}, outcome.Lines)
}

func TestResolveConflictMarksInvalidCandidate(t *testing.T) {
	model := &fakeModel{response: "totally_invented_call(cfg);"}
	c := newTestClient(t, model, 5)

	outcome, err := c.ResolveConflict(context.Background(), sampleQuery())
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.False(t, outcome.Valid)
	assert.Contains(t, outcome.Rationale, "totally_invented_call")
}

func TestResolveConflictBudgetExhausted(t *testing.T) {
	model := &fakeModel{response: "rc = apply(cfg);"}
	c := newTestClient(t, model, 1)

	_, err := c.ResolveConflict(context.Background(), sampleQuery())
	require.NoError(t, err)

	outcome, err := c.ResolveConflict(context.Background(), sampleQuery())
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.Equal(t, 1, model.calls)
}

func TestResolveConflictTransportError(t *testing.T) {
	model := &fakeModel{err: errors.New("connection refused by test")}
	c := newTestClient(t, model, 5)

	outcome, err := c.ResolveConflict(context.Background(), sampleQuery())
	assert.Nil(t, outcome)
	assert.Error(t, err)
	// The failed call still consumed its budget slot.
	assert.Equal(t, 4, c.RemainingCalls())
}

func TestAuditTrailIsAppendOnlyJSONL(t *testing.T) {
	model := &fakeModel{response: "rc = apply(cfg);"}
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	c, err := NewClientForModel(model, Options{
		Provider:          "fake",
		Model:             "fake-1",
		MaxCalls:          1,
		RequestsPerMinute: 6000,
		AuditLogPath:      path,
	}, "testrun", nil)
	require.NoError(t, err)
	c.retryCfg.MaxRetries = 0

	_, err = c.ResolveConflict(context.Background(), sampleQuery())
	require.NoError(t, err)
	_, err = c.ResolveConflict(context.Background(), sampleQuery())
	require.ErrorIs(t, err, ErrBudgetExhausted)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []AuditRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec AuditRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}

	require.Len(t, records, 2)
	assert.Equal(t, DispositionAccepted, records[0].Disposition)
	assert.Equal(t, DispositionBudgetExhausted, records[1].Disposition)
	assert.Equal(t, "testrun", records[0].RunID)
}

func TestEvaluateDependencyVerdicts(t *testing.T) {
	included := models.PRRecord{Number: 120, Title: "Use new telemetry field"}
	earlier := models.PRRecord{Number: 101, Title: "Add telemetry field"}

	cases := []struct {
		response  string
		dependent bool
		critical  bool
	}{
		{`{"verdict": "YES_CRITICAL", "rationale": "uses a symbol the earlier PR introduces"}`, true, true},
		{`{"verdict": "YES_OPTIONAL", "rationale": "extends the earlier change"}`, true, false},
		{`{"verdict": "NO", "rationale": "unrelated edits"}`, false, false},
	}

	for _, tc := range cases {
		c := newTestClient(t, &fakeModel{response: tc.response}, 5)
		verdict, err := c.EvaluateDependency(context.Background(), included, earlier, []string{"telemetry.c"})
		require.NoError(t, err, tc.response)
		assert.Equal(t, tc.dependent, verdict.Dependent)
		assert.Equal(t, tc.critical, verdict.Critical)
	}
}

func TestEvaluateDependencyRepairsSloppyJSON(t *testing.T) {
	// Fenced, trailing comma, unquoted key: all shapes models emit.
	response := "```json\n{verdict: \"YES_CRITICAL\", \"rationale\": \"shared struct layout\",}\n```"
	c := newTestClient(t, &fakeModel{response: response}, 5)

	verdict, err := c.EvaluateDependency(context.Background(),
		models.PRRecord{Number: 2}, models.PRRecord{Number: 1}, []string{"a.c"})
	require.NoError(t, err)
	assert.True(t, verdict.Critical)
}

func TestEvaluateDependencyUnknownVerdict(t *testing.T) {
	c := newTestClient(t, &fakeModel{response: `{"verdict": "MAYBE"}`}, 5)

	_, err := c.EvaluateDependency(context.Background(),
		models.PRRecord{Number: 2}, models.PRRecord{Number: 1}, []string{"a.c"})
	assert.Error(t, err)
}

func TestResolveConflictDoesNotRetryAuthErrors(t *testing.T) {
	model := &fakeModel{err: errors.New("invalid api key")}
	c := newTestClient(t, model, 5)
	// Leave retries enabled so a wrongly retried failure would show up
	// as extra model calls.
	c.retryCfg.MaxRetries = 3
	c.retryCfg.BaseDelay = time.Millisecond
	c.retryCfg.MaxDelay = time.Millisecond

	outcome, err := c.ResolveConflict(context.Background(), sampleQuery())
	assert.Nil(t, outcome)
	assert.Error(t, err)
	assert.Equal(t, 1, model.calls, "auth failures are not transport flakes")
}

func TestEvaluateDependencyAuditsFailures(t *testing.T) {
	model := &fakeModel{response: `{"verdict": "MAYBE"}`}
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	c, err := NewClientForModel(model, Options{
		Provider:          "fake",
		Model:             "fake-1",
		MaxCalls:          1,
		RequestsPerMinute: 6000,
		AuditLogPath:      path,
	}, "testrun", nil)
	require.NoError(t, err)
	c.retryCfg.MaxRetries = 0

	included := models.PRRecord{Number: 7}
	earlier := models.PRRecord{Number: 3}

	_, err = c.EvaluateDependency(context.Background(), included, earlier, []string{"a.c"})
	require.Error(t, err)
	_, err = c.EvaluateDependency(context.Background(), included, earlier, []string{"a.c"})
	require.ErrorIs(t, err, ErrBudgetExhausted)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []AuditRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec AuditRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}

	require.Len(t, records, 2)
	assert.Equal(t, DispositionRejected, records[0].Disposition)
	assert.Contains(t, records[0].Reason, "MAYBE")
	assert.Equal(t, DispositionBudgetExhausted, records[1].Disposition)
	assert.Equal(t, "pr-7-vs-3", records[1].File)
}
