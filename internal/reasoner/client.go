// Package reasoner adapts an external LLM into the bounded, validated
// reasoning step used for functional conflicts and PR dependency
// judgements. Calls are rate limited, capped by a per-run budget, and
// every answer is validated and recorded in an append-only audit trail
// before anything trusts it.
package reasoner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/cohere"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/releaseagent/internal/logging"
	"github.com/releaseagent/internal/retry"
	"github.com/releaseagent/internal/strategy"
	"github.com/releaseagent/pkg/models"
)

// ErrBudgetExhausted is returned once the per-run call budget has been
// consumed. Callers fall back to their deterministic path.
var ErrBudgetExhausted = errors.New("reasoner call budget exhausted")

// Provider identifies a reasoner backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderCohere Provider = "cohere"
	ProviderOllama Provider = "ollama"
)

// Options configure the reasoner client.
type Options struct {
	Provider          Provider
	APIKey            string
	BaseURL           string
	Model             string
	Temperature       float64
	MaxTokens         int
	CallTimeout       time.Duration
	MaxCalls          int
	RequestsPerMinute int
	AuditLogPath      string
}

// Client is the bounded reasoner. It implements strategy.Reasoner and is
// safe for concurrent use.
type Client struct {
	provider    Provider
	model       string
	llm         llms.Model
	limiter     *rate.Limiter
	callTimeout time.Duration
	temperature float64
	maxTokens   int
	budget      *Budget
	audit       *AuditLog
	logger      *logging.RunLogger
	retryCfg    retry.Config
}

// NewClient creates a reasoner client for the configured provider. The
// audit log is opened eagerly so a misconfigured path fails the run
// before any call is made.
func NewClient(ctx context.Context, opts Options, runID string, logger *logging.RunLogger) (*Client, error) {
	log.Debug().
		Str("provider", string(opts.Provider)).
		Str("model", opts.Model).
		Int("max_calls", opts.MaxCalls).
		Dur("call_timeout", opts.CallTimeout).
		Msg("Creating reasoner client")

	var model llms.Model
	var err error
	switch opts.Provider {
	case ProviderOpenAI:
		model, err = createOpenAIModel(opts)
	case ProviderGemini:
		model, err = createGeminiModel(ctx, opts)
	case ProviderClaude:
		model, err = createAnthropicModel(opts)
	case ProviderCohere:
		model, err = createCohereModel(opts)
	case ProviderOllama:
		model, err = createOllamaModel(opts)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", opts.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", opts.Provider, err)
	}

	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 20
	}

	audit, err := NewAuditLog(opts.AuditLogPath, runID)
	if err != nil {
		return nil, err
	}

	return &Client{
		provider:    opts.Provider,
		model:       opts.Model,
		llm:         model,
		limiter:     rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1),
		callTimeout: opts.CallTimeout,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		budget:      NewBudget(opts.MaxCalls),
		audit:       audit,
		logger:      logger,
		retryCfg:    retry.ReasonerConfig(),
	}, nil
}

// NewClientForModel wraps an existing llms.Model. Used by tests and by
// callers that construct the backend themselves.
func NewClientForModel(model llms.Model, opts Options, runID string, logger *logging.RunLogger) (*Client, error) {
	audit, err := NewAuditLog(opts.AuditLogPath, runID)
	if err != nil {
		return nil, err
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 20
	}
	return &Client{
		provider:    opts.Provider,
		model:       opts.Model,
		llm:         model,
		limiter:     rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1),
		callTimeout: opts.CallTimeout,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		budget:      NewBudget(opts.MaxCalls),
		audit:       audit,
		logger:      logger,
		retryCfg:    retry.ReasonerConfig(),
	}, nil
}

// RemainingCalls reports the unconsumed call budget.
func (c *Client) RemainingCalls() int {
	return c.budget.Remaining()
}

// ResolveConflict asks the model for a resolution candidate and validates
// it. A nil outcome with ErrBudgetExhausted means the budget ran out; any
// other error is a transport failure. Outcome.Valid=false means the
// candidate failed validation and must be treated as untrusted.
func (c *Client) ResolveConflict(ctx context.Context, q strategy.ConflictQuery) (*strategy.ReasonerOutcome, error) {
	if !c.budget.Acquire() {
		c.appendAudit(AuditRecord{
			File:        q.File,
			Hunk:        q.Hunk,
			Disposition: DispositionBudgetExhausted,
			Reason:      "per-run call budget consumed",
		}, 0)
		return nil, ErrBudgetExhausted
	}

	prompt := conflictSystemPrompt + "\n\n" + buildConflictPrompt(conflictPromptInput{
		File:          q.File,
		Ours:          q.Ours,
		Theirs:        q.Theirs,
		ContextBefore: q.ContextBefore,
		ContextAfter:  q.ContextAfter,
		Mode:          q.Mode,
	})
	c.logger.LogReasonerRequest(q.File, q.Hunk, c.model, prompt)

	start := time.Now()
	response, err := c.generate(ctx, prompt)
	if err != nil {
		log.Warn().Err(err).Str("file", q.File).Int("hunk", q.Hunk).Msg("Reasoner call failed")
		c.logger.LogError(fmt.Sprintf("reasoner call for %s hunk %d", q.File, q.Hunk), err)
		c.appendAudit(AuditRecord{
			File:          q.File,
			Hunk:          q.Hunk,
			Disposition:   DispositionError,
			Reason:        err.Error(),
			OursPreview:   Preview(q.Ours),
			TheirsPreview: Preview(q.Theirs),
		}, time.Since(start))
		return nil, err
	}
	c.logger.LogReasonerResponse(q.File, q.Hunk, response)

	candidate := splitCandidate(response)
	ok, reason := ValidateCandidate(candidate, q.Ours, q.Theirs)

	disposition := DispositionAccepted
	rationale := "candidate passed syntax and no-invention validation"
	if !ok {
		disposition = DispositionRejected
		rationale = reason
	}
	c.appendAudit(AuditRecord{
		File:             q.File,
		Hunk:             q.Hunk,
		Disposition:      disposition,
		Reason:           rationale,
		OursPreview:      Preview(q.Ours),
		TheirsPreview:    Preview(q.Theirs),
		CandidatePreview: Preview(candidate),
	}, time.Since(start))

	return &strategy.ReasonerOutcome{
		Lines:     candidate,
		Valid:     ok,
		Provider:  string(c.provider),
		Model:     c.model,
		Rationale: rationale,
	}, nil
}

// EvaluateDependency asks the model whether an included PR depends on an
// earlier merged PR touching the same files.
func (c *Client) EvaluateDependency(ctx context.Context, included, earlier models.PRRecord, shared []string) (models.DependencyVerdict, error) {
	pair := fmt.Sprintf("pr-%d-vs-%d", included.Number, earlier.Number)
	if !c.budget.Acquire() {
		c.appendAudit(AuditRecord{
			File:        pair,
			Disposition: DispositionBudgetExhausted,
			Reason:      "per-run call budget consumed",
		}, 0)
		return models.DependencyVerdict{}, ErrBudgetExhausted
	}

	prompt := dependencySystemPrompt + "\n\n" + buildDependencyPrompt(included, earlier, shared)
	c.logger.LogReasonerRequest(pair, 0, c.model, prompt)

	start := time.Now()
	response, err := c.generate(ctx, prompt)
	if err != nil {
		c.appendAudit(AuditRecord{
			File:        pair,
			Disposition: DispositionError,
			Reason:      err.Error(),
		}, time.Since(start))
		return models.DependencyVerdict{}, err
	}
	c.logger.LogReasonerResponse(pair, 0, response)

	var parsed struct {
		Verdict   string `json:"verdict"`
		Rationale string `json:"rationale"`
	}
	if err := decodeLooseJSON(response, &parsed); err != nil {
		c.appendAudit(AuditRecord{
			File:        pair,
			Disposition: DispositionRejected,
			Reason:      err.Error(),
		}, time.Since(start))
		return models.DependencyVerdict{}, err
	}

	verdict := models.DependencyVerdict{Rationale: parsed.Rationale}
	switch strings.ToUpper(strings.TrimSpace(parsed.Verdict)) {
	case "YES_CRITICAL":
		verdict.Dependent = true
		verdict.Critical = true
	case "YES_OPTIONAL":
		verdict.Dependent = true
	case "NO":
	default:
		c.appendAudit(AuditRecord{
			File:        pair,
			Disposition: DispositionRejected,
			Reason:      fmt.Sprintf("unrecognized dependency verdict %q", parsed.Verdict),
		}, time.Since(start))
		return models.DependencyVerdict{}, fmt.Errorf("unrecognized dependency verdict %q", parsed.Verdict)
	}

	c.appendAudit(AuditRecord{
		File:        pair,
		Disposition: DispositionAccepted,
		Reason:      fmt.Sprintf("verdict=%s: %s", parsed.Verdict, parsed.Rationale),
	}, time.Since(start))

	return verdict, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait cancelled: %w", err)
	}

	var response string
	result := retry.WithBackoff(ctx, c.retryCfg, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		callOptions := []llms.CallOption{
			llms.WithTemperature(c.temperature),
		}
		if c.maxTokens > 0 {
			callOptions = append(callOptions, llms.WithMaxTokens(c.maxTokens))
		}
		if c.provider == ProviderGemini && c.model != "" {
			callOptions = append(callOptions, llms.WithModel(c.model))
		}

		out, err := llms.GenerateFromSinglePrompt(callCtx, c.llm, prompt, callOptions...)
		if err != nil {
			// Invalid credentials or a missing model will not heal between
			// attempts; only transport-shaped failures are retried.
			if !retry.IsRetryableError(err) {
				return retry.Permanent(err)
			}
			return err
		}
		response = out
		return nil
	}, c.logger)

	if !result.Success {
		return "", fmt.Errorf("reasoner call failed after %d attempts: %w", result.Attempts, result.LastError)
	}
	return response, nil
}

func (c *Client) appendAudit(rec AuditRecord, elapsed time.Duration) {
	rec.Provider = string(c.provider)
	rec.Model = c.model
	rec.DurationMs = elapsed.Milliseconds()
	if err := c.audit.Append(rec); err != nil {
		log.Warn().Err(err).Msg("Failed to append reasoner audit record")
	}
}

// splitCandidate turns a raw model response into resolution lines,
// dropping fences and trailing blank lines.
func splitCandidate(response string) []string {
	lines := strings.Split(stripCodeFences(response), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return lines
}

func createOpenAIModel(opts Options) (llms.Model, error) {
	o := []openai.Option{
		openai.WithModel(opts.Model),
		openai.WithToken(opts.APIKey),
	}
	if opts.BaseURL != "" {
		o = append(o, openai.WithBaseURL(opts.BaseURL))
	}
	return openai.New(o...)
}

func createGeminiModel(ctx context.Context, opts Options) (llms.Model, error) {
	return googleai.New(ctx, googleai.WithAPIKey(opts.APIKey))
}

func createAnthropicModel(opts Options) (llms.Model, error) {
	return anthropic.New(
		anthropic.WithToken(opts.APIKey),
		anthropic.WithModel(opts.Model),
	)
}

func createCohereModel(opts Options) (llms.Model, error) {
	o := []cohere.Option{
		cohere.WithToken(opts.APIKey),
		cohere.WithModel(opts.Model),
	}
	if opts.BaseURL != "" {
		o = append(o, cohere.WithBaseURL(opts.BaseURL))
	}
	return cohere.New(o...)
}

func createOllamaModel(opts Options) (llms.Model, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(opts.Model),
	)
}
