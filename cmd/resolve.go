package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/releaseagent/internal/config"
	"github.com/releaseagent/internal/hosting"
	"github.com/releaseagent/internal/logging"
	"github.com/releaseagent/internal/reasoner"
	"github.com/releaseagent/internal/report"
	"github.com/releaseagent/internal/strategy"
	"github.com/releaseagent/internal/triage"
	"github.com/releaseagent/pkg/models"
)

// ResolveCommand returns the resolve command.
func ResolveCommand() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Apply cherry-picks or reverts and resolve their conflicts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "Operation mode: cherry-pick or revert",
				Value:   "cherry-pick",
			},
			&cli.IntSliceFlag{
				Name:  "pr",
				Usage: "PR number to apply (repeatable, fetched from the hosting provider)",
			},
			&cli.StringSliceFlag{
				Name:  "sha",
				Usage: "Commit SHA to apply directly (repeatable, no provider lookup)",
			},
			&cli.StringFlag{
				Name:  "repo-dir",
				Usage: "Git repository to operate on (overrides config)",
			},
			&cli.StringFlag{
				Name:  "min-confidence",
				Usage: "Lowest acceptable hunk confidence: low, review, medium or high",
			},
			&cli.BoolFlag{
				Name:  "no-reasoner",
				Usage: "Disable the external reasoner for this run",
			},
			&cli.BoolFlag{
				Name:  "always-fallback",
				Usage: "Resolve below-floor files to the mode-preferred side instead of leaving them conflicted",
			},
		},
		Action: runResolve,
	}
}

func runResolve(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(cfg.General.LogLevel)

	mode := models.Mode(c.String("mode"))
	if mode != models.ModeCherryPick && mode != models.ModeRevert {
		return fmt.Errorf("mode must be cherry-pick or revert, got %q", c.String("mode"))
	}

	minConfStr := cfg.Resolve.MinConfidence
	if override := c.String("min-confidence"); override != "" {
		minConfStr = override
	}
	minConfidence, err := models.ParseConfidence(minConfStr)
	if err != nil {
		return err
	}

	repoDir := cfg.General.RepoDir
	if override := c.String("repo-dir"); override != "" {
		repoDir = override
	}

	runID := uuid.NewString()[:8]
	logger, err := logging.StartRunLogging(cfg.General.LogDir, runID)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := context.Background()

	operations, err := collectOperations(ctx, c, cfg)
	if err != nil {
		return err
	}
	if len(operations) == 0 {
		return fmt.Errorf("nothing to do: pass at least one --pr or --sha")
	}

	var rsn strategy.Reasoner
	if cfg.Reasoner.Enabled && !c.Bool("no-reasoner") {
		client, err := newReasonerClient(ctx, cfg, runID, logger)
		if err != nil {
			return err
		}
		rsn = client
	}

	runner := triage.NewRunner(triage.Options{
		Mode:           mode,
		RepoDir:        repoDir,
		MinConfidence:  minConfidence,
		SafetyPrefer:   cfg.Resolve.SafetyPrefer,
		BracePref:      strategy.BracePreference(cfg.Resolve.BracePreference),
		Parallelism:    cfg.Resolve.Parallelism,
		AlwaysFallback: cfg.Resolve.AlwaysFallback || c.Bool("always-fallback"),
	}, rsn, logger)

	started := time.Now()
	files, runErr := runner.Run(ctx, operations)

	summary := &report.RunSummary{
		RunID:      runID,
		Mode:       string(mode),
		StartedAt:  started,
		FinishedAt: time.Now(),
		Operations: operations,
		Files:      files,
	}
	if err := writeReports(cfg, summary); err != nil {
		return err
	}
	printFileSummary(summary)

	return runErr
}

// collectOperations builds the operation list from --pr numbers (looked
// up via the hosting provider) and raw --sha arguments.
func collectOperations(ctx context.Context, c *cli.Context, cfg *config.Config) ([]models.PRRecord, error) {
	var operations []models.PRRecord

	prNumbers := c.IntSlice("pr")
	if len(prNumbers) > 0 {
		client, err := newHostingClient(cfg)
		if err != nil {
			return nil, err
		}
		for _, number := range prNumbers {
			pr, err := client.GetPR(ctx, number)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch PR #%d: %w", number, err)
			}
			if pr.MergeSHA == "" {
				return nil, fmt.Errorf("PR #%d has no merge commit; was it merged?", number)
			}
			operations = append(operations, *pr)
		}
	}

	for _, sha := range c.StringSlice("sha") {
		operations = append(operations, models.PRRecord{
			Title:    sha,
			MergeSHA: sha,
		})
	}

	return operations, nil
}

func newHostingClient(cfg *config.Config) (*hosting.GitHubClient, error) {
	if cfg.Hosting.Owner == "" || cfg.Hosting.Repo == "" {
		return nil, fmt.Errorf("hosting.owner and hosting.repo must be configured for PR lookups")
	}
	return hosting.NewGitHubClient(cfg.Hosting.BaseURL, cfg.Hosting.Token, cfg.Hosting.Owner, cfg.Hosting.Repo), nil
}

func newReasonerClient(ctx context.Context, cfg *config.Config, runID string, logger *logging.RunLogger) (*reasoner.Client, error) {
	return reasoner.NewClient(ctx, reasoner.Options{
		Provider:          reasoner.Provider(cfg.Reasoner.Provider),
		APIKey:            cfg.Reasoner.APIKey,
		BaseURL:           cfg.Reasoner.BaseURL,
		Model:             cfg.Reasoner.Model,
		Temperature:       cfg.Reasoner.Temperature,
		MaxTokens:         cfg.Reasoner.MaxTokens,
		CallTimeout:       time.Duration(cfg.Reasoner.CallTimeoutSecs) * time.Second,
		MaxCalls:          cfg.Reasoner.MaxCalls,
		RequestsPerMinute: cfg.Reasoner.RequestsPerMinute,
		AuditLogPath:      cfg.Reasoner.AuditLog,
	}, runID, logger)
}

func writeReports(cfg *config.Config, summary *report.RunSummary) error {
	if err := os.MkdirAll(cfg.Report.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	jsonPath := filepath.Join(cfg.Report.Dir, fmt.Sprintf("run_%s.json", summary.RunID))
	if err := report.WriteJSON(summary, jsonPath); err != nil {
		return err
	}
	fmt.Printf("Report written to %s\n", jsonPath)

	if cfg.Report.HTML {
		htmlPath := filepath.Join(cfg.Report.Dir, fmt.Sprintf("run_%s.html", summary.RunID))
		if err := report.WriteHTML(summary, htmlPath); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", htmlPath)
	}
	return nil
}

func printFileSummary(summary *report.RunSummary) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, f := range summary.Files {
		switch f.Status {
		case report.FileResolved:
			fmt.Printf("  %s %s\n", green("resolved"), f.Path)
		case report.FileAborted:
			fmt.Printf("  %s %s (%s)\n", yellow("manual  "), f.Path, f.Action)
		}
	}
}
