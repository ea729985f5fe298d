package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/releaseagent/internal/config"
	"github.com/releaseagent/internal/deps"
	"github.com/releaseagent/internal/logging"
	"github.com/releaseagent/internal/report"
	"github.com/releaseagent/pkg/models"
)

// DepsCommand returns the deps command.
func DepsCommand() *cli.Command {
	return &cli.Command{
		Name:  "deps",
		Usage: "Check included PRs for dependencies on earlier merged PRs",
		Flags: []cli.Flag{
			&cli.IntSliceFlag{
				Name:     "pr",
				Usage:    "PR number selected for the release (repeatable)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "base",
				Usage: "Base branch whose merge history to scan",
				Value: "main",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "How many merged PRs of history to consider (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "order",
				Usage: "Print the operation list with critical dependencies auto-included",
			},
		},
		Action: runDeps,
	}
}

func runDeps(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(cfg.General.LogLevel)

	runID := uuid.NewString()[:8]
	logger, err := logging.StartRunLogging(cfg.General.LogDir, runID)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx := context.Background()

	client, err := newHostingClient(cfg)
	if err != nil {
		return err
	}

	var included []models.PRRecord
	for _, number := range c.IntSlice("pr") {
		pr, err := client.GetPR(ctx, number)
		if err != nil {
			return fmt.Errorf("failed to fetch PR #%d: %w", number, err)
		}
		included = append(included, *pr)
	}

	limit := cfg.Deps.HistoryLimit
	if override := c.Int("limit"); override > 0 {
		limit = override
	}
	history, err := client.ListMergedPRs(ctx, c.String("base"), limit)
	if err != nil {
		return fmt.Errorf("failed to fetch merge history: %w", err)
	}
	if err := client.PopulateFiles(ctx, history); err != nil {
		return fmt.Errorf("failed to fetch history diffs: %w", err)
	}

	var eval deps.Evaluator
	if cfg.Reasoner.Enabled {
		evalClient, err := newReasonerClient(ctx, cfg, runID, logger)
		if err != nil {
			return err
		}
		eval = evalClient
	}

	analyzer := deps.NewAnalyzer(eval, deps.Options{
		AssumeDependentOnFailure: cfg.Deps.AssumeDependentOnFailure,
	})

	started := time.Now()
	findings := analyzer.Analyze(ctx, included, history)

	operations := included
	if c.Bool("order") {
		historyByNumber := make(map[int]models.PRRecord, len(history))
		for _, pr := range history {
			historyByNumber[pr.Number] = pr
		}
		operations = deps.OrderOperations(included, findings, func(n int) (models.PRRecord, bool) {
			pr, ok := historyByNumber[n]
			return pr, ok
		})
	}

	summary := &report.RunSummary{
		RunID:      runID,
		Mode:       "deps",
		StartedAt:  started,
		FinishedAt: time.Now(),
		Operations: operations,
		Findings:   findings,
	}
	if err := writeReports(cfg, summary); err != nil {
		return err
	}
	printFindings(findings)

	if c.Bool("order") {
		fmt.Println("\nOperation order:")
		auto := color.New(color.FgCyan).SprintFunc()
		for i, pr := range operations {
			marker := ""
			if !containsNumber(included, pr.Number) {
				marker = auto(" (auto-included)")
			}
			fmt.Printf("  %d. #%d %s%s\n", i+1, pr.Number, pr.Title, marker)
		}
	}

	return nil
}

func printFindings(findings []models.DependencyFinding) {
	if len(findings) == 0 {
		fmt.Println("No dependencies found.")
		return
	}

	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, f := range findings {
		severity := yellow("optional")
		if f.IsCritical {
			severity = red("CRITICAL")
		}
		fmt.Printf("  %s  #%d depends on #%d (%s)\n", severity, f.IncludedPR, f.DependsOnPR, f.Rationale)
		fmt.Printf("            shared files: %s\n", strings.Join(f.SharedFiles, ", "))
	}
}

func containsNumber(prs []models.PRRecord, number int) bool {
	for _, pr := range prs {
		if pr.Number == number {
			return true
		}
	}
	return false
}
