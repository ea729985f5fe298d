package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/releaseagent/internal/config"
	"github.com/releaseagent/internal/report"
)

// ReportCommand returns the report command, which re-renders the summary
// of a past run from its JSON record.
func ReportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Render the report of a past run",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "run",
				Usage: "Run ID to render (defaults to the most recent run)",
			},
			&cli.BoolFlag{
				Name:  "html",
				Usage: "Also write the HTML rendering next to the JSON record",
			},
		},
		Action: runReport,
	}
}

func runReport(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	path, err := findRunRecord(cfg.Report.Dir, c.String("run"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read run record: %w", err)
	}

	var summary report.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return fmt.Errorf("failed to decode run record %s: %w", path, err)
	}

	fmt.Print(report.Markdown(&summary))

	if c.Bool("html") {
		htmlPath := strings.TrimSuffix(path, ".json") + ".html"
		if err := report.WriteHTML(&summary, htmlPath); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Report written to %s\n", htmlPath)
	}
	return nil
}

// findRunRecord locates the JSON record for runID, or the newest record
// when runID is empty.
func findRunRecord(dir, runID string) (string, error) {
	if runID != "" {
		path := filepath.Join(dir, fmt.Sprintf("run_%s.json", runID))
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("no record for run %s in %s", runID, dir)
		}
		return path, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "run_*.json"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no run records found in %s", dir)
	}
	sort.Slice(matches, func(i, j int) bool {
		fi, errI := os.Stat(matches[i])
		fj, errJ := os.Stat(matches[j])
		if errI != nil || errJ != nil {
			return matches[i] < matches[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})
	return matches[0], nil
}
