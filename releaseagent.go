package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/releaseagent/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	// Tokens and API keys commonly live in a local .env during
	// development; absence is not an error.
	godotenv.Load()

	app := &cli.App{
		Name:    "releaseagent",
		Usage:   "Conflict-aware cherry-pick and revert triage for release branches",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "releaseagent.toml",
			},
		},
		Commands: []*cli.Command{
			cmd.ResolveCommand(),
			cmd.DepsCommand(),
			cmd.ReportCommand(),
			cmd.ConfigCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
