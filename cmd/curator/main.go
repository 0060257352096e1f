package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/curator/internal"
	"github.com/starford/curator/internal/orchestrator"
	pkgconfig "github.com/starford/curator/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func process(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("at least one note path is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	results, err := internal.Process(ctx, paths,
		orchestrator.Options{DryRun: cmd.Bool("dry-run"), Fast: cmd.Bool("fast")},
		int(cmd.Int("workers")),
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
	)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	var payload any = results
	if len(results) == 1 {
		payload = results[0]
	}
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	for _, r := range results {
		if !r.Success {
			return cli.Exit("", 2)
		}
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
		internal.WithVersion(version),
	)
}

func main() {
	processFlags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Compute the result without writing the note",
		},
		&cli.BoolFlag{
			Name:  "fast",
			Usage: "Generate tags only, skip the summary",
		},
	}

	cmd := &cli.Command{
		Name:    "curator",
		Usage:   "Quality scoring, AI tagging and link suggestions for a Markdown vault",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "process",
				Usage:     "Run the pipeline on one note and print the result as JSON",
				ArgsUsage: "<path>",
				Flags:     processFlags,
				Action:    process,
			},
			{
				Name:      "batch",
				Usage:     "Run the pipeline on several notes concurrently",
				ArgsUsage: "<path>...",
				Flags: append(processFlags, &cli.IntFlag{
					Name:  "workers",
					Usage: "Concurrent passes (0 uses pipeline.workers)",
				}),
				Action: process,
			},
			{
				Name:   "serve",
				Usage:  "Start the HTTP API, SSE stream and vault watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
