package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/unirepo/internal"
	pkgconfig "github.com/starford/unirepo/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.Root().String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found && cmd.Root().IsSet("config") {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}
	return cfg, nil
}

func baseOptions(cfg *internal.Config) []internal.Option {
	return []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}
}

func build(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := append(baseOptions(cfg),
		internal.WithOnly(cmd.StringSlice("only")...),
		internal.WithQuiet(cmd.Bool("quiet")),
		internal.WithIndex(cmd.Bool("index")),
	)
	if err := internal.Build(ctx, opts...); err != nil {
		return fmt.Errorf("build error: %w", err)
	}
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Serve(ctx, baseOptions(cfg)...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func search(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() == 0 {
		return fmt.Errorf("search: missing query")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := append(baseOptions(cfg), internal.WithSearchScope(cmd.String("catalog"), int(cmd.Int("limit"))))
	return internal.Search(ctx, cmd.Args().First(), opts...)
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.MCP(ctx, baseOptions(cfg)...)
}

func buildFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "only",
			Usage: "Build only the named catalog (repeatable)",
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Aliases: []string{"q"},
			Usage:   "Print summaries only",
		},
		&cli.BoolFlag{
			Name:  "index",
			Usage: "Also refresh the search index",
		},
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "unirepo",
		Usage:   "Generate the JSON catalogs of the exam and project archive from PDF file names",
		Version: version,
		Action:  build,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		}, buildFlags()...),
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Scan the PDF folders and rewrite the catalog files",
				Action: build,
				Flags:  buildFlags(),
			},
			{
				Name:   "serve",
				Usage:  "Build, then serve the site and rebuild catalogs when PDFs change",
				Action: serve,
			},
			{
				Name:      "search",
				Usage:     "Search the catalog index",
				ArgsUsage: "<query>",
				Action:    search,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "catalog",
						Usage: "Restrict the search to one catalog",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 20,
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the catalog tools over MCP stdio",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
