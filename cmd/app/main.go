package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/perth/internal"
	"github.com/starford/perth/internal/chunkrunner"
	"github.com/starford/perth/internal/mcpserver"
	"github.com/starford/perth/internal/qmd"
	"github.com/starford/perth/internal/rendercache"
	"github.com/starford/perth/internal/renderservice"
	"github.com/starford/perth/internal/repostore"
	pkgconfig "github.com/starford/perth/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// runMCP serves the MCP tools over stdio against the same store and cache
// the HTTP server uses. Logs go to stderr so stdout stays a clean protocol
// stream.
func runMCP(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))

	db, err := repostore.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init repo store: %w", err)
	}
	defer db.Close()

	var renderer qmd.ChunkRenderer = chunkrunner.Echo{}
	if cfg.Render.Command != "" {
		timeout := time.Duration(cfg.Render.TimeoutSeconds) * time.Second
		renderer, err = chunkrunner.NewExec(cfg.Render.Command, timeout)
		if err != nil {
			return fmt.Errorf("init chunk runner: %w", err)
		}
	}

	cache, err := rendercache.New(rendercache.Config{
		DocsRoot:   cfg.Cache.DocsRoot,
		AssetsRoot: cfg.Cache.AssetsRoot,
		AssetRoute: cfg.Cache.AssetRoute,
	}, renderer, logger)
	if err != nil {
		return fmt.Errorf("init render cache: %w", err)
	}

	svc := renderservice.NewService(db, cache)
	return mcpserver.New(svc).ServeStdio()
}

func main() {
	configFlag := &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}

	cmd := &cli.Command{
		Name:   "perth",
		Usage:  "Commit-addressed rendering cache and API for Quarto documents in local git repositories",
		Action: runServe,
		Flags:  []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio for LLM integration",
				Action: runMCP,
				Flags:  []cli.Flag{configFlag},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
