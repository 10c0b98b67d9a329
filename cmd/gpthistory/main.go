// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/poiesic/gpthistory"
	"github.com/urfave/cli/v2"
)

// openHistory opens the index for a command. Tests replace it to inject
// a mock provider.
var openHistory = func(cfg *gpthistory.Config) (*gpthistory.History, error) {
	return gpthistory.Open(cfg)
}

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "gpthistory",
		Usage:     "Semantic search over a ChatGPT history export",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   gpthistory.DefaultConfigPath(),
			},
			&cli.StringFlag{
				Name:    "index",
				Aliases: []string{"i"},
				Usage:   "Path to the index directory",
				EnvVars: []string{gpthistory.EnvIndexPath},
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name",
			},
			&cli.IntFlag{
				Name:  "dimensions",
				Usage: "Embedding vector length",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
		},
		Before: func(c *cli.Context) error {
			if err := setupLogger(c); err != nil {
				return err
			}
			if c.Bool("no-color") {
				color.NoColor = true
			}
			if path, err := gpthistory.LoadEnv(); err != nil {
				return err
			} else if path != "" {
				slog.Debug("loaded environment file", "path", path)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Embed and store new conversations from a conversations.json export",
				ArgsUsage: "<conversations.json>",
				Action:    indexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks per embedding request",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of embedding requests in flight",
					},
					&cli.IntFlag{
						Name:  "max-attempts",
						Usage: "Attempts per embedding request",
					},
					&cli.BoolFlag{
						Name:  "drop-failed",
						Usage: "Skip conversations whose embeddings failed so the next run retries them",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Find indexed messages similar to a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "top-n",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results (0 uses the configured limit)",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity score",
					},
					&cli.BoolFlag{
						Name:  "stats",
						Usage: "Print the score distribution",
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute every stored embedding with the configured model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of rows to process in each batch",
					},
					&cli.IntFlag{
						Name:  "max-attempts",
						Usage: "Attempts per embedding request",
					},
				},
			},
			{
				Name:      "import-csv",
				Usage:     "Load a chat_id,text,embeddings CSV index",
				ArgsUsage: "[chatindex.csv]",
				Action:    importCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "replace",
						Usage: "Discard the current index first",
					},
				},
			},
			{
				Name:      "export-csv",
				Usage:     "Write the index as a chat_id,text,embeddings CSV",
				ArgsUsage: "[chatindex.csv]",
				Action:    exportCommand,
			},
		},
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(c *cli.Context) (*gpthistory.Config, error) {
	cfg, err := gpthistory.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if c.IsSet("index") {
		cfg.IndexPath = c.String("index")
	}
	if c.IsSet("embedding-host") {
		cfg.AI.EmbeddingHost = c.String("embedding-host")
	}
	if c.IsSet("embedding-model") {
		cfg.AI.EmbeddingModel = c.String("embedding-model")
	}
	if c.IsSet("dimensions") {
		cfg.AI.Dimensions = c.Int("dimensions")
		cfg.Embedding.Dimensions = c.Int("dimensions")
	}
	if c.IsSet("batch-size") {
		cfg.Embedding.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("workers") {
		cfg.Embedding.Workers = c.Int("workers")
	}
	if c.IsSet("max-attempts") {
		cfg.Embedding.MaxAttempts = c.Int("max-attempts")
	}
	if c.IsSet("drop-failed") {
		cfg.DropFailed = c.Bool("drop-failed")
	}
	if c.IsSet("threshold") {
		cfg.Search.Threshold = c.Float64("threshold")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func open(c *cli.Context) (*gpthistory.History, *gpthistory.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	h, err := openHistory(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index: %w", err)
	}
	return h, cfg, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	errWriter := c.App.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(errWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
