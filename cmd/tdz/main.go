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
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/tdz"
	"github.com/poiesic/tdz/ai"
	"github.com/urfave/cli/v2"
)

// defaultRoot is the knowledge-base directory used without --root.
const defaultRoot = ".tdz"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "tdz",
		Usage: "Semantic knowledge base for tasks, memories, ideas and code chunks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Knowledge-base root directory",
				Value:   defaultRoot,
				EnvVars: []string{"TDZ_ROOT"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Embedding backend override (local, remote, mock)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			addTaskCommand(),
			addMemoryCommand(),
			addIdeaCommand(),
			listCommand(),
			statusCommand(),
			deleteCommand(),
			searchCommand(),
			hybridCommand(),
			similarCommand(),
			explainCommand(),
			clusterCommand(),
			statsCommand(),
			validateCommand(),
			diagnoseCommand(),
			backupCommand(),
			restoreCommand(),
			historyCommand(),
			versionCommand(),
			reembedCommand(),
			ingestCommand(),
			seedCommand(),
		},
	}
}

// openService opens the knowledge base named by the global flags. The
// scheduler and config watcher stay off for one-shot commands.
func openService(c *cli.Context) (*tdz.Service, error) {
	root, err := filepath.Abs(c.String("root"))
	if err != nil {
		return nil, fmt.Errorf("invalid root: %w", err)
	}
	opts := []tdz.Option{
		tdz.WithLogger(slog.Default()),
		tdz.WithoutHotReload(),
		tdz.WithoutMaintenance(),
	}
	if b := c.String("backend"); b != "" {
		backend, err := ai.ParseBackend(b)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tdz.WithBackend(backend))
	}
	svc, err := tdz.Open(c.Context, root, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	return svc, nil
}

// withService runs fn against an open service and closes it afterwards.
func withService(fn func(c *cli.Context, svc *tdz.Service) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		svc, err := openService(c)
		if err != nil {
			return err
		}
		defer func() {
			if err := svc.Close(); err != nil {
				slog.Warn("close failed", "err", err)
			}
		}()
		return fn(c, svc)
	}
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

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
