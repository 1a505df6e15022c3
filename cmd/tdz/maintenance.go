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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/poiesic/tdz"
	"github.com/poiesic/tdz/core"
	"github.com/urfave/cli/v2"
)

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Write the embedding cache to a timestamped backup",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "list", Usage: "List existing backups instead"},
		},
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			if c.Bool("list") {
				backups, err := svc.ListBackups(c.Context)
				if err != nil {
					return err
				}
				for _, b := range backups {
					fmt.Fprintf(c.App.Writer, "%s\t%d\t%s\n", b.Name, b.Size, b.ModTime.Format("2006-01-02 15:04:05"))
				}
				return nil
			}
			path, err := svc.Backup(c.Context)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "backup written to %s\n", path)
			return nil
		}),
	}
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "Replace the embedding cache with a backup",
		ArgsUsage: "<backup file>",
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("backup file is required")
			}
			n, err := svc.Restore(c.Context, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "restored %d entries\n", n)
			return nil
		}),
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show the embedding versions of an artifact",
		ArgsUsage: "<id>",
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			id := c.Args().First()
			if id == "" {
				return fmt.Errorf("artifact id is required")
			}
			versions, err := svc.History(c.Context, core.ID(id))
			if err != nil {
				return err
			}
			if len(versions) == 0 {
				fmt.Fprintln(c.App.Writer, "No versions")
			}
			for _, v := range versions {
				fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\t%s\n",
					v.Timestamp.Format("2006-01-02 15:04:05"), v.VersionLabel, v.VersionID, core.FirstLine(v.Text, 60))
			}
			return nil
		}),
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:      "version",
		Usage:     "Snapshot the current embedding of an artifact",
		ArgsUsage: "<id> <label>",
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			if c.NArg() != 2 {
				return fmt.Errorf("expected <id> <label>")
			}
			v, err := svc.CreateVersion(c.Context, core.ID(c.Args().Get(0)), c.Args().Get(1))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "version %s (%s) created\n", v.VersionID, v.VersionLabel)
			return nil
		}),
	}
}

func reembedCommand() *cli.Command {
	return &cli.Command{
		Name:  "reembed",
		Usage: "Regenerate stored vectors with the current model",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "missing-only", Usage: "Only artifacts without a usable vector"},
			&cli.IntFlag{Name: "batch-size", Usage: "Number of artifacts to process in each batch", Value: 100},
		},
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			if c.Int("batch-size") <= 0 {
				return fmt.Errorf("batch-size must be greater than 0")
			}
			res, err := svc.Reembed(c.Context, tdz.ReembedOptions{
				MissingOnly: c.Bool("missing-only"),
				BatchSize:   c.Int("batch-size"),
			}, c.App.ErrWriter)
			if err != nil {
				return fmt.Errorf("reembedding failed: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "reembedded %d artifacts in %s\n", res.Processed, res.Elapsed)
			return nil
		}),
	}
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Split source files into code chunks",
		ArgsUsage: "<file> [file...]",
		Flags: []cli.Flag{
			projectFlag,
			tagFlag,
			&cli.StringFlag{Name: "level", Usage: "Chunk level: project, module, class, method or block", Value: "method"},
			&cli.BoolFlag{Name: "plan", Usage: "Treat files as planning messages with <chunk> blocks"},
		},
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			if c.NArg() == 0 {
				return fmt.Errorf("at least one file is required")
			}
			level, err := core.ParseChunkLevel(c.String("level"))
			if err != nil {
				return err
			}
			project := c.String("project")
			var errs []error
			for _, path := range c.Args().Slice() {
				data, err := os.ReadFile(path)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				var created, existing int
				if c.Bool("plan") {
					res, err := svc.IngestPlan(c.Context, project, string(data))
					created, existing = res.Created, res.Existing
					if err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", path, err))
					}
				} else {
					res, err := svc.IngestSource(c.Context, project, filepath.ToSlash(path), string(data), tdz.IngestOptions{
						Level: level,
						Tags:  c.StringSlice("tag"),
					})
					created, existing = res.Created, res.Existing
					if err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", path, err))
					}
				}
				fmt.Fprintf(c.App.Writer, "%s: %d created, %d existing\n", path, created, existing)
			}
			return errors.Join(errs...)
		}),
	}
}
