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
	"strings"

	"github.com/poiesic/tdz"
	"github.com/poiesic/tdz/core"
	"github.com/urfave/cli/v2"
)

var projectFlag = &cli.StringFlag{
	Name:    "project",
	Aliases: []string{"p"},
	Usage:   "Project name (default from config)",
}

var tagFlag = &cli.StringSliceFlag{
	Name:    "tag",
	Aliases: []string{"t"},
	Usage:   "Tag to attach; repeatable",
}

func addTaskCommand() *cli.Command {
	return &cli.Command{
		Name:      "add-task",
		Usage:     "Create a task",
		ArgsUsage: "<action>",
		Flags: []cli.Flag{
			projectFlag,
			tagFlag,
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Longer description"},
			&cli.StringFlag{Name: "priority", Usage: "low, medium, high, critical or urgent", Value: "medium"},
		},
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			action := strings.Join(c.Args().Slice(), " ")
			if action == "" {
				return fmt.Errorf("task action is required")
			}
			priority, err := core.ParsePriority(c.String("priority"))
			if err != nil {
				return err
			}
			a, err := svc.CreateTask(c.Context, c.String("project"), core.Task{
				Action:      action,
				Description: c.String("description"),
				Priority:    priority,
			}, c.StringSlice("tag")...)
			if err != nil {
				return err
			}
			printCreated(c.App.Writer, a)
			return nil
		}),
	}
}

func addMemoryCommand() *cli.Command {
	return &cli.Command{
		Name:      "add-memory",
		Usage:     "Create a memory",
		ArgsUsage: "<moment>",
		Flags: []cli.Flag{
			projectFlag,
			tagFlag,
			&cli.StringFlag{Name: "meaning", Usage: "What the moment means", Required: true},
			&cli.StringFlag{Name: "reason", Usage: "Why it is worth remembering", Required: true},
			&cli.StringFlag{Name: "term", Usage: "short or long", Value: "short"},
		},
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			moment := strings.Join(c.Args().Slice(), " ")
			if moment == "" {
				return fmt.Errorf("memory moment is required")
			}
			term, err := core.ParseMemoryTerm(c.String("term"))
			if err != nil {
				return err
			}
			a, err := svc.CreateMemory(c.Context, c.String("project"), core.Memory{
				Moment:  moment,
				Meaning: c.String("meaning"),
				Reason:  c.String("reason"),
				Term:    term,
			}, c.StringSlice("tag")...)
			if err != nil {
				return err
			}
			printCreated(c.App.Writer, a)
			return nil
		}),
	}
}

func addIdeaCommand() *cli.Command {
	return &cli.Command{
		Name:      "add-idea",
		Usage:     "Create an idea",
		ArgsUsage: "<idea>",
		Flags: []cli.Flag{
			projectFlag,
			tagFlag,
			&cli.StringFlag{Name: "context", Usage: "Where the idea came from"},
			&cli.StringFlag{Name: "share", Usage: "private, team or public", Value: "private"},
		},
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			body := strings.Join(c.Args().Slice(), " ")
			if body == "" {
				return fmt.Errorf("idea text is required")
			}
			share, err := core.ParseShareLevel(c.String("share"))
			if err != nil {
				return err
			}
			a, err := svc.CreateIdea(c.Context, c.String("project"), core.Idea{
				Body:    body,
				Context: c.String("context"),
				Share:   share,
			}, c.StringSlice("tag")...)
			if err != nil {
				return err
			}
			printCreated(c.App.Writer, a)
			return nil
		}),
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored artifacts",
		Flags: []cli.Flag{
			projectFlag,
			tagFlag,
			&cli.StringSliceFlag{Name: "kind", Aliases: []string{"k"}, Usage: "task, memory, idea or code_chunk; repeatable"},
			&cli.StringSliceFlag{Name: "status", Aliases: []string{"s"}, Usage: "Status name; repeatable"},
			&cli.BoolFlag{Name: "deleted", Usage: "Include deleted artifacts"},
		},
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			kinds, err := parseKinds(c.StringSlice("kind"))
			if err != nil {
				return err
			}
			filter := core.ArtifactFilter{
				Kinds:          kinds,
				Statuses:       c.StringSlice("status"),
				Tags:           c.StringSlice("tag"),
				IncludeDeleted: c.Bool("deleted"),
			}
			var list []*core.Artifact
			if p := c.String("project"); p != "" {
				list, err = svc.ListInProject(c.Context, p, filter)
			} else {
				list, err = svc.ListArtifacts(c.Context, filter)
			}
			if err != nil {
				return err
			}
			for _, a := range list {
				fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\t%s\t%s\n",
					a.ID, a.Kind, a.Project, a.StatusName(), core.FirstLine(core.ComposeText(a), 60))
			}
			return nil
		}),
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Change the status of an artifact",
		ArgsUsage: "<id> <status>",
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			if c.NArg() != 2 {
				return fmt.Errorf("expected <id> <status>")
			}
			a, err := svc.UpdateStatus(c.Context, core.ID(c.Args().Get(0)), c.Args().Get(1))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s is now %s\n", a.ID, a.StatusName())
			return nil
		}),
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Tombstone an artifact",
		ArgsUsage: "<id>",
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			id := c.Args().First()
			if id == "" {
				return fmt.Errorf("artifact id is required")
			}
			if _, err := svc.DeleteArtifact(c.Context, core.ID(id)); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "deleted %s\n", id)
			return nil
		}),
	}
}

func parseKinds(names []string) ([]core.Kind, error) {
	var kinds []core.Kind
	for _, n := range names {
		k, err := core.ParseKind(n)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func printCreated(w io.Writer, a *core.Artifact) {
	embedded := "embedded"
	if len(a.Vector) == 0 {
		embedded = "not embedded"
	}
	fmt.Fprintf(w, "created %s %s in %s (%s)\n", a.Kind, a.ID, a.Project, embedded)
}
