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
	"github.com/poiesic/tdz/search"
	"github.com/urfave/cli/v2"
)

func searchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum results (0 uses max_results)"},
		&cli.Float64Flag{Name: "threshold", Usage: "Minimum score (unset uses similarity_threshold)"},
		&cli.StringSliceFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Restrict to kind; repeatable"},
	}
}

// searchParams builds Params from the shared search flags.
func searchParams(c *cli.Context) (search.Params, error) {
	kinds, err := parseKinds(c.StringSlice("kind"))
	if err != nil {
		return search.Params{}, err
	}
	p := search.Params{Kinds: kinds, Limit: c.Int("limit")}
	if c.IsSet("threshold") {
		p.Threshold = search.Threshold(float32(c.Float64("threshold")))
	}
	return p, nil
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Semantic search; several queries are combined",
		ArgsUsage: "<query> [query...]",
		Flags: append(searchFlags(),
			&cli.StringFlag{Name: "aggregate", Usage: "Multi-query aggregation: avg, max, min", Value: "avg"},
			&cli.BoolFlag{Name: "tasks", Usage: "Search tasks only"},
		),
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			p, err := searchParams(c)
			if err != nil {
				return err
			}
			queries := c.Args().Slice()
			var results []search.Result
			switch {
			case len(queries) == 0:
				return fmt.Errorf("query is required")
			case c.Bool("tasks"):
				results, err = svc.SearchTasks(c.Context, strings.Join(queries, " "), core.ArtifactFilter{}, p)
			case len(queries) == 1:
				results, err = svc.SemanticSearch(c.Context, queries[0], p)
			default:
				kind, perr := search.ParseAggregation(c.String("aggregate"))
				if perr != nil {
					return perr
				}
				results, err = svc.MultiQuerySearch(c.Context, queries, search.Aggregation{Kind: kind}, p)
			}
			if err != nil {
				return err
			}
			printResults(c.App.Writer, results)
			return nil
		}),
	}
}

func hybridCommand() *cli.Command {
	return &cli.Command{
		Name:      "hybrid",
		Usage:     "Search by meaning and keywords",
		ArgsUsage: "<query>",
		Flags: append(searchFlags(),
			&cli.StringSliceFlag{Name: "keyword", Usage: "Keyword; repeatable (default: words of the query)"},
			&cli.Float64Flag{Name: "semantic-weight", Usage: "Weight of the semantic score in [0,1]", Value: 0.7},
		),
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			p, err := searchParams(c)
			if err != nil {
				return err
			}
			query := strings.Join(c.Args().Slice(), " ")
			results, err := svc.HybridSearch(c.Context, query, c.StringSlice("keyword"), float32(c.Float64("semantic-weight")), p)
			if err != nil {
				return err
			}
			printResults(c.App.Writer, results)
			return nil
		}),
	}
}

func similarCommand() *cli.Command {
	return &cli.Command{
		Name:      "similar",
		Usage:     "Find artifacts similar to stored ones",
		ArgsUsage: "<id> [id...]",
		Flags: append(searchFlags(),
			&cli.StringSliceFlag{Name: "exclude", Usage: "Id to leave out; repeatable"},
		),
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			p, err := searchParams(c)
			if err != nil {
				return err
			}
			ids := toIDs(c.Args().Slice())
			var results []search.Result
			switch {
			case len(ids) == 0:
				return fmt.Errorf("artifact id is required")
			case len(ids) == 1 && len(c.StringSlice("exclude")) == 0:
				results, err = svc.FindSimilar(c.Context, ids[0], p)
			default:
				results, err = svc.Recommend(c.Context, ids, toIDs(c.StringSlice("exclude")), p)
			}
			if err != nil {
				return err
			}
			printResults(c.App.Writer, results)
			return nil
		}),
	}
}

func explainCommand() *cli.Command {
	return &cli.Command{
		Name:      "explain",
		Usage:     "Explain why an artifact matches a query",
		ArgsUsage: "<id> <query>",
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			if c.NArg() < 2 {
				return fmt.Errorf("expected <id> <query>")
			}
			exp, err := svc.ExplainResult(c.Context, strings.Join(c.Args().Tail(), " "), core.ID(c.Args().First()))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, exp)
			return nil
		}),
	}
}

func toIDs(args []string) []core.ID {
	ids := make([]core.ID, len(args))
	for i, a := range args {
		ids[i] = core.ID(a)
	}
	return ids
}

func printResults(w io.Writer, results []search.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results")
		return
	}
	for i, r := range results {
		fmt.Fprintf(w, "%d. [%.3f] %s %s: %s\n", i+1, r.Score, r.Kind, r.ContentID, core.FirstLine(r.Text, 80))
	}
}
