package main

import (
	"fmt"
	"maps"
	"slices"

	"github.com/poiesic/tdz"
	"github.com/poiesic/tdz/core"
	"github.com/urfave/cli/v2"
)

func clusterCommand() *cli.Command {
	return &cli.Command{
		Name:  "cluster",
		Usage: "Group cached artifacts by similarity",
		Flags: []cli.Flag{
			&cli.Float64Flag{Name: "threshold", Usage: "Minimum similarity to the seed (0 uses clustering_threshold)"},
			&cli.StringSliceFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Only cluster these kinds; repeatable"},
		},
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			kinds, err := parseKinds(c.StringSlice("kind"))
			if err != nil {
				return err
			}
			clusters, err := svc.Clusters(c.Context, float32(c.Float64("threshold")), kinds...)
			if err != nil {
				return err
			}
			labeled := svc.LabelClusters(c.Context, clusters)
			if len(labeled) == 0 {
				fmt.Fprintln(c.App.Writer, "No clusters")
				return nil
			}
			for _, l := range labeled {
				fmt.Fprintf(c.App.Writer, "%s (%d items, confidence %.2f)\n", l.Label, len(l.Members), l.Confidence)
				for _, m := range l.Members {
					fmt.Fprintf(c.App.Writer, "  [%.3f] %s %s\n", m.Score, m.Kind, m.ContentID)
				}
			}
			return nil
		}),
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show cache and model statistics",
		Flags: []cli.Flag{projectFlag},
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			w := c.App.Writer
			st := svc.Stats(c.Context)
			fmt.Fprintf(w, "Model: %s (%s, %d dims, backend %s)\n", st.Model, st.ModelAlias, st.Dimensions, st.Backend)
			fmt.Fprintf(w, "Cache: %d entries, %d bytes, hit rate %.1f%%\n", st.Cache.Entries, st.Cache.Bytes, st.HitRate*100)
			for _, k := range slices.Sorted(maps.Keys(st.ByKind)) {
				fmt.Fprintf(w, "  %s: %d\n", k, st.ByKind[k])
			}
			if p := c.String("project"); p != "" {
				ps, err := svc.ProjectStats(c.Context, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "Project %s: %d total, %d active, %d completed, %d archived, %d deleted\n",
					p, ps.Total, ps.Active, ps.Completed, ps.Archived, ps.Deleted)
			}
			return nil
		}),
	}
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check cached vectors for corruption",
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			report := svc.ValidateEmbeddings(c.Context)
			fmt.Fprintf(c.App.Writer, "%d embeddings, %d invalid\n", report.Total, report.Invalid)
			for _, issue := range report.Issues {
				fmt.Fprintf(c.App.Writer, "  %s: %s\n", issue.ContentID, issue.Type)
			}
			if !report.Valid() {
				return cli.Exit("validation failed", 1)
			}
			return nil
		}),
	}
}

func diagnoseCommand() *cli.Command {
	return &cli.Command{
		Name:  "diagnose",
		Usage: "Summarize the cache and profile queries",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "pairs", Usage: "Number of most similar pairs to show", Value: 5},
			&cli.IntFlag{Name: "iterations", Usage: "Runs per profiled query", Value: 3},
		},
		ArgsUsage: "[query...]",
		Action: withService(func(c *cli.Context, svc *tdz.Service) error {
			w := c.App.Writer
			report, err := svc.Diagnostics(c.Context, c.Int("pairs"))
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Hit rate %.1f%%, average similarity %.3f\n", report.CacheHitRate*100, report.AverageSimilarity)
			for _, p := range report.TopSimilarPairs {
				fmt.Fprintf(w, "  %s ~ %s [%.3f]\n", p.A, p.B, p.Similarity)
			}
			fmt.Fprintf(w, "Diversity %.3f\n", svc.DiversityScore(c.Context, []core.ID(nil)))

			if c.NArg() == 0 {
				return nil
			}
			profiles, err := svc.ProfileSearch(c.Context, c.Args().Slice(), c.Int("iterations"))
			if err != nil {
				return err
			}
			for _, p := range profiles {
				fmt.Fprintf(w, "%q: avg %s, min %s, max %s, %d results\n",
					p.Query, p.Timing.Avg, p.Timing.Min, p.Timing.Max, p.Results)
			}
			return nil
		}),
	}
}
