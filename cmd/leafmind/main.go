// Command leafmind is the admin CLI over an embedded memory database:
// inspect stats, learn and associate concepts, recall, run consolidation
// and forgetting cycles, and manage backups.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/leafmind/leafmind-go/pkg/core"
	"github.com/leafmind/leafmind-go/pkg/memory"
)

var dbPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "leafmind",
		Short:         "Neuromorphic associative memory engine",
		Long:          "LeafMind is an embedded associative memory engine: a persistent weighted concept graph with biologically inspired plasticity, consolidation, recall and forgetting.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "", "database path (defaults to LEAFMIND_DB_PATH)")

	root.AddCommand(statsCmd())
	root.AddCommand(learnCmd())
	root.AddCommand(associateCmd())
	root.AddCommand(recallCmd())
	root.AddCommand(consolidateCmd())
	root.AddCommand(forgetCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(compactCmd())
	return root
}

// open opens the engine at --db (or the configured default) with autosave
// disabled; CLI invocations save explicitly on close.
func open() (*core.PersistentGraph, error) {
	cfg, err := core.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Persistence.DBPath = dbPath
	}
	cfg.Persistence.AutoSaveIntervalSeconds = 0

	logger, _ := zap.NewDevelopment()
	return core.Open(cfg, core.WithLogger(logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))))
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show memory and persistence statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := open()
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer pg.Close(ctx)

			stats, err := pg.Stats(ctx, true)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func learnCmd() *cobra.Command {
	var seed string
	cmd := &cobra.Command{
		Use:   "learn <content>",
		Short: "Learn a new concept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := open()
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer pg.Close(ctx)

			var opts []core.LearnOption
			if seed != "" {
				opts = append(opts, core.WithSeed(seed))
			}
			concept, err := pg.Learn(ctx, args[0], opts...)
			if err != nil {
				return err
			}
			if err := pg.ForceSave(ctx); err != nil {
				return err
			}
			fmt.Println(concept.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "derive a stable concept ID from this seed")
	return cmd
}

func associateCmd() *cobra.Command {
	var bidirectional bool
	cmd := &cobra.Command{
		Use:   "associate <from-id> <to-id>",
		Short: "Create or strengthen an association",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := memory.ParseConceptID(args[0])
			if err != nil {
				return err
			}
			to, err := memory.ParseConceptID(args[1])
			if err != nil {
				return err
			}

			pg, err := open()
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer pg.Close(ctx)

			var opts []core.AssociateOption
			if bidirectional {
				opts = append(opts, core.WithBidirectional())
			}
			edge, err := pg.Associate(ctx, from, to, opts...)
			if err != nil {
				return err
			}
			if err := pg.ForceSave(ctx); err != nil {
				return err
			}
			fmt.Printf("%s -> %s weight=%.3f activations=%d\n",
				edge.From, edge.To, edge.Weight.Value(), edge.ActivationCount)
			return nil
		},
	}
	cmd.Flags().BoolVar(&bidirectional, "bidirectional", false, "associate in both directions")
	return cmd
}

func recallCmd() *cobra.Command {
	var (
		query      string
		maxResults int
		minScore   float64
	)
	cmd := &cobra.Command{
		Use:   "recall [source-id]",
		Short: "Recall associated or similar concepts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := open()
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer pg.Close(ctx)

			req := core.RecallRequest{
				Query: query,
				Options: []memory.RecallOption{
					memory.WithMaxResults(maxResults),
					memory.WithMinRelevance(minScore),
				},
			}
			if len(args) == 1 {
				id, err := memory.ParseConceptID(args[0])
				if err != nil {
					return err
				}
				req.SourceID = &id
			}

			resp, err := pg.Recall(ctx, req)
			if err != nil {
				return err
			}
			for _, r := range resp.Results {
				fmt.Printf("%.4f  %s  %s\n", r.Relevance, r.Concept.ID, r.Concept.Content)
			}
			fmt.Printf("%d results in %s\n", resp.TotalFound, resp.QueryTime)
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "content query instead of a source concept")
	cmd.Flags().IntVar(&maxResults, "max-results", 10, "maximum results")
	cmd.Flags().Float64Var(&minScore, "min-relevance", 0.0, "relevance floor")
	return cmd
}

func consolidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consolidate",
		Short: "Force a consolidation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := open()
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer pg.Close(ctx)

			stats, err := pg.Consolidate(ctx, true)
			if err != nil {
				return err
			}
			if err := pg.ForceSave(ctx); err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func forgetCmd() *cobra.Command {
	var aggressive bool
	cmd := &cobra.Command{
		Use:   "forget",
		Short: "Run a forgetting cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := open()
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer pg.Close(ctx)

			cfg := memory.DefaultForgettingConfig()
			cfg.AggressiveForgetting = aggressive
			stats, err := pg.Forget(ctx, cfg)
			if err != nil {
				return err
			}
			if err := pg.ForceSave(ctx); err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
	cmd.Flags().BoolVar(&aggressive, "aggressive", false, "enable aggressive forgetting")
	return cmd
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <path>",
		Short: "Snapshot the database to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := open()
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer pg.Close(ctx)
			return pg.Backup(ctx, args[0])
		},
	}
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <path>",
		Short: "Restore the database from a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := open()
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer pg.Close(ctx)
			return pg.Restore(ctx, args[0])
		},
	}
}

func compactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Reclaim unused space",
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := open()
			if err != nil {
				return err
			}
			ctx := context.Background()
			defer pg.Close(ctx)
			return pg.Compact(ctx)
		},
	}
}
