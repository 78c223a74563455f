package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spetr/ragchat/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file|dir>...",
	Short: "Chunk, embed and store .txt files in a collection",
	Long: `Chunk, embed and store .txt files in a collection. Directories are
walked recursively; hidden directories and empty files are skipped. The
collection is created when missing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collection, _ := cmd.Flags().GetString("collection")
		return runIngest(collection, args)
	},
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Manage vector store collections",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			cols, err := a.store.ListCollections(ctx)
			if err != nil {
				return err
			}
			if len(cols) == 0 {
				fmt.Println("No collections.")
				return nil
			}
			for _, c := range cols {
				fmt.Println(c.Name)
			}
			return nil
		})
	},
}

var collectionsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if _, err := a.store.CreateCollection(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Collection %q created.\n", args[0])
			return nil
		})
	},
}

var collectionsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a collection and its documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.store.DeleteCollection(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Collection %q deleted.\n", args[0])
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest a directory and keep it in sync",
	Long: `Ingest the .txt files of a directory into a collection, then re-ingest
files as they are created or modified. If no directory is given, watch.dir
from the configuration is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Watch.Dir
		if len(args) > 0 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no directory given and watch.dir is not set")
		}
		if c, _ := cmd.Flags().GetString("collection"); c != "" {
			cfg.Watch.Collection = c
		}
		if cfg.Watch.Collection == "" {
			return fmt.Errorf("--collection is required")
		}
		if d, _ := cmd.Flags().GetDuration("debounce"); d > 0 {
			cfg.Watch.Debounce = d
		}
		return runWatch(dir, cfg.Watch.Collection)
	},
}

func init() {
	ingestCmd.Flags().StringP("collection", "n", "", "target collection (required)")
	_ = ingestCmd.MarkFlagRequired("collection")

	collectionsCmd.AddCommand(collectionsListCmd)
	collectionsCmd.AddCommand(collectionsCreateCmd)
	collectionsCmd.AddCommand(collectionsDeleteCmd)

	watchCmd.Flags().StringP("collection", "n", "", "target collection (default: watch.collection)")
	watchCmd.Flags().Duration("debounce", 0, "wait after the last change before ingesting (default: watch.debounce)")
}

// withApp builds the components, runs fn under a signal context and closes
// everything afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()
	return fn(ctx, a)
}

func runIngest(collection string, paths []string) error {
	ok := color.New(color.FgGreen)
	return withApp(func(ctx context.Context, a *app) error {
		a.warmup(ctx)
		start := time.Now()
		total := 0

		report := func(r *types.IngestResult) {
			ok.Printf("  + %s", r.Source)
			fmt.Printf(" (%d chunks)\n", r.Chunks)
			total += r.Chunks
		}

		for _, p := range paths {
			info, err := os.Stat(p)
			if err != nil {
				return err
			}
			if info.IsDir() {
				fmt.Printf("Ingesting %s into %q\n", projectPath(p), collection)
				if _, err := a.indexer.IndexDir(ctx, collection, p, report); err != nil {
					return err
				}
				continue
			}
			r, err := a.indexer.IngestFile(ctx, collection, p)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			report(r)
		}

		fmt.Printf("\nStored %d chunks in %q in %s\n", total, collection, time.Since(start).Round(time.Millisecond))
		return nil
	})
}

func runWatch(dir, collection string) error {
	return withApp(func(ctx context.Context, a *app) error {
		a.warmup(ctx)
		w, err := newWatcher(a, dir, collection)
		if err != nil {
			return err
		}
		defer w.Close()

		fmt.Printf("Watching %s for changes (press Ctrl+C to stop)\n", projectPath(dir))
		return watchDir(ctx, a, w, dir, collection)
	})
}
