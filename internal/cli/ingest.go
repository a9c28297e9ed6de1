package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	ingestuc "github.com/snapdex/snapdex/internal/usecase/ingest"
)

var (
	watchFlag   bool
	rebuildFlag bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Index a folder of images",
	Long: `Index every image under the given folder. First-level subdirectories
become category labels; files directly under the folder carry none.
Unreadable or undecodable files are skipped and reported, never fatal.

Examples:
  snapdex ingest ./photos          # One-shot indexing run
  snapdex ingest ./photos --watch  # Keep indexing new files as they appear`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&watchFlag, "watch", false, "keep watching the folder for new images")
	ingestCmd.Flags().BoolVar(&rebuildFlag, "rebuild", false, "drop and recreate the vector index before indexing")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	repo := newImageRepo(store)
	if rebuildFlag {
		if err := repo.RebuildIndex(ctx); err != nil {
			return fmt.Errorf("rebuild vector index: %w", err)
		}
	} else if err := repo.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure vector index: %w", err)
	}

	embedder := newEmbedder()
	if err := embedder.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding sidecar not reachable: %w", err)
	}

	svc := ingestuc.New(embedder, repo, cfg.Ingest.Include, cfg.Ingest.Exclude, cfg.Ingest.BatchSize, log)

	var bar *progressbar.ProgressBar
	svc = svc.WithProgress(func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("Indexing"),
			)
		}
		_ = bar.Set(done)
	})

	fmt.Printf("Scanning %s...\n", root)
	report, err := svc.Ingest(ctx, root)
	if err != nil {
		return err
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}

	fmt.Printf("Indexed %d of %d files in %s\n", report.Indexed, report.Total, report.Duration.Round(time.Millisecond))
	for _, f := range report.Failures {
		fmt.Printf("  skipped %s (%s)\n", f.Path, f.Reason)
	}

	if watchFlag {
		return svc.Watch(ctx, root)
	}
	return nil
}
