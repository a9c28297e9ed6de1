// Package cli wires the snapdex commands: serve, ingest, and search.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/snapdex/snapdex/internal/config"
	"github.com/snapdex/snapdex/internal/db/redis"
	"github.com/snapdex/snapdex/internal/logger"
	"github.com/snapdex/snapdex/internal/metrics"
	"github.com/snapdex/snapdex/internal/repository/image"
	"github.com/snapdex/snapdex/internal/transport/clip"
	"github.com/snapdex/snapdex/internal/transport/openai"
	"github.com/snapdex/snapdex/internal/version"
)

var (
	envFlag string
	cfg     config.Config
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "snapdex",
	Short: "Image similarity search over a CLIP-embedded vector index",
	Long: `snapdex indexes folders of images with CLIP embeddings and answers
text and image similarity queries against a Redis vector index.

Example usage:
  snapdex serve                      # Run the HTTP API
  snapdex ingest ./photos            # Index a folder (subdirs become categories)
  snapdex search "a tabby cat" -k 3  # Query from the command line`,
	Version:       fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.Commit, version.Date),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		env := envFlag
		if env == "" {
			env = config.GetEnv()
		}

		var err error
		cfg, err = config.Load(env)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log, err = logger.New(env, cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		metrics.RegisterPipelineMetrics()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFlag, "env", "", "config environment (local, dev, prod)")
}

// ExecuteContext runs the CLI; ctx cancellation stops long-running commands.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openStore connects to the vector database and waits for it to respond.
func openStore(ctx context.Context) (*redis.Store, error) {
	store, err := redis.NewStore(redis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to vector store: %w", err)
	}

	timeout := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("vector store not ready: %w", err)
	}
	return store, nil
}

// newImageRepo builds the image repository over an open store.
func newImageRepo(store *redis.Store) *image.Repo {
	return image.New(store, cfg.Storage.KeyPrefix, cfg.Embedding.Dimensions).
		WithHNSW(image.HNSWConfig{
			M:           cfg.Database.HNSWM,
			EFConstruct: cfg.Database.HNSWEFConstruct,
		})
}

// newEmbedder builds the CLIP sidecar client.
func newEmbedder() *clip.Embedder {
	return clip.NewEmbedder(&clip.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Logger:     log,
	})
}

// newTranslator builds the LLM query translator, or nil when disabled.
func newTranslator() *openai.Translator {
	if !cfg.Translate.Enabled {
		return nil
	}
	return openai.NewTranslator(&openai.Config{
		APIKey:  cfg.Translate.APIKey,
		BaseURL: cfg.Translate.BaseURL,
		Model:   cfg.Translate.Model,
		Timeout: time.Duration(cfg.Translate.TimeoutSec) * time.Second,
		Logger:  log,
	})
}
