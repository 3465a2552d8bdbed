package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"agrirec/config"
	"agrirec/internal/adapter/cache"
	"agrirec/internal/adapter/embedding"
	"agrirec/internal/adapter/store"
	"agrirec/internal/logger"
	"agrirec/internal/usecase"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgFile    string
	cfg        *config.Config
	rootDir    string
	debug      bool
	jsonOutput bool
	log        *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "agrirec",
	Short: "Agricultural product recommender",
	Long: `agrirec ranks agricultural listings against a query by combining semantic
similarity with price, quantity and location proximity. Listings are stored as
an embedding matrix plus a metadata table in the data directory.

Example usage:
  agrirec import ./listings            # Bulk ingest JSON / JSONL / CSV payloads
  agrirec recommend --product "xoài"   # Rank listings for a query
  agrirec serve                        # Serve the HTTP API`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Logging.Level
		if debug {
			level = "debug"
		}
		log, err = logger.New(level, cfg.Logging.JSON)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./agrirec.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "root directory (default is current directory)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}

// app bundles the opened data directory.
type app struct {
	journal   *store.BoltJournal
	encoder   *embedding.Guard
	catalog   *usecase.Catalog
	embedPath string
	metaPath  string
	recovery  usecase.RecoveryReport
}

// openApp opens the data directory, applies journal schema migrations,
// builds the encoder and recovers any interrupted ingestion.
func openApp(ctx context.Context) (*app, error) {
	a, err := openStores(ctx)
	if err != nil {
		return nil, err
	}

	migration, err := a.journal.CheckMigration(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to check migration: %w", err)
	}
	if migration.NeedsRebuild {
		rows, err := store.NewNpyEmbeddingStore(a.embedPath, 0).Rows()
		if err != nil {
			a.Close()
			return nil, err
		}
		if rows > 0 {
			a.Close()
			return nil, fmt.Errorf("%s; run 'agrirec rebuild' first", migration.Reason)
		}
	}
	if migration.NeedsMigration || migration.NeedsRebuild {
		log.Info("updating journal schema", zap.String("reason", migration.Reason))
		if err := a.journal.Migrate(cfg); err != nil {
			a.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}

	a.recovery, err = a.catalog.Recover()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	if a.recovery.RolledBack > 0 || a.recovery.RolledForward > 0 {
		log.Warn("recovered interrupted ingestion",
			zap.Int("rolled_forward", a.recovery.RolledForward),
			zap.Int("rolled_back", a.recovery.RolledBack),
		)
	}
	if migration.NeedsMigration {
		if err := a.reindex(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// openStores opens the files and the encoder without loading anything.
func openStores(ctx context.Context) (*app, error) {
	if err := cfg.EnsureDataDir(rootDir); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	enc, err := embedding.New(ctx, cfg.Embedding, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	journal, err := store.NewBoltJournal(cfg.JournalPath(rootDir))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	a := &app{
		journal:   journal,
		encoder:   enc,
		embedPath: cfg.EmbeddingsPath(rootDir),
		metaPath:  cfg.MetadataPath(rootDir),
	}
	a.catalog = usecase.NewCatalog(
		store.NewNpyEmbeddingStore(a.embedPath, enc.Dimension()),
		store.NewCSVMetadataTable(a.metaPath),
		journal,
		enc,
		logger.WithEncoder(log, cfg.Embedding.Provider, enc.ModelName()),
	)
	return a, nil
}

func (a *app) reindex() error {
	corpus, err := a.catalog.Snapshot()
	if err != nil {
		return err
	}
	ids := make([]string, len(corpus.Items))
	for i, it := range corpus.Items {
		ids[i] = it.ID
	}
	if err := a.journal.ReindexIDs(ids); err != nil {
		return fmt.Errorf("failed to reindex ids: %w", err)
	}
	return nil
}

func (a *app) Close() {
	if err := a.journal.Close(); err != nil {
		log.Warn("failed to close journal", zap.Error(err))
	}
}

func (a *app) recommendUseCase() *usecase.RecommendUseCase {
	var qc *cache.QueryCache
	if cfg.Ranking.CacheSize > 0 {
		qc = cache.NewQueryCache(cfg.Ranking.CacheSize, cfg.Ranking.CacheTTL)
	}
	return usecase.NewRecommendUseCase(a.catalog, usecase.RecommendOptions{
		TopK:          cfg.Ranking.TopK,
		CandidatePool: cfg.Ranking.CandidatePool,
		MaxDistanceKm: cfg.Ranking.MaxDistanceKm,
		Weights:       cfg.Ranking.Weights,
	}, qc, log)
}

func (a *app) ingestUseCase() *usecase.IngestUseCase {
	return usecase.NewIngestUseCase(a.catalog, usecase.IngestOptions{
		RejectDuplicateIDs: cfg.Storage.RejectDuplicateIDs,
		Encode:             encodeOptions(),
	}, log)
}

func encodeOptions() usecase.EncodeOptions {
	return usecase.EncodeOptions{
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
	}
}

func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))
	return nil
}
