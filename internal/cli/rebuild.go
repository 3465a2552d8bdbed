package cli

import (
	"errors"
	"fmt"
	"sync"

	"agrirec/internal/domain"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	rebuildForce          bool
	rebuildDiscardJournal bool
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-encode every stored listing",
	Long: `Re-encode every row of the metadata table with the configured encoder and
replace the embedding matrix. Required after changing the embedding provider,
model or dimension; also repairs a data directory whose stores are misaligned.

Examples:
  agrirec rebuild            # Rebuild only if the encoder changed
  agrirec rebuild --force    # Rebuild unconditionally`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
	rebuildCmd.Flags().BoolVar(&rebuildForce, "force", false, "rebuild even if the encoder configuration is unchanged")
	rebuildCmd.Flags().BoolVar(&rebuildDiscardJournal, "discard-journal", false, "drop pending journal entries instead of failing")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	// The stored matrix may have a different dimension than the new encoder,
	// so the catalog is not loaded before the rebuild.
	a, err := openStores(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	migration, err := a.journal.CheckMigration(cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}
	if !migration.NeedsRebuild && !rebuildForce {
		fmt.Println("Embeddings are up to date; use --force to rebuild anyway.")
		return nil
	}
	if migration.NeedsRebuild {
		fmt.Printf("Rebuild required: %s\n", migration.Reason)
	}

	if rebuildDiscardJournal {
		fmt.Println("Clearing journal...")
		if err := a.journal.Clear(); err != nil {
			return fmt.Errorf("failed to clear journal: %w", err)
		}
	}

	rows, err := a.catalog.Verify()
	if err != nil && !errors.As(err, new(*domain.StorageReadError)) {
		return fmt.Errorf("failed to inspect data directory: %w", err)
	}
	total := rows.MetadataRows

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	done := 0
	if total > 0 {
		bar = progressbar.NewOptions(total,
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
			progressbar.OptionOnCompletion(func() {
				fmt.Println()
			}),
		)
	}
	progress := func(n int) {
		barMu.Lock()
		defer barMu.Unlock()
		done += n
		if bar != nil {
			_ = bar.Set(done)
		}
	}

	result, err := a.catalog.Rebuild(cmd.Context(), encodeOptions(), progress)
	if err != nil {
		if errors.Is(err, domain.ErrStorageMissing) {
			fmt.Println("Nothing to rebuild.")
			return a.journal.Migrate(cfg)
		}
		return fmt.Errorf("rebuild failed: %w", err)
	}

	if err := a.journal.Migrate(cfg); err != nil {
		return fmt.Errorf("failed to update schema info: %w", err)
	}

	if jsonOutput {
		return printJSON(result)
	}
	fmt.Printf("\nRebuild complete:\n")
	fmt.Printf("  Items:     %d\n", result.Items)
	fmt.Printf("  Dimension: %d\n", result.Dimension)
	fmt.Printf("  Model:     %s\n", result.Model)
	return nil
}
