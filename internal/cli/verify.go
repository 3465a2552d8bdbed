package cli

import (
	"fmt"

	"agrirec/internal/domain"
	"agrirec/internal/usecase"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the stores are aligned",
	Long: `Recover any interrupted ingestion, then check that the metadata table and
the embedding matrix hold the same number of rows. Exits non-zero when they
do not.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

type verifyReport struct {
	domain.Stats
	Recovery    usecase.RecoveryReport `json:"recovery"`
	JournalRows int                    `json:"journal_rows"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.catalog.Verify()
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}
	journalRows, err := a.journal.CommittedRows()
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	report := verifyReport{Stats: stats, Recovery: a.recovery, JournalRows: journalRows}

	if jsonOutput {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		fmt.Printf("Metadata rows:   %d (%s)\n", stats.MetadataRows, a.metaPath)
		fmt.Printf("Embedding rows:  %d (%s)\n", stats.EmbeddingRows, a.embedPath)
		fmt.Printf("Dimension:       %d\n", stats.Dimension)
		fmt.Printf("Model:           %s\n", stats.Model)
		fmt.Printf("Pending entries: %d\n", stats.Pending)
		fmt.Printf("Journal rows:    %d\n", journalRows)
		fmt.Printf("Recovered:       %d rolled forward, %d rolled back\n",
			report.Recovery.RolledForward, report.Recovery.RolledBack)
		if stats.Aligned {
			fmt.Println("Stores are aligned.")
		}
		if journalRows != stats.EmbeddingRows {
			fmt.Println("Journal id index is stale; 'agrirec rebuild --force' reindexes it.")
		}
	}

	if !stats.Aligned {
		return fmt.Errorf("stores are misaligned: %d metadata rows, %d embedding rows; run 'agrirec rebuild --force'",
			stats.MetadataRows, stats.EmbeddingRows)
	}
	return nil
}
