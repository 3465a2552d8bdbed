package cli

import (
	"fmt"
	"io"
	"os"

	"agrirec/internal/adapter/fs"
	"agrirec/internal/domain"
	"github.com/spf13/cobra"
)

var addItemFile string

var addItemCmd = &cobra.Command{
	Use:   "add-item",
	Short: "Ingest listings from a JSON payload",
	Long: `Ingest one listing (JSON object) or several (JSON array) read from a file
or standard input. Several listings are appended as one all-or-nothing batch.

Examples:
  agrirec add-item -f item.json
  echo '{"id":"42","productName":"xoài","price":"30.000 đ/kg"}' | agrirec add-item`,
	Args: cobra.NoArgs,
	RunE: runAddItem,
}

func init() {
	rootCmd.AddCommand(addItemCmd)
	addItemCmd.Flags().StringVarP(&addItemFile, "file", "f", "-", `payload file ("-" reads stdin)`)
}

func runAddItem(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if addItemFile != "-" {
		f, err := os.Open(addItemFile)
		if err != nil {
			return fmt.Errorf("failed to open payload: %w", err)
		}
		defer f.Close()
		r = f
	}

	payloads, err := fs.DecodePayloads(r)
	if err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	if len(payloads) == 0 {
		return fmt.Errorf("no items in payload")
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	uc := a.ingestUseCase()
	var result domain.IngestResult
	if len(payloads) == 1 {
		result = uc.ProcessAndAddItem(cmd.Context(), payloads[0])
	} else {
		result = uc.IngestBatch(cmd.Context(), payloads, nil)
	}

	if jsonOutput {
		if err := printJSON(result); err != nil {
			return err
		}
	} else if result.OK() {
		fmt.Printf("Ingested %d item(s), embedding dimension %d\n", result.Items, result.EmbeddingDim)
		if result.SemanticText != "" {
			fmt.Printf("  Semantic text: %s\n", result.SemanticText)
		}
	}
	if !result.OK() {
		return fmt.Errorf("ingestion failed: %s", result.Message)
	}
	return nil
}
