package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agrirec/internal/adapter/fs"
	"agrirec/internal/domain"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importCmd = &cobra.Command{
	Use:   "import [path]",
	Short: "Bulk ingest payload files",
	Long: `Ingest every JSON, JSONL and CSV payload file under path (or path itself
when it is a file). Files are selected with the import.includes and
import.excludes globs. Each file is appended as one all-or-nothing batch.

Examples:
  agrirec import .                  # Import from the current directory
  agrirec import ./listings.jsonl   # Import one file`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}

	cfg := GetConfig()
	walker := fs.NewWalker(cfg.Import.Includes, cfg.Import.Excludes)

	fmt.Printf("Scanning %s...\n", path)
	files, err := walker.Walk(path)
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", path, err)
	}

	// The data directory may sit under path; never import our own files.
	dataDir, err := filepath.Abs(cfg.DataDir(GetRootDir()))
	if err != nil {
		return fmt.Errorf("invalid data directory: %w", err)
	}
	type batch struct {
		path     string
		payloads []domain.ItemPayload
	}
	var batches []batch
	total := 0
	for _, f := range files {
		if within(dataDir, f.Path) {
			continue
		}
		payloads, err := fs.ReadPayloads(f.Path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", f.Path, err)
		}
		if len(payloads) == 0 {
			continue
		}
		batches = append(batches, batch{path: f.Path, payloads: payloads})
		total += len(payloads)
	}
	if total == 0 {
		fmt.Println("No items found.")
		return nil
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	uc := a.ingestUseCase()

	bar := progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Importing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	var barMu sync.Mutex
	done := 0
	start := time.Now()
	progress := func(n int) {
		barMu.Lock()
		defer barMu.Unlock()
		done += n
		_ = bar.Set(done)
		if elapsed := time.Since(start); done > 0 && elapsed > 0 {
			rate := float64(done) / elapsed.Seconds()
			eta := time.Duration(float64(total-done)/rate) * time.Second
			bar.Describe(fmt.Sprintf("[cyan]Importing[reset] ETA: %s", formatDuration(eta)))
		}
	}

	imported, filesImported := 0, 0
	for _, b := range batches {
		result := uc.IngestBatch(cmd.Context(), b.payloads, progress)
		if !result.OK() {
			fmt.Println()
			log.Error("import stopped", zap.String("file", b.path), zap.String("error", result.Message))
			fmt.Printf("Imported %d items from %d files before failure\n", imported, filesImported)
			return fmt.Errorf("failed to import %s: %s", b.path, result.Message)
		}
		imported += result.Items
		filesImported++
	}
	_ = bar.Finish()

	fmt.Printf("\nImport complete:\n")
	fmt.Printf("  Files imported: %d\n", filesImported)
	fmt.Printf("  Items added:    %d\n", imported)
	fmt.Printf("  Elapsed:        %s\n", formatDuration(time.Since(start)))
	fmt.Printf("\nData stored in: %s\n", dataDir)
	return nil
}

// within reports whether path lies inside dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
