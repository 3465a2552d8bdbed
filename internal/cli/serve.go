package cli

import (
	"os"
	"os/signal"
	"syscall"

	"agrirec/internal/adapter/fs"
	"agrirec/internal/httpapi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the recommendation API until interrupted.

Routes:
  POST /api/recommend/?top_k=N   rank listings for a query
  POST /api/recommend/add-item   ingest one listing
  GET  /api/recommend/stats      corpus statistics
  GET  /health                   liveness (no API key required)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	serverCfg := cfg.Server
	if serveAddr != "" {
		serverCfg.Addr = serveAddr
	}

	var apiKey string
	if serverCfg.APIKeyEnv != "" {
		apiKey = os.Getenv(serverCfg.APIKeyEnv)
	}
	if apiKey == "" {
		log.Warn("API key check disabled", zap.String("env", serverCfg.APIKeyEnv))
	}

	if serverCfg.WatchFiles {
		watcher, err := fs.NewFileWatcher([]string{a.embedPath, a.metaPath}, serverCfg.WatchDebounce, func() {
			if err := a.catalog.Reload(); err != nil {
				log.Error("reload after external change failed", zap.Error(err))
			}
		}, log)
		if err != nil {
			return err
		}
		go watcher.Run(ctx)
	}

	srv := httpapi.New(serverCfg, apiKey, httpapi.Deps{
		Catalog:   a.catalog,
		Recommend: a.recommendUseCase(),
		Ingest:    a.ingestUseCase(),
	}, log)
	return srv.Run(ctx)
}
