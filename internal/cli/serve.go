package cli

import (
	"github.com/avolkov/quaero/internal/pipeline"
	"github.com/avolkov/quaero/internal/server"
	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query pipeline over HTTP",
	Long: `Serve starts an HTTP API around the pipeline:
  POST /query   {"question": "..."}  -> the full query response
  GET  /health  liveness
  GET  /ready   readiness plus the current data version

The server drains in-flight queries on SIGINT/SIGTERM.

Example:
  quaero serve
  quaero serve --addr :9090 --llm-provider ollama --llm-model llama3`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&sourcesPath, "sources", "", "structured sources manifest (overrides config)")
	registerLLMFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if sourcesPath != "" {
		cfg.Store.Structured.ManifestPath = sourcesPath
	}
	if err := applyLLMFlags(cfg); err != nil {
		return err
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	return server.New(p, cfg.Server.Addr).Run()
}
