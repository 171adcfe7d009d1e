package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/avolkov/quaero/internal/model"
	"github.com/avolkov/quaero/internal/pipeline"
	"github.com/avolkov/quaero/internal/worker"
	"github.com/spf13/cobra"
)

var (
	concurrency  int
	outputPath   string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Answer multiple questions from a file in parallel",
	Long: `Batch answers many questions concurrently:
- Read questions from the input file (one per line, # for comments)
- Run them through the pipeline with a configurable worker count
- Write one JSON line per question

Example:
  quaero batch questions.txt
  quaero batch questions.txt --concurrency 4 --output answers.jsonl
  quaero batch questions.txt --timeout 15m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputPath, "output", "", "output JSONL path (default: stdout)")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for the batch")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the evidence cache")
	batchCmd.Flags().StringVar(&sourcesPath, "sources", "", "structured sources manifest (overrides config)")
	registerLLMFlags(batchCmd)
}

// batchLine is one JSONL record of the batch output.
type batchLine struct {
	Question string               `json:"question"`
	Response *model.QueryResponse `json:"response,omitempty"`
	Error    string               `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Cache.Enabled = cfg.Cache.Enabled && !noCache
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

	out := os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	processor := worker.NewBatchProcessor(p, concurrency)

	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	encoder := json.NewEncoder(out)
	successCount := 0
	failureCount := 0
	abstainCount := 0

	for _, result := range results {
		line := batchLine{Question: result.Question}
		if result.Error != nil {
			failureCount++
			line.Error = result.Error.Error()
		} else {
			successCount++
			line.Response = result.Response
			if result.Response.Abstained {
				abstainCount++
			}
		}
		if err := encoder.Encode(line); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "%d questions: %d answered (%d abstained), %d failed\n",
		len(results), successCount, abstainCount, failureCount)
	return nil
}
