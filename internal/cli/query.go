package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/avolkov/quaero/internal/model"
	"github.com/avolkov/quaero/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	queryTimeout time.Duration
	noCache      bool
	jsonOutput   bool
	sourcesPath  string
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Answer a single research question from the evidence corpus",
	Long: `Query runs one question through the full pipeline:
- Plan retrieval steps across documents, tables, and the live feed
- Execute the steps concurrently and collect evidence
- Reason over the evidence only, citing every assertion
- Verify each claim independently and retry once on failures

The answer cites its sources; when the evidence is insufficient the
pipeline abstains and says what is missing.

Example:
  quaero query "What is the boiling point of tungsten?"
  quaero query --llm-provider ollama --llm-model llama3 "..."
  quaero query --json "..." | jq .cited_sources`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 2*time.Minute, "overall query timeout")
	queryCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the evidence cache")
	queryCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the raw JSON response")
	queryCmd.Flags().StringVar(&sourcesPath, "sources", "", "structured sources manifest (overrides config)")
	registerLLMFlags(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Pipeline.QueryTimeout = queryTimeout
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

	response, err := p.Answer(ctx, question)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)
	}

	printResponse(response)
	return nil
}

// printResponse renders the human-readable form of a response.
func printResponse(response *model.QueryResponse) {
	if response.Abstained {
		fmt.Println("No answer: insufficient evidence.")
		if response.AbstentionReason != "" {
			fmt.Printf("Reason: %s\n", response.AbstentionReason)
		}
	} else {
		fmt.Println(response.Answer)
	}

	if len(response.CitedSources) > 0 {
		fmt.Println("\nSources:")
		for _, source := range response.CitedSources {
			fmt.Printf("  [%s] (%s) %s\n", source.SourceID, source.SourceType, source.Excerpt)
		}
	}

	if len(response.Warnings) > 0 {
		fmt.Fprintln(os.Stderr, "\nWarnings:")
		for _, warning := range response.Warnings {
			fmt.Fprintf(os.Stderr, "  - %s\n", warning)
		}
	}

	fmt.Fprintf(os.Stderr, "\nData version %d; %.0f ms total (plan %.0f, retrieve %.0f, reason %.0f, verify %.0f)\n",
		response.DataVersion,
		response.Latency.TotalMS,
		response.Latency.PlanningMS,
		response.Latency.RetrievalMS,
		response.Latency.ReasoningMS,
		response.Latency.VerificationMS)
}
