package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/avolkov/quaero/internal/cache"
	"github.com/avolkov/quaero/internal/exec"
	"github.com/avolkov/quaero/internal/llm"
	"github.com/avolkov/quaero/internal/model"
	"github.com/avolkov/quaero/internal/plan"
	"github.com/avolkov/quaero/internal/reason"
	"github.com/avolkov/quaero/internal/store"
	"github.com/avolkov/quaero/internal/verify"
	"github.com/avolkov/quaero/internal/worker"
	"golang.org/x/sync/semaphore"
)

// New wires a pipeline from configuration: rate-limited provider,
// composed evidence store, evidence cache and version counter.
func New(cfg *model.Config) (*Pipeline, error) {
	if cfg.LLM.Provider == "" {
		return nil, ErrLLMNotConfigured
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("initialize LLM provider: %w", err)
	}
	if cfg.LLM.RequestsPerSecond > 0 {
		provider = llm.NewRateLimited(provider, worker.NewLimiter(cfg.LLM.RequestsPerSecond, cfg.LLM.Burst))
	}

	index := store.NewDocumentIndex(store.DocumentIndexConfig{
		URL:        cfg.Store.Documents.URL,
		APIKey:     cfg.Store.Documents.APIKey,
		Collection: cfg.Store.Documents.Collection,
		TopK:       cfg.Store.Documents.TopK,
		Timeout:    cfg.Store.Documents.Timeout,
	})

	// A missing manifest just means no structured sources are registered;
	// plans that ask for them degrade with a warning.
	var tables *store.TableRegistry
	if cfg.Store.Structured.ManifestPath != "" {
		tables, err = store.LoadTableRegistry(cfg.Store.Structured.ManifestPath, cfg.Store.Structured.MaxRows)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load structured sources: %w", err)
			}
			slog.Warn("structured sources manifest not found", "path", cfg.Store.Structured.ManifestPath)
		}
	}

	feed := store.NewFeedClient(store.FeedClientConfig{
		BaseURL:    cfg.Store.Feed.BaseURL,
		MaxResults: cfg.Store.Feed.MaxResults,
		Timeout:    cfg.Store.Feed.Timeout,
		UserAgent:  cfg.Store.Feed.UserAgent,
		HTTPProxy:  cfg.LLM.HTTPProxy,
		HTTPSProxy: cfg.LLM.HTTPSProxy,
		NoProxy:    cfg.LLM.NoProxy,
	}, worker.NewLimiter(cfg.Store.Feed.RequestsPerSecond, 1))

	adapter := store.NewAdapter(index, provider, tables, feed)

	var evidenceCache *cache.EvidenceCache
	if cfg.Cache.Enabled {
		evidenceCache = cache.NewEvidenceCache(cfg.Cache.MemoryTTL, cfg.Cache.Dir, cfg.Cache.DiskTTL)
	}

	return NewWithDeps(provider, adapter, evidenceCache, store.NewMemoryVersionSource(),
		cfg.Pipeline, cfg.Concurrency.RetrievalWorkers), nil
}

// NewWithDeps assembles a pipeline from already-built parts. Tests use it
// to inject fake providers and stores.
func NewWithDeps(provider llm.Provider, st store.Store, evidenceCache *cache.EvidenceCache,
	versions store.VersionSource, cfg model.PipelineConfig, retrievalWorkers int) *Pipeline {

	def := model.DefaultConfig().Pipeline
	if cfg.PlanningTimeout <= 0 {
		cfg.PlanningTimeout = def.PlanningTimeout
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = def.RetrievalTimeout
	}
	if cfg.ReasoningTimeout <= 0 {
		cfg.ReasoningTimeout = def.ReasoningTimeout
	}
	if cfg.VerificationTimeout <= 0 {
		cfg.VerificationTimeout = def.VerificationTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = def.QueryTimeout
	}

	maxQueries := cfg.MaxConcurrentQueries
	if maxQueries <= 0 {
		maxQueries = def.MaxConcurrentQueries
	}

	var planner *plan.Planner
	var agent *reason.Agent
	var verifier *verify.Verifier
	if provider != nil {
		planner = plan.NewPlanner(provider)
		agent = reason.NewAgent(provider)
		verifier = verify.NewVerifier(provider)
	}

	return &Pipeline{
		planner:  planner,
		executor: exec.NewExecutor(st, retrievalWorkers),
		agent:    agent,
		verifier: verifier,
		cache:    evidenceCache,
		versions: versions,
		sem:      semaphore.NewWeighted(maxQueries),
		cfg:      cfg,
	}
}
