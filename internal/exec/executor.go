// Package exec runs retrieval plans against the evidence store. It is
// fully deterministic given the store contents: no language-model calls
// happen here.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avolkov/quaero/internal/model"
	"github.com/avolkov/quaero/internal/store"
)

// Executor fans plan steps out against the store and reassembles results
// in plan order.
type Executor struct {
	store      store.Store
	maxWorkers int
}

// NewExecutor creates an executor with the given fan-out bound.
func NewExecutor(st store.Store, maxWorkers int) *Executor {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &Executor{
		store:      st,
		maxWorkers: maxWorkers,
	}
}

type stepResult struct {
	items   []model.EvidenceItem
	warning string
}

// Execute runs every step of the plan. Steps are independent reads, so
// they run concurrently; the evidence set preserves plan order so that
// citation numbering is reproducible. A failed step contributes no
// evidence and one warning; it never aborts the plan.
func (e *Executor) Execute(ctx context.Context, plan model.RetrievalPlan) (model.EvidenceSet, []string) {
	if len(plan.Steps) == 0 {
		return model.EvidenceSet{}, nil
	}

	results := make([]stepResult, len(plan.Steps))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, e.maxWorkers)

	for i, step := range plan.Steps {
		wg.Add(1)
		go func(idx int, s model.PlanStep) {
			defer wg.Done()

			if err := ctx.Err(); err != nil {
				results[idx] = stepResult{warning: stepWarning(idx, s, err)}
				return
			}
			select {
			case <-ctx.Done():
				results[idx] = stepResult{warning: stepWarning(idx, s, ctx.Err())}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			results[idx] = e.executeStep(ctx, idx, s)
		}(i, step)
	}

	wg.Wait()

	var set model.EvidenceSet
	var warnings []string
	seen := make(map[string]bool)
	for _, res := range results {
		if res.warning != "" {
			warnings = append(warnings, res.warning)
		}
		for _, item := range res.items {
			// Dedupe identical excerpts retrieved by overlapping steps.
			key := item.SourceID + "\x00" + excerptPrefix(item.Excerpt)
			if seen[key] {
				continue
			}
			seen[key] = true
			set = append(set, item)
		}
	}
	if set == nil {
		set = model.EvidenceSet{}
	}

	return set, warnings
}

// executeStep dispatches one step by source type and tags the results
// with the step's wall-clock latency.
func (e *Executor) executeStep(ctx context.Context, idx int, step model.PlanStep) stepResult {
	start := time.Now()

	var items []model.EvidenceItem
	var err error
	switch step.SourceType {
	case model.SourceDocument:
		items, err = e.store.SearchDocuments(ctx, step.Query, step.SourceID)
	case model.SourceStructured:
		items, err = e.store.ReadStructured(ctx, step.SourceID, step.Query)
	case model.SourceLiveFeed:
		items, err = e.store.SearchLiveFeed(ctx, step.Query)
	default:
		err = fmt.Errorf("unknown source type %q", step.SourceType)
	}

	latency := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		slog.Warn("retrieval step failed", "step", idx, "source_type", step.SourceType, "error", err)
		return stepResult{warning: stepWarning(idx, step, err)}
	}

	for i := range items {
		items[i].RetrievalLatencyMS = latency
	}

	return stepResult{items: items}
}

func stepWarning(idx int, step model.PlanStep, err error) string {
	return fmt.Sprintf("retrieval step %d (%s %q) failed: %v", idx+1, step.SourceType, step.Query, err)
}

func excerptPrefix(s string) string {
	if len(s) > 100 {
		return s[:100]
	}
	return s
}
