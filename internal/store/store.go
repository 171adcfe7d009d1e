// Package store is the read-only evidence boundary: a vector similarity
// index for ingested documents, a registry of structured tables, and a
// live bibliographic feed. The executor dispatches plan steps here and
// never mutates anything through this package.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/avolkov/quaero/internal/model"
)

// ErrSourceUnavailable marks a retrieval failure that degrades to an
// empty-evidence contribution plus a warning instead of aborting the plan.
var ErrSourceUnavailable = errors.New("source unavailable")

// Store is the uniform read interface over all evidence sources.
type Store interface {
	// SearchDocuments runs semantic search over ingested documents.
	// sourceID optionally narrows the search to one document.
	SearchDocuments(ctx context.Context, query string, sourceID string) ([]model.EvidenceItem, error)

	// ReadStructured reads from a registered table. An empty sourceID
	// reads every registered table.
	ReadStructured(ctx context.Context, sourceID string, query string) ([]model.EvidenceItem, error)

	// SearchLiveFeed queries the live bibliographic feed.
	SearchLiveFeed(ctx context.Context, query string) ([]model.EvidenceItem, error)
}

// Embedder produces the query embedding for document search. Satisfied by
// llm.Provider; kept narrow so the store does not depend on the llm package.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Adapter composes the three concrete backends into one Store.
type Adapter struct {
	index    *DocumentIndex
	embedder Embedder
	tables   *TableRegistry
	feed     *FeedClient
}

// NewAdapter builds the adapter from already-constructed backends.
func NewAdapter(index *DocumentIndex, embedder Embedder, tables *TableRegistry, feed *FeedClient) *Adapter {
	return &Adapter{
		index:    index,
		embedder: embedder,
		tables:   tables,
		feed:     feed,
	}
}

// SearchDocuments embeds the query and searches the vector index.
func (a *Adapter) SearchDocuments(ctx context.Context, query string, sourceID string) ([]model.EvidenceItem, error) {
	if a.index == nil || a.embedder == nil {
		return nil, fmt.Errorf("%w: document index not configured", ErrSourceUnavailable)
	}

	vector, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrSourceUnavailable, err)
	}

	items, err := a.index.Search(ctx, vector, sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return items, nil
}

// ReadStructured reads head rows from the registered table(s).
func (a *Adapter) ReadStructured(ctx context.Context, sourceID string, query string) ([]model.EvidenceItem, error) {
	if a.tables == nil {
		return nil, fmt.Errorf("%w: structured registry not configured", ErrSourceUnavailable)
	}

	items, err := a.tables.Read(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return items, nil
}

// SearchLiveFeed queries the bibliographic feed.
func (a *Adapter) SearchLiveFeed(ctx context.Context, query string) ([]model.EvidenceItem, error) {
	if a.feed == nil {
		return nil, fmt.Errorf("%w: live feed not configured", ErrSourceUnavailable)
	}

	items, err := a.feed.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	return items, nil
}
