package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avolkov/quaero/internal/model"
)

// DocumentIndex is a minimal REST client to a Qdrant collection holding
// ingested document chunks. Search only; ingestion writes elsewhere.
type DocumentIndex struct {
	url        string
	apiKey     string
	collection string
	topK       int
	client     *http.Client
}

// DocumentIndexConfig configures the index client.
type DocumentIndexConfig struct {
	URL        string
	APIKey     string
	Collection string
	TopK       int
	Timeout    time.Duration
}

// NewDocumentIndex creates the index client.
func NewDocumentIndex(cfg DocumentIndexConfig) *DocumentIndex {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	return &DocumentIndex{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		topK:       topK,
		client:     &http.Client{Timeout: timeout},
	}
}

type qdrantSearchRequest struct {
	Vector      []float32      `json:"vector"`
	Limit       int            `json:"limit"`
	WithPayload bool           `json:"with_payload"`
	Filter      map[string]any `json:"filter,omitempty"`
}

type qdrantSearchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Search runs a similarity search, optionally filtered to one source.
func (d *DocumentIndex) Search(ctx context.Context, vector []float32, sourceID string) ([]model.EvidenceItem, error) {
	req := qdrantSearchRequest{
		Vector:      vector,
		Limit:       d.topK,
		WithPayload: true,
	}
	if sourceID != "" {
		req.Filter = map[string]any{
			"must": []map[string]any{
				{"key": "source_id", "match": map[string]any{"value": sourceID}},
			},
		}
	}

	var resp qdrantSearchResponse
	endpoint := fmt.Sprintf("%s/collections/%s/points/search", d.url, d.collection)
	if err := d.postJSON(ctx, endpoint, req, &resp); err != nil {
		return nil, err
	}

	items := make([]model.EvidenceItem, 0, len(resp.Result))
	for _, hit := range resp.Result {
		items = append(items, model.EvidenceItem{
			SourceID:   payloadString(hit.Payload, "source_id", "unknown"),
			SourceType: model.SourceDocument,
			Excerpt:    payloadString(hit.Payload, "text", ""),
			Locator:    model.Locator{Page: payloadInt(hit.Payload, "page")},
			Score:      hit.Score,
		})
	}
	return items, nil
}

func (d *DocumentIndex) postJSON(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		httpReq.Header.Set("api-key", d.apiKey)
	}

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func payloadString(payload map[string]any, key, fallback string) string {
	if v, ok := payload[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func payloadInt(payload map[string]any, key string) int {
	if v, ok := payload[key].(float64); ok {
		return int(v)
	}
	return 0
}
