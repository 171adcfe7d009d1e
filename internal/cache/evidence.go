package cache

import (
	"encoding/json"
	"time"

	"github.com/avolkov/quaero/internal/model"
)

// EvidenceCache stores executed evidence sets keyed by (question hash,
// data version). A hit is valid only when the stored data version equals
// the current one exactly; entries written under an older version simply
// never match again and expire via TTL.
type EvidenceCache struct {
	store Cache
}

// NewEvidenceCache builds the evidence cache. If diskDir is empty only the
// memory layer is used.
func NewEvidenceCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *EvidenceCache {
	if diskDir == "" {
		return &EvidenceCache{store: NewMemoryCache(memoryTTL, 10*time.Minute)}
	}
	return &EvidenceCache{store: NewLayeredCache(memoryTTL, diskDir, diskTTL)}
}

// NewEvidenceCacheWith wraps an existing byte cache; used by tests.
func NewEvidenceCacheWith(store Cache) *EvidenceCache {
	return &EvidenceCache{store: store}
}

// Get returns the cached evidence set for the question at the given data
// version. A miss is a normal outcome, not an error.
func (c *EvidenceCache) Get(questionHash string, dataVersion int64) (model.EvidenceSet, bool) {
	data, found := c.store.Get(Key(questionHash, dataVersion))
	if !found {
		return nil, false
	}

	var set model.EvidenceSet
	if err := json.Unmarshal(data, &set); err != nil {
		// A corrupt entry behaves like a miss; the executor repopulates it.
		_ = c.store.Delete(Key(questionHash, dataVersion))
		return nil, false
	}
	return set, true
}

// Put stores the evidence set under the question hash and data version.
func (c *EvidenceCache) Put(questionHash string, dataVersion int64, set model.EvidenceSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return c.store.Set(Key(questionHash, dataVersion), data)
}

// Clear drops every entry.
func (c *EvidenceCache) Clear() error {
	return c.store.Clear()
}
