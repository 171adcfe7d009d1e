package cache

import (
	"fmt"
)

// Cache is the byte-level storage interface shared by the memory and disk
// layers. Values are opaque; callers encode what they store.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Delete(key string) error
	Clear() error
}

// Key builds the storage key for one (normalized question hash, data
// version) pair. The version is part of the key, so a version bump makes
// every previously stored entry unreachable without touching the store.
func Key(questionHash string, dataVersion int64) string {
	return fmt.Sprintf("quaero:v1:%d:%s", dataVersion, questionHash)
}
