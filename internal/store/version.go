package store

import "sync/atomic"

// VersionSource exposes the process-wide data version: a monotonic
// counter bumped exactly once per successful ingestion. The pipeline
// snapshots it once at planning time and uses that snapshot for the whole
// query; a bump after the snapshot only affects later queries.
type VersionSource interface {
	// Current returns the current data version.
	Current() int64

	// RegisterIngestion bumps the version and returns the new value.
	// Called by the ingestion subsystem after a successful ingest.
	RegisterIngestion() int64
}

// MemoryVersionSource is the in-process version counter. Persistence of
// the counter across restarts belongs to the ingestion subsystem.
type MemoryVersionSource struct {
	v atomic.Int64
}

// NewMemoryVersionSource starts the counter at 1.
func NewMemoryVersionSource() *MemoryVersionSource {
	s := &MemoryVersionSource{}
	s.v.Store(1)
	return s
}

// Current returns the current data version.
func (s *MemoryVersionSource) Current() int64 {
	return s.v.Load()
}

// RegisterIngestion bumps the version.
func (s *MemoryVersionSource) RegisterIngestion() int64 {
	return s.v.Add(1)
}
