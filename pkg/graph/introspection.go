package graph

import (
	"github.com/aretw0/introspection"
)

// StoreState exposes internal state for observability.
type StoreState struct {
	BucketType      string   `json:"bucket_type"`
	Types           []string `json:"types"`
	SaveConcurrency int      `json:"save_concurrency"`
	Fetches         int64    `json:"fetches"`
	Writes          int64    `json:"writes"`
	Skipped         int64    `json:"skipped"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucketType := "bucket"
	if comp, ok := s.bucket.(introspection.Component); ok {
		bucketType = comp.ComponentType()
	}

	return StoreState{
		BucketType:      bucketType,
		Types:           s.Catalog().Names(),
		SaveConcurrency: s.saveConcurrency,
		Fetches:         s.stats.fetches,
		Writes:          s.stats.writes,
		Skipped:         s.stats.skipped,
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "store"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)
