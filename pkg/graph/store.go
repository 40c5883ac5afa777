// Package graph loads and saves object graphs through a bucket.
//
// A Store owns the codec of a frozen catalog and a bucket. Reads decode
// documents into instances whose references stay lazy until Load walks them;
// writes encode each instance on its own and persist it under its key with
// the token recorded when it was read.
package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/model"
	"github.com/aretw0/tessera/pkg/schema"
)

// DefaultSaveConcurrency bounds the writes a single Save issues at once.
const DefaultSaveConcurrency = 8

// Store binds a catalog to a bucket.
type Store struct {
	bucket core.Bucket
	codec  *model.Codec
	logger *slog.Logger

	saveConcurrency int
	flight          singleflight.Group

	mu    sync.Mutex
	stats storeStats
}

type storeStats struct {
	fetches int64
	writes  int64
	skipped int64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithSaveConcurrency bounds concurrent writes per Save call.
func WithSaveConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.saveConcurrency = n
		}
	}
}

// New returns a store reading and writing bucket with the types of catalog.
func New(bucket core.Bucket, catalog *schema.Catalog, opts ...Option) *Store {
	s := &Store{
		bucket:          bucket,
		codec:           model.NewCodec(catalog),
		saveConcurrency: DefaultSaveConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Bucket returns the underlying bucket.
func (s *Store) Bucket() core.Bucket { return s.bucket }

// Codec returns the codec the store marshals with.
func (s *Store) Codec() *model.Codec { return s.codec }

// Catalog returns the catalog of registered types.
func (s *Store) Catalog() *schema.Catalog { return s.codec.Catalog() }

// Keys lists stored keys matching a glob pattern. The bucket must implement core.Lister.
func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	l, ok := s.bucket.(core.Lister)
	if !ok {
		return nil, fmt.Errorf("list keys: %w", errors.ErrUnsupported)
	}
	return l.Keys(ctx, pattern)
}

// Watch streams changes to keys matching pattern. The bucket must implement core.Watchable.
func (s *Store) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	w, ok := s.bucket.(core.Watchable)
	if !ok {
		return nil, fmt.Errorf("watch: %w", errors.ErrUnsupported)
	}
	return w.Watch(ctx, pattern)
}

// Close closes the bucket when it holds resources.
func (s *Store) Close() error {
	if c, ok := s.bucket.(core.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) count(fn func(*storeStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.stats)
}
