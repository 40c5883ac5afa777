// Package memory provides an in-process bucket, mainly for tests and
// ephemeral stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/tessera/pkg/core"
)

type entry struct {
	doc core.Value
	rev uint64
}

// Bucket keeps documents in a map. Tokens are per-key revision counters.
type Bucket struct {
	mu       sync.RWMutex
	docs     map[string]entry
	rev      uint64
	readOnly bool
	watchers []*watcher
}

type watcher struct {
	pattern string
	ch      chan core.Event
	ctx     context.Context
}

// Option configures a Bucket.
type Option func(*Bucket)

// WithReadOnly rejects every write with core.ErrBucketRO.
func WithReadOnly(ro bool) Option {
	return func(b *Bucket) { b.readOnly = ro }
}

// New returns an empty bucket.
func New(opts ...Option) *Bucket {
	b := &Bucket{docs: make(map[string]entry)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get implements core.Bucket.
func (b *Bucket) Get(ctx context.Context, key string) (core.Value, core.Token, error) {
	if err := ctx.Err(); err != nil {
		return core.Value{}, "", err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.docs[key]
	if !ok {
		return core.Value{}, "", fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return e.doc, token(e.rev), nil
}

// Set implements core.Bucket.
func (b *Bucket) Set(ctx context.Context, key string, doc core.Value, precondition core.Token) (core.Token, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.readOnly {
		return "", core.ErrBucketRO
	}
	e, exists := b.docs[key]
	if precondition != "" && (!exists || token(e.rev) != precondition) {
		return "", fmt.Errorf("%w: %s", core.ErrConflict, key)
	}

	b.rev++
	b.docs[key] = entry{doc: doc, rev: b.rev}

	typ := core.EventCreate
	if exists {
		typ = core.EventModify
	}
	b.notify(core.Event{Type: typ, Key: key, Timestamp: time.Now().Unix()})
	return token(b.rev), nil
}

// Remove implements core.Remover.
func (b *Bucket) Remove(ctx context.Context, key string, precondition core.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.readOnly {
		return core.ErrBucketRO
	}
	e, ok := b.docs[key]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	if precondition != "" && token(e.rev) != precondition {
		return fmt.Errorf("%w: %s", core.ErrConflict, key)
	}
	delete(b.docs, key)
	b.notify(core.Event{Type: core.EventDelete, Key: key, Timestamp: time.Now().Unix()})
	return nil
}

// Keys implements core.Lister. An empty pattern matches every key.
func (b *Bucket) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.docs))
	for k := range b.docs {
		if pattern == "" || matchKey(pattern, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch implements core.Watchable. The channel closes when ctx is done.
func (b *Bucket) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}
	w := &watcher{pattern: pattern, ch: make(chan core.Event, 64), ctx: ctx}

	b.mu.Lock()
	b.watchers = append(b.watchers, w)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, other := range b.watchers {
			if other == w {
				b.watchers = append(b.watchers[:i], b.watchers[i+1:]...)
				break
			}
		}
		close(w.ch)
	}()
	return w.ch, nil
}

// notify must be called with b.mu held. Slow watchers drop events.
func (b *Bucket) notify(ev core.Event) {
	for _, w := range b.watchers {
		if w.ctx.Err() != nil {
			continue
		}
		if w.pattern != "" && !matchKey(w.pattern, ev.Key) {
			continue
		}
		select {
		case w.ch <- ev:
		default:
		}
	}
}

// Len returns the number of stored documents.
func (b *Bucket) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docs)
}

func matchKey(pattern, key string) bool {
	ok, err := doublestar.Match(pattern, key)
	return err == nil && ok
}

func token(rev uint64) core.Token {
	return core.Token(strconv.FormatUint(rev, 10))
}

// BucketState exposes internal state for observability.
type BucketState struct {
	Documents int    `json:"documents"`
	Revision  uint64 `json:"revision"`
	ReadOnly  bool   `json:"read_only"`
	Watchers  int    `json:"watchers"`
}

// State implements introspection.Introspectable.
func (b *Bucket) State() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BucketState{
		Documents: len(b.docs),
		Revision:  b.rev,
		ReadOnly:  b.readOnly,
		Watchers:  len(b.watchers),
	}
}

// ComponentType implements introspection.Component.
func (b *Bucket) ComponentType() string {
	return "memory"
}

var (
	_ core.Bucket    = (*Bucket)(nil)
	_ core.Lister    = (*Bucket)(nil)
	_ core.Remover   = (*Bucket)(nil)
	_ core.Watchable = (*Bucket)(nil)

	_ introspection.Introspectable = (*Bucket)(nil)
	_ introspection.Component      = (*Bucket)(nil)
)
