// Package lifecycle exposes bucket change events as a lifecycle.Source.
package lifecycle

import (
	"context"
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/schema"
)

// Change is the lifecycle event emitted for a changed key.
type Change struct {
	core.Event
	// TypeName is the registered type owning the key, empty when the key
	// prefix matches no type of the catalog.
	TypeName string
}

func (c Change) String() string {
	if c.TypeName == "" {
		return c.Event.String()
	}
	return fmt.Sprintf("%s %s (%s)", c.Type, c.Key, c.TypeName)
}

// Option configures a source.
type Option func(*eventSource)

// WithCatalog resolves the type of each changed key against catalog.
func WithCatalog(catalog *schema.Catalog) Option {
	return func(s *eventSource) {
		for _, name := range catalog.Names() {
			s.prefixes = append(s.prefixes, typePrefix{prefix: strings.ToLower(name) + "_", name: name})
		}
		// Longest prefix first: "user_role_" must win over "user_".
		sort.Slice(s.prefixes, func(i, j int) bool {
			return len(s.prefixes[i].prefix) > len(s.prefixes[j].prefix)
		})
	}
}

// WithEventTypes forwards only changes of the given types.
func WithEventTypes(types ...core.EventType) Option {
	return func(s *eventSource) {
		s.types = append(s.types, types...)
	}
}

type typePrefix struct {
	prefix string
	name   string
}

type eventSource struct {
	events   <-chan core.Event
	out      chan lifecycle.Event
	prefixes []typePrefix
	types    []core.EventType
}

// NewSource wraps a Watch channel. Events are emitted as Change values.
func NewSource(events <-chan core.Event, opts ...Option) lifecycle.Source {
	s := &eventSource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *eventSource) Events() <-chan lifecycle.Event {
	return s.out
}

// Start forwards events until ctx is done or the watch channel closes,
// then closes Events.
func (s *eventSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				if len(s.types) > 0 && !slices.Contains(s.types, e.Type) {
					continue
				}
				select {
				case s.out <- Change{Event: e, TypeName: s.typeOf(e.Key)}:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}

// typeOf matches the last segment of key, as fs buckets nest keys in directories.
func (s *eventSource) typeOf(key string) string {
	base := path.Base(key)
	for _, p := range s.prefixes {
		if strings.HasPrefix(base, p.prefix) {
			return p.name
		}
	}
	return ""
}
