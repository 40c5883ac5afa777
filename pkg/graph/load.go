package graph

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/tessera/pkg/model"
)

// Load fetches unloaded instances reachable from root, following references
// for at most depth hops. Root may be an instance or any slice, array or map
// holding instances, nested at any level; other values are ignored. Depth
// zero or less does nothing.
//
// Sibling branches are fetched concurrently. The first failure cancels the
// remaining branches and is returned. Cyclic graphs terminate: an instance
// is walked again only when reached with a larger remaining depth.
func (s *Store) Load(ctx context.Context, root any, depth int) error {
	if depth <= 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "graph.Load", trace.WithAttributes(attribute.Int("tessera.depth", depth)))
	defer span.End()
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	l := &loader{
		store:   s,
		group:   g,
		cache:   model.NewCache(),
		visited: make(map[*model.Instance]int),
	}
	l.spawn(gctx, root, depth)
	err := g.Wait()

	recordLoad(ctx, time.Since(start), l.fetched(), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return err
	}
	span.SetAttributes(attribute.Int("tessera.fetched", l.fetched()))
	return nil
}

type loader struct {
	store *Store
	group *errgroup.Group
	cache *model.Cache

	mu      sync.Mutex
	visited map[*model.Instance]int
	fetches int
}

func (l *loader) fetched() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetches
}

// claim records that inst is walked with depth remaining. It reports false
// when the instance was already walked with at least that much depth.
func (l *loader) claim(inst *model.Instance, depth int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seen, ok := l.visited[inst]; ok && seen >= depth {
		return false
	}
	l.visited[inst] = depth
	return true
}

func (l *loader) spawn(ctx context.Context, v any, depth int) {
	switch x := v.(type) {
	case nil:
	case *model.Instance:
		if x == nil {
			return
		}
		l.group.Go(func() error {
			return l.visit(ctx, x, depth)
		})
	case []*model.Instance:
		for _, inst := range x {
			l.spawn(ctx, inst, depth)
		}
	case []any:
		for _, item := range x {
			l.spawn(ctx, item, depth)
		}
	case map[string]any:
		for _, item := range x {
			l.spawn(ctx, item, depth)
		}
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Slice, reflect.Array:
			if !holdsInstances(rv.Type().Elem()) {
				break
			}
			for n := 0; n < rv.Len(); n++ {
				l.spawn(ctx, rv.Index(n).Interface(), depth)
			}
			return
		case reflect.Map:
			if !holdsInstances(rv.Type().Elem()) {
				break
			}
			iter := rv.MapRange()
			for iter.Next() {
				l.spawn(ctx, iter.Value().Interface(), depth)
			}
			return
		}
		l.store.logger.Debug("nothing to load", "type", fmt.Sprintf("%T", v))
	}
}

// holdsInstances reports whether values of t may be or contain instances.
func holdsInstances(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}

func (l *loader) visit(ctx context.Context, inst *model.Instance, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !l.claim(inst, depth) {
		return nil
	}
	model.Attach(inst, l.cache)

	if !inst.Loaded() {
		if err := l.store.hydrate(ctx, inst); err != nil {
			return err
		}
		l.mu.Lock()
		l.fetches++
		l.mu.Unlock()
	}
	if depth <= 1 {
		return nil
	}

	res, err := l.store.codec.EncodeRoot(inst)
	if err != nil {
		return fmt.Errorf("load %s: %w", inst, err)
	}
	for _, ref := range res.Refs {
		l.spawn(ctx, ref, depth-1)
	}
	return nil
}

// hydrate fetches the document of a placeholder and fills it. Concurrent
// loads of the same instance share one fetch, even across Load calls. The
// shared fetch does not inherit the cancellation of whichever caller started
// it; each caller stops waiting when its own ctx is done.
func (s *Store) hydrate(ctx context.Context, inst *model.Instance) error {
	key, err := inst.Key()
	if err != nil {
		return err
	}
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(fmt.Sprintf("%s@%p", key, inst), func() (any, error) {
		if inst.Loaded() {
			return nil, nil
		}
		doc, token, err := s.get(fetchCtx, key)
		if err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
		if err := s.codec.Hydrate(inst, doc); err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		model.MarkFetched(inst, token)
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
