package graph

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/model"
	"github.com/aretw0/tessera/pkg/schema"
)

// FindByID fetches the instance of typeName identified by ids, given in the
// order the type declares its identifier fields. References inside it are
// returned as unloaded placeholders.
func (s *Store) FindByID(ctx context.Context, typeName string, ids ...any) (*model.Instance, error) {
	desc, ok := s.Catalog().Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownType, typeName)
	}
	key, err := model.KeyFor(desc, ids...)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, key, desc.Name)
}

// FindByKey fetches the document stored under key and decodes it as
// whichever registered type its discriminators name.
func (s *Store) FindByKey(ctx context.Context, key string) (*model.Instance, error) {
	return s.find(ctx, key, schema.TypeMixed)
}

func (s *Store) find(ctx context.Context, key, typeName string) (*model.Instance, error) {
	ctx, span := tracer.Start(ctx, "graph.Find", trace.WithAttributes(
		attribute.String("tessera.key", key),
		attribute.String("tessera.type", typeName),
	))
	defer span.End()

	doc, token, err := s.get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	v, err := s.codec.Decode(doc, typeName, nil, model.NewCache(), key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		return nil, fmt.Errorf("find %s: %w", key, err)
	}
	inst, ok := v.(*model.Instance)
	if !ok {
		err := fmt.Errorf("find %s: %w: document is not an object", key, core.ErrTypeMismatch)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	model.MarkFetched(inst, token)
	return inst, nil
}

func (s *Store) get(ctx context.Context, key string) (core.Value, core.Token, error) {
	doc, token, err := s.bucket.Get(ctx, key)
	recordFetch(ctx, err == nil)
	s.count(func(st *storeStats) { st.fetches++ })
	if err != nil {
		return core.Value{}, "", fmt.Errorf("get %s: %w", key, err)
	}
	s.logger.Debug("fetched document", "key", key, "token", token)
	return doc, token, nil
}
