// Package typed binds Go structs to registered model types.
//
// A struct is converted through its json tags: the struct is marshalled to a
// document, decoded by the model codec and persisted by a graph.Store, so
// references and discriminators are handled exactly as for untyped instances.
// Reference fields are best declared as core.Value, which carries a
// {"$ref": [type, key]} marker through the conversion untouched.
package typed

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/graph"
	"github.com/aretw0/tessera/pkg/model"
	"github.com/aretw0/tessera/pkg/schema"
)

// DocumentModel is a typed view of a model instance.
type DocumentModel[T any] struct {
	Data  T
	inst  *model.Instance
	saver Saver[T]
}

// Saver avoids coupling a document to a concrete repository.
type Saver[T any] interface {
	Save(ctx context.Context, doc *DocumentModel[T]) error
}

// Save persists the document using the repository it came from.
func (d *DocumentModel[T]) Save(ctx context.Context) error {
	if d.saver == nil {
		return errors.New("document is detached (missing Saver)")
	}
	return d.saver.Save(ctx, d)
}

// Key returns the persistence key of the document.
func (d *DocumentModel[T]) Key() (string, error) {
	if d.inst == nil {
		return "", errors.New("document is detached (missing instance)")
	}
	return d.inst.Key()
}

// Instance returns the underlying model instance, e.g. to pass to graph.Store.Load.
func (d *DocumentModel[T]) Instance() *model.Instance { return d.inst }

// Repository provides type-safe access to the documents of one model type.
type Repository[T any] struct {
	store *graph.Store
	desc  *schema.Descriptor
}

// NewRepository binds T to the type called typeName in the store's catalog.
func NewRepository[T any](store *graph.Store, typeName string) (*Repository[T], error) {
	desc, ok := store.Catalog().Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownType, typeName)
	}
	return &Repository[T]{store: store, desc: desc}, nil
}

// Type returns the descriptor T is bound to.
func (r *Repository[T]) Type() *schema.Descriptor { return r.desc }

// New builds an unsaved document from data. Read-only fields, identifiers
// included, take their value here and can not change afterwards.
func (r *Repository[T]) New(data T) (*DocumentModel[T], error) {
	cache := model.NewCache()
	values, err := r.decode(data, cache)
	if err != nil {
		return nil, err
	}
	inst, err := model.New(r.desc, values)
	if err != nil {
		return nil, err
	}
	model.Attach(inst, cache)
	return &DocumentModel[T]{Data: data, inst: inst, saver: r}, nil
}

// Get fetches the document identified by ids.
func (r *Repository[T]) Get(ctx context.Context, ids ...any) (*DocumentModel[T], error) {
	inst, err := r.store.FindByID(ctx, r.desc.Name, ids...)
	if err != nil {
		return nil, err
	}
	return r.wrap(inst)
}

// GetByKey fetches the document stored under key, e.g. one named by a watch event.
func (r *Repository[T]) GetByKey(ctx context.Context, key string) (*DocumentModel[T], error) {
	inst, err := r.store.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if inst.Type() != r.desc {
		return nil, fmt.Errorf("%w: %s holds a %s", core.ErrTypeMismatch, key, inst.Type().Name)
	}
	return r.wrap(inst)
}

// Save copies doc.Data into the instance and persists it. Changing a
// read-only field fails with core.ErrReadOnly.
func (r *Repository[T]) Save(ctx context.Context, doc *DocumentModel[T]) error {
	if doc.inst == nil {
		created, err := r.New(doc.Data)
		if err != nil {
			return err
		}
		doc.inst = created.inst
	} else if err := r.assign(doc.inst, doc.Data); err != nil {
		return err
	}
	if doc.saver == nil {
		doc.saver = r
	}

	if _, err := r.store.Save(ctx, doc.inst); err != nil {
		return err
	}

	// Pick up generated values such as auto identifiers.
	snapshot, ok := doc.inst.Snapshot()
	if !ok {
		return nil
	}
	data, err := fromValue[T](snapshot)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", r.desc.Name, err)
	}
	doc.Data = data
	return nil
}

// List returns every stored document of the bound type.
func (r *Repository[T]) List(ctx context.Context) ([]*DocumentModel[T], error) {
	keys, err := r.store.Keys(ctx, r.pattern())
	if err != nil {
		return nil, err
	}

	result := make([]*DocumentModel[T], 0, len(keys))
	for _, key := range keys {
		inst, err := r.store.FindByKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("failed to process document %s: %w", key, err)
		}
		// Another type whose lowercased name shares the prefix.
		if inst.Type() != r.desc {
			continue
		}
		doc, err := r.wrap(inst)
		if err != nil {
			return nil, fmt.Errorf("failed to process document %s: %w", key, err)
		}
		result = append(result, doc)
	}
	return result, nil
}

// Delete removes the stored document.
func (r *Repository[T]) Delete(ctx context.Context, doc *DocumentModel[T]) error {
	if doc.inst == nil {
		return errors.New("document is detached (missing instance)")
	}
	return r.store.Remove(ctx, doc.inst)
}

// Watch observes changes to documents of the bound type.
func (r *Repository[T]) Watch(ctx context.Context) (<-chan core.Event, error) {
	return r.store.Watch(ctx, r.pattern())
}

func (r *Repository[T]) pattern() string {
	return strings.ToLower(r.desc.Name) + "_*"
}

func (r *Repository[T]) wrap(inst *model.Instance) (*DocumentModel[T], error) {
	res, err := r.store.Codec().EncodeRoot(inst)
	if err != nil {
		return nil, err
	}
	data, err := fromValue[T](res.Doc)
	if err != nil {
		return nil, fmt.Errorf("unmarshal to target type failed: %w", err)
	}
	return &DocumentModel[T]{Data: data, inst: inst, saver: r}, nil
}

func (r *Repository[T]) decode(data T, cache *model.Cache) (map[string]any, error) {
	doc, err := toValue(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal typed data: %w", err)
	}
	catalog := r.store.Catalog()
	doc = tag(catalog, doc, r.desc.Name, nil)
	return r.store.Codec().DecodeFields(r.desc, doc, cache)
}

// assign replaces the writable fields of inst with those of data.
func (r *Repository[T]) assign(inst *model.Instance, data T) error {
	values, err := r.decode(data, model.Attach(inst, model.NewCache()))
	if err != nil {
		return err
	}
	for _, f := range r.desc.Fields {
		v, present := values[f.Name]
		if f.ReadOnly {
			// Zero values in data leave generated or stored values alone.
			if !present || v == nil || v == "" {
				continue
			}
			current, err := inst.Get(f.Name)
			if err != nil {
				return err
			}
			if !reflect.DeepEqual(current, v) {
				return fmt.Errorf("%w: %s.%s", core.ErrReadOnly, r.desc.Name, f.Name)
			}
			continue
		}
		if present {
			err = inst.Set(f.Name, v)
		} else {
			err = inst.Unset(f.Name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

var _ Saver[struct{}] = (*Repository[struct{}])(nil)
