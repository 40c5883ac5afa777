// Package model holds live model instances, the per-operation object cache
// and the codec converting between documents and object graphs.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/schema"
)

// Instance is a live object of a registered type.
//
// An instance is either loaded (its fields are known) or a placeholder
// created for a reference, of which only the type and key are known until a
// loader fetches it. Instances are safe for concurrent use.
type Instance struct {
	mu       sync.Mutex
	desc     *schema.Descriptor
	key      string
	values   map[string]any
	token    core.Token
	loaded   bool
	snapshot *core.Value
	cache    *Cache
}

// New constructs a loaded instance of desc. Read-only fields can only be set here.
func New(desc *schema.Descriptor, values map[string]any) (*Instance, error) {
	inst := &Instance{
		desc:   desc,
		values: make(map[string]any, len(values)),
		loaded: true,
	}
	for name, v := range values {
		if _, ok := desc.Field(name); !ok {
			return nil, fmt.Errorf("%w: %s.%s", core.ErrUnknownField, desc.Name, name)
		}
		inst.values[name] = v
	}
	return inst, nil
}

// MustNew is like New but panics on error.
func MustNew(desc *schema.Descriptor, values map[string]any) *Instance {
	inst, err := New(desc, values)
	if err != nil {
		panic(err)
	}
	return inst
}

func newPlaceholder(desc *schema.Descriptor, key string, cache *Cache) *Instance {
	return &Instance{
		desc:  desc,
		key:   key,
		cache: cache,
	}
}

// Type returns the descriptor of the instance.
func (i *Instance) Type() *schema.Descriptor { return i.desc }

// Loaded reports whether the fields of the instance are known.
func (i *Instance) Loaded() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.loaded
}

// Token returns the concurrency token recorded on the last load or save.
func (i *Instance) Token() core.Token {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.token
}

// Cache returns the object cache the instance was decoded under, if any.
func (i *Instance) Cache() *Cache {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.cache
}

// Snapshot returns the document last read from or written to the store.
func (i *Instance) Snapshot() (core.Value, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.snapshot == nil {
		return core.Value{}, false
	}
	return *i.snapshot, true
}

// Get returns the value of a declared field. Absent fields yield nil.
// Auto uuid fields are generated on first read.
func (i *Instance) Get(name string) (any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.loaded {
		return nil, fmt.Errorf("%w: %s", core.ErrNotLoaded, i.describe())
	}
	f, ok := i.desc.Field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", core.ErrUnknownField, i.desc.Name, name)
	}
	return i.getLocked(f), nil
}

// Has reports whether a field holds a value, including an explicit nil.
func (i *Instance) Has(name string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.values[name]
	return ok
}

func (i *Instance) getLocked(f schema.Field) any {
	v, ok := i.values[f.Name]
	if f.Auto == schema.AutoUUID && (!ok || v == nil || v == "") {
		v = uuid.NewString()
		i.values[f.Name] = v
	}
	return v
}

// Set assigns a declared, writable field.
func (i *Instance) Set(name string, v any) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.loaded {
		return fmt.Errorf("%w: %s", core.ErrNotLoaded, i.describe())
	}
	f, ok := i.desc.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", core.ErrUnknownField, i.desc.Name, name)
	}
	if f.ReadOnly {
		return fmt.Errorf("%w: %s.%s", core.ErrReadOnly, i.desc.Name, name)
	}
	i.values[name] = v
	return nil
}

// Unset removes a writable field so it is omitted from the encoded document.
func (i *Instance) Unset(name string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.loaded {
		return fmt.Errorf("%w: %s", core.ErrNotLoaded, i.describe())
	}
	f, ok := i.desc.Field(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", core.ErrUnknownField, i.desc.Name, name)
	}
	if f.ReadOnly {
		return fmt.Errorf("%w: %s.%s", core.ErrReadOnly, i.desc.Name, name)
	}
	delete(i.values, name)
	return nil
}

// Key returns the persistence key, computing and memoizing it on first use.
// Every identifier and required field must hold a value.
func (i *Instance) Key() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.key != "" {
		return i.key, nil
	}
	if !i.loaded {
		return "", fmt.Errorf("%w: placeholder of %s has no key", core.ErrNotLoaded, i.desc.Name)
	}

	ids := make([]any, len(i.desc.ID))
	for n, id := range i.desc.ID {
		f, _ := i.desc.Field(id)
		v := i.getLocked(f)
		if isEmpty(v) {
			return "", fmt.Errorf("%w: %s.%s", core.ErrMissingIdentifier, i.desc.Name, id)
		}
		ids[n] = v
	}
	for _, f := range i.desc.Fields {
		if f.Required && isEmpty(i.getLocked(f)) {
			return "", fmt.Errorf("%w: %s.%s", core.ErrMissingRequired, i.desc.Name, f.Name)
		}
	}

	key, err := KeyFor(i.desc, ids...)
	if err != nil {
		return "", err
	}
	i.key = key
	return key, nil
}

// KeyFor builds the persistence key of desc from identifier values given in
// declaration order: the lowercased type name and values joined by '_'.
func KeyFor(desc *schema.Descriptor, ids ...any) (string, error) {
	if len(ids) != len(desc.ID) {
		return "", fmt.Errorf("%w: %s expects %d identifier values, got %d",
			core.ErrMissingIdentifier, desc.Name, len(desc.ID), len(ids))
	}
	var b strings.Builder
	b.WriteString(desc.Name)
	for n, v := range ids {
		if isEmpty(v) {
			return "", fmt.Errorf("%w: %s.%s", core.ErrMissingIdentifier, desc.Name, desc.ID[n])
		}
		b.WriteByte('_')
		b.WriteString(formatID(v))
	}
	return strings.ToLower(b.String()), nil
}

func formatID(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case core.Value:
		return core.FormatScalar(x)
	default:
		return fmt.Sprint(v)
	}
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}

func (i *Instance) String() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.describe()
}

func (i *Instance) describe() string {
	if i.key == "" {
		return i.desc.Name + "(unkeyed)"
	}
	return i.desc.Name + "(" + i.key + ")"
}

// fields returns a shallow copy of the field store.
func (i *Instance) fields() (map[string]any, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.loaded {
		return nil, false
	}
	out := make(map[string]any, len(i.values))
	for k, v := range i.values {
		out[k] = v
	}
	return out, true
}

// populate replaces the field store with decoded values and marks the instance loaded.
func (i *Instance) populate(values map[string]any, doc core.Value) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.values = values
	i.loaded = true
	i.snapshot = &doc
}

// attach sets the owning cache unless one is already set and returns the owner.
func (i *Instance) attach(c *Cache) *Cache {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cache == nil {
		i.cache = c
	}
	return i.cache
}

// Attach binds an instance created by application code to c so references
// discovered under it resolve through the same cache. It returns the cache
// the instance ends up bound to.
func Attach(inst *Instance, c *Cache) *Cache {
	return inst.attach(c)
}

// MarkFetched records the token of the document the instance was hydrated from.
func MarkFetched(inst *Instance, token core.Token) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.token = token
}

// MarkSaved records a successful write of doc under token.
func MarkSaved(inst *Instance, doc core.Value, token core.Token) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.token = token
	inst.snapshot = &doc
}

// Unchanged reports whether doc equals the last persisted document.
func Unchanged(inst *Instance, doc core.Value) bool {
	prev, ok := inst.Snapshot()
	return ok && prev.Equal(doc)
}
