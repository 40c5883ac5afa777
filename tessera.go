package tessera

import (
	"log/slog"

	"github.com/aretw0/tessera/internal/platform"
	"github.com/aretw0/tessera/pkg/adapters/fs"
	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/graph"
	"github.com/aretw0/tessera/pkg/schema"
	"github.com/aretw0/tessera/pkg/typed"
)

// --- Types ---

// Store is a public alias for the graph store.
type Store = graph.Store

// SaveResult is a public alias for the outcome of Store.Save.
type SaveResult = graph.SaveResult

// DocumentModel is a public alias for the typed document model.
type DocumentModel[T any] = typed.DocumentModel[T]

// TypedRepository is a public alias for the typed repository.
type TypedRepository[T any] = typed.Repository[T]

// --- Configuration ---

// Option defines a functional option for configuring a store.
type Option = platform.Option

// Adapter names.
const (
	AdapterFS     = platform.AdapterFS
	AdapterBadger = platform.AdapterBadger
	AdapterMemory = platform.AdapterMemory
)

// SchemaFile is loaded from the storage directory when no schema is configured.
const SchemaFile = platform.SchemaFile

// DefaultSystemDir is the hidden directory marking a project root.
const DefaultSystemDir = fs.DefaultSystemDir

// WithLogger sets the logger for the store and its bucket.
func WithLogger(logger *slog.Logger) Option {
	return platform.WithLogger(logger)
}

// WithAdapter selects the storage adapter by name.
func WithAdapter(name string) Option {
	return platform.WithAdapter(name)
}

// WithBucket allows injecting a custom storage adapter.
func WithBucket(b core.Bucket) Option {
	return platform.WithBucket(b)
}

// WithCatalog sets the registered types directly.
func WithCatalog(c *schema.Catalog) Option {
	return platform.WithCatalog(c)
}

// WithSchemaFile loads types from a YAML schema file.
func WithSchemaFile(path string) Option {
	return platform.WithSchemaFile(path)
}

// WithInMemory keeps the badger adapter off the disk.
func WithInMemory(enabled bool) Option {
	return platform.WithInMemory(enabled)
}

// WithFormat sets the file format of new fs documents.
func WithFormat(ext string) Option {
	return platform.WithFormat(ext)
}

// WithSystemDir sets the hidden directory name (e.g. ".tessera").
func WithSystemDir(name string) Option {
	return platform.WithSystemDir(name)
}

// WithReadOnly enables read-only mode.
func WithReadOnly(enabled bool) Option {
	return platform.WithReadOnly(enabled)
}

// WithMustExist ensures the storage directory must already exist.
func WithMustExist(must bool) Option {
	return platform.WithMustExist(must)
}

// WithDevSafety controls the temp-dir sandbox used under `go run` and `go test`.
func WithDevSafety(enabled bool) Option {
	return platform.WithDevSafety(enabled)
}

// WithSaveConcurrency bounds concurrent writes per Save call.
func WithSaveConcurrency(n int) Option {
	return platform.WithSaveConcurrency(n)
}

// WithWatcherErrorHandler registers a callback for errors of background watchers.
func WithWatcherErrorHandler(fn func(error)) Option {
	return platform.WithWatcherErrorHandler(fn)
}

// --- Factory ---

// Open creates a store over the storage at uri.
func Open(uri string, opts ...Option) (*Store, error) {
	return platform.Open(uri, opts...)
}

// OpenBucket creates only the configured bucket.
func OpenBucket(uri string, opts ...Option) (core.Bucket, error) {
	return platform.OpenBucket(uri, opts...)
}

// --- Typed Factories ---

// NewTypedRepository binds T to a registered type of store.
func NewTypedRepository[T any](store *Store, typeName string) (*typed.Repository[T], error) {
	return typed.NewRepository[T](store, typeName)
}

// OpenTypedRepository simplifies creating a TypedRepository from a path.
func OpenTypedRepository[T any](uri, typeName string, opts ...Option) (*typed.Repository[T], error) {
	store, err := Open(uri, opts...)
	if err != nil {
		return nil, err
	}
	repo, err := typed.NewRepository[T](store, typeName)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return repo, nil
}

// --- Safety & Utils ---

// ResolvePath determines the actual storage path based on the dev safety rules.
func ResolvePath(userPath string, forceTemp bool) string {
	return platform.ResolvePath(userPath, forceTemp)
}

// IsDevRun checks if the current process is running via `go run` or `go test`.
func IsDevRun() bool {
	return platform.IsDevRun()
}

// FindRoot looks upwards for a project root.
func FindRoot(startDir string) (string, error) {
	return platform.FindRoot(startDir)
}
