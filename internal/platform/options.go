package platform

import (
	"log/slog"

	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/schema"
)

// Adapter names accepted by WithAdapter.
const (
	AdapterFS     = "fs"
	AdapterBadger = "badger"
	AdapterMemory = "memory"
)

// options holds the internal configuration of a store.
type options struct {
	logger          *slog.Logger
	adapter         string
	bucket          core.Bucket
	catalog         *schema.Catalog
	schemaFiles     []string
	inMemory        bool
	format          string
	systemDir       string
	readOnly        bool
	mustExist       bool
	devSafety       bool
	saveConcurrency int
	errorHandler    func(error)
}

// Option defines a functional option for configuring a store.
type Option func(*options)

// defaultOptions returns the default configuration.
func defaultOptions() *options {
	return &options{
		adapter:   AdapterFS,
		devSafety: true,
	}
}

func parse(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger shared by the store and its bucket.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithAdapter selects the storage adapter by name: "fs" (default), "badger" or "memory".
func WithAdapter(name string) Option {
	return func(o *options) {
		o.adapter = name
	}
}

// WithBucket injects a ready bucket. The adapter and its settings are then ignored.
func WithBucket(b core.Bucket) Option {
	return func(o *options) {
		o.bucket = b
	}
}

// WithCatalog sets the types the store marshals. It takes precedence over schema files.
func WithCatalog(c *schema.Catalog) Option {
	return func(o *options) {
		o.catalog = c
	}
}

// WithSchemaFile adds a YAML schema file to load. May be given several times.
func WithSchemaFile(path string) Option {
	return func(o *options) {
		o.schemaFiles = append(o.schemaFiles, path)
	}
}

// WithInMemory runs the badger adapter without touching the disk.
func WithInMemory(enabled bool) Option {
	return func(o *options) {
		o.inMemory = enabled
	}
}

// WithFormat sets the file format new fs documents are written in (".json" or ".yaml").
func WithFormat(ext string) Option {
	return func(o *options) {
		o.format = ext
	}
}

// WithSystemDir sets the hidden metadata directory of the fs adapter.
// Defaults to ".tessera".
func WithSystemDir(name string) Option {
	return func(o *options) {
		o.systemDir = name
	}
}

// WithReadOnly enables read-only mode: writes fail with core.ErrBucketRO and
// the dev sandbox is bypassed.
func WithReadOnly(enabled bool) Option {
	return func(o *options) {
		o.readOnly = enabled
	}
}

// WithMustExist requires the storage directory to exist already.
func WithMustExist(must bool) Option {
	return func(o *options) {
		o.mustExist = must
	}
}

// WithDevSafety controls the sandbox used when running via `go run` or `go test`.
// By default (true) storage paths outside the system temp directory are
// re-rooted into it, so development runs never touch real data.
func WithDevSafety(enabled bool) Option {
	return func(o *options) {
		o.devSafety = enabled
	}
}

// WithSaveConcurrency bounds the writes a single Save call issues at once.
func WithSaveConcurrency(n int) Option {
	return func(o *options) {
		o.saveConcurrency = n
	}
}

// WithWatcherErrorHandler receives errors raised by background watchers.
func WithWatcherErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.errorHandler = fn
	}
}
