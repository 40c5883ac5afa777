package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/tessera/pkg/adapters/badger"
	"github.com/aretw0/tessera/pkg/adapters/fs"
	"github.com/aretw0/tessera/pkg/adapters/memory"
	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/graph"
	"github.com/aretw0/tessera/pkg/schema"
)

// SchemaFile is the schema loaded from the storage directory when no
// catalog or schema file is configured.
const SchemaFile = "tessera.yaml"

// Open builds the configured bucket and a graph.Store over it.
// The uri is adapter specific: a directory for "fs" and "badger", ignored by "memory".
//
//	store, err := platform.Open("./data", platform.WithSchemaFile("tessera.yaml"))
func Open(uri string, opts ...Option) (*graph.Store, error) {
	o := parse(opts)

	bucket, path, err := openBucket(uri, o)
	if err != nil {
		return nil, err
	}
	catalog, err := loadCatalog(path, o)
	if err != nil {
		closeBucket(bucket, o)
		return nil, err
	}

	return graph.New(bucket, catalog,
		graph.WithLogger(o.logger),
		graph.WithSaveConcurrency(o.saveConcurrency),
	), nil
}

// OpenBucket builds the configured bucket without a store, e.g. for raw document access.
func OpenBucket(uri string, opts ...Option) (core.Bucket, error) {
	b, _, err := openBucket(uri, parse(opts))
	return b, err
}

// LoadCatalog resolves the catalog Open would use for uri.
func LoadCatalog(uri string, opts ...Option) (*schema.Catalog, error) {
	o := parse(opts)
	return loadCatalog(resolvePath(uri, o), o)
}

func openBucket(uri string, o *options) (core.Bucket, string, error) {
	if o.bucket != nil {
		return o.bucket, "", nil
	}

	switch o.adapter {
	case AdapterMemory:
		return memory.New(memory.WithReadOnly(o.readOnly)), "", nil

	case AdapterBadger:
		if o.inMemory {
			cfg := badger.InMemoryConfig()
			cfg.ReadOnly = o.readOnly
			cfg.Logger = o.logger
			b, err := badger.Open(cfg)
			return b, "", err
		}
		path := resolvePath(uri, o)
		if err := checkExists(path, o); err != nil {
			return nil, "", err
		}
		cfg := badger.DefaultConfig(filepath.Join(path, systemDir(o), "db"))
		cfg.ReadOnly = o.readOnly
		cfg.Logger = o.logger
		b, err := badger.Open(cfg)
		return b, path, err

	case AdapterFS:
		path := resolvePath(uri, o)
		b, err := fs.New(fs.Config{
			Path:         path,
			Format:       o.format,
			SystemDir:    systemDir(o),
			ReadOnly:     o.readOnly,
			MustExist:    o.mustExist || o.readOnly,
			Logger:       o.logger,
			ErrorHandler: o.errorHandler,
		})
		return b, path, err
	}
	return nil, "", fmt.Errorf("unknown adapter: %s", o.adapter)
}

// resolvePath applies the dev sandbox to uri.
func resolvePath(uri string, o *options) string {
	bypass := o.readOnly || !o.devSafety
	useTemp := IsDevRun() && !bypass
	resolved := ResolvePath(uri, useTemp)

	if o.logger != nil && useTemp && resolved != filepath.Clean(uri) {
		o.logger.Warn("running in SAFE MODE (dev sandbox)", "original_path", uri, "resolved_path", resolved)
	}
	return resolved
}

func checkExists(path string, o *options) error {
	if !o.mustExist && !o.readOnly {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

func systemDir(o *options) string {
	if o.systemDir != "" {
		return o.systemDir
	}
	return fs.DefaultSystemDir
}

// loadCatalog picks, in order: the injected catalog, the configured schema
// files, SchemaFile under path, and finally the process-wide registry.
func loadCatalog(path string, o *options) (*schema.Catalog, error) {
	if o.catalog != nil {
		return o.catalog, nil
	}

	files := o.schemaFiles
	if len(files) == 0 && path != "" {
		candidate := filepath.Join(path, SchemaFile)
		if _, err := os.Stat(candidate); err == nil {
			files = []string{candidate}
		}
	}
	if len(files) == 0 {
		return schema.Freeze()
	}

	r := schema.NewRegistry()
	for _, f := range files {
		descs, err := schema.LoadFile(r, f)
		if err != nil {
			return nil, err
		}
		if o.logger != nil {
			o.logger.Debug("schema loaded", "file", f, "types", len(descs))
		}
	}
	return r.Freeze()
}

func closeBucket(b core.Bucket, o *options) {
	if o.bucket != nil {
		return
	}
	if c, ok := b.(core.Closer); ok {
		if err := c.Close(); err != nil && o.logger != nil {
			o.logger.Warn("failed to close bucket", "error", err)
		}
	}
}
