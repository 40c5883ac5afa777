// Package fs stores documents as JSON or YAML files under a directory.
//
// A key maps to a file path relative to the bucket root: "person_bob" is
// stored as "person_bob.json", "blog/post_1" as "blog/post_1.json". Tokens
// are content hashes, so edits made outside the process are detected as
// conflicts like any other concurrent write.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aretw0/tessera/pkg/core"
)

// DefaultSystemDir holds bucket metadata and is never listed.
const DefaultSystemDir = ".tessera"

// Config holds the configuration of a filesystem bucket.
type Config struct {
	Path string
	// Format is the extension new documents are written with (".json" or ".yaml").
	Format    string
	SystemDir string
	ReadOnly  bool
	MustExist bool
	Logger    *slog.Logger
	// ErrorHandler receives errors raised by background watchers.
	ErrorHandler func(error)
}

// Bucket implements core.Bucket on top of the filesystem.
type Bucket struct {
	Path        string
	config      Config
	serializers map[string]Serializer
	logger      *slog.Logger

	// mu makes each check-and-write atomic within the process.
	mu sync.Mutex

	stateMu   sync.RWMutex
	watchers  int
	lastEvent *time.Time
}

// New opens the bucket rooted at cfg.Path, creating the directory unless
// cfg.MustExist is set.
func New(cfg Config) (*Bucket, error) {
	if cfg.Path == "" {
		return nil, errors.New("fs bucket: path is required")
	}
	if cfg.SystemDir == "" {
		cfg.SystemDir = DefaultSystemDir
	}
	if cfg.Format == "" {
		cfg.Format = ".json"
	}
	if !strings.HasPrefix(cfg.Format, ".") {
		cfg.Format = "." + cfg.Format
	}

	serializers := DefaultSerializers()
	if _, ok := serializers[cfg.Format]; !ok {
		return nil, fmt.Errorf("fs bucket: unsupported format %q", cfg.Format)
	}

	if cfg.MustExist {
		info, err := os.Stat(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("fs bucket: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("fs bucket: %s is not a directory", cfg.Path)
		}
	} else if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("fs bucket: create directory: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bucket{
		Path:        cfg.Path,
		config:      cfg,
		serializers: serializers,
		logger:      logger,
	}, nil
}

// Get implements core.Bucket.
func (b *Bucket) Get(ctx context.Context, key string) (core.Value, core.Token, error) {
	if err := ctx.Err(); err != nil {
		return core.Value{}, "", err
	}
	file, ext, err := b.locate(key)
	if err != nil {
		return core.Value{}, "", err
	}
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Value{}, "", fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	if err != nil {
		return core.Value{}, "", fmt.Errorf("read %s: %w", key, err)
	}
	doc, err := b.serializers[ext].Parse(data)
	if err != nil {
		return core.Value{}, "", fmt.Errorf("parse %s: %w", key, err)
	}
	return doc, hashToken(data), nil
}

// Set implements core.Bucket. An existing document keeps its file format.
func (b *Bucket) Set(ctx context.Context, key string, doc core.Value, precondition core.Token) (core.Token, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if b.config.ReadOnly {
		return "", core.ErrBucketRO
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	file, ext, err := b.locate(key)
	exists := err == nil
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return "", err
	}
	if !exists {
		file, ext = b.filename(key, b.config.Format), b.config.Format
	}

	if precondition != "" {
		current, err := b.currentToken(file, exists)
		if err != nil {
			return "", err
		}
		if current != precondition {
			return "", fmt.Errorf("%w: %s", core.ErrConflict, key)
		}
	}

	data, err := b.serializers[ext].Serialize(doc)
	if err != nil {
		return "", fmt.Errorf("serialize %s: %w", key, err)
	}
	if err := writeFileAtomic(file, data, 0644); err != nil {
		return "", err
	}
	b.logger.Debug("document written", "key", key, "file", file)
	return hashToken(data), nil
}

// Remove implements core.Remover.
func (b *Bucket) Remove(ctx context.Context, key string, precondition core.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.config.ReadOnly {
		return core.ErrBucketRO
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	file, _, err := b.locate(key)
	if err != nil {
		return err
	}
	if precondition != "" {
		current, err := b.currentToken(file, true)
		if err != nil {
			return err
		}
		if current != precondition {
			return fmt.Errorf("%w: %s", core.ErrConflict, key)
		}
	}
	if err := os.Remove(file); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Keys implements core.Lister.
func (b *Bucket) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}

	seen := make(map[string]struct{})
	err := filepath.WalkDir(b.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if p != b.Path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		key, ok := b.keyOf(p)
		if !ok {
			return nil
		}
		if pattern == "" || matchKey(pattern, key) {
			seen[key] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// keyOf maps a document file back to its key.
func (b *Bucket) keyOf(file string) (string, bool) {
	if isTempFile(file) {
		return "", false
	}
	ext := filepath.Ext(file)
	if _, ok := b.serializers[ext]; !ok {
		return "", false
	}
	rel, err := filepath.Rel(b.Path, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(strings.TrimSuffix(rel, ext))
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return "", false
		}
	}
	return rel, true
}

// locate finds the file holding key, preferring the configured format.
func (b *Bucket) locate(key string) (string, string, error) {
	if err := validKey(key); err != nil {
		return "", "", err
	}
	exts := make([]string, 0, len(b.serializers))
	for ext := range b.serializers {
		if ext != b.config.Format {
			exts = append(exts, ext)
		}
	}
	sort.Strings(exts)
	exts = append([]string{b.config.Format}, exts...)

	for _, ext := range exts {
		file := b.filename(key, ext)
		if _, err := os.Stat(file); err == nil {
			return file, ext, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", core.ErrNotFound, key)
}

func (b *Bucket) filename(key, ext string) string {
	return filepath.Join(b.Path, filepath.FromSlash(key)+ext)
}

func (b *Bucket) currentToken(file string, exists bool) (core.Token, error) {
	if !exists {
		return "", nil
	}
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", file, err)
	}
	return hashToken(data), nil
}

func validKey(key string) error {
	if key == "" || strings.ContainsRune(key, '\\') || path.IsAbs(key) || path.Clean(key) != key {
		return fmt.Errorf("invalid key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || strings.HasPrefix(seg, ".") {
			return fmt.Errorf("invalid key %q", key)
		}
	}
	return nil
}

func hashToken(data []byte) core.Token {
	sum := sha256.Sum256(data)
	return core.Token(hex.EncodeToString(sum[:16]))
}

func matchKey(pattern, key string) bool {
	ok, err := doublestar.Match(pattern, key)
	return err == nil && ok
}

var (
	_ core.Bucket    = (*Bucket)(nil)
	_ core.Lister    = (*Bucket)(nil)
	_ core.Remover   = (*Bucket)(nil)
	_ core.Watchable = (*Bucket)(nil)
)
