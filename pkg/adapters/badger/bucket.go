package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"

	"github.com/aretw0/tessera/pkg/core"
)

const (
	docPrefix   = "doc/"
	revSequence = "meta/rev"
	seqLease    = 128
)

// Entry user meta, read back by watchers to tell creations from updates.
const (
	metaCreate byte = 1
	metaModify byte = 2
)

// envelope is the stored form of a document.
type envelope struct {
	Rev uint64     `json:"rev"`
	Doc core.Value `json:"doc"`
}

// Bucket is a core.Bucket over BadgerDB. Tokens are revisions drawn from a
// database-wide sequence, so a token never repeats for a key even across
// deletion and re-creation.
type Bucket struct {
	db       *badger.DB
	seq      *badger.Sequence
	gc       *gcRunner
	logger   *slog.Logger
	cfg      Config
	mu       sync.RWMutex
	closed   bool
	watchers int
}

// Open opens the database described by cfg.
func Open(cfg Config) (*Bucket, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	seq, err := db.GetSequence([]byte(revSequence), seqLease)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open revision sequence: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &Bucket{db: db, seq: seq, logger: logger, cfg: cfg}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		b.gc = startGC(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
	}
	return b, nil
}

// OpenInMemory opens a throwaway bucket.
func OpenInMemory() (*Bucket, error) {
	return Open(InMemoryConfig())
}

func (b *Bucket) check(write bool) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return core.ErrBucketClosed
	}
	if write && b.cfg.ReadOnly {
		return core.ErrBucketRO
	}
	return nil
}

// Get implements core.Bucket.
func (b *Bucket) Get(ctx context.Context, key string) (core.Value, core.Token, error) {
	if err := ctx.Err(); err != nil {
		return core.Value{}, "", err
	}
	if err := b.check(false); err != nil {
		return core.Value{}, "", err
	}

	var env envelope
	err := b.db.View(func(txn *badger.Txn) error {
		var found bool
		var err error
		env, found, err = read(txn, key)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", core.ErrNotFound, key)
		}
		return nil
	})
	if err != nil {
		return core.Value{}, "", err
	}
	return env.Doc, token(env.Rev), nil
}

// Set implements core.Bucket. The precondition is checked and the document
// written inside one transaction; a concurrent commit to the same key makes
// the transaction fail with core.ErrConflict.
func (b *Bucket) Set(ctx context.Context, key string, doc core.Value, precondition core.Token) (core.Token, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := b.check(true); err != nil {
		return "", err
	}

	rev, err := b.seq.Next()
	if err != nil {
		return "", fmt.Errorf("next revision: %w", err)
	}
	// Sequences start at zero; the zero revision would render as a valid token.
	rev++

	err = b.db.Update(func(txn *badger.Txn) error {
		prev, found, err := read(txn, key)
		if err != nil {
			return err
		}
		if precondition != "" && (!found || token(prev.Rev) != precondition) {
			return fmt.Errorf("%w: %s", core.ErrConflict, key)
		}
		data, err := json.Marshal(envelope{Rev: rev, Doc: doc})
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		meta := metaCreate
		if found {
			meta = metaModify
		}
		return txn.SetEntry(badger.NewEntry([]byte(docPrefix+key), data).WithMeta(meta))
	})
	if err != nil {
		return "", mapConflict(key, err)
	}
	return token(rev), nil
}

// Remove implements core.Remover.
func (b *Bucket) Remove(ctx context.Context, key string, precondition core.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.check(true); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		prev, found, err := read(txn, key)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", core.ErrNotFound, key)
		}
		if precondition != "" && token(prev.Rev) != precondition {
			return fmt.Errorf("%w: %s", core.ErrConflict, key)
		}
		return txn.Delete([]byte(docPrefix + key))
	})
	return mapConflict(key, err)
}

// Keys implements core.Lister.
func (b *Bucket) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}
	if err := b.check(false); err != nil {
		return nil, err
	}

	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(docPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := strings.TrimPrefix(string(it.Item().Key()), docPrefix)
			if pattern == "" || matchKey(pattern, key) {
				keys = append(keys, key)
			}
		}
		return nil
	})
	return keys, err
}

// Watch implements core.Watchable using BadgerDB subscriptions. Events are
// reported for commits made after the subscription is registered.
func (b *Bucket) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
	}
	if err := b.check(false); err != nil {
		return nil, err
	}

	out := make(chan core.Event, 64)
	b.setWatchers(1)
	go func() {
		defer close(out)
		defer b.setWatchers(-1)

		err := b.db.Subscribe(ctx, func(list *badger.KVList) error {
			for _, kv := range list.Kv {
				key := strings.TrimPrefix(string(kv.Key), docPrefix)
				if pattern != "" && !matchKey(pattern, key) {
					continue
				}
				ev := core.Event{Type: eventType(kv), Key: key, Timestamp: time.Now().Unix()}
				select {
				case out <- ev:
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		}, []pb.Match{{Prefix: []byte(docPrefix)}})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			b.logger.Warn("badger subscription ended", "error", err)
		}
	}()
	return out, nil
}

func eventType(kv *pb.KV) core.EventType {
	if len(kv.Value) == 0 {
		return core.EventDelete
	}
	if len(kv.UserMeta) > 0 && kv.UserMeta[0] == metaCreate {
		return core.EventCreate
	}
	return core.EventModify
}

// Close releases the database. Further calls fail with core.ErrBucketClosed.
func (b *Bucket) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if b.gc != nil {
		b.gc.stop()
	}
	if err := b.seq.Release(); err != nil {
		b.logger.Warn("release revision sequence", "error", err)
	}
	return b.db.Close()
}

func (b *Bucket) setWatchers(delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers += delta
}

func read(txn *badger.Txn, key string) (envelope, bool, error) {
	item, err := txn.Get([]byte(docPrefix + key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return envelope{}, false, nil
	}
	if err != nil {
		return envelope{}, false, fmt.Errorf("read %s: %w", key, err)
	}
	var env envelope
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	})
	if err != nil {
		return envelope{}, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return env, true, nil
}

func mapConflict(key string, err error) error {
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %s: concurrent transaction", core.ErrConflict, key)
	}
	return err
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
	Path     string `json:"path,omitempty"`
	InMemory bool   `json:"in_memory"`
	ReadOnly bool   `json:"read_only"`
	Closed   bool   `json:"closed"`
	Watchers int    `json:"watchers"`
	GC       bool   `json:"gc"`
}

// State implements introspection.Introspectable.
func (b *Bucket) State() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BucketState{
		Path:     b.cfg.Path,
		InMemory: b.cfg.InMemory,
		ReadOnly: b.cfg.ReadOnly,
		Closed:   b.closed,
		Watchers: b.watchers,
		GC:       b.gc != nil,
	}
}

// ComponentType implements introspection.Component.
func (b *Bucket) ComponentType() string {
	return "badger"
}

var (
	_ core.Bucket    = (*Bucket)(nil)
	_ core.Lister    = (*Bucket)(nil)
	_ core.Remover   = (*Bucket)(nil)
	_ core.Watchable = (*Bucket)(nil)
	_ core.Closer    = (*Bucket)(nil)

	_ introspection.Introspectable = (*Bucket)(nil)
	_ introspection.Component      = (*Bucket)(nil)
)
