package core

import "context"

// Token is the opaque concurrency token handed out by a bucket on every read
// and write. The empty token means "no precondition".
type Token string

// Bucket defines the contract of the key-value store documents live in.
// Adhering to this interface keeps the marshalling core independent of the
// underlying storage (memory, Badger, files, a remote cluster).
type Bucket interface {
	// Get returns the document stored under key with its current token.
	// It fails with ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (Value, Token, error)

	// Set stores doc under key. A non-empty precondition must equal the
	// stored token, otherwise Set fails with ErrConflict. It returns the new token.
	Set(ctx context.Context, key string, doc Value, precondition Token) (Token, error)
}

// Lister is implemented by buckets able to enumerate their keys.
type Lister interface {
	// Keys returns the keys matching a doublestar glob pattern, sorted.
	// An empty pattern matches every key.
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Remover is implemented by buckets supporting deletion.
type Remover interface {
	// Remove deletes key, honouring the precondition like Set does.
	Remove(ctx context.Context, key string, precondition Token) error
}

// Watchable is implemented by buckets that can report external changes.
type Watchable interface {
	// Watch emits an Event for every key matching pattern that changes until ctx is done.
	Watch(ctx context.Context, pattern string) (<-chan Event, error)
}

// Closer is implemented by buckets holding resources.
type Closer interface {
	Close() error
}
