package core

import (
	"errors"
	"fmt"
	"strings"
)

// Schema errors.
var (
	ErrUnknownType            = errors.New("unknown type")
	ErrUnknownField           = errors.New("unknown field")
	ErrDuplicateType          = errors.New("type already registered")
	ErrAmbiguousDiscriminator = errors.New("ambiguous discriminator set")
	ErrInvalidSchema          = errors.New("invalid schema")
	ErrRegistryFrozen         = errors.New("registry is frozen")
	ErrMissingRequired        = errors.New("required field missing")
	ErrMissingIdentifier      = errors.New("identifier field missing")
	ErrReadOnly               = errors.New("field is read-only")
	ErrNotLoaded              = errors.New("object is not loaded")
)

// Shape errors.
var (
	ErrTypeMismatch    = errors.New("value does not match declared type")
	ErrMalformedRef    = errors.New("malformed reference")
	ErrRefTypeMismatch = errors.New("reference names a different type")
	ErrEmbeddedCycle   = errors.New("embedded object contains itself")
)

// Consistency errors.
var (
	ErrCacheConflict = errors.New("object cached under a different type")
)

// I/O errors reported by buckets.
var (
	ErrNotFound     = errors.New("document not found")
	ErrConflict     = errors.New("concurrency token mismatch")
	ErrBucketClosed = errors.New("bucket is closed")
	ErrBucketRO     = errors.New("bucket is in read-only mode")
)

// MarshalError locates a failure inside a document or object graph.
type MarshalError struct {
	Op    string // "decode" or "encode"
	Path  []string
	Type  string
	Depth int
	Err   error
}

func (e *MarshalError) Error() string {
	if e == nil {
		return "<nil>"
	}
	path := "$"
	if len(e.Path) > 0 {
		path = "$." + strings.Join(e.Path, ".")
	}
	return fmt.Sprintf("%s %s (type %s): %v", e.Op, path, e.Type, e.Err)
}

func (e *MarshalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WrapMarshal attaches location details to err unless it already carries them.
func WrapMarshal(op string, path []string, typeName string, depth int, err error) error {
	if err == nil {
		return nil
	}
	var me *MarshalError
	if errors.As(err, &me) {
		return err
	}
	return &MarshalError{
		Op:    op,
		Path:  append([]string(nil), path...),
		Type:  typeName,
		Depth: depth,
		Err:   err,
	}
}
