// Package store is the durable key -> JSON document store behind the portal.
// Every document carries a version; commits are all-or-nothing and fail with
// ErrVersionConflict when any expected version is stale.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AnyVersion skips the optimistic check for a write (last write wins).
const AnyVersion int64 = -1

var ErrVersionConflict = errors.New("document version conflict")

// Document is one stored value. A key that was never written (or was deleted)
// comes back with a nil Value and Version 0.
type Document struct {
	Key     string
	Value   json.RawMessage
	Version int64
}

// Exists reports whether the document holds a value.
func (d Document) Exists() bool {
	return d.Version > 0 && len(d.Value) > 0
}

// Write is one change inside a Commit.
type Write struct {
	Key             string
	Value           json.RawMessage
	ExpectedVersion int64
	Delete          bool
}

// Store is implemented by the memory, Redis and Postgres backends.
type Store interface {
	Get(ctx context.Context, key string) (Document, error)
	Commit(ctx context.Context, writes ...Write) error
	Ping(ctx context.Context) error
}

// Put builds a versioned write of v encoded as JSON.
func Put(key string, v any, expected int64) (Write, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Write{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return Write{Key: key, Value: data, ExpectedVersion: expected}, nil
}

// Remove builds a versioned delete.
func Remove(key string, expected int64) Write {
	return Write{Key: key, ExpectedVersion: expected, Delete: true}
}

func validateWrites(writes []Write) error {
	seen := make(map[string]struct{}, len(writes))
	for _, w := range writes {
		if w.Key == "" {
			return errors.New("store: empty key")
		}
		if _, dup := seen[w.Key]; dup {
			return fmt.Errorf("store: key %q written twice in one commit", w.Key)
		}
		seen[w.Key] = struct{}{}
		if !w.Delete && len(w.Value) == 0 {
			return fmt.Errorf("store: empty value for %q", w.Key)
		}
	}
	return nil
}

type namespaced struct {
	inner  Store
	prefix string
}

// Namespace scopes every key of inner under prefix. Sessions use it to keep one
// `session.current` per client context.
func Namespace(inner Store, prefix string) Store {
	return &namespaced{inner: inner, prefix: prefix}
}

func (n *namespaced) Get(ctx context.Context, key string) (Document, error) {
	doc, err := n.inner.Get(ctx, n.prefix+key)
	doc.Key = strings.TrimPrefix(doc.Key, n.prefix)
	return doc, err
}

func (n *namespaced) Commit(ctx context.Context, writes ...Write) error {
	scoped := make([]Write, len(writes))
	for i, w := range writes {
		w.Key = n.prefix + w.Key
		scoped[i] = w
	}
	return n.inner.Commit(ctx, scoped...)
}

func (n *namespaced) Ping(ctx context.Context) error {
	return n.inner.Ping(ctx)
}
