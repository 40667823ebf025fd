// Package docstore defines the document store contract the services run on:
// versioned JSON documents addressed by (collection, id), optimistic
// transactions with automatic retry, and field transforms usable inside them.
package docstore

import (
	"context"
	"fmt"
	"time"
)

// Ref addresses a single document.
type Ref struct {
	Collection string
	ID         string
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// Document is a snapshot of a stored document. Version starts at 1 on
// create and increases by one on every committed write.
type Document struct {
	Ref       Ref
	Version   int64
	Data      map[string]any
	UpdatedAt time.Time
}

// Query selects documents from one collection.
type Query struct {
	OrderBy    string // field holding a string value; empty orders by id
	Descending bool
	Limit      int // 0 means no limit
}

// TxFunc is the body of a transaction. It may run more than once; it must
// not have side effects outside tx.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is a document store with optimistic transactions.
type Store interface {
	// Get returns the document at ref, or domain.ErrNotFound.
	Get(ctx context.Context, ref Ref) (Document, error)

	// Create writes a new document, or fails with domain.ErrAlreadyExists.
	Create(ctx context.Context, ref Ref, data map[string]any) (Document, error)

	// Delete removes the document at ref, or fails with domain.ErrNotFound.
	Delete(ctx context.Context, ref Ref) error

	// List returns documents of a collection ordered by q.
	List(ctx context.Context, collection string, q Query) ([]Document, error)

	// RunTransaction runs fn and commits its buffered writes atomically.
	// When a document read by fn changed before commit, fn is re-run from
	// fresh reads according to the store's RetryPolicy.
	RunTransaction(ctx context.Context, fn TxFunc) error

	// Close releases the store's resources.
	Close() error
}

// Tx is the view of the store inside a transaction.
type Tx interface {
	// Get reads a document and records its version for commit validation.
	Get(ctx context.Context, ref Ref) (Document, error)

	// Update buffers field transforms for a document read in this transaction.
	Update(ref Ref, ops ...Op) error

	// Delete buffers the removal of a document read in this transaction.
	Delete(ref Ref) error
}

// Notifier is implemented by stores that can signal committed changes.
type Notifier interface {
	// Notify returns a channel receiving a coalesced signal after every
	// committed change. The channel is closed when ctx ends.
	Notify(ctx context.Context) <-chan struct{}
}

// Fingerprint summarizes a set of document versions, so two fetches of the
// same documents can be compared cheaply.
func Fingerprint(docs []Document) string {
	var out []byte
	for _, d := range docs {
		out = fmt.Appendf(out, "%s@%d;", d.Ref, d.Version)
	}
	return string(out)
}
