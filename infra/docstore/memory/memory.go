// Package memory is an in-process docstore.Store with versioned documents
// and optimistic transactions.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/docstore"
)

// Store keeps documents in a map guarded by a mutex. Transaction bodies run
// without the lock; only commit validation and apply hold it, so concurrent
// transactions on one document conflict and retry like they would on a
// remote store.
type Store struct {
	mu      sync.RWMutex
	docs    map[docstore.Ref]docstore.Document
	policy  docstore.RetryPolicy
	now     func() time.Time
	closed  bool
	subs    map[chan struct{}]struct{}
	subsMu  sync.Mutex
	commits int // successful transaction commits, for tests
}

var (
	_ docstore.Store    = (*Store)(nil)
	_ docstore.Notifier = (*Store)(nil)
)

// New creates an empty Store.
func New(policy docstore.RetryPolicy) *Store {
	return &Store{
		docs:   make(map[docstore.Ref]docstore.Document),
		policy: policy,
		now:    time.Now,
		subs:   make(map[chan struct{}]struct{}),
	}
}

func (s *Store) Get(_ context.Context, ref docstore.Ref) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return docstore.Document{}, fmt.Errorf("memory store closed: %w", domain.ErrUnavailable)
	}
	doc, ok := s.docs[ref]
	if !ok {
		return docstore.Document{}, fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
	}
	return clone(doc), nil
}

func (s *Store) Create(_ context.Context, ref docstore.Ref, data map[string]any) (docstore.Document, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return docstore.Document{}, fmt.Errorf("memory store closed: %w", domain.ErrUnavailable)
	}
	if _, ok := s.docs[ref]; ok {
		s.mu.Unlock()
		return docstore.Document{}, fmt.Errorf("%s: %w", ref, domain.ErrAlreadyExists)
	}
	doc := docstore.Document{Ref: ref, Version: 1, Data: docstore.Clone(data), UpdatedAt: s.now()}
	s.docs[ref] = doc
	s.mu.Unlock()

	s.broadcast()
	return clone(doc), nil
}

func (s *Store) Delete(_ context.Context, ref docstore.Ref) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("memory store closed: %w", domain.ErrUnavailable)
	}
	if _, ok := s.docs[ref]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
	}
	delete(s.docs, ref)
	s.mu.Unlock()

	s.broadcast()
	return nil
}

func (s *Store) List(_ context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, fmt.Errorf("memory store closed: %w", domain.ErrUnavailable)
	}
	var out []docstore.Document
	for ref, doc := range s.docs {
		if ref.Collection == collection {
			out = append(out, clone(doc))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b docstore.Document) int {
		c := 0
		if q.OrderBy != "" {
			c = cmp.Compare(sortKey(a, q.OrderBy), sortKey(b, q.OrderBy))
		}
		if c == 0 {
			c = cmp.Compare(a.Ref.ID, b.Ref.ID)
		}
		if q.Descending {
			return -c
		}
		return c
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Store) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	return s.policy.Run(ctx, func(ctx context.Context) error {
		tx := docstore.NewTxn(s.Get)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return s.commit(tx)
	})
}

func (s *Store) commit(tx *docstore.Txn) error {
	writes := tx.Writes()
	if len(writes) == 0 {
		return nil
	}

	// Compute results before taking the lock; they depend only on the snapshot.
	results := make([]map[string]any, len(writes))
	for i, w := range writes {
		if w.Delete {
			continue
		}
		data, err := w.Result()
		if err != nil {
			return fmt.Errorf("applying %v to %s: %w", w.Ops, w.Ref, err)
		}
		results[i] = data
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("memory store closed: %w", domain.ErrUnavailable)
	}
	for _, read := range tx.Reads() {
		if s.docs[read.Ref].Version != read.Version {
			s.mu.Unlock()
			return fmt.Errorf("%s changed since read: %w", read.Ref, domain.ErrConflict)
		}
	}
	now := s.now()
	for i, w := range writes {
		if w.Delete {
			delete(s.docs, w.Ref)
			continue
		}
		s.docs[w.Ref] = docstore.Document{
			Ref:       w.Ref,
			Version:   w.Base.Version + 1,
			Data:      results[i],
			UpdatedAt: now,
		}
	}
	s.commits++
	s.mu.Unlock()

	s.broadcast()
	return nil
}

// Commits returns the number of transactions that committed writes.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// Notify implements docstore.Notifier.
func (s *Store) Notify(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subsMu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.subsMu.Unlock()
	}()
	return ch
}

func (s *Store) broadcast() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending; subscribers re-read everything anyway.
		}
	}
}

// Close marks the store closed. Later calls fail with domain.ErrUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func clone(d docstore.Document) docstore.Document {
	d.Data = docstore.Clone(d.Data)
	return d
}

func sortKey(d docstore.Document, field string) string {
	s, _ := d.Data[field].(string)
	return s
}
