// Package storetest is a conformance suite every docstore.Store backend
// runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/docstore"
)

// Policy is a retry budget generous enough for the suite's contention tests.
var Policy = docstore.RetryPolicy{MaxAttempts: 200, InitialBackoff: 0, MaxBackoff: 0}

// Run executes the suite. open must return an empty store using Policy.
func Run(t *testing.T, open func(t *testing.T) docstore.Store) {
	t.Run("CreateGetDelete", func(t *testing.T) { testCreateGetDelete(t, open(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, open(t)) })
	t.Run("ListOrdering", func(t *testing.T) { testListOrdering(t, open(t)) })
	t.Run("TransactionTransforms", func(t *testing.T) { testTransactionTransforms(t, open(t)) })
	t.Run("TransactionRetriesOnConflict", func(t *testing.T) { testRetriesOnConflict(t, open(t)) })
	t.Run("DeletedMidTransaction", func(t *testing.T) { testDeletedMidTransaction(t, open(t)) })
	t.Run("ErrorAbortsWithoutWrite", func(t *testing.T) { testErrorAborts(t, open(t)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, open(t)) })
}

func ref(id string) docstore.Ref {
	return docstore.Ref{Collection: "things", ID: id}
}

func mustCreate(t *testing.T, s docstore.Store, id string, data map[string]any) {
	t.Helper()
	if _, err := s.Create(context.Background(), ref(id), data); err != nil {
		t.Fatalf("create %s failed: %v", id, err)
	}
}

func testCreateGetDelete(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	created, err := s.Create(ctx, ref("a"), map[string]any{"name": "alpha", "n": 2})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}

	got, err := s.Get(ctx, ref("a"))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Data["name"] != "alpha" || got.Data["n"] != int64(2) || got.Version != 1 {
		t.Fatalf("unexpected document: %+v", got)
	}

	if err := s.Delete(ctx, ref("a")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := s.Get(ctx, ref("a")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := s.Delete(ctx, ref("a")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found deleting twice, got %v", err)
	}
}

func testCreateDuplicate(t *testing.T, s docstore.Store) {
	mustCreate(t, s, "a", map[string]any{})
	_, err := s.Create(context.Background(), ref("a"), map[string]any{})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func testListOrdering(t *testing.T, s docstore.Store) {
	mustCreate(t, s, "a", map[string]any{"at": "2025-01-02"})
	mustCreate(t, s, "b", map[string]any{"at": "2025-01-03"})
	mustCreate(t, s, "c", map[string]any{"at": "2025-01-01"})
	if _, err := s.Create(context.Background(), docstore.Ref{Collection: "other", ID: "x"}, map[string]any{"at": "2030"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	docs, err := s.List(context.Background(), "things", docstore.Query{OrderBy: "at", Descending: true, Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(docs) != 2 || docs[0].Ref.ID != "b" || docs[1].Ref.ID != "a" {
		t.Fatalf("unexpected order: %v", ids(docs))
	}

	docs, err = s.List(context.Background(), "things", docstore.Query{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(docs) != 3 || docs[0].Ref.ID != "a" {
		t.Fatalf("expected id order without OrderBy: %v", ids(docs))
	}
}

func testTransactionTransforms(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	mustCreate(t, s, "p", map[string]any{"members": []any{"x"}, "count": 1})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(ctx, ref("p")); err != nil {
			return err
		}
		return tx.Update(ref("p"),
			docstore.ArrayUnion("members", "y"),
			docstore.ArrayRemove("members", "x"),
			docstore.Increment("count", 1),
		)
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	got, err := s.Get(ctx, ref("p"))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	members, _ := got.Data["members"].([]any)
	if len(members) != 1 || members[0] != "y" || got.Data["count"] != int64(2) {
		t.Fatalf("unexpected data: %#v", got.Data)
	}
	if got.Version != 2 {
		t.Fatalf("expected version 2, got %d", got.Version)
	}
}

func testRetriesOnConflict(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	mustCreate(t, s, "p", map[string]any{"count": 0})

	attempts := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		attempts++
		if _, err := tx.Get(ctx, ref("p")); err != nil {
			return err
		}
		if attempts == 1 {
			// A competing writer commits between our read and our commit.
			if err := increment(ctx, s, "p"); err != nil {
				return fmt.Errorf("competing write: %w", err)
			}
		}
		return tx.Update(ref("p"), docstore.Increment("count", 10))
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected one retry, got %d attempts", attempts)
	}

	got, _ := s.Get(ctx, ref("p"))
	if got.Data["count"] != int64(11) {
		t.Fatalf("lost update: count=%v", got.Data["count"])
	}
}

func testDeletedMidTransaction(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	mustCreate(t, s, "p", map[string]any{"count": 0})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(ctx, ref("p")); err != nil {
			return err
		}
		if err := s.Delete(ctx, ref("p")); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return tx.Update(ref("p"), docstore.Increment("count", 1))
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.Get(ctx, ref("p")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("document must not be resurrected, got %v", err)
	}
}

func testErrorAborts(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	mustCreate(t, s, "p", map[string]any{"count": 0})
	boom := errors.New("boom")

	err := s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(ctx, ref("p")); err != nil {
			return err
		}
		if err := tx.Update(ref("p"), docstore.Increment("count", 1)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected body error, got %v", err)
	}
	got, _ := s.Get(ctx, ref("p"))
	if got.Data["count"] != int64(0) || got.Version != 1 {
		t.Fatalf("aborted transaction wrote: %+v", got)
	}
}

func testConcurrentIncrements(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	mustCreate(t, s, "p", map[string]any{"count": 0})

	const workers, perWorker = 8, 5
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				if err := increment(ctx, s, "p"); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent increments failed: %v", err)
	}

	got, _ := s.Get(ctx, ref("p"))
	if got.Data["count"] != int64(workers*perWorker) {
		t.Fatalf("expected %d, got %v", workers*perWorker, got.Data["count"])
	}
}

func increment(ctx context.Context, s docstore.Store, id string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(ctx, ref(id)); err != nil {
			return err
		}
		return tx.Update(ref(id), docstore.Increment("count", 1))
	})
}

func ids(docs []docstore.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Ref.ID
	}
	return out
}
