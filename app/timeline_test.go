package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/docstore"
	"github.com/CrestNiraj12/rantfeed/infra/docstore/memory"
)

func TestTimelineService_LatestOrderAndLimits(t *testing.T) {
	store := memory.New(docstore.DefaultRetryPolicy)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		seedPost(t, store, fmt.Sprintf("p%03d", i), "bob", base.Add(time.Duration(i)*time.Minute))
	}
	svc := NewTimelineService(store, TimelineOptions{}, zap.NewNop())
	ctx := context.Background()

	posts, err := svc.Latest(ctx, 0)
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if len(posts) != DefaultTimelineLimit || posts[0].ID != "p119" || posts[1].ID != "p118" {
		t.Fatalf("expected %d newest-first posts, got %d starting %s", DefaultTimelineLimit, len(posts), posts[0].ID)
	}

	posts, err = svc.Latest(ctx, 500)
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if len(posts) != MaxTimelineLimit {
		t.Fatalf("limit must be capped at %d, got %d", MaxTimelineLimit, len(posts))
	}

	posts, err = svc.Latest(ctx, 3)
	if err != nil || len(posts) != 3 {
		t.Fatalf("expected 3 posts, got %d (%v)", len(posts), err)
	}
}

func TestTimelineService_LatestSkipsMalformedPosts(t *testing.T) {
	store := memory.New(docstore.DefaultRetryPolicy)
	seedPost(t, store, "good", "bob", time.Now())
	bad := map[string]any{domain.FieldAuthorID: "bob", domain.FieldText: "x",
		domain.FieldCreatedAt: domain.FormatTime(time.Now()), domain.FieldLikeCount: 3}
	if _, err := store.Create(context.Background(), docstore.Ref{Collection: domain.CollectionPosts, ID: "bad"}, bad); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	posts, err := NewTimelineService(store, TimelineOptions{}, zap.NewNop()).Latest(context.Background(), 10)
	if err != nil {
		t.Fatalf("latest failed: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != "good" {
		t.Fatalf("expected only the valid post, got %+v", posts)
	}
}

func nextWithin[T any](t *testing.T, sub *Subscription[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return sub.Next(ctx)
}

// pollingStore hides the memory store's notifier so subscriptions poll.
type pollingStore struct{ docstore.Store }

func TestSubscribe_EmitsOnChange(t *testing.T) {
	tests := []struct {
		name  string
		store func(*memory.Store) docstore.Store
	}{
		{"notified", func(s *memory.Store) docstore.Store { return s }},
		{"polling", func(s *memory.Store) docstore.Store { return pollingStore{s} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memory.New(docstore.DefaultRetryPolicy)
			seedPost(t, mem, "p1", "bob", time.Now())
			store := tt.store(mem)
			svc := NewTimelineService(store, TimelineOptions{PollInterval: 10 * time.Millisecond}, zap.NewNop())

			sub := svc.Subscribe(context.Background(), 10)
			defer sub.Close()

			first, err := nextWithin(t, sub)
			if err != nil || len(first) != 1 || first[0].LikeCount != 0 {
				t.Fatalf("unexpected first snapshot: %+v %v", first, err)
			}

			if _, err := NewToggleEngine(store, zap.NewNop()).ToggleLike(context.Background(), "p1", "alice"); err != nil {
				t.Fatalf("toggle failed: %v", err)
			}
			second, err := nextWithin(t, sub)
			if err != nil || len(second) != 1 || second[0].LikeCount != 1 {
				t.Fatalf("unexpected second snapshot: %+v %v", second, err)
			}
		})
	}
}

func TestSubscribe_NoSnapshotWithoutChange(t *testing.T) {
	store := memory.New(docstore.DefaultRetryPolicy)
	seedPost(t, store, "p1", "bob", time.Now())
	svc := NewTimelineService(store, TimelineOptions{PollInterval: 5 * time.Millisecond}, zap.NewNop())

	sub := svc.Subscribe(context.Background(), 10)
	defer sub.Close()
	if _, err := nextWithin(t, sub); err != nil {
		t.Fatalf("first snapshot failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := sub.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected no snapshot while nothing changed, got %v", err)
	}
}

func TestSubscribePost_EndsWhenDeleted(t *testing.T) {
	store := memory.New(docstore.DefaultRetryPolicy)
	seedPost(t, store, "p1", "bob", time.Now())
	svc := NewTimelineService(store, TimelineOptions{}, zap.NewNop())

	sub := svc.SubscribePost(context.Background(), "p1")
	defer sub.Close()
	post, err := nextWithin(t, sub)
	if err != nil || post.ID != "p1" {
		t.Fatalf("unexpected first snapshot: %+v %v", post, err)
	}

	if err := store.Delete(context.Background(), docstore.Ref{Collection: domain.CollectionPosts, ID: "p1"}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := nextWithin(t, sub); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := nextWithin(t, sub); !errors.Is(err, domain.ErrSubscriptionClosed) {
		t.Fatalf("expected ErrSubscriptionClosed after terminal error, got %v", err)
	}
}

func TestSubscription_AllAndClose(t *testing.T) {
	store := memory.New(docstore.DefaultRetryPolicy)
	seedPost(t, store, "p1", "bob", time.Now())
	svc := NewTimelineService(store, TimelineOptions{}, zap.NewNop())
	engine := NewToggleEngine(store, zap.NewNop())

	sub := svc.SubscribePost(context.Background(), "p1")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var counts []int
	for post, err := range sub.All(ctx) {
		if err != nil {
			t.Fatalf("stream failed: %v", err)
		}
		counts = append(counts, post.LikeCount)
		if len(counts) == 2 {
			break
		}
		if _, err := engine.ToggleLike(context.Background(), "p1", "alice"); err != nil {
			t.Fatalf("toggle failed: %v", err)
		}
	}
	if fmt.Sprint(counts) != "[0 1]" {
		t.Fatalf("unexpected snapshots: %v", counts)
	}

	sub.Close()
	sub.Close()
	if _, err := sub.Next(context.Background()); !errors.Is(err, domain.ErrSubscriptionClosed) {
		t.Fatalf("expected ErrSubscriptionClosed, got %v", err)
	}
}

func TestSubscription_StopsWithParentContext(t *testing.T) {
	store := memory.New(docstore.DefaultRetryPolicy)
	svc := NewTimelineService(store, TimelineOptions{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	sub := svc.Subscribe(ctx, 10)
	if _, err := nextWithin(t, sub); err != nil {
		t.Fatalf("first snapshot failed: %v", err)
	}
	cancel()
	if _, err := nextWithin(t, sub); !errors.Is(err, domain.ErrSubscriptionClosed) {
		t.Fatalf("expected ErrSubscriptionClosed, got %v", err)
	}
	sub.Close()
}
