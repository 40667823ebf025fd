package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/docstore"
)

const (
	DefaultTimelineLimit = 50
	MaxTimelineLimit     = 100
	DefaultPollInterval  = 2 * time.Second
)

// TimelineOptions tunes the timeline service.
type TimelineOptions struct {
	DefaultLimit int
	PollInterval time.Duration
}

// TimelineService reads the feed and produces live snapshots of it.
type TimelineService struct {
	store    docstore.Store
	notifier docstore.Notifier // nil when the store cannot signal changes
	limit    int
	poll     time.Duration
	log      *zap.Logger
}

// NewTimelineService creates a TimelineService. Subscriptions are woken by
// the store's change notifications when it implements docstore.Notifier,
// and by polling otherwise.
func NewTimelineService(store docstore.Store, opts TimelineOptions, log *zap.Logger) *TimelineService {
	s := &TimelineService{
		store: store,
		limit: opts.DefaultLimit,
		poll:  opts.PollInterval,
		log:   log.Named("timeline"),
	}
	if s.limit <= 0 || s.limit > MaxTimelineLimit {
		s.limit = DefaultTimelineLimit
	}
	if s.poll <= 0 {
		s.poll = DefaultPollInterval
	}
	if n, ok := store.(docstore.Notifier); ok {
		s.notifier = n
	}
	return s
}

// Latest returns up to limit posts, newest first. A non-positive limit
// selects the default; larger limits are capped.
func (s *TimelineService) Latest(ctx context.Context, limit int) ([]domain.Post, error) {
	posts, _, err := s.fetchLatest(ctx, s.clampLimit(limit))
	return posts, err
}

// Subscribe streams timeline snapshots until the subscription is closed.
func (s *TimelineService) Subscribe(ctx context.Context, limit int) *Subscription[[]domain.Post] {
	limit = s.clampLimit(limit)
	return newSubscription(ctx, func(ctx context.Context) ([]domain.Post, string, error) {
		return s.fetchLatest(ctx, limit)
	}, s.wake(), s.poll)
}

// SubscribePost streams snapshots of one post. The subscription ends with
// domain.ErrNotFound once the post is deleted.
func (s *TimelineService) SubscribePost(ctx context.Context, postID string) *Subscription[domain.Post] {
	ref := docstore.Ref{Collection: domain.CollectionPosts, ID: postID}
	return newSubscription(ctx, func(ctx context.Context) (domain.Post, string, error) {
		doc, err := s.store.Get(ctx, ref)
		if err != nil {
			return domain.Post{}, "", fmt.Errorf("watch post: %w", err)
		}
		post, err := domain.DecodePost(postID, doc.Data)
		if err != nil {
			return domain.Post{}, "", err
		}
		return post, docstore.Fingerprint([]docstore.Document{doc}), nil
	}, s.wake(), s.poll)
}

func (s *TimelineService) clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return s.limit
	case limit > MaxTimelineLimit:
		return MaxTimelineLimit
	}
	return limit
}

func (s *TimelineService) wake() func(ctx context.Context) <-chan struct{} {
	if s.notifier == nil {
		return nil
	}
	return s.notifier.Notify
}

func (s *TimelineService) fetchLatest(ctx context.Context, limit int) ([]domain.Post, string, error) {
	docs, err := s.store.List(ctx, domain.CollectionPosts, docstore.Query{
		OrderBy:    domain.FieldCreatedAt,
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, "", fmt.Errorf("list posts: %w", err)
	}

	posts := make([]domain.Post, 0, len(docs))
	for _, doc := range docs {
		post, err := domain.DecodePost(doc.Ref.ID, doc.Data)
		if err != nil {
			// One malformed document must not hide the rest of the feed.
			s.log.Warn("skipping malformed post", zap.String("post_id", doc.Ref.ID), zap.Error(err))
			continue
		}
		posts = append(posts, post)
	}
	return posts, docstore.Fingerprint(docs), nil
}
