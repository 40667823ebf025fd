package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/docstore"
)

const favoritesFanOut = 8

// ProfileService manages the per-user profile documents.
type ProfileService struct {
	store docstore.Store
	log   *zap.Logger
	now   func() time.Time
}

// NewProfileService creates a ProfileService.
func NewProfileService(store docstore.Store, log *zap.Logger) *ProfileService {
	return &ProfileService{store: store, log: log.Named("profiles"), now: time.Now}
}

// Ensure returns the user's profile, creating it on first sign-in.
func (s *ProfileService) Ensure(ctx context.Context, userID, displayName string) (domain.UserProfile, error) {
	profile, err := s.Get(ctx, userID)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return profile, err
	}

	profile = domain.UserProfile{
		ID:              userID,
		DisplayName:     domain.DisplayNameOrAnonymous(displayName),
		CreatedAt:       s.now().UTC(),
		FavoritePostIDs: []string{},
	}
	_, err = s.store.Create(ctx, docstore.Ref{Collection: domain.CollectionUsers, ID: userID}, profile.Fields())
	switch {
	case errors.Is(err, domain.ErrAlreadyExists):
		// Another request created it first.
		return s.Get(ctx, userID)
	case err != nil:
		return domain.UserProfile{}, fmt.Errorf("create profile: %w", err)
	}

	s.log.Info("profile created", zap.String("user_id", userID), zap.String("display_name", profile.DisplayName))
	return profile, nil
}

// Get returns the profile of userID.
func (s *ProfileService) Get(ctx context.Context, userID string) (domain.UserProfile, error) {
	if userID == "" {
		return domain.UserProfile{}, fmt.Errorf("%w: user id is required", domain.ErrInvalidArgument)
	}
	doc, err := s.store.Get(ctx, docstore.Ref{Collection: domain.CollectionUsers, ID: userID})
	if err != nil {
		return domain.UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	return domain.DecodeProfile(userID, doc.Data)
}

// Favorites returns the posts userID favorited, newest first. Favorites
// whose post was deleted are skipped.
func (s *ProfileService) Favorites(ctx context.Context, userID string) ([]domain.Post, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	found := make([]*domain.Post, len(profile.FavoritePostIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(favoritesFanOut)
	for i, id := range profile.FavoritePostIDs {
		g.Go(func() error {
			doc, err := s.store.Get(gctx, docstore.Ref{Collection: domain.CollectionPosts, ID: id})
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("load favorite %s: %w", id, err)
			}
			post, err := domain.DecodePost(id, doc.Data)
			if err != nil {
				s.log.Warn("skipping malformed favorite", zap.String("post_id", id), zap.Error(err))
				return nil
			}
			found[i] = &post
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	posts := make([]domain.Post, 0, len(found))
	for _, p := range found {
		if p != nil {
			posts = append(posts, *p)
		}
	}
	sortNewestFirst(posts)
	return posts, nil
}

func sortNewestFirst(posts []domain.Post) {
	slices.SortStableFunc(posts, func(a, b domain.Post) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
}
