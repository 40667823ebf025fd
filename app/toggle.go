package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/CrestNiraj12/rantfeed/domain"
	"github.com/CrestNiraj12/rantfeed/infra/docstore"
)

// ToggleEngine flips like and favorite membership on shared documents.
// Each toggle is one store transaction: the membership check, the set
// change and the counter change commit together or not at all.
type ToggleEngine struct {
	store docstore.Store
	log   *zap.Logger
}

// NewToggleEngine creates an engine operating on store.
func NewToggleEngine(store docstore.Store, log *zap.Logger) *ToggleEngine {
	return &ToggleEngine{store: store, log: log.Named("toggle")}
}

// ToggleLike adds userID to the post's likedBy set and increments its
// likeCount, or removes it and decrements when already present.
func (e *ToggleEngine) ToggleLike(ctx context.Context, postID, userID string) (domain.LikeState, error) {
	if postID == "" || userID == "" {
		return domain.LikeState{}, fmt.Errorf("%w: post id and user id are required", domain.ErrInvalidArgument)
	}
	ref := docstore.Ref{Collection: domain.CollectionPosts, ID: postID}

	var state domain.LikeState
	err := e.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		post, err := domain.DecodePost(postID, doc.Data)
		if err != nil {
			return err
		}

		state = domain.LikeState{PostID: postID}
		if post.IsLikedBy(userID) {
			state.LikeCount = post.LikeCount - 1
			return tx.Update(ref,
				docstore.ArrayRemove(domain.FieldLikedBy, userID),
				docstore.Increment(domain.FieldLikeCount, -1),
			)
		}
		state.Liked = true
		state.LikeCount = post.LikeCount + 1
		return tx.Update(ref,
			docstore.ArrayUnion(domain.FieldLikedBy, userID),
			docstore.Increment(domain.FieldLikeCount, 1),
		)
	})
	if err != nil {
		e.log.Warn("toggle like failed",
			zap.String("post_id", postID), zap.String("user_id", userID), zap.Error(err))
		return domain.LikeState{}, fmt.Errorf("toggle like on post %s: %w", postID, err)
	}

	e.log.Debug("like toggled",
		zap.String("post_id", postID),
		zap.String("user_id", userID),
		zap.Bool("liked", state.Liked),
		zap.Int("like_count", state.LikeCount),
	)
	return state, nil
}

// ToggleFavorite adds postID to the user's favorites, or removes it when
// already present. The post itself is not read or written.
func (e *ToggleEngine) ToggleFavorite(ctx context.Context, postID, userID string) (domain.FavoriteState, error) {
	if postID == "" || userID == "" {
		return domain.FavoriteState{}, fmt.Errorf("%w: post id and user id are required", domain.ErrInvalidArgument)
	}
	ref := docstore.Ref{Collection: domain.CollectionUsers, ID: userID}

	var state domain.FavoriteState
	err := e.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		profile, err := domain.DecodeProfile(userID, doc.Data)
		if err != nil {
			return err
		}

		state = domain.FavoriteState{PostID: postID}
		if profile.HasFavorite(postID) {
			state.Count = len(profile.FavoritePostIDs) - 1
			return tx.Update(ref, docstore.ArrayRemove(domain.FieldFavorites, postID))
		}
		state.Favorited = true
		state.Count = len(profile.FavoritePostIDs) + 1
		return tx.Update(ref, docstore.ArrayUnion(domain.FieldFavorites, postID))
	})
	if err != nil {
		e.log.Warn("toggle favorite failed",
			zap.String("post_id", postID), zap.String("user_id", userID), zap.Error(err))
		return domain.FavoriteState{}, fmt.Errorf("toggle favorite on post %s: %w", postID, err)
	}

	e.log.Debug("favorite toggled",
		zap.String("post_id", postID),
		zap.String("user_id", userID),
		zap.Bool("favorited", state.Favorited),
	)
	return state, nil
}
