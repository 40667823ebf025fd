package domain

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"
)

// UserProfile is the per-user document created on first sign-in.
type UserProfile struct {
	ID              string    `json:"id"`
	DisplayName     string    `json:"displayName"`
	CreatedAt       time.Time `json:"createdAt"`
	FavoritePostIDs []string  `json:"favoritePostIds"` // unique post ids, in insertion order
}

// HasFavorite reports whether postID is in the profile's favorites.
func (u UserProfile) HasFavorite(postID string) bool {
	return slices.Contains(u.FavoritePostIDs, postID)
}

// FavoriteState is the committed outcome of a favorite toggle.
type FavoriteState struct {
	PostID    string `json:"postId"`
	Favorited bool   `json:"favorited"`
	Count     int    `json:"favoriteCount"`
}

// DisplayNameOrAnonymous returns name trimmed, or a generated
// "anonymous_<n>" name when the identity provider supplied none.
func DisplayNameOrAnonymous(name string) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	return fmt.Sprintf("anonymous_%d", rand.IntN(1000))
}
