package domain

import (
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// MaxPostLength is the character limit for a post body, counted in runes.
const MaxPostLength = 280

// Post is a single entry in the social feed.
type Post struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	ImageAlt   string    `json:"imageAlt,omitempty"`
	LikedBy    []string  `json:"likedBy"`   // unique user ids, in insertion order
	LikeCount  int       `json:"likeCount"` // always len(LikedBy) for a decoded post
}

// IsLikedBy reports whether userID is a member of the post's likedBy set.
func (p Post) IsLikedBy(userID string) bool {
	return slices.Contains(p.LikedBy, userID)
}

// IsOwnedBy reports whether userID authored the post.
func (p Post) IsOwnedBy(userID string) bool {
	return userID != "" && p.AuthorID == userID
}

// LikeState is the committed outcome of a like toggle.
type LikeState struct {
	PostID    string `json:"postId"`
	Liked     bool   `json:"liked"`
	LikeCount int    `json:"likeCount"`
}

// NormalizeText sanitizes a post body and enforces the length limit.
// Terminal escape sequences and control characters other than newlines
// and tabs are stripped so stored text is safe to print anywhere.
func NormalizeText(text string) (string, error) {
	text = ansi.Strip(text)
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	text = strings.TrimSpace(text)

	if text == "" {
		return "", ErrEmptyPost
	}
	if utf8.RuneCountInString(text) > MaxPostLength {
		return "", ErrPostTooLong
	}
	return text, nil
}
