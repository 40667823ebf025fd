package domain

import (
	"fmt"
	"math"
	"time"
)

// Collections and field names of the persisted document layout.
const (
	CollectionPosts = "posts"
	CollectionUsers = "users"

	FieldAuthorID    = "authorId"
	FieldAuthorName  = "authorName"
	FieldText        = "text"
	FieldCreatedAt   = "createdAt"
	FieldImageURL    = "imageUrl"
	FieldImageAlt    = "imageAlt"
	FieldLikedBy     = "likedBy"
	FieldLikeCount   = "likeCount"
	FieldDisplayName = "displayName"
	FieldFavorites   = "favoritePostIds"
)

// TimeLayout is a fixed-width UTC layout, so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Fields returns the persisted representation of the post.
func (p Post) Fields() map[string]any {
	fields := map[string]any{
		FieldAuthorID:  p.AuthorID,
		FieldText:      p.Text,
		FieldCreatedAt: FormatTime(p.CreatedAt),
		FieldLikedBy:   stringsToAny(p.LikedBy),
		FieldLikeCount: int64(len(p.LikedBy)),
	}
	if p.AuthorName != "" {
		fields[FieldAuthorName] = p.AuthorName
	}
	if p.ImageURL != "" {
		fields[FieldImageURL] = p.ImageURL
	}
	if p.ImageAlt != "" {
		fields[FieldImageAlt] = p.ImageAlt
	}
	return fields
}

// DecodePost validates a stored post document and maps it to a Post.
// Absent likedBy/likeCount decode as an empty set and zero; anything
// present with the wrong shape is rejected with ErrInvalidDocument.
func DecodePost(id string, data map[string]any) (Post, error) {
	r := fieldReader{kind: "post", id: id, data: data}
	p := Post{
		ID:         id,
		AuthorID:   r.str(FieldAuthorID, true),
		AuthorName: r.str(FieldAuthorName, false),
		Text:       r.str(FieldText, true),
		CreatedAt:  r.time(FieldCreatedAt),
		ImageURL:   r.str(FieldImageURL, false),
		ImageAlt:   r.str(FieldImageAlt, false),
		LikedBy:    r.set(FieldLikedBy),
		LikeCount:  r.count(FieldLikeCount),
	}
	if r.err != nil {
		return Post{}, r.err
	}
	if p.LikeCount != len(p.LikedBy) {
		return Post{}, fmt.Errorf("%w: post %s: likeCount %d does not match %d likedBy members",
			ErrInvalidDocument, id, p.LikeCount, len(p.LikedBy))
	}
	return p, nil
}

// Fields returns the persisted representation of the profile.
func (u UserProfile) Fields() map[string]any {
	return map[string]any{
		FieldDisplayName: u.DisplayName,
		FieldCreatedAt:   FormatTime(u.CreatedAt),
		FieldFavorites:   stringsToAny(u.FavoritePostIDs),
	}
}

// DecodeProfile validates a stored user document and maps it to a UserProfile.
func DecodeProfile(id string, data map[string]any) (UserProfile, error) {
	r := fieldReader{kind: "user", id: id, data: data}
	u := UserProfile{
		ID:              id,
		DisplayName:     r.str(FieldDisplayName, true),
		CreatedAt:       r.time(FieldCreatedAt),
		FavoritePostIDs: r.set(FieldFavorites),
	}
	if r.err != nil {
		return UserProfile{}, r.err
	}
	return u, nil
}

// fieldReader decodes typed fields, keeping the first error.
type fieldReader struct {
	kind string
	id   string
	data map[string]any
	err  error
}

func (r *fieldReader) fail(field, format string, args ...any) {
	if r.err != nil {
		return
	}
	r.err = fmt.Errorf("%w: %s %s: field %q: %s",
		ErrInvalidDocument, r.kind, r.id, field, fmt.Sprintf(format, args...))
}

func (r *fieldReader) str(field string, required bool) string {
	v, ok := r.data[field]
	if !ok || v == nil {
		if required {
			r.fail(field, "missing")
		}
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail(field, "want string, got %T", v)
		return ""
	}
	if required && s == "" {
		r.fail(field, "empty")
	}
	return s
}

func (r *fieldReader) time(field string) time.Time {
	s := r.str(field, true)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		r.fail(field, "bad timestamp %q", s)
		return time.Time{}
	}
	return t.UTC()
}

func (r *fieldReader) set(field string) []string {
	v, ok := r.data[field]
	if !ok || v == nil {
		return []string{}
	}
	var items []any
	switch vv := v.(type) {
	case []any:
		items = vv
	case []string:
		items = stringsToAny(vv)
	default:
		r.fail(field, "want array, got %T", v)
		return nil
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok || s == "" {
			r.fail(field, "member %v is not a non-empty string", item)
			return nil
		}
		if _, dup := seen[s]; dup {
			r.fail(field, "duplicate member %q", s)
			return nil
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (r *fieldReader) count(field string) int {
	v, ok := r.data[field]
	if !ok || v == nil {
		return 0
	}
	var n int64
	switch vv := v.(type) {
	case int:
		n = int64(vv)
	case int64:
		n = vv
	case float64:
		if vv != math.Trunc(vv) {
			r.fail(field, "fractional counter %v", vv)
			return 0
		}
		n = int64(vv)
	default:
		r.fail(field, "want integer, got %T", v)
		return 0
	}
	if n < 0 {
		r.fail(field, "negative counter %d", n)
		return 0
	}
	return int(n)
}

func stringsToAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
