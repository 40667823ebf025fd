package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPostFields_RoundTripsThroughDecode(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 30, 0, 5, time.UTC)
	in := Post{
		ID:         "p1",
		AuthorID:   "alice",
		AuthorName: "Alice",
		Text:       "hello",
		CreatedAt:  created,
		ImageURL:   "https://img/1.jpg",
		LikedBy:    []string{"bob", "carol"},
	}

	got, err := DecodePost("p1", in.Fields())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.LikeCount != 2 || !got.IsLikedBy("carol") || got.IsLikedBy("alice") {
		t.Fatalf("unexpected like state: %+v", got)
	}
	if !got.CreatedAt.Equal(created) || got.ImageURL != in.ImageURL || got.AuthorName != "Alice" {
		t.Fatalf("unexpected fields: %+v", got)
	}
}

func TestDecodePost_MissingLikeFieldsAreEmpty(t *testing.T) {
	got, err := DecodePost("p1", map[string]any{
		FieldAuthorID:  "alice",
		FieldText:      "legacy post",
		FieldCreatedAt: FormatTime(time.Now()),
	})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.LikeCount != 0 || len(got.LikedBy) != 0 {
		t.Fatalf("expected empty like state, got %+v", got)
	}
}

func TestDecodePost_RejectsMalformedDocuments(t *testing.T) {
	base := func() map[string]any {
		return map[string]any{
			FieldAuthorID:  "alice",
			FieldText:      "x",
			FieldCreatedAt: FormatTime(time.Now()),
			FieldLikedBy:   []any{"bob"},
			FieldLikeCount: int64(1),
		}
	}

	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   string
	}{
		{name: "missing author", mutate: func(m map[string]any) { delete(m, FieldAuthorID) }, want: "authorId"},
		{name: "text wrong type", mutate: func(m map[string]any) { m[FieldText] = 12 }, want: "want string"},
		{name: "bad timestamp", mutate: func(m map[string]any) { m[FieldCreatedAt] = "yesterday" }, want: "bad timestamp"},
		{name: "likedBy not array", mutate: func(m map[string]any) { m[FieldLikedBy] = "bob" }, want: "want array"},
		{name: "likedBy non-string member", mutate: func(m map[string]any) { m[FieldLikedBy] = []any{int64(3)} }, want: "non-empty string"},
		{name: "likedBy duplicate", mutate: func(m map[string]any) {
			m[FieldLikedBy] = []any{"bob", "bob"}
			m[FieldLikeCount] = int64(2)
		}, want: "duplicate"},
		{name: "fractional count", mutate: func(m map[string]any) { m[FieldLikeCount] = 1.5 }, want: "fractional"},
		{name: "negative count", mutate: func(m map[string]any) { m[FieldLikeCount] = int64(-1) }, want: "negative"},
		{name: "count mismatch", mutate: func(m map[string]any) { m[FieldLikeCount] = int64(4) }, want: "does not match"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := base()
			tc.mutate(doc)
			_, err := DecodePost("p1", doc)
			if !errors.Is(err, ErrInvalidDocument) {
				t.Fatalf("expected ErrInvalidDocument, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q should mention %q", err, tc.want)
			}
		})
	}
}

func TestDecodeProfile(t *testing.T) {
	u := UserProfile{ID: "alice", DisplayName: "Alice", CreatedAt: time.Now(), FavoritePostIDs: []string{"p1"}}
	got, err := DecodeProfile("alice", u.Fields())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !got.HasFavorite("p1") || got.HasFavorite("p2") {
		t.Fatalf("unexpected favorites: %v", got.FavoritePostIDs)
	}

	_, err = DecodeProfile("alice", map[string]any{FieldCreatedAt: FormatTime(time.Now())})
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected missing displayName to be rejected, got %v", err)
	}
}

func TestFormatTime_SortsLexically(t *testing.T) {
	a := FormatTime(time.Date(2025, 1, 1, 0, 0, 5, 100_000_000, time.UTC))
	b := FormatTime(time.Date(2025, 1, 1, 0, 0, 5, 120_000_000, time.UTC))
	if !(a < b) {
		t.Fatalf("expected %q < %q", a, b)
	}
}
