package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		err  error
	}{
		{name: "trims", in: "  hi there \n", want: "hi there"},
		{name: "keeps newlines", in: "line1\nline2", want: "line1\nline2"},
		{name: "strips ansi", in: "ok\x1b[31mred\x1b[0m", want: "okred"},
		{name: "strips controls", in: "a\x01b\x7fc", want: "abc"},
		{name: "empty", in: "   ", err: ErrEmptyPost},
		{name: "only escapes", in: "\x1b[0m", err: ErrEmptyPost},
		{name: "limit inclusive", in: strings.Repeat("あ", MaxPostLength), want: strings.Repeat("あ", MaxPostLength)},
		{name: "too long", in: strings.Repeat("x", MaxPostLength+1), err: ErrPostTooLong},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeText(tc.in)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("err mismatch: got %v want %v", err, tc.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestPostOwnership(t *testing.T) {
	p := Post{AuthorID: "alice"}
	if !p.IsOwnedBy("alice") || p.IsOwnedBy("bob") || p.IsOwnedBy("") {
		t.Fatalf("unexpected ownership results")
	}
}

func TestDisplayNameOrAnonymous(t *testing.T) {
	if got := DisplayNameOrAnonymous("  Alice "); got != "Alice" {
		t.Fatalf("expected trimmed name, got %q", got)
	}
	got := DisplayNameOrAnonymous("")
	if !strings.HasPrefix(got, "anonymous_") {
		t.Fatalf("expected anonymous name, got %q", got)
	}
}
