package docstore

import (
	"errors"
	"reflect"
	"testing"

	"github.com/CrestNiraj12/rantfeed/domain"
)

func TestApply_Transforms(t *testing.T) {
	base := map[string]any{
		"likedBy":   []any{"alice"},
		"likeCount": int64(1),
		"text":      "hi",
	}

	tests := []struct {
		name string
		ops  []Op
		want map[string]any
	}{
		{
			name: "union adds missing member",
			ops:  []Op{ArrayUnion("likedBy", "bob"), Increment("likeCount", 1)},
			want: map[string]any{"likedBy": []any{"alice", "bob"}, "likeCount": int64(2), "text": "hi"},
		},
		{
			name: "union skips present member",
			ops:  []Op{ArrayUnion("likedBy", "alice")},
			want: map[string]any{"likedBy": []any{"alice"}, "likeCount": int64(1), "text": "hi"},
		},
		{
			name: "remove member",
			ops:  []Op{ArrayRemove("likedBy", "alice"), Increment("likeCount", -1)},
			want: map[string]any{"likedBy": []any{}, "likeCount": int64(0), "text": "hi"},
		},
		{
			name: "remove absent member is a no-op",
			ops:  []Op{ArrayRemove("likedBy", "zed")},
			want: map[string]any{"likedBy": []any{"alice"}, "likeCount": int64(1), "text": "hi"},
		},
		{
			name: "absent fields start empty",
			ops:  []Op{ArrayUnion("favorites", "p1"), Increment("views", 3)},
			want: map[string]any{"likedBy": []any{"alice"}, "likeCount": int64(1), "text": "hi", "favorites": []any{"p1"}, "views": int64(3)},
		},
		{
			name: "set replaces",
			ops:  []Op{Set("text", "bye")},
			want: map[string]any{"likedBy": []any{"alice"}, "likeCount": int64(1), "text": "bye"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Apply(base, tc.ops)
			if err != nil {
				t.Fatalf("apply failed: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %#v want %#v", got, tc.want)
			}
		})
	}

	if !reflect.DeepEqual(base["likedBy"], []any{"alice"}) {
		t.Fatalf("apply must not modify its input: %#v", base)
	}
}

func TestApply_TypeMismatch(t *testing.T) {
	data := map[string]any{"likedBy": "alice", "likeCount": "one"}

	if _, err := Apply(data, []Op{ArrayUnion("likedBy", "bob")}); !errors.Is(err, domain.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument for array op on string, got %v", err)
	}
	if _, err := Apply(data, []Op{Increment("likeCount", 1)}); !errors.Is(err, domain.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument for increment on string, got %v", err)
	}
	if _, err := Apply(data, []Op{Increment("", 1)}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty field, got %v", err)
	}
}

func TestDecode_NormalizesNumbers(t *testing.T) {
	data, err := Decode([]byte(`{"n": 3, "f": 1.5, "arr": [1, "x"], "nested": {"m": 2}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if data["n"] != int64(3) || data["f"] != 1.5 {
		t.Fatalf("unexpected number types: %#v", data)
	}
	if !reflect.DeepEqual(data["arr"], []any{int64(1), "x"}) {
		t.Fatalf("unexpected array: %#v", data["arr"])
	}
	if !reflect.DeepEqual(data["nested"], map[string]any{"m": int64(2)}) {
		t.Fatalf("unexpected nested: %#v", data["nested"])
	}

	if _, err := Decode([]byte(`[1,2]`)); !errors.Is(err, domain.ErrInvalidDocument) {
		t.Fatalf("expected non-object rejection, got %v", err)
	}
	if _, err := Decode([]byte(`null`)); !errors.Is(err, domain.ErrInvalidDocument) {
		t.Fatalf("expected null rejection, got %v", err)
	}
}

func TestClone_IsDeep(t *testing.T) {
	in := map[string]any{"arr": []any{"a"}, "typed": []string{"x"}}
	out := Clone(in)
	out["arr"].([]any)[0] = "changed"
	if in["arr"].([]any)[0] != "a" {
		t.Fatalf("clone shares array storage with input")
	}
	if !reflect.DeepEqual(out["typed"], []any{"x"}) {
		t.Fatalf("typed slices must normalize to []any: %#v", out["typed"])
	}
}
