package docstore

import (
	"fmt"
	"math"
	"reflect"

	"github.com/CrestNiraj12/rantfeed/domain"
)

type opKind int

const (
	opSet opKind = iota
	opArrayUnion
	opArrayRemove
	opIncrement
)

// Op is a field transform applied at commit time to the snapshot the
// transaction read.
type Op struct {
	Field  string
	kind   opKind
	values []any
	delta  int64
}

// Set replaces a field's value.
func Set(field string, value any) Op {
	return Op{Field: field, kind: opSet, values: []any{value}}
}

// ArrayUnion appends each value not already present in the array field.
// An absent field is treated as an empty array.
func ArrayUnion(field string, values ...any) Op {
	return Op{Field: field, kind: opArrayUnion, values: values}
}

// ArrayRemove removes every element equal to one of values.
func ArrayRemove(field string, values ...any) Op {
	return Op{Field: field, kind: opArrayRemove, values: values}
}

// Increment adds delta to an integer field. An absent field counts as 0.
func Increment(field string, delta int64) Op {
	return Op{Field: field, kind: opIncrement, delta: delta}
}

func (o Op) String() string {
	switch o.kind {
	case opSet:
		return fmt.Sprintf("set(%s)", o.Field)
	case opArrayUnion:
		return fmt.Sprintf("arrayUnion(%s, %v)", o.Field, o.values)
	case opArrayRemove:
		return fmt.Sprintf("arrayRemove(%s, %v)", o.Field, o.values)
	case opIncrement:
		return fmt.Sprintf("increment(%s, %d)", o.Field, o.delta)
	}
	return "unknown"
}

// Apply returns a copy of data with ops applied in order. data is not modified.
func Apply(data map[string]any, ops []Op) (map[string]any, error) {
	out := Clone(data)
	for _, op := range ops {
		if op.Field == "" {
			return nil, fmt.Errorf("%w: transform without field", domain.ErrInvalidArgument)
		}
		cur, present := out[op.Field]
		switch op.kind {
		case opSet:
			out[op.Field] = normalize(op.values[0])

		case opArrayUnion, opArrayRemove:
			arr, err := asArray(op.Field, cur, present)
			if err != nil {
				return nil, err
			}
			if op.kind == opArrayUnion {
				for _, v := range op.values {
					v = normalize(v)
					if !containsValue(arr, v) {
						arr = append(arr, v)
					}
				}
			} else {
				kept := arr[:0]
				for _, item := range arr {
					if !containsValue(op.values, item) {
						kept = append(kept, item)
					}
				}
				arr = kept
			}
			out[op.Field] = arr

		case opIncrement:
			n, err := asInt(op.Field, cur, present)
			if err != nil {
				return nil, err
			}
			out[op.Field] = n + op.delta

		default:
			return nil, fmt.Errorf("%w: unknown transform on %q", domain.ErrInvalidArgument, op.Field)
		}
	}
	return out, nil
}

func asArray(field string, v any, present bool) ([]any, error) {
	if !present || v == nil {
		return []any{}, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: field %q is %T, not an array", domain.ErrInvalidDocument, field, v)
	}
	// Copy so in-place filtering never aliases the caller's snapshot.
	return append([]any(nil), arr...), nil
}

func asInt(field string, v any, present bool) (int64, error) {
	if !present || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int64(n), nil
		}
	}
	return 0, fmt.Errorf("%w: field %q is %v, not an integer", domain.ErrInvalidDocument, field, v)
}

func containsValue(list []any, v any) bool {
	v = normalize(v)
	for _, item := range list {
		if reflect.DeepEqual(normalize(item), v) {
			return true
		}
	}
	return false
}
