package reactive

import "reflect"

// defaultEquals provides type-appropriate equality checking for writes.
// Uses == for common comparable types and reflect.DeepEqual for others.
// Writes are equality-gated: storing an equal value is a no-op, so this is
// on the hot write path and the type switch avoids reflection for the
// overwhelmingly common cases.
func defaultEquals(a, b any) bool {
	switch av := a.(type) {
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case int8:
		bv, ok := b.(int8)
		return ok && av == bv
	case int16:
		bv, ok := b.(int16)
		return ok && av == bv
	case int32:
		bv, ok := b.(int32)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case uint:
		bv, ok := b.(uint)
		return ok && av == bv
	case uint8:
		bv, ok := b.(uint8)
		return ok && av == bv
	case uint16:
		bv, ok := b.(uint16)
		return ok && av == bv
	case uint32:
		bv, ok := b.(uint32)
		return ok && av == bv
	case uint64:
		bv, ok := b.(uint64)
		return ok && av == bv
	case float32:
		bv, ok := b.(float32)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return reflect.DeepEqual(a, b)
	}
}

// typedEquals erases a typed equality function to the node representation.
func typedEquals[T any](eq func(T, T) bool) func(any, any) bool {
	return func(a, b any) bool {
		av, aok := a.(T)
		bv, bok := b.(T)
		if !aok || !bok {
			return false
		}
		return eq(av, bv)
	}
}
