// Package patch models partial-update payloads where a JSON field being
// absent, explicitly null, or set to a value are three distinct states.
package patch

import (
	"bytes"
	"encoding/json"
)

// Field is a tri-state JSON value. The zero Field means the key was absent
// from the payload; UnmarshalJSON only runs for keys that are present.
type Field[T any] struct {
	set   bool
	null  bool
	value T
}

// UnmarshalJSON records presence and distinguishes null from a value.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.set = true
	if bytes.Equal(data, []byte("null")) {
		f.null = true
		return nil
	}
	return json.Unmarshal(data, &f.value)
}

// Present reports whether the key appeared in the payload at all.
func (f Field[T]) Present() bool { return f.set }

// Clear reports whether the payload asks to null the field out.
func (f Field[T]) Clear() bool { return f.set && f.null }

// Get returns the supplied value; ok is false when the field was absent or
// null.
func (f Field[T]) Get() (T, bool) {
	if !f.set || f.null {
		var zero T
		return zero, false
	}
	return f.value, true
}

// Of builds a set Field, mainly for tests and internal callers.
func Of[T any](v T) Field[T] {
	return Field[T]{set: true, value: v}
}

// Null builds an explicit-null Field.
func Null[T any]() Field[T] {
	return Field[T]{set: true, null: true}
}
