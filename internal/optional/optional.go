// Package optional provides a tri-state field for partial updates:
// absent (leave unchanged), null (clear) or a value.
package optional

import (
	"bytes"
	"encoding/json"
)

type state uint8

const (
	absent state = iota
	null
	present
)

// Field is the zero value Absent. Decoding a JSON null yields Null; any other
// JSON value yields Value. A key missing from the document never reaches
// UnmarshalJSON and therefore stays Absent.
type Field[T any] struct {
	state state
	value T
}

func Absent[T any]() Field[T] { return Field[T]{} }

func Null[T any]() Field[T] { return Field[T]{state: null} }

func Of[T any](v T) Field[T] { return Field[T]{state: present, value: v} }

func (f Field[T]) IsAbsent() bool { return f.state == absent }

func (f Field[T]) IsNull() bool { return f.state == null }

func (f Field[T]) IsSet() bool { return f.state == present }

// Get returns the value and whether one is present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == present
}

// Apply writes the field into dst when it carries a value.
// Null is left to the caller because not every target can be cleared.
func (f Field[T]) Apply(dst *T) bool {
	if f.state != present {
		return false
	}
	*dst = f.value
	return true
}

// ApplyPtr sets *dst to the value, to nil on Null, and leaves it on Absent.
func (f Field[T]) ApplyPtr(dst **T) bool {
	switch f.state {
	case null:
		*dst = nil
		return true
	case present:
		v := f.value
		*dst = &v
		return true
	default:
		return false
	}
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		f.state, f.value = null, zero
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.state, f.value = present, v
	return nil
}

// MarshalJSON emits null for both Absent and Null; use omitzero on the
// enclosing struct field to drop Absent entries.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.state != present {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// IsZero lets `omitzero` skip absent fields.
func (f Field[T]) IsZero() bool { return f.state == absent }
