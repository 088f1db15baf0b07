package features

import "bytes"

// Optional holds a value that may be absent. Absence is distinct from the zero
// value: a missing RTT is never reported as 0 ms. Absent values encode as JSON null.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns a present value
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent value
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Present reports whether a value is held
func (o Optional[T]) Present() bool {
	return o.ok
}

// OrElse returns the value, or def when absent
func (o Optional[T]) OrElse(def T) T {
	if !o.ok {
		return def
	}
	return o.value
}

// MarshalJSON implements json.Marshaler
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
