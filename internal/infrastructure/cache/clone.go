package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// ErrNotCloneable is returned for values holding channels, functions or
// unsafe pointers, and for values that contain themselves. Such values cannot
// be owned exclusively by a cache entry.
var ErrNotCloneable = errors.New("value cannot be deep-copied")

var timeType = reflect.TypeOf(time.Time{})

// Clone returns a deep copy of v. Decoded JSON trees (map[string]any, []any
// and scalars) take a fast path; everything else is copied via reflection.
// Unexported struct fields are copied shallowly. Shared references are copied
// once per occurrence; a reference cycle is rejected with ErrNotCloneable.
func Clone(v any) (any, error) {
	return (&cloner{}).clone(v)
}

// CloneAs deep-copies v and asserts the result back to T.
func CloneAs[T any](v T) (T, error) {
	var zero T
	c, err := Clone(v)
	if err != nil {
		return zero, err
	}
	if c == nil {
		return zero, nil
	}
	out, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("clone produced %T, want %T", c, zero)
	}
	return out, nil
}

// visit identifies a map, slice or pointer on the path being copied. Length
// is part of the key so that a sub-slice sharing its parent's backing array
// is not mistaken for the parent.
type visit struct {
	ptr uintptr
	n   int
	typ reflect.Type
}

// cloner tracks the containers on the current path from the root.
type cloner struct {
	path map[visit]struct{}
}

// enter marks a container as being copied. The returned func unmarks it.
func (c *cloner) enter(ptr uintptr, n int, typ reflect.Type) (func(), error) {
	if ptr == 0 {
		return func() {}, nil
	}
	key := visit{ptr: ptr, n: n, typ: typ}
	if _, ok := c.path[key]; ok {
		return nil, fmt.Errorf("%w: %s contains itself", ErrNotCloneable, typ)
	}
	if c.path == nil {
		c.path = make(map[visit]struct{})
	}
	c.path[key] = struct{}{}
	return func() { delete(c.path, key) }, nil
}

func (c *cloner) clone(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string, bool, float64, float32, int, int64, int32, uint, uint64, json.Number:
		return v, nil
	case map[string]any:
		return c.cloneJSONObject(t)
	case []any:
		return c.cloneJSONArray(t)
	}

	out, err := c.cloneValue(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

func (c *cloner) cloneJSONObject(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	leave, err := c.enter(reflect.ValueOf(m).Pointer(), 0, reflect.TypeOf(m))
	if err != nil {
		return nil, err
	}
	defer leave()

	out := make(map[string]any, len(m))
	for k, v := range m {
		cv, err := c.clone(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = cv
	}
	return out, nil
}

func (c *cloner) cloneJSONArray(s []any) ([]any, error) {
	if s == nil {
		return nil, nil
	}
	leave, err := c.enter(reflect.ValueOf(s).Pointer(), len(s), reflect.TypeOf(s))
	if err != nil {
		return nil, err
	}
	defer leave()

	out := make([]any, len(s))
	for i, v := range s {
		cv, err := c.clone(v)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[i] = cv
	}
	return out, nil
}

func (c *cloner) cloneValue(v reflect.Value) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Invalid:
		return v, nil

	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return v, nil

	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		inner, err := c.cloneValue(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out, nil

	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		leave, err := c.enter(v.Pointer(), 0, v.Type())
		if err != nil {
			return reflect.Value{}, err
		}
		defer leave()

		inner, err := c.cloneValue(v.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(inner)
		return out, nil

	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		leave, err := c.enter(v.Pointer(), v.Len(), v.Type())
		if err != nil {
			return reflect.Value{}, err
		}
		defer leave()

		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			cv, err := c.cloneValue(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(cv)
		}
		return out, nil

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			cv, err := c.cloneValue(v.Index(i))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(cv)
		}
		return out, nil

	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type()), nil
		}
		leave, err := c.enter(v.Pointer(), 0, v.Type())
		if err != nil {
			return reflect.Value{}, err
		}
		defer leave()

		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			cv, err := c.cloneValue(iter.Value())
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(iter.Key(), cv)
		}
		return out, nil

	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		if v.Type() == timeType {
			return out, nil
		}
		for i := 0; i < v.NumField(); i++ {
			field := out.Field(i)
			if !field.CanSet() {
				continue
			}
			cv, err := c.cloneValue(v.Field(i))
			if err != nil {
				return reflect.Value{}, err
			}
			field.Set(cv)
		}
		return out, nil

	default:
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrNotCloneable, v.Type())
	}
}

// sizeOf approximates the serialized size of v. Values that cannot be
// encoded report 0.
func sizeOf(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}
