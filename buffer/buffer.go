package buffer

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"

	"github.com/wippyai/libraw-wasm/errors"
)

// Option configures ToOwned and ReadOwned.
type Option func(*options)

type options struct {
	limit int64
}

// WithLimit rejects sources longer than n bytes. Zero or negative disables the check.
func WithLimit(n int64) Option {
	return func(o *options) { o.limit = n }
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// ToOwned copies source into a freshly allocated byte slice of exact length.
//
// Accepted sources: nil, []byte, string, io.Reader, and any slice or array
// whose elements are numbers. Numeric elements are narrowed to a byte the way
// a C uint8_t conversion does: integers wrap modulo 256, floats truncate.
func ToOwned(source any, opts ...Option) ([]byte, error) {
	o := buildOptions(opts)
	if isNil(source) {
		return []byte{}, nil
	}

	switch src := source.(type) {
	case []byte:
		if err := o.check(int64(len(src))); err != nil {
			return nil, err
		}
		out := make([]byte, len(src))
		copy(out, src)
		return out, nil
	case string:
		if err := o.check(int64(len(src))); err != nil {
			return nil, err
		}
		return []byte(src), nil
	case io.Reader:
		return readAll(src, o)
	}

	rv := reflect.ValueOf(source)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return fromSequence(rv, o)
	case reflect.Pointer:
		if rv.Elem().Kind() == reflect.Array {
			return fromSequence(rv.Elem(), o)
		}
	}

	return nil, errors.Marshal(nil, source, fmt.Sprintf("unsupported source type %T", source))
}

// ReadOwned reads r to EOF into an owned buffer.
func ReadOwned(r io.Reader, opts ...Option) ([]byte, error) {
	if isNil(r) {
		return []byte{}, nil
	}
	return readAll(r, buildOptions(opts))
}

// isNil reports a nil interface or a typed nil pointer, map, func or chan.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func (o options) check(n int64) error {
	if o.limit > 0 && n > o.limit {
		return errors.TooLarge(errors.PhaseMarshal, n, o.limit)
	}
	return nil
}

func readAll(r io.Reader, o options) ([]byte, error) {
	if o.limit > 0 {
		r = io.LimitReader(r, o.limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindInvalidData, err, "read source")
	}
	if err := o.check(int64(len(data))); err != nil {
		return nil, err
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func fromSequence(rv reflect.Value, o options) ([]byte, error) {
	n := rv.Len()
	if err := o.check(int64(n)); err != nil {
		return nil, err
	}

	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, ok := narrow(rv.Index(i))
		if !ok {
			return nil, errors.Marshal(
				[]string{"[" + strconv.Itoa(i) + "]"},
				rv.Index(i).Interface(),
				"element is not a number",
			)
		}
		out[i] = b
	}
	return out, nil
}

// narrow converts a numeric element to a byte with C truncation semantics.
func narrow(v reflect.Value) (byte, bool) {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return 0, false
		}
		v = v.Elem()
	}

	if v.CanInterface() {
		if num, ok := v.Interface().(json.Number); ok {
			if i, err := num.Int64(); err == nil {
				return byte(i), true
			}
			f, err := num.Float64()
			if err != nil {
				return 0, false
			}
			return truncate(f)
		}
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return byte(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return byte(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return truncate(v.Float())
	case reflect.Bool:
		if v.Bool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func truncate(f float64) (byte, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	if t >= math.MinInt64 && t < math.MaxInt64 {
		return byte(int64(t)), true
	}
	// beyond 2^63 every float64 is a multiple of 256
	return 0, true
}
