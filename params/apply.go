package params

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/wippyai/libraw-wasm/errors"
)

// Request is a sparse set of decode options keyed by engine option name.
type Request map[string]any

// Result reports what Apply did with each key of a request.
type Result struct {
	// Applied keys were written to Params.
	Applied []string
	// Ignored keys are recognized arrays whose length did not match.
	Ignored []string
	// Unknown keys are not recognized and were skipped.
	Unknown []string
}

// Apply writes every recognized key present in req into p.
//
// Absent keys leave p untouched. Array options are written only when the
// request supplies exactly the declared number of elements; otherwise the
// key is skipped as a whole. A value that cannot be coerced to the field's
// type fails the request and p is left unchanged.
func Apply(p *Params, req Request) (Result, error) {
	var res Result
	if len(req) == 0 {
		return res, nil
	}

	next := *p
	for _, f := range Fields {
		v, ok := req[f.Key]
		if !ok {
			continue
		}
		written, err := assign(f.Ref(&next), f.Key, v)
		if err != nil {
			return Result{}, err
		}
		if written {
			res.Applied = append(res.Applied, f.Key)
		} else {
			res.Ignored = append(res.Ignored, f.Key)
		}
	}

	for k := range req {
		if _, ok := fieldIndex[k]; !ok {
			res.Unknown = append(res.Unknown, k)
		}
	}
	sort.Strings(res.Unknown)

	*p = next
	return res, nil
}

func assign(dst any, key string, v any) (bool, error) {
	path := []string{key}
	switch d := dst.(type) {
	case *int32:
		x, err := CoerceToInt32(path, v)
		if err != nil {
			return false, err
		}
		*d = x
	case *float32:
		x, err := CoerceToFloat32(path, v)
		if err != nil {
			return false, err
		}
		*d = x
	case *string:
		x, err := CoerceToString(path, v)
		if err != nil {
			return false, err
		}
		*d = x
	case *[4]uint32:
		return assignArray(d[:], key, v, KindUint32, CoerceToUint32)
	case *[4]int32:
		return assignArray(d[:], key, v, KindInt32, CoerceToInt32)
	case *[4]float32:
		return assignArray(d[:], key, v, KindFloat32, CoerceToFloat32)
	case *[4]float64:
		return assignArray(d[:], key, v, KindFloat64, CoerceToFloat64)
	case *[6]float64:
		return assignArray(d[:], key, v, KindFloat64, CoerceToFloat64)
	default:
		return false, errors.Unsupported(errors.PhaseConfigure, fmt.Sprintf("destination %T for %q", dst, key))
	}
	return true, nil
}

// assignArray converts every element before writing any of them, so dst is
// either fully replaced or untouched.
func assignArray[T any](dst []T, key string, v any, kind Kind, conv func([]string, any) (T, error)) (bool, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false, errors.TypeMismatch(errors.PhaseConfigure, []string{key}, fmt.Sprintf("%T", v), fmt.Sprintf("[%d]%s", len(dst), kind))
	}
	if rv.Len() != len(dst) {
		return false, nil
	}

	tmp := make([]T, len(dst))
	for i := range tmp {
		x, err := conv([]string{key, "[" + strconv.Itoa(i) + "]"}, rv.Index(i).Interface())
		if err != nil {
			return false, err
		}
		tmp[i] = x
	}
	copy(dst, tmp)
	return true, nil
}
