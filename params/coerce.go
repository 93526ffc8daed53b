package params

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/wippyai/libraw-wasm/errors"
)

// toNumber widens any numeric Go value (and bool, as 0/1) to float64.
// Integers beyond 2^53 lose precision, which is below anything LibRaw accepts.
func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// CoerceToInt32 converts value the way a C int assignment would: fractions
// truncate toward zero. NaN, infinities and out-of-range values are rejected.
func CoerceToInt32(path []string, value any) (int32, error) {
	f, ok := toNumber(value)
	if !ok || math.IsNaN(f) {
		return 0, errors.TypeMismatch(errors.PhaseConfigure, path, fmt.Sprintf("%T", value), KindInt32.String())
	}
	f = math.Trunc(f)
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, errors.Overflow(errors.PhaseConfigure, path, value, KindInt32.String())
	}
	return int32(f), nil
}

// CoerceToUint32 converts value to an unsigned engine field. Negative values are rejected.
func CoerceToUint32(path []string, value any) (uint32, error) {
	f, ok := toNumber(value)
	if !ok || math.IsNaN(f) {
		return 0, errors.TypeMismatch(errors.PhaseConfigure, path, fmt.Sprintf("%T", value), KindUint32.String())
	}
	f = math.Trunc(f)
	if f < 0 || f > math.MaxUint32 {
		return 0, errors.Overflow(errors.PhaseConfigure, path, value, KindUint32.String())
	}
	return uint32(f), nil
}

// CoerceToFloat32 converts value to a single precision engine field.
func CoerceToFloat32(path []string, value any) (float32, error) {
	f, ok := toNumber(value)
	if !ok {
		return 0, errors.TypeMismatch(errors.PhaseConfigure, path, fmt.Sprintf("%T", value), KindFloat32.String())
	}
	if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return 0, errors.Overflow(errors.PhaseConfigure, path, value, KindFloat32.String())
	}
	return float32(f), nil
}

// CoerceToFloat64 converts value to a double precision engine field.
func CoerceToFloat64(path []string, value any) (float64, error) {
	f, ok := toNumber(value)
	if !ok {
		return 0, errors.TypeMismatch(errors.PhaseConfigure, path, fmt.Sprintf("%T", value), KindFloat64.String())
	}
	return f, nil
}

// CoerceToString accepts strings and byte slices; nil clears the field.
func CoerceToString(path []string, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", errors.TypeMismatch(errors.PhaseConfigure, path, fmt.Sprintf("%T", value), KindString.String())
}
