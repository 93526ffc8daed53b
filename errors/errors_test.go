package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:      PhaseConfigure,
				Kind:       KindTypeMismatch,
				Path:       []string{"gamm", "[2]"},
				GoType:     "string",
				EngineType: "f64",
				Detail:     "cannot convert",
			},
			contains: []string{"[configure]", "type_mismatch", "gamm.[2]", "string", "f64", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseExport,
				Kind:  KindNoData,
			},
			contains: []string{"[export]", "no_data"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindAllocation,
				Detail: "guest heap exhausted",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[runtime]", "allocation", "guest heap exhausted", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseMarshal,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseConfigure,
		Kind:  KindTypeMismatch,
		Path:  []string{"bright"},
	}

	if !err.Is(&Error{Phase: PhaseConfigure, Kind: KindTypeMismatch}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseMarshal, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseConfigure, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}
	if !err.Is(&Error{Kind: KindTypeMismatch}) {
		t.Error("Is should match any phase when target phase is empty")
	}
	if !errors.Is(err, ErrConfigure) {
		t.Error("errors.Is should match ErrConfigure")
	}
	if !err.Is(&Error{Phase: PhaseConfigure}) {
		t.Error("Is should match any kind when target kind is empty")
	}
	if err.Is(&Error{}) {
		t.Error("empty target should match nothing")
	}
}

func TestSentinels(t *testing.T) {
	tests := []struct {
		err    error
		target error
		name   string
	}{
		{Marshal([]string{"[3]"}, "x", "not a number"), ErrMarshal, "marshal"},
		{Overflow(PhaseConfigure, []string{"half_size"}, 1e12, "i32"), ErrConfigure, "configure overflow"},
		{TypeMismatch(PhaseConfigure, []string{"bright"}, "string", "f32"), ErrConfigure, "configure type"},
		{NotInitialized("decoder", "created"), ErrUninitialized, "uninitialized"},
		{InvalidState("decoder already used"), ErrReused, "reused"},
		{NoData(-4), ErrNoData, "no data"},
		{UnsupportedBitDepth(12), ErrUnsupportedBitDepth, "bit depth"},
		{TooLarge(PhaseMarshal, 10, 5), ErrTooLarge, "too large"},
		{&EngineError{Stage: StageUnpack, Code: -100008}, ErrEngine, "engine"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
		})
	}
}

func TestSentinels_DoNotCrossMatch(t *testing.T) {
	if errors.Is(NoData(0), ErrUninitialized) {
		t.Error("no_data should not match not_initialized")
	}
	if errors.Is(UnsupportedBitDepth(12), ErrEngine) {
		t.Error("bit depth error should not match EngineError")
	}
	if errors.Is(Marshal(nil, "x", "y"), ErrConfigure) {
		t.Error("marshal error should not match ErrConfigure")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseConfigure, KindTypeMismatch).
		Path("user_mul", "[1]").
		GoType("string").
		EngineType("f32").
		Value("abc").
		Cause(cause).
		Detail("expected %s, got %s", "number", "string").
		Build()

	if err.Phase != PhaseConfigure {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseConfigure)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "user_mul" || err.Path[1] != "[1]" {
		t.Errorf("Path = %v, want [user_mul [1]]", err.Path)
	}
	if err.GoType != "string" {
		t.Errorf("GoType = %v, want 'string'", err.GoType)
	}
	if err.EngineType != "f32" {
		t.Errorf("EngineType = %v, want 'f32'", err.EngineType)
	}
	if err.Value != "abc" {
		t.Errorf("Value = %v, want abc", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected number, got string" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("TypeMismatch", func(t *testing.T) {
		err := TypeMismatch(PhaseConfigure, []string{"bright"}, "string", "f32")
		if err.Kind != KindTypeMismatch {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
		}
		if err.GoType != "string" || err.EngineType != "f32" {
			t.Errorf("GoType=%v EngineType=%v", err.GoType, err.EngineType)
		}
	})

	t.Run("Marshal", func(t *testing.T) {
		err := Marshal([]string{"[7]"}, true, "element is not numeric")
		if err.Phase != PhaseMarshal || err.Kind != KindInvalidData {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
		if err.GoType != "bool" {
			t.Errorf("GoType = %v, want bool", err.GoType)
		}
	})

	t.Run("AllocationFailed", func(t *testing.T) {
		err := AllocationFailed(PhaseRuntime, 1024, nil)
		if err.Kind != KindAllocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
		}
		if !strings.Contains(err.Detail, "1024") {
			t.Errorf("Detail = %v, should contain size", err.Detail)
		}
	})

	t.Run("UnsupportedBitDepth", func(t *testing.T) {
		err := UnsupportedBitDepth(12)
		if err.Value != 12 {
			t.Errorf("Value = %v, want 12", err.Value)
		}
		if !strings.Contains(err.Error(), "12") {
			t.Errorf("message %q should mention depth", err.Error())
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow(PhaseConfigure, []string{"half_size"}, 1e12, "i32")
		if err.Kind != KindOverflow {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOverflow)
		}
	})

	t.Run("Trap", func(t *testing.T) {
		err := Trap("libraw_unpack", errors.New("unreachable"))
		if err.Kind != KindTrap || err.Path[0] != "libraw_unpack" {
			t.Errorf("unexpected trap error %v", err)
		}
	})
}

func TestEngineError(t *testing.T) {
	err := &EngineError{Stage: StageOpen, Code: -2, Text: "Unsupported file format or not RAW file"}

	msg := err.Error()
	for _, s := range []string{"[open]", "-2", "Unsupported file format"} {
		if !strings.Contains(msg, s) {
			t.Errorf("message %q missing %q", msg, s)
		}
	}

	if !errors.Is(err, &EngineError{Stage: StageOpen}) {
		t.Error("should match same stage")
	}
	if errors.Is(err, &EngineError{Stage: StageProcess}) {
		t.Error("should not match other stage")
	}

	var ee *EngineError
	if !errors.As(error(err), &ee) || ee.Code != -2 {
		t.Error("errors.As should expose the raw code")
	}
}

func TestMissingExportsError(t *testing.T) {
	t.Run("sorted listing", func(t *testing.T) {
		err := NewMissingExportsError([]string{"libraw_unpack", "free", "malloc"})
		if err.Exports[0] != "free" || err.Exports[2] != "malloc" {
			t.Errorf("exports not sorted: %v", err.Exports)
		}
		msg := err.Error()
		if !strings.Contains(msg, "3 export") || !strings.Contains(msg, "libraw_unpack") {
			t.Errorf("unexpected message %q", msg)
		}
	})

	t.Run("empty", func(t *testing.T) {
		msg := NewMissingExportsError(nil).Error()
		if !strings.Contains(msg, "no exports specified") {
			t.Errorf("empty error should have specific message, got: %s", msg)
		}
	})

	t.Run("errors.Is", func(t *testing.T) {
		err := NewMissingExportsError([]string{"memory"})
		if !errors.Is(err, &MissingExportsError{}) {
			t.Error("errors.Is should match MissingExportsError")
		}
	})
}
