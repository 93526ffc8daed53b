package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseMarshal   Phase = "marshal"   // host buffer to owned bytes
	PhaseConfigure Phase = "configure" // request to engine parameters
	PhaseExport    Phase = "export"    // engine image to host
	PhaseState     Phase = "state"     // decoder lifecycle checks
	PhaseRuntime   Phase = "runtime"   // guest calls and memory access
	PhaseLoad      Phase = "load"      // engine module loading
	PhaseParse     Phase = "parse"     // settings document parsing
	PhaseHost      Phase = "host"      // host function registration
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch        Kind = "type_mismatch"
	KindOutOfBounds         Kind = "out_of_bounds"
	KindInvalidData         Kind = "invalid_data"
	KindUnsupported         Kind = "unsupported"
	KindUnsupportedBitDepth Kind = "unsupported_bit_depth"
	KindAllocation          Kind = "allocation"
	KindOverflow            Kind = "overflow"
	KindNotFound            Kind = "not_found"
	KindNotInitialized      Kind = "not_initialized"
	KindInvalidState        Kind = "invalid_state"
	KindInvalidInput        Kind = "invalid_input"
	KindInstantiation       Kind = "instantiation"
	KindRegistration        Kind = "registration"
	KindNoData              Kind = "no_data"
	KindTooLarge            Kind = "too_large"
	KindTrap                Kind = "trap"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	GoType     string
	EngineType string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.EngineType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.EngineType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", engine type ")
			b.WriteString(e.EngineType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("engine type ")
			b.WriteString(e.EngineType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.EngineType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a Phase matches any phase of the same Kind, and a target
// without a Kind matches any kind of the same Phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || (t.Phase == "" && t.Kind == "") {
		return false
	}
	return (t.Phase == "" || e.Phase == t.Phase) && (t.Kind == "" || e.Kind == t.Kind)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// EngineType sets the engine-side type name
func (b *Builder) EngineType(t string) *Builder {
	b.err.EngineType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels for errors.Is. ErrMarshal and ErrConfigure match every error of
// their phase; the others carry only a Kind and match it in any phase.
var (
	ErrMarshal             = &Error{Phase: PhaseMarshal}
	ErrConfigure           = &Error{Phase: PhaseConfigure}
	ErrUninitialized       = &Error{Kind: KindNotInitialized}
	ErrReused              = &Error{Kind: KindInvalidState}
	ErrNoData              = &Error{Kind: KindNoData}
	ErrUnsupportedBitDepth = &Error{Kind: KindUnsupportedBitDepth}
	ErrTooLarge            = &Error{Kind: KindTooLarge}
	ErrEngine              = &EngineError{}
)

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, engineType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		GoType:     goType,
		EngineType: engineType,
	}
}

// Marshal creates a malformed input buffer error.
func Marshal(path []string, value any, detail string) *Error {
	return &Error{
		Phase:  PhaseMarshal,
		Kind:   KindInvalidData,
		Path:   path,
		Value:  value,
		GoType: fmt.Sprintf("%T", value),
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// UnsupportedBitDepth creates the error returned for images that are neither 8 nor 16 bit.
func UnsupportedBitDepth(bits int) *Error {
	return &Error{
		Phase:  PhaseExport,
		Kind:   KindUnsupportedBitDepth,
		Detail: fmt.Sprintf("unsupported bit depth %d", bits),
		Value:  bits,
	}
}

// NoData creates the error returned when the engine produced no image.
func NoData(code int32) *Error {
	return &Error{
		Phase:  PhaseExport,
		Kind:   KindNoData,
		Detail: fmt.Sprintf("engine returned no image (code %d)", code),
		Value:  code,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindOverflow,
		Path:       path,
		EngineType: targetType,
		Detail:     fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:      value,
	}
}

// TooLarge creates an input size limit error
func TooLarge(phase Phase, size, limit int64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTooLarge,
		Detail: fmt.Sprintf("%d bytes exceeds limit of %d", size, limit),
		Value:  size,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Trap wraps a failed guest call.
func Trap(function string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Path:   []string{function},
		Detail: "guest call failed",
		Cause:  cause,
	}
}

// Stage names a step of the decode pipeline
type Stage string

const (
	StageOpen    Stage = "open"
	StageUnpack  Stage = "unpack"
	StageProcess Stage = "process"
)

// EngineError reports a non-success status from one pipeline stage.
// Code is the engine's raw status value.
type EngineError struct {
	Stage Stage
	Text  string
	Code  int32
}

func (e *EngineError) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("[%s] engine status %d", e.Stage, e.Code)
	}
	return fmt.Sprintf("[%s] engine status %d: %s", e.Stage, e.Code, e.Text)
}

// Is matches any EngineError when the target has no Stage, otherwise the same Stage.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Stage == "" || t.Stage == e.Stage
}

// MissingExportsError is returned when an engine module lacks required exports
type MissingExportsError struct {
	Exports []string
}

// NewMissingExportsError creates an error from a list of export names
func NewMissingExportsError(names []string) *MissingExportsError {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return &MissingExportsError{Exports: sorted}
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[load] not_found: no exports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("engine module is missing %d export(s):", len(e.Exports)))
	for _, name := range e.Exports {
		b.WriteString("\n  - ")
		b.WriteString(name)
	}
	return b.String()
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}

// NotInitialized creates a not-initialized error for a decoder used outside its valid states
func NotInitialized(component, state string) *Error {
	return &Error{
		Phase:  PhaseState,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not ready (state %s)", component, state),
	}
}

// InvalidState creates an error for an operation the current lifecycle state forbids
func InvalidState(detail string) *Error {
	return &Error{
		Phase:  PhaseState,
		Kind:   KindInvalidState,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate engine module",
		Cause:  cause,
	}
}

// Registration creates a host function registration error
func Registration(phase Phase, module, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s.%s", module, name),
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
