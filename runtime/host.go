package runtime

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/libraw-wasm/engine"
	"github.com/wippyai/libraw-wasm/errors"
)

// Host is the interface for struct-based host modules.
// All exported methods (except Module) are registered as host functions.
type Host interface {
	// Module returns the import module name (e.g., "env").
	Module() string
}

// ExplicitRegistrar allows hosts to provide exact import names when the
// automatic PascalCase-to-snake_case conversion doesn't apply
// (e.g., "__syscall_openat").
type ExplicitRegistrar interface {
	Register() map[string]any
}

// HostRegistry collects Go functions the LibRaw build imports. Handlers are
// plain Go funcs over wasm number types, optionally taking a leading
// context.Context and api.Module.
type HostRegistry struct {
	funcs map[string]map[string]any
	mu    sync.RWMutex
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		funcs: make(map[string]map[string]any),
	}
}

func (r *HostRegistry) RegisterHost(h Host) error {
	mod := h.Module()
	if mod == "" {
		return errors.InvalidInput(errors.PhaseHost, "module name cannot be empty")
	}

	funcs := make(map[string]any)
	if er, ok := h.(ExplicitRegistrar); ok {
		for name, handler := range er.Register() {
			funcs[name] = handler
		}
	} else {
		rv := reflect.ValueOf(h)
		rt := rv.Type()
		for i := 0; i < rt.NumMethod(); i++ {
			method := rt.Method(i)
			if !method.IsExported() || method.Name == "Module" {
				continue
			}
			funcs[toSnakeCase(method.Name)] = rv.Method(i).Interface()
		}
	}

	for name, fn := range funcs {
		if err := r.RegisterFunc(mod, name, fn); err != nil {
			return err
		}
	}
	return nil
}

func (r *HostRegistry) RegisterFunc(module, name string, fn any) error {
	if module == "" {
		return errors.InvalidInput(errors.PhaseHost, "module name cannot be empty")
	}
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}
	if err := checkHandler(fn); err != nil {
		return errors.Registration(errors.PhaseHost, module, name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.funcs[module] == nil {
		r.funcs[module] = make(map[string]any)
	}
	r.funcs[module][name] = fn
	return nil
}

// Modules returns one engine.HostModule per registered import module.
func (r *HostRegistry) Modules() []engine.HostModule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for mod := range r.funcs {
		names = append(names, mod)
	}
	sort.Strings(names)

	out := make([]engine.HostModule, 0, len(names))
	for _, mod := range names {
		funcs := make(map[string]any, len(r.funcs[mod]))
		for name, fn := range r.funcs[mod] {
			funcs[name] = fn
		}
		out = append(out, bindModule(mod, funcs))
	}
	return out
}

func bindModule(mod string, funcs map[string]any) engine.HostModule {
	return func(ctx context.Context, rt wazero.Runtime) error {
		b := rt.NewHostModuleBuilder(mod)
		for name, fn := range funcs {
			b.NewFunctionBuilder().WithFunc(fn).Export(name)
		}
		if _, err := b.Instantiate(ctx); err != nil {
			return errors.Registration(errors.PhaseHost, mod, "*", err)
		}
		return nil
	}
}

var (
	ctxType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	moduleType = reflect.TypeOf((*api.Module)(nil)).Elem()
)

// checkHandler mirrors the signatures wazero's WithFunc accepts.
func checkHandler(fn any) error {
	rt := reflect.TypeOf(fn)
	if rt == nil || rt.Kind() != reflect.Func {
		return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			GoType(fmt.Sprintf("%T", fn)).
			Detail("handler must be a function").
			Build()
	}

	in := 0
	if in < rt.NumIn() && rt.In(in) == ctxType {
		in++
		if in < rt.NumIn() && rt.In(in) == moduleType {
			in++
		}
	}
	for ; in < rt.NumIn(); in++ {
		if rt.In(in) == moduleType {
			return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
				GoType(rt.String()).
				Detail("api.Module parameter must follow context.Context").
				Build()
		}
		if !wasmNumber(rt.In(in)) {
			return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
				GoType(rt.In(in).String()).
				Detail("parameter %d is not a wasm number type", in).
				Build()
		}
	}
	for i := 0; i < rt.NumOut(); i++ {
		if !wasmNumber(rt.Out(i)) {
			return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
				GoType(rt.Out(i).String()).
				Detail("result %d is not a wasm number type", i).
				Build()
		}
	}
	return nil
}

func wasmNumber(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32, reflect.Int64, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Uintptr:
		return true
	}
	return false
}

// toSnakeCase converts PascalCase to snake_case.
// A run of capitals is one word, except a last capital followed by a lower
// case letter: HTTPServer -> http_server, GetHTTPURL -> get_httpurl.
func toSnakeCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('_')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1 // -1 because loop will increment
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
