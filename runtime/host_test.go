package runtime

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/libraw-wasm/engine"
	"github.com/wippyai/libraw-wasm/errors"
	"github.com/wippyai/libraw-wasm/internal/rawtest"
	"github.com/wippyai/libraw-wasm/internal/wasmtest"
)

// envGuest is the fake shim plus an emscripten memory-growth import.
func envGuest() []byte {
	fw := &wasmtest.Forwarder{
		ImportModule: rawtest.HostModuleName,
		MemoryPages:  16,
		Imports: []wasmtest.Import{{
			Module: "env",
			Func: wasmtest.Func{
				Name:   "emscripten_notify_memory_growth",
				Params: []api.ValueType{api.ValueTypeI32},
			},
		}},
	}
	for _, name := range engine.ExportNames() {
		params, results, _ := engine.ExportSignature(name)
		fw.Funcs = append(fw.Funcs, wasmtest.Func{Name: name, Params: params, Results: results})
	}
	return fw.Encode()
}

type mathHost struct {
	calls int
}

func (h *mathHost) Module() string { return "math" }

func (h *mathHost) AddInts(a, b int32) int32 {
	h.calls++
	return a + b
}

func (h *mathHost) ScaleF64(ctx context.Context, v float64) float64 {
	return v * 2
}

type namedHost struct{}

func (namedHost) Module() string { return "env" }

func (namedHost) Register() map[string]any {
	return map[string]any{
		"__syscall_getpid": func() int32 { return 42 },
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AddInts", "add_ints"},
		{"GetHTTPURL", "get_httpurl"},
		{"HTTPServer", "http_server"},
		{"ReadU32", "read_u32"},
		{"EmscriptenNotifyMemoryGrowth", "emscripten_notify_memory_growth"},
		{"X", "x"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := toSnakeCase(tt.in); got != tt.want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHostRegistry_RegisterHost(t *testing.T) {
	r := NewHostRegistry()
	h := &mathHost{}
	if err := r.RegisterHost(h); err != nil {
		t.Fatalf("RegisterHost: %v", err)
	}
	if err := r.RegisterHost(namedHost{}); err != nil {
		t.Fatalf("RegisterHost explicit: %v", err)
	}

	for mod, names := range map[string][]string{
		"math": {"add_ints", "scale_f64"},
		"env":  {"__syscall_getpid"},
	} {
		for _, name := range names {
			if r.funcs[mod][name] == nil {
				t.Errorf("%s.%s not registered", mod, name)
			}
		}
	}
	if got := len(r.Modules()); got != 2 {
		t.Errorf("Modules() = %d, want 2", got)
	}
}

func TestHostRegistry_RejectsBadHandlers(t *testing.T) {
	r := NewHostRegistry()
	tests := []struct {
		fn   any
		mod  string
		name string
	}{
		{func() {}, "", "f"},
		{func() {}, "env", ""},
		{"not a func", "env", "f"},
		{nil, "env", "f"},
		{func(s string) {}, "env", "f"},
		{func() []byte { return nil }, "env", "f"},
		{func(api.Module, uint32) {}, "env", "f"},
		{func(uint32, context.Context) {}, "env", "f"},
		{func(ctx context.Context, x uint32, m api.Module) {}, "env", "f"},
	}
	for _, tt := range tests {
		if err := r.RegisterFunc(tt.mod, tt.name, tt.fn); err == nil {
			t.Errorf("RegisterFunc(%q, %q, %T) succeeded", tt.mod, tt.name, tt.fn)
		}
	}

	err := r.RegisterFunc("env", "f", func(s string) {})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseHost, Kind: errors.KindRegistration}) {
		t.Errorf("expected registration error, got %v", err)
	}
	if len(r.funcs) != 0 {
		t.Errorf("rejected handlers were stored: %v", r.funcs)
	}

	if err := r.RegisterFunc("env", "g", func(ctx context.Context, m api.Module, x uint32) uint32 { return x }); err != nil {
		t.Errorf("context then module rejected: %v", err)
	}
}

func TestHostRegistry_ModulesBindIntoWazero(t *testing.T) {
	ctx := context.Background()
	r := NewHostRegistry()
	h := &mathHost{}
	if err := r.RegisterHost(h); err != nil {
		t.Fatal(err)
	}

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	for _, m := range r.Modules() {
		if err := m(ctx, rt); err != nil {
			t.Fatalf("bind: %v", err)
		}
	}

	i32 := api.ValueTypeI32
	guest := (&wasmtest.Forwarder{
		ImportModule: "math",
		Funcs:        []wasmtest.Func{{Name: "add_ints", Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}}},
	}).Encode()
	mod, err := rt.Instantiate(ctx, guest)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	out, err := mod.ExportedFunction("add_ints").Call(ctx, api.EncodeI32(-5), api.EncodeI32(12))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got := api.DecodeI32(out[0]); got != 7 {
		t.Errorf("add_ints = %d, want 7", got)
	}
	if h.calls != 1 {
		t.Errorf("host calls = %d", h.calls)
	}
}
