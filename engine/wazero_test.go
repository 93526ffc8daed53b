package engine_test

import (
	"context"
	stderrors "errors"
	"math"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/libraw-wasm/engine"
	"github.com/wippyai/libraw-wasm/errors"
	"github.com/wippyai/libraw-wasm/internal/rawtest"
	"github.com/wippyai/libraw-wasm/internal/wasmtest"
	"github.com/wippyai/libraw-wasm/params"
)

func newEngine(t *testing.T, g *rawtest.Guest, wasm []byte) *engine.WazeroEngine {
	t.Helper()
	ctx := context.Background()

	eng, err := engine.NewWazeroEngine(ctx, wasm, &engine.Config{
		HostModules: []engine.HostModule{g.HostModule()},
	})
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}
	t.Cleanup(func() { eng.Close(ctx) })
	return eng
}

func newInstance(t *testing.T, g *rawtest.Guest) *engine.Instance {
	t.Helper()
	inst, err := newEngine(t, g, g.Binary()).NewInstance(context.Background())
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	return inst
}

func TestInstance_Pipeline(t *testing.T) {
	ctx := context.Background()
	g := rawtest.NewGuest(rawtest.DefaultScenario())
	inst := newInstance(t, g)

	raw := []byte("II*\x00raw-bytes")
	steps := []struct {
		call func() (engine.Status, error)
		name string
	}{
		{func() (engine.Status, error) { return inst.OpenBuffer(ctx, raw) }, "open"},
		{func() (engine.Status, error) { return inst.Unpack(ctx) }, "unpack"},
		{func() (engine.Status, error) { return inst.Process(ctx) }, "process"},
	}
	for _, s := range steps {
		st, err := s.call()
		if err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if !st.OK() {
			t.Fatalf("%s: status %v", s.name, st)
		}
	}

	opened := g.Opened()
	if len(opened) != 1 || string(opened[0]) != string(raw) {
		t.Errorf("guest saw %q", opened)
	}

	state, err := inst.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	want := rawtest.DefaultScenario().State
	if *state != want {
		t.Errorf("State = %+v, want %+v", *state, want)
	}

	img, st, err := inst.MakeMemImage(ctx)
	if err != nil || !st.OK() || img == nil {
		t.Fatalf("MakeMemImage: %v %v %v", img, st, err)
	}
	if img.Width != 4 || img.Height != 3 || img.Colors != 3 || img.Bits != 8 {
		t.Errorf("header = %dx%dx%d@%d", img.Width, img.Height, img.Colors, img.Bits)
	}
	if img.Type != engine.ImageBitmap {
		t.Errorf("type = %d", img.Type)
	}
	if img.DataSize != 36 || len(img.Data) != 36 {
		t.Errorf("data size = %d, len = %d", img.DataSize, len(img.Data))
	}
	if img.Data[5] != 5 {
		t.Errorf("data[5] = %d", img.Data[5])
	}

	if err := inst.ClearMem(ctx, img); err != nil {
		t.Fatalf("ClearMem: %v", err)
	}
	if err := inst.ClearMem(ctx, img); err != nil {
		t.Fatalf("second ClearMem: %v", err)
	}
	if got := g.Calls(engine.ExportClearMem); got != 1 {
		t.Errorf("clear_mem called %d times, want 1", got)
	}

	if err := inst.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	stats := g.Stats()
	if stats.Live != 0 || stats.DoubleFrees != 0 || stats.Processors != 0 {
		t.Errorf("leak after close: %+v", stats)
	}
	if stats.Allocs != stats.Frees {
		t.Errorf("allocs %d != frees %d", stats.Allocs, stats.Frees)
	}
}

func TestInstance_SetParams(t *testing.T) {
	ctx := context.Background()
	g := rawtest.NewGuest(rawtest.DefaultScenario())
	inst := newInstance(t, g)

	p := params.Defaults()
	p.HalfSize = 1
	p.UserMul = [4]float32{2, 1, 1.5, 1}
	p.Gamm[1] = 3.5
	p.OutputProfile = "/icc/srgb.icc"
	p.DarkFrame = "/frames/dark.pgm"
	keys := []string{"gamm", "user_mul", "user_cblack", "cropbox", "bright", "half_size", "output_bps", "output_profile", "dark_frame"}

	if err := inst.SetParams(ctx, &p, keys); err != nil {
		t.Fatalf("SetParams: %v", err)
	}

	checks := []struct {
		key   string
		index int
		want  float64
	}{
		{"half_size", 0, 1},
		{"user_mul", 2, 1.5},
		{"gamm", 0, 0.45},
		{"gamm", 1, 3.5},
		{"bright", 0, 1},
		{"output_bps", 0, 8},
		{"user_cblack", 3, -1000001},
		// u32 fields travel as i32 bit patterns
		{"cropbox", 2, -1},
	}
	for _, c := range checks {
		got, ok := g.Param(c.key, c.index)
		if !ok {
			t.Errorf("%s[%d] never set", c.key, c.index)
			continue
		}
		if math.Abs(got-c.want) > 1e-6 {
			t.Errorf("%s[%d] = %v, want %v", c.key, c.index, got, c.want)
		}
	}

	if got, _ := g.StringParam("output_profile"); got != "/icc/srgb.icc" {
		t.Errorf("output_profile = %q", got)
	}
	if _, ok := g.StringParam("camera_profile"); ok {
		t.Error("camera_profile pushed without being requested")
	}
	if _, ok := g.Param("output_flags", 0); ok {
		t.Error("output_flags pushed without being requested")
	}
	if inst.LiveStrings() != 2 {
		t.Errorf("live strings = %d, want 2", inst.LiveStrings())
	}

	// replacing and clearing strings must not leak
	before := g.Stats().Live
	p.OutputProfile = "/icc/adobe.icc"
	p.DarkFrame = ""
	if err := inst.SetParams(ctx, &p, []string{"output_profile", "dark_frame"}); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if got, ok := g.StringParam("dark_frame"); !ok || got != "" {
		t.Errorf("dark_frame = %q, %v; want cleared", got, ok)
	}
	if got := g.Stats().Live; got != before-1 {
		t.Errorf("live allocations = %d, want %d", got, before-1)
	}
	if g.Stats().BadStrings != 0 {
		t.Error("guest saw an unterminated or foreign string pointer")
	}

	if err := inst.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s := g.Stats(); s.Live != 0 || s.DoubleFrees != 0 {
		t.Errorf("after close: %+v", s)
	}
}

func TestInstance_SetParamsNoKeys(t *testing.T) {
	ctx := context.Background()
	g := rawtest.NewGuest(rawtest.DefaultScenario())
	inst := newInstance(t, g)

	p := params.Defaults()
	if err := inst.SetParams(ctx, &p, nil); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	for _, name := range []string{
		engine.ExportSetParamI32, engine.ExportSetParamF32,
		engine.ExportSetParamF64, engine.ExportSetParamStr,
	} {
		if n := g.Calls(name); n != 0 {
			t.Errorf("%s called %d times", name, n)
		}
	}
	if inst.LiveStrings() != 0 {
		t.Errorf("live strings = %d", inst.LiveStrings())
	}

	err := inst.SetParams(ctx, &p, []string{"no_such_option"})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfigure, Kind: errors.KindNotFound}) {
		t.Errorf("unknown key: %v", err)
	}
}

func TestInstance_RejectedOption(t *testing.T) {
	s := rawtest.DefaultScenario()
	s.RejectKey = "exp_preser"
	g := rawtest.NewGuest(s)
	inst := newInstance(t, g)

	p := params.Defaults()
	err := inst.SetParams(context.Background(), &p, []string{"half_size", "exp_preser"})
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("expected *errors.Error, got %v", err)
	}
	if e.Kind != errors.KindNotFound || len(e.Path) != 1 || e.Path[0] != "exp_preser" {
		t.Errorf("unexpected error %v", e)
	}
}

func TestInstance_StageStatuses(t *testing.T) {
	ctx := context.Background()
	s := rawtest.DefaultScenario()
	s.UnpackStatus = engine.StatusDataError
	g := rawtest.NewGuest(s)
	inst := newInstance(t, g)

	if st, err := inst.OpenBuffer(ctx, nil); err != nil || st != engine.StatusIOError {
		t.Errorf("empty open = %v, %v", st, err)
	}
	if st, err := inst.OpenBuffer(ctx, []byte{1, 2}); err != nil || !st.OK() {
		t.Fatalf("open = %v, %v", st, err)
	}
	if st, err := inst.Unpack(ctx); err != nil || st != engine.StatusDataError {
		t.Errorf("unpack = %v, %v", st, err)
	}
	if st, err := inst.Process(ctx); err != nil || st != engine.StatusOutOfOrderCall {
		t.Errorf("process = %v, %v", st, err)
	}

	img, st, err := inst.MakeMemImage(ctx)
	if err != nil || img != nil || st != engine.StatusOutOfOrderCall {
		t.Errorf("MakeMemImage = %v, %v, %v", img, st, err)
	}
}

func TestInstance_NoImage(t *testing.T) {
	ctx := context.Background()
	s := rawtest.DefaultScenario()
	s.NoImage = true
	s.ImageErrc = engine.StatusInsufficientMemory
	inst := newInstance(t, rawtest.NewGuest(s))

	inst.OpenBuffer(ctx, []byte{1})
	inst.Unpack(ctx)
	inst.Process(ctx)

	img, st, err := inst.MakeMemImage(ctx)
	if err != nil || img != nil {
		t.Fatalf("MakeMemImage = %v, %v", img, err)
	}
	if st != engine.StatusInsufficientMemory {
		t.Errorf("errc = %v", st)
	}
}

func TestInstance_Trap(t *testing.T) {
	ctx := context.Background()
	s := rawtest.DefaultScenario()
	s.TrapOn = engine.ExportUnpack
	inst := newInstance(t, rawtest.NewGuest(s))

	inst.OpenBuffer(ctx, []byte{1})
	_, err := inst.Unpack(ctx)
	if err == nil {
		t.Fatal("expected trap error")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseRuntime, Kind: errors.KindTrap}) {
		t.Errorf("expected runtime trap, got %v", err)
	}
}

func TestInstance_UseAfterClose(t *testing.T) {
	ctx := context.Background()
	inst := newInstance(t, rawtest.NewGuest(rawtest.DefaultScenario()))

	if err := inst.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := inst.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := inst.Unpack(ctx); !stderrors.Is(err, errors.ErrUninitialized) {
		t.Errorf("Unpack after close = %v", err)
	}
}

func TestInstance_Isolation(t *testing.T) {
	ctx := context.Background()
	g := rawtest.NewGuest(rawtest.DefaultScenario())
	eng := newEngine(t, g, g.Binary())

	a, err := eng.NewInstance(ctx)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	b, err := eng.NewInstance(ctx)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	if a.Module().Memory() == b.Module().Memory() {
		t.Error("instances share a module")
	}

	a.OpenBuffer(ctx, []byte{1})
	if st, _ := b.Unpack(ctx); st != engine.StatusOutOfOrderCall {
		t.Errorf("second processor saw first processor's open: %v", st)
	}

	a.Close(ctx)
	b.Close(ctx)
	if g.Stats().Processors != 0 {
		t.Error("processor leaked")
	}
}

func TestNewWazeroEngine_MissingExports(t *testing.T) {
	g := rawtest.NewGuest(rawtest.DefaultScenario())
	var names []string
	for _, n := range engine.ExportNames() {
		if n != engine.ExportUnpack && n != engine.ExportGetState {
			names = append(names, n)
		}
	}

	_, err := engine.NewWazeroEngine(context.Background(), rawtest.ForwardingBinary(names...), &engine.Config{
		HostModules: []engine.HostModule{g.HostModule()},
	})
	var missing *errors.MissingExportsError
	if !stderrors.As(err, &missing) {
		t.Fatalf("expected MissingExportsError, got %v", err)
	}
	if len(missing.Exports) != 2 || missing.Exports[0] != engine.ExportGetState || missing.Exports[1] != engine.ExportUnpack {
		t.Errorf("missing = %v", missing.Exports)
	}
}

func TestNewWazeroEngine_InvalidBinary(t *testing.T) {
	_, err := engine.NewWazeroEngine(context.Background(), []byte("not wasm"), nil)
	if err == nil {
		t.Fatal("expected compile error")
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Phase != errors.PhaseLoad {
		t.Errorf("expected load error, got %v", err)
	}
}

func TestNewWazeroEngine_LinksWASIAndEnv(t *testing.T) {
	ctx := context.Background()
	g := rawtest.NewGuest(rawtest.DefaultScenario())

	fw := &wasmtest.Forwarder{
		ImportModule: rawtest.HostModuleName,
		MemoryPages:  16,
		Imports: []wasmtest.Import{
			{Module: "wasi_snapshot_preview1", Func: wasmtest.Func{
				Name:    "fd_write",
				Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
				Results: []api.ValueType{api.ValueTypeI32},
			}},
			{Module: "env", Func: wasmtest.Func{
				Name:   "emscripten_notify_memory_growth",
				Params: []api.ValueType{api.ValueTypeI32},
			}},
			{Module: "env", Func: wasmtest.Func{
				Name:    "__syscall_openat",
				Params:  []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32},
				Results: []api.ValueType{api.ValueTypeI32},
			}},
		},
	}
	for _, n := range engine.ExportNames() {
		p, r, _ := engine.ExportSignature(n)
		fw.Funcs = append(fw.Funcs, wasmtest.Func{Name: n, Params: p, Results: r})
	}

	eng := newEngine(t, g, fw.Encode())
	if eng.Runtime().Module("wasi_snapshot_preview1") == nil {
		t.Error("WASI not instantiated")
	}
	if eng.Runtime().Module("env") == nil {
		t.Error("env stubs not instantiated")
	}

	inst, err := eng.NewInstance(ctx)
	if err != nil {
		t.Fatalf("NewInstance: %v", err)
	}
	inst.Close(ctx)
}

func TestNewWazeroEngine_MemoryLimit(t *testing.T) {
	ctx := context.Background()
	g := rawtest.NewGuest(rawtest.DefaultScenario())

	// the test guest starts with 16 pages
	eng, err := engine.NewWazeroEngine(ctx, g.Binary(), &engine.Config{
		MemoryLimitPages: 4,
		HostModules:      []engine.HostModule{g.HostModule()},
	})
	if err == nil {
		defer eng.Close(ctx)
		_, err = eng.NewInstance(ctx)
	}
	if err == nil {
		t.Fatal("expected memory limit to be enforced")
	}
}

func TestWazeroEngine_Close(t *testing.T) {
	ctx := context.Background()
	g := rawtest.NewGuest(rawtest.DefaultScenario())
	eng, err := engine.NewWazeroEngine(ctx, g.Binary(), &engine.Config{
		HostModules: []engine.HostModule{g.HostModule()},
		CacheDir:    t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewWazeroEngine: %v", err)
	}

	if err := eng.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := eng.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := eng.NewInstance(ctx); !stderrors.Is(err, errors.ErrUninitialized) {
		t.Errorf("NewInstance after close = %v", err)
	}
}

func TestWazeroMemory_Bounds(t *testing.T) {
	inst := newInstance(t, rawtest.NewGuest(rawtest.DefaultScenario()))
	mem := inst.Memory()

	size := mem.Size()
	if size != 16*65536 {
		t.Fatalf("size = %d", size)
	}
	if err := mem.WriteU32(64, 0xdeadbeef); err != nil {
		t.Fatalf("WriteU32: %v", err)
	}
	if v, err := mem.ReadU32(64); err != nil || v != 0xdeadbeef {
		t.Errorf("ReadU32 = %x, %v", v, err)
	}
	if v, err := mem.ReadU16(64); err != nil || v != 0xbeef {
		t.Errorf("ReadU16 = %x, %v", v, err)
	}
	if _, err := mem.Read(size-2, 4); err == nil {
		t.Error("expected out of bounds read")
	}
	if err := mem.Write(size, []byte{1}); err == nil {
		t.Error("expected out of bounds write")
	}
	if _, err := mem.ReadU32(size - 2); err == nil {
		t.Error("expected out of bounds u32 read")
	}
	if err := mem.WriteU32(size-1, 1); err == nil {
		t.Error("expected out of bounds u32 write")
	}
}
