package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/libraw-wasm/errors"
)

// HostModule instantiates a host module the LibRaw build imports, such as
// emscripten's "env" stubs.
type HostModule func(ctx context.Context, r wazero.Runtime) error

// Config holds configuration for engine creation
type Config struct {
	// CacheDir enables the on-disk compilation cache when non-empty.
	CacheDir string

	// MountDir is preopened as "/" so path options (dark_frame, bad_pixels,
	// profiles) resolve inside the guest. Empty means no filesystem.
	MountDir string

	// HostModules are instantiated before the LibRaw module is linked.
	HostModules []HostModule

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32
}

// WazeroEngine holds a compiled LibRaw module. Instances created from it
// share the compiled code but nothing else.
type WazeroEngine struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled wazero.CompiledModule
	modCfg   wazero.ModuleConfig
	closed   atomic.Bool

	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// NewWazeroEngine compiles wasm and links its host dependencies.
func NewWazeroEngine(ctx context.Context, wasm []byte, cfg *Config) (*WazeroEngine, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	var cache wazero.CompilationCache
	if cfg.CacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CacheDir)
		if err != nil {
			return nil, errors.Load("open compilation cache", err)
		}
		cache = c
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	e := &WazeroEngine{runtime: r, cache: cache}

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		_ = e.Close(ctx)
		return nil, errors.Load("compile engine module", err)
	}
	e.compiled = compiled

	if err := checkExports(compiled); err != nil {
		_ = e.Close(ctx)
		return nil, err
	}

	for _, hm := range cfg.HostModules {
		if err := hm(ctx, r); err != nil {
			_ = e.Close(ctx)
			return nil, errors.Load("instantiate host module", err)
		}
	}
	if err := e.linkImports(ctx); err != nil {
		_ = e.Close(ctx)
		return nil, err
	}

	modCfg := wazero.NewModuleConfig().
		WithName(""). // anonymous for parallel instantiation
		WithStartFunctions("_initialize")
	if cfg.MountDir != "" {
		modCfg = modCfg.WithFSConfig(wazero.NewFSConfig().WithDirMount(cfg.MountDir, "/"))
	}
	e.modCfg = modCfg

	Logger().Debug("engine module compiled",
		zap.Int("bytes", len(wasm)),
		zap.Int("imports", len(compiled.ImportedFunctions())),
		zap.Bool("cached", cache != nil))

	return e, nil
}

// linkImports satisfies WASI and emscripten imports the caller did not provide.
func (e *WazeroEngine) linkImports(ctx context.Context) error {
	var needsWASI bool
	var envFuncs []api.FunctionDefinition
	for _, def := range e.compiled.ImportedFunctions() {
		module, _, _ := def.Import()
		switch module {
		case wasiModuleName:
			needsWASI = true
		case emscriptenEnvModule:
			envFuncs = append(envFuncs, def)
		}
	}

	if needsWASI {
		if err := e.InitWASI(ctx); err != nil {
			return err
		}
	}
	if len(envFuncs) > 0 && e.runtime.Module(emscriptenEnvModule) == nil {
		if err := instantiateEmscriptenEnv(ctx, e.runtime, envFuncs); err != nil {
			return errors.Load("instantiate env stubs", err)
		}
	}
	return nil
}

// InitWASI instantiates the WASI singleton for this engine's runtime.
// Safe for concurrent calls.
func (e *WazeroEngine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}

	if e.runtime.Module(wasiModuleName) != nil {
		e.wasiInitDone.Store(true)
		return nil
	}

	if _, err := InstantiateWASI(ctx, e.runtime); err != nil {
		if e.runtime.Module(wasiModuleName) == nil {
			return errors.Load("instantiate WASI", err)
		}
	}

	e.wasiInitDone.Store(true)
	return nil
}

// NewInstance creates a fresh LibRaw processor in its own module instance.
func (e *WazeroEngine) NewInstance(ctx context.Context) (*Instance, error) {
	if e.closed.Load() {
		return nil, errors.NotInitialized("engine", "closed")
	}

	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, e.modCfg)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	inst, err := newInstance(ctx, mod)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}
	return inst, nil
}

// Runtime exposes the underlying wazero runtime.
func (e *WazeroEngine) Runtime() wazero.Runtime {
	return e.runtime
}

// Close releases the runtime and every instance created from it.
func (e *WazeroEngine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		if cerr := e.cache.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
