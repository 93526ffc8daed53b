package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
)

// InstantiateWASI instantiates WASI preview1 for LibRaw builds that use libc
// file and clock functions.
func InstantiateWASI(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(wasiModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	return builder.Instantiate(ctx)
}

// instantiateEmscriptenEnv satisfies emscripten's "env" imports. Memory growth
// notifications are accepted; any other stub traps when called.
func instantiateEmscriptenEnv(ctx context.Context, r wazero.Runtime, defs []api.FunctionDefinition) error {
	builder := r.NewHostModuleBuilder(emscriptenEnvModule)
	for _, def := range defs {
		_, name, _ := def.Import()

		var fn api.GoModuleFunc
		if name == "emscripten_notify_memory_growth" {
			fn = func(_ context.Context, _ api.Module, _ []uint64) {}
		} else {
			fn = unsupportedImport(name)
		}
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(fn, def.ParamTypes(), def.ResultTypes()).
			Export(name)
	}
	_, err := builder.Instantiate(ctx)
	return err
}

func unsupportedImport(name string) api.GoModuleFunc {
	return func(_ context.Context, _ api.Module, _ []uint64) {
		Logger().Warn("guest called unsupported import", zap.String("import", name))
		panic(fmt.Errorf("env.%s is not supported by the host", name))
	}
}
