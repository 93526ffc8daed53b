// Package runtime provides the high-level API for decoding camera raw files
// with a WebAssembly build of LibRaw.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.LoadFile(ctx, "libraw.wasm", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	res, err := rt.DecodeFile(ctx, "IMG_0001.CR3", params.Request{
//	    "use_camera_wb": 1,
//	    "output_bps":    16,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Metadata.CameraModel, res.Image.Width, res.Image.Height)
//
// The module is compiled once per Runtime. Every decode gets its own
// instance, so decoders never share engine state and a Runtime can serve
// concurrent decodes. A single decoder is not safe for concurrent use.
//
// # Step-by-step decoding
//
// NewDecoder returns a decoder.Decoder for callers that want metadata without
// rendering the image, or a zero-copy view of the pixels:
//
//	d, err := rt.NewDecoder(ctx)
//	if err != nil {
//	    return err
//	}
//	defer d.Close(ctx)
//
//	if err := d.Open(ctx, raw, nil); err != nil {
//	    return err
//	}
//	meta, err := d.Metadata(ctx)
//
// # Imports
//
// A LibRaw build may import WASI preview1 and emscripten's "env" module.
// WASI is linked automatically. Unregistered "env" imports are stubbed and
// trap when called. Real implementations are supplied through a
// HostRegistry:
//
//	hosts := runtime.NewHostRegistry()
//	hosts.RegisterFunc("env", "emscripten_notify_memory_growth", func(idx uint32) {})
//	cfg := runtime.DefaultConfig()
//	cfg.Hosts = hosts
//
// Once a registry provides "env", no stubs are generated and the registry
// must cover every "env" import.
//
// # Configuration
//
// Config carries the memory limit, input size limit, compilation cache and
// the directory exposed to the guest for path options. LoadConfig reads the
// same settings from YAML.
package runtime
