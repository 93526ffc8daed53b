// Package librawwasm hosts a WebAssembly build of LibRaw and exposes raw photo
// decoding to Go callers.
//
// The library is a marshalling and lifecycle layer: it turns an encoded raw
// file plus a sparse set of decode options into engine parameters, drives the
// engine through open → unpack → process, and hands back a metadata record and
// the decoded pixels. The demosaicing and colour pipeline belong to LibRaw.
//
// # Architecture Overview
//
//	librawwasm/        Root package with the engine Memory interface
//	├── runtime/       High-level API: load the engine once, create decoders
//	├── decoder/       Decode pipeline state machine, metadata, image export
//	├── engine/        Engine adapter interface, wazero and cgo backends
//	├── params/        Decode parameters, option table, string slots
//	├── buffer/        Host input to owned byte buffers
//	└── errors/        Structured error types
//
// # Quick Start
//
//	rt, err := runtime.LoadFile(ctx, "libraw.wasm", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	res, err := rt.Decode(ctx, rawBytes, params.Request{
//	    "use_camera_wb": 1,
//	    "output_bps":    16,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Metadata.CameraMake, res.Image.Width, res.Image.Height)
//
// # Thread Safety
//
// Runtime is safe for concurrent use. A Decoder is NOT: the engine state is
// mutated by every call, so one decoder must be used by a single goroutine or
// access must be serialized by the caller. Decoders do no internal locking.
//
// # Memory Model
//
// Images returned by Decoder.ImageData are owned copies. Decoder.WithView
// exposes engine memory directly; the view is only valid inside the callback
// because the engine buffer is released when the callback returns.
package librawwasm
