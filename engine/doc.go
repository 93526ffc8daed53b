// Package engine adapts LibRaw to the Engine interface the decoder drives.
//
// Two backends are provided:
//
//	WazeroEngine / Instance - LibRaw compiled to a wasm32 core module, run by wazero
//	Native                  - the system LibRaw through cgo (build tag "libraw")
//
// # WASM Backend
//
// The guest is a thin C shim around LibRaw's C API. It exports its linear
// memory, malloc/free and flat wrappers for the pipeline calls:
//
//	libraw_init(flags) -> handle
//	libraw_open_buffer(h, ptr, size) -> status
//	libraw_unpack(h) -> status
//	libraw_dcraw_process(h) -> status
//	libraw_dcraw_make_mem_image(h, errc_ptr) -> image ptr
//	libraw_dcraw_clear_mem(image)
//	libraw_set_param_{i32,f32,f64}(h, key_ptr, key_len, index, value) -> rc
//	libraw_set_param_str(h, key_ptr, key_len, str_ptr) -> rc
//	libraw_get_state(h, out_ptr) -> status
//	libraw_close(h)
//
// WazeroEngine compiles the module once. NewInstance instantiates a fresh
// anonymous copy per decoder, so processors never share memory. WASI preview1
// and emscripten "env" imports are satisfied automatically unless a host
// module for them was supplied through Config.HostModules.
//
// String options are copied into guest allocations owned by the instance and
// released on replacement and on Close.
//
// # Memory Layout
//
// libraw_processed_image_t (wasm32):
//
//	offset  field
//	0       type       i32
//	4       height     u16
//	6       width      u16
//	8       colors     u16
//	10      bits       u16
//	12      data_size  u32
//	16      data       [data_size]u8
//
// The state record written by libraw_get_state is described by
// DecodeState and EncodeState.
//
// # Thread Safety
//
// WazeroEngine is safe for concurrent use.
// Instance and Native are NOT thread-safe and should be used by a single goroutine.
package engine
