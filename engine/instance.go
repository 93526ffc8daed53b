package engine

import (
	"context"
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	librawwasm "github.com/wippyai/libraw-wasm"
	"github.com/wippyai/libraw-wasm/errors"
	"github.com/wippyai/libraw-wasm/params"
)

// scratch region layout, allocated once per instance
const (
	scratchState = 0
	scratchErrc  = StateRecordSize
	scratchKeys  = StateRecordSize + 8
)

// Instance is one LibRaw processor living in its own guest module.
// Instance is NOT thread-safe and should be used by a single goroutine.
type Instance struct {
	mod     api.Module
	mem     librawwasm.Memory
	fns     map[string]api.Function
	strings *params.StringStore[uint32]
	keys    map[string]keyRef

	handle  uint32
	scratch uint32
	input   uint32
	closed  bool
}

type keyRef struct {
	ptr uint32
	len uint32
}

func newInstance(ctx context.Context, mod api.Module) (*Instance, error) {
	mem := mod.Memory()
	if mem == nil {
		return nil, errors.NewMissingExportsError([]string{ExportMemory})
	}

	inst := &Instance{
		mod:  mod,
		mem:  NewWazeroMemory(mem),
		fns:  make(map[string]api.Function, len(exportSignatures)),
		keys: make(map[string]keyRef, len(params.Fields)),
	}

	var missing []string
	for _, name := range ExportNames() {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			missing = append(missing, name)
			continue
		}
		inst.fns[name] = fn
	}
	if len(missing) > 0 {
		return nil, errors.NewMissingExportsError(missing)
	}
	inst.strings = params.NewStringStore[uint32](guestAllocator{inst})

	if err := inst.initScratch(ctx); err != nil {
		return nil, err
	}

	h, err := inst.call(ctx, ExportInit, 0)
	if err != nil {
		return nil, err
	}
	if h == 0 {
		_ = inst.free(ctx, inst.scratch)
		return nil, errors.New(errors.PhaseRuntime, errors.KindInstantiation).
			Detail("libraw_init returned null").
			Build()
	}
	inst.handle = uint32(h)

	Logger().Debug("engine instance created", zap.Uint32("handle", inst.handle), zap.Uint32("memory", inst.mem.Size()))
	return inst, nil
}

// initScratch allocates the state record, the errc slot and every option key.
func (i *Instance) initScratch(ctx context.Context) error {
	size := uint32(scratchKeys)
	for _, f := range params.Fields {
		size += uint32(len(f.Key))
	}

	ptr, err := i.malloc(ctx, size)
	if err != nil {
		return err
	}
	i.scratch = ptr

	off := ptr + scratchKeys
	for _, f := range params.Fields {
		if err := i.mem.Write(off, []byte(f.Key)); err != nil {
			return err
		}
		i.keys[f.Key] = keyRef{ptr: off, len: uint32(len(f.Key))}
		off += uint32(len(f.Key))
	}
	return nil
}

// Module exposes the guest module.
func (i *Instance) Module() api.Module {
	return i.mod
}

// Memory exposes the guest linear memory.
func (i *Instance) Memory() librawwasm.Memory {
	return i.mem
}

func (i *Instance) call(ctx context.Context, name string, args ...uint64) (uint64, error) {
	fn := i.fns[name]
	if fn == nil {
		return 0, errors.NotFound(errors.PhaseRuntime, "export", name)
	}
	res, err := fn.Call(ctx, args...)
	if err != nil {
		return 0, errors.Trap(name, err)
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0], nil
}

func (i *Instance) malloc(ctx context.Context, size uint32) (uint32, error) {
	ptr, err := i.call(ctx, ExportMalloc, uint64(size))
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, err)
	}
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseRuntime, size, nil)
	}
	return uint32(ptr), nil
}

func (i *Instance) free(ctx context.Context, ptr uint32) error {
	if ptr == 0 {
		return nil
	}
	_, err := i.call(ctx, ExportFree, uint64(ptr))
	return err
}

func (i *Instance) live() error {
	if i.closed {
		return errors.NotInitialized("engine instance", "closed")
	}
	return nil
}

// SetParams pushes the options named in keys from p into the processor.
// String options are copied into guest allocations owned by the instance.
func (i *Instance) SetParams(ctx context.Context, p *params.Params, keys []string) error {
	if err := i.live(); err != nil {
		return err
	}

	for _, key := range keys {
		f, ok := params.Lookup(key)
		if !ok {
			return errors.New(errors.PhaseConfigure, errors.KindNotFound).
				Path(key).
				Detail("unknown option").
				Build()
		}
		var err error
		switch v := f.Ref(p).(type) {
		case *int32:
			err = i.setI32(ctx, key, 0, *v)
		case *float32:
			err = i.setF32(ctx, key, 0, *v)
		case *[4]int32:
			for idx, e := range v {
				if err = i.setI32(ctx, key, idx, e); err != nil {
					break
				}
			}
		case *[4]uint32:
			for idx, e := range v {
				if err = i.setI32(ctx, key, idx, int32(e)); err != nil {
					break
				}
			}
		case *[4]float32:
			for idx, e := range v {
				if err = i.setF32(ctx, key, idx, e); err != nil {
					break
				}
			}
		case *[4]float64:
			for idx, e := range v {
				if err = i.setF64(ctx, key, idx, e); err != nil {
					break
				}
			}
		case *[6]float64:
			for idx, e := range v {
				if err = i.setF64(ctx, key, idx, e); err != nil {
					break
				}
			}
		case *string:
			slot, _ := params.SlotFor(key)
			err = i.setStr(ctx, slot, *v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (i *Instance) setStr(ctx context.Context, slot params.Slot, v string) error {
	ptr, err := i.strings.Set(ctx, slot, v)
	if err != nil {
		return err
	}
	k := i.keys[slot.Key()]
	rc, err := i.call(ctx, ExportSetParamStr, uint64(i.handle), uint64(k.ptr), uint64(k.len), uint64(ptr))
	if err != nil {
		return err
	}
	return checkSet(slot.Key(), rc)
}

func (i *Instance) setI32(ctx context.Context, key string, idx int, v int32) error {
	k := i.keys[key]
	rc, err := i.call(ctx, ExportSetParamI32, uint64(i.handle), uint64(k.ptr), uint64(k.len), uint64(idx), api.EncodeI32(v))
	if err != nil {
		return err
	}
	return checkSet(key, rc)
}

func (i *Instance) setF32(ctx context.Context, key string, idx int, v float32) error {
	k := i.keys[key]
	rc, err := i.call(ctx, ExportSetParamF32, uint64(i.handle), uint64(k.ptr), uint64(k.len), uint64(idx), api.EncodeF32(v))
	if err != nil {
		return err
	}
	return checkSet(key, rc)
}

func (i *Instance) setF64(ctx context.Context, key string, idx int, v float64) error {
	k := i.keys[key]
	rc, err := i.call(ctx, ExportSetParamF64, uint64(i.handle), uint64(k.ptr), uint64(k.len), uint64(idx), api.EncodeF64(v))
	if err != nil {
		return err
	}
	return checkSet(key, rc)
}

func checkSet(key string, rc uint64) error {
	if int32(rc) != 0 {
		return errors.New(errors.PhaseConfigure, errors.KindNotFound).
			Path(key).
			Value(int32(rc)).
			Detail("engine rejected option").
			Build()
	}
	return nil
}

// OpenBuffer copies data into the guest and opens it. The copy stays alive
// until the next OpenBuffer or Close.
func (i *Instance) OpenBuffer(ctx context.Context, data []byte) (Status, error) {
	if err := i.live(); err != nil {
		return 0, err
	}
	if err := i.free(ctx, i.input); err != nil {
		return 0, err
	}
	i.input = 0

	var ptr uint32
	if len(data) > 0 {
		p, err := i.malloc(ctx, uint32(len(data)))
		if err != nil {
			return 0, err
		}
		if err := i.mem.Write(p, data); err != nil {
			_ = i.free(ctx, p)
			return 0, err
		}
		ptr = p
		i.input = p
	}

	rc, err := i.call(ctx, ExportOpenBuffer, uint64(i.handle), uint64(ptr), uint64(len(data)))
	if err != nil {
		return 0, err
	}
	return Status(int32(rc)), nil
}

func (i *Instance) Unpack(ctx context.Context) (Status, error) {
	return i.stage(ctx, ExportUnpack)
}

func (i *Instance) Process(ctx context.Context) (Status, error) {
	return i.stage(ctx, ExportProcess)
}

func (i *Instance) stage(ctx context.Context, name string) (Status, error) {
	if err := i.live(); err != nil {
		return 0, err
	}
	rc, err := i.call(ctx, name, uint64(i.handle))
	if err != nil {
		return 0, err
	}
	return Status(int32(rc)), nil
}

// State reads the decoded-image fields through libraw_get_state.
func (i *Instance) State(ctx context.Context) (*State, error) {
	if err := i.live(); err != nil {
		return nil, err
	}
	out := i.scratch + scratchState
	rc, err := i.call(ctx, ExportGetState, uint64(i.handle), uint64(out))
	if err != nil {
		return nil, err
	}
	if st := Status(int32(rc)); !st.OK() {
		return nil, errors.New(errors.PhaseState, errors.KindInvalidState).
			Value(int32(rc)).
			Detail("libraw_get_state: %s", st).
			Build()
	}
	raw, err := i.mem.Read(out, StateRecordSize)
	if err != nil {
		return nil, err
	}
	return DecodeState(raw)
}

// MakeMemImage renders the processed image inside guest memory.
func (i *Instance) MakeMemImage(ctx context.Context) (*ProcessedImage, Status, error) {
	if err := i.live(); err != nil {
		return nil, 0, err
	}
	errc := i.scratch + scratchErrc
	if err := i.mem.WriteU32(errc, 0); err != nil {
		return nil, 0, err
	}

	ptr, err := i.call(ctx, ExportMakeMemImage, uint64(i.handle), uint64(errc))
	if err != nil {
		return nil, 0, err
	}
	if ptr == 0 {
		code, err := i.mem.ReadU32(errc)
		if err != nil {
			return nil, 0, err
		}
		return nil, Status(int32(code)), nil
	}

	img, err := i.readImage(uint32(ptr))
	if err != nil {
		_, _ = i.call(ctx, ExportClearMem, ptr)
		return nil, 0, err
	}
	return img, StatusSuccess, nil
}

func (i *Instance) readImage(ptr uint32) (*ProcessedImage, error) {
	img, err := readImageHeader(i.mem, ptr)
	if err != nil {
		return nil, err
	}
	data, err := i.mem.Read(ptr+ImageHeaderSize, img.DataSize)
	if err != nil {
		return nil, err
	}
	img.Data = data
	return img, nil
}

// readImageHeader decodes the libraw_processed_image_t header at ptr.
func readImageHeader(m librawwasm.Memory, ptr uint32) (*ProcessedImage, error) {
	if _, err := m.Read(ptr, ImageHeaderSize); err != nil {
		return nil, err
	}
	// fields lie inside the checked header
	typ, _ := m.ReadU32(ptr + ImageTypeOffset)
	height, _ := m.ReadU16(ptr + ImageHeightOffset)
	width, _ := m.ReadU16(ptr + ImageWidthOffset)
	colors, _ := m.ReadU16(ptr + ImageColorsOffset)
	bits, _ := m.ReadU16(ptr + ImageBitsOffset)
	size, _ := m.ReadU32(ptr + ImageDataSizeOffset)
	return &ProcessedImage{
		Order:    binary.LittleEndian,
		Handle:   uint64(ptr),
		Type:     int32(typ),
		Height:   height,
		Width:    width,
		Colors:   colors,
		Bits:     bits,
		DataSize: size,
	}, nil
}

// ClearMem releases an image returned by MakeMemImage. Clearing the same
// image twice is a no-op.
func (i *Instance) ClearMem(ctx context.Context, img *ProcessedImage) error {
	if img == nil || img.Handle == 0 {
		return nil
	}
	if err := i.live(); err != nil {
		return err
	}
	handle := img.Handle
	img.Handle = 0
	img.Data = nil
	_, err := i.call(ctx, ExportClearMem, handle)
	return err
}

// Close frees string options, the input copy and the processor, then
// closes the guest module. Close is idempotent.
func (i *Instance) Close(ctx context.Context) error {
	if i.closed {
		return nil
	}
	i.closed = true

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(i.strings.ReleaseAll(ctx))
	keep(i.free(ctx, i.input))
	i.input = 0
	if i.handle != 0 {
		_, err := i.call(ctx, ExportClose, uint64(i.handle))
		keep(err)
		i.handle = 0
	}
	keep(i.free(ctx, i.scratch))
	i.scratch = 0
	keep(i.mod.Close(ctx))

	Logger().Debug("engine instance closed", zap.Error(firstErr))
	return firstErr
}

// LiveStrings reports how many string options hold guest allocations.
func (i *Instance) LiveStrings() int {
	return i.strings.Live()
}

var _ Engine = (*Instance)(nil)
