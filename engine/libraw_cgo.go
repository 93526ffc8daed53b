//go:build cgo && libraw

package engine

// #cgo LDFLAGS: -lraw_r
// #include <stdlib.h>
// #include <libraw/libraw.h>
import "C"

import (
	"context"
	"encoding/binary"
	"unsafe"

	"github.com/wippyai/libraw-wasm/errors"
	"github.com/wippyai/libraw-wasm/params"
)

// Native drives the system LibRaw through its C API.
// Native is NOT thread-safe and should be used by a single goroutine.
type Native struct {
	lr      *C.libraw_data_t
	strings *params.StringStore[unsafe.Pointer]
	input   unsafe.Pointer
	images  map[uint64]*C.libraw_processed_image_t
	nextImg uint64
}

// NewNative creates a LibRaw processor.
func NewNative() (*Native, error) {
	lr := C.libraw_init(0)
	if lr == nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInstantiation).
			Detail("libraw_init returned null").
			Build()
	}
	return &Native{
		lr:      lr,
		strings: params.NewStringStore[unsafe.Pointer](cAllocator{}),
		images:  make(map[uint64]*C.libraw_processed_image_t),
	}, nil
}

type cAllocator struct{}

func (cAllocator) Alloc(_ context.Context, size uint32) (unsafe.Pointer, error) {
	return C.malloc(C.size_t(size)), nil
}

func (cAllocator) Free(_ context.Context, ptr unsafe.Pointer) error {
	C.free(ptr)
	return nil
}

func (cAllocator) Write(ptr unsafe.Pointer, data []byte) error {
	copy(unsafe.Slice((*byte)(ptr), len(data)), data)
	return nil
}

func (n *Native) live() error {
	if n.lr == nil {
		return errors.NotInitialized("native engine", "closed")
	}
	return nil
}

type nativeSetter func(pp *C.libraw_output_params_t, p *params.Params)

var nativeSetters = map[string]nativeSetter{
	"greybox": func(pp *C.libraw_output_params_t, p *params.Params) {
		for i, v := range p.Greybox {
			pp.greybox[i] = C.uint(v)
		}
	},
	"cropbox": func(pp *C.libraw_output_params_t, p *params.Params) {
		for i, v := range p.Cropbox {
			pp.cropbox[i] = C.uint(v)
		}
	},
	"aber": func(pp *C.libraw_output_params_t, p *params.Params) {
		for i, v := range p.Aber {
			pp.aber[i] = C.double(v)
		}
	},
	"gamm": func(pp *C.libraw_output_params_t, p *params.Params) {
		for i, v := range p.Gamm {
			pp.gamm[i] = C.double(v)
		}
	},
	"user_mul": func(pp *C.libraw_output_params_t, p *params.Params) {
		for i, v := range p.UserMul {
			pp.user_mul[i] = C.float(v)
		}
	},
	"user_cblack": func(pp *C.libraw_output_params_t, p *params.Params) {
		for i, v := range p.UserCblack {
			pp.user_cblack[i] = C.int(v)
		}
	},

	"bright":             func(pp *C.libraw_output_params_t, p *params.Params) { pp.bright = C.float(p.Bright) },
	"threshold":          func(pp *C.libraw_output_params_t, p *params.Params) { pp.threshold = C.float(p.Threshold) },
	"auto_bright_thr":    func(pp *C.libraw_output_params_t, p *params.Params) { pp.auto_bright_thr = C.float(p.AutoBrightThr) },
	"adjust_maximum_thr": func(pp *C.libraw_output_params_t, p *params.Params) { pp.adjust_maximum_thr = C.float(p.AdjustMaximumThr) },
	"exp_shift":          func(pp *C.libraw_output_params_t, p *params.Params) { pp.exp_shift = C.float(p.ExpShift) },
	"exp_preser":         func(pp *C.libraw_output_params_t, p *params.Params) { pp.exp_preser = C.float(p.ExpPreser) },

	"half_size":         func(pp *C.libraw_output_params_t, p *params.Params) { pp.half_size = C.int(p.HalfSize) },
	"four_color_rgb":    func(pp *C.libraw_output_params_t, p *params.Params) { pp.four_color_rgb = C.int(p.FourColorRGB) },
	"highlight":         func(pp *C.libraw_output_params_t, p *params.Params) { pp.highlight = C.int(p.Highlight) },
	"use_auto_wb":       func(pp *C.libraw_output_params_t, p *params.Params) { pp.use_auto_wb = C.int(p.UseAutoWB) },
	"use_camera_wb":     func(pp *C.libraw_output_params_t, p *params.Params) { pp.use_camera_wb = C.int(p.UseCameraWB) },
	"use_camera_matrix": func(pp *C.libraw_output_params_t, p *params.Params) { pp.use_camera_matrix = C.int(p.UseCameraMatrix) },
	"output_color":      func(pp *C.libraw_output_params_t, p *params.Params) { pp.output_color = C.int(p.OutputColor) },
	"output_bps":        func(pp *C.libraw_output_params_t, p *params.Params) { pp.output_bps = C.int(p.OutputBPS) },
	"output_tiff":       func(pp *C.libraw_output_params_t, p *params.Params) { pp.output_tiff = C.int(p.OutputTIFF) },
	"output_flags":      func(pp *C.libraw_output_params_t, p *params.Params) { pp.output_flags = C.int(p.OutputFlags) },
	"user_flip":         func(pp *C.libraw_output_params_t, p *params.Params) { pp.user_flip = C.int(p.UserFlip) },
	"user_qual":         func(pp *C.libraw_output_params_t, p *params.Params) { pp.user_qual = C.int(p.UserQual) },
	"user_black":        func(pp *C.libraw_output_params_t, p *params.Params) { pp.user_black = C.int(p.UserBlack) },
	"user_sat":          func(pp *C.libraw_output_params_t, p *params.Params) { pp.user_sat = C.int(p.UserSat) },
	"med_passes":        func(pp *C.libraw_output_params_t, p *params.Params) { pp.med_passes = C.int(p.MedPasses) },
	"no_auto_bright":    func(pp *C.libraw_output_params_t, p *params.Params) { pp.no_auto_bright = C.int(p.NoAutoBright) },
	"use_fuji_rotate":   func(pp *C.libraw_output_params_t, p *params.Params) { pp.use_fuji_rotate = C.int(p.UseFujiRotate) },
	"green_matching":    func(pp *C.libraw_output_params_t, p *params.Params) { pp.green_matching = C.int(p.GreenMatching) },
	"dcb_iterations":    func(pp *C.libraw_output_params_t, p *params.Params) { pp.dcb_iterations = C.int(p.DCBIterations) },
	"dcb_enhance_fl":    func(pp *C.libraw_output_params_t, p *params.Params) { pp.dcb_enhance_fl = C.int(p.DCBEnhanceFl) },
	"fbdd_noiserd":      func(pp *C.libraw_output_params_t, p *params.Params) { pp.fbdd_noiserd = C.int(p.FBDDNoiserd) },
	"exp_correc":        func(pp *C.libraw_output_params_t, p *params.Params) { pp.exp_correc = C.int(p.ExpCorrec) },
	"no_auto_scale":     func(pp *C.libraw_output_params_t, p *params.Params) { pp.no_auto_scale = C.int(p.NoAutoScale) },
	"no_interpolation":  func(pp *C.libraw_output_params_t, p *params.Params) { pp.no_interpolation = C.int(p.NoInterpolation) },
}

// SetParams writes the options named in keys into the processor's
// output params. Options not named keep LibRaw's current values.
func (n *Native) SetParams(ctx context.Context, p *params.Params, keys []string) error {
	if err := n.live(); err != nil {
		return err
	}
	pp := &n.lr.params

	for _, key := range keys {
		if slot, ok := params.SlotFor(key); ok {
			ptr, err := n.strings.Set(ctx, slot, slot.Get(p))
			if err != nil {
				return err
			}
			switch slot {
			case params.SlotOutputProfile:
				pp.output_profile = (*C.char)(ptr)
			case params.SlotCameraProfile:
				pp.camera_profile = (*C.char)(ptr)
			case params.SlotBadPixels:
				pp.bad_pixels = (*C.char)(ptr)
			case params.SlotDarkFrame:
				pp.dark_frame = (*C.char)(ptr)
			}
			continue
		}
		set, ok := nativeSetters[key]
		if !ok {
			return errors.New(errors.PhaseConfigure, errors.KindNotFound).
				Path(key).
				Detail("unknown option").
				Build()
		}
		set(pp, p)
	}
	return nil
}

// OpenBuffer copies data to C memory; LibRaw keeps reading from it until the
// next open or close.
func (n *Native) OpenBuffer(_ context.Context, data []byte) (Status, error) {
	if err := n.live(); err != nil {
		return 0, err
	}
	if n.input != nil {
		C.free(n.input)
		n.input = nil
	}
	if len(data) > 0 {
		n.input = C.CBytes(data)
	}
	rc := C.libraw_open_buffer(n.lr, n.input, C.size_t(len(data)))
	return Status(rc), nil
}

func (n *Native) Unpack(_ context.Context) (Status, error) {
	if err := n.live(); err != nil {
		return 0, err
	}
	return Status(C.libraw_unpack(n.lr)), nil
}

func (n *Native) Process(_ context.Context) (Status, error) {
	if err := n.live(); err != nil {
		return 0, err
	}
	return Status(C.libraw_dcraw_process(n.lr)), nil
}

func (n *Native) State(_ context.Context) (*State, error) {
	if err := n.live(); err != nil {
		return nil, err
	}
	d := n.lr
	return &State{
		Width:       uint32(d.sizes.width),
		Height:      uint32(d.sizes.height),
		RawWidth:    uint32(d.sizes.raw_width),
		RawHeight:   uint32(d.sizes.raw_height),
		TopMargin:   uint32(d.sizes.top_margin),
		LeftMargin:  uint32(d.sizes.left_margin),
		Make:        C.GoString(&d.idata.make[0]),
		Model:       C.GoString(&d.idata.model[0]),
		ISOSpeed:    float32(d.other.iso_speed),
		Shutter:     float32(d.other.shutter),
		Aperture:    float32(d.other.aperture),
		FocalLen:    float32(d.other.focal_len),
		Timestamp:   int64(d.other.timestamp),
		ShotOrder:   uint32(d.other.shot_order),
		Desc:        C.GoString(&d.other.desc[0]),
		Artist:      C.GoString(&d.other.artist[0]),
		ThumbWidth:  uint32(d.thumbnail.twidth),
		ThumbHeight: uint32(d.thumbnail.theight),
		ThumbFormat: int32(d.thumbnail.tformat),
	}, nil
}

func (n *Native) MakeMemImage(_ context.Context) (*ProcessedImage, Status, error) {
	if err := n.live(); err != nil {
		return nil, 0, err
	}
	var errc C.int
	img := C.libraw_dcraw_make_mem_image(n.lr, &errc)
	if img == nil {
		return nil, Status(errc), nil
	}

	n.nextImg++
	n.images[n.nextImg] = img
	return &ProcessedImage{
		Order:    binary.NativeEndian,
		Data:     unsafe.Slice((*byte)(unsafe.Pointer(&img.data[0])), int(img.data_size)),
		Handle:   n.nextImg,
		Type:     int32(img._type),
		DataSize: uint32(img.data_size),
		Height:   uint16(img.height),
		Width:    uint16(img.width),
		Colors:   uint16(img.colors),
		Bits:     uint16(img.bits),
	}, StatusSuccess, nil
}

func (n *Native) ClearMem(_ context.Context, img *ProcessedImage) error {
	if img == nil || img.Handle == 0 {
		return nil
	}
	ptr, ok := n.images[img.Handle]
	if !ok {
		return nil
	}
	delete(n.images, img.Handle)
	img.Handle = 0
	img.Data = nil
	C.libraw_dcraw_clear_mem(ptr)
	return nil
}

// Close releases every C allocation and the processor. Close is idempotent.
func (n *Native) Close(ctx context.Context) error {
	if n.lr == nil {
		return nil
	}
	for h, img := range n.images {
		C.libraw_dcraw_clear_mem(img)
		delete(n.images, h)
	}
	err := n.strings.ReleaseAll(ctx)
	pp := &n.lr.params
	pp.output_profile, pp.camera_profile, pp.bad_pixels, pp.dark_frame = nil, nil, nil, nil

	C.libraw_close(n.lr)
	n.lr = nil
	if n.input != nil {
		C.free(n.input)
		n.input = nil
	}
	return err
}

var _ Engine = (*Native)(nil)
