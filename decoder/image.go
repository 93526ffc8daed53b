package decoder

import (
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"io"
	"strconv"
	"unsafe"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"go.uber.org/zap"

	"github.com/wippyai/libraw-wasm/engine"
	"github.com/wippyai/libraw-wasm/errors"
)

// Image is an owned copy of the processed image. Exactly one of Pix8 and
// Pix16 is set, according to Bits. Samples are interleaved per pixel, rows
// top to bottom.
type Image struct {
	Pix8   []uint8
	Pix16  []uint16
	Width  int
	Height int
	Colors int
	Bits   int
}

// Len returns the number of samples (width*height*colors).
func (img *Image) Len() int {
	if img.Bits == 16 {
		return len(img.Pix16)
	}
	return len(img.Pix8)
}

// ToImage converts a 1 or 3 channel image to the matching image.Image.
func (img *Image) ToImage() (image.Image, error) {
	r := image.Rect(0, 0, img.Width, img.Height)
	n := img.Width * img.Height
	switch {
	case img.Colors == 1 && img.Bits == 8:
		g := image.NewGray(r)
		copy(g.Pix, img.Pix8)
		return g, nil
	case img.Colors == 1 && img.Bits == 16:
		g := image.NewGray16(r)
		for i, v := range img.Pix16[:n] {
			g.Pix[2*i] = uint8(v >> 8)
			g.Pix[2*i+1] = uint8(v)
		}
		return g, nil
	case img.Colors == 3 && img.Bits == 8:
		m := image.NewRGBA(r)
		for i := 0; i < n; i++ {
			s := img.Pix8[3*i : 3*i+3]
			m.SetRGBA(i%img.Width, i/img.Width, color.RGBA{R: s[0], G: s[1], B: s[2], A: 0xff})
		}
		return m, nil
	case img.Colors == 3 && img.Bits == 16:
		m := image.NewRGBA64(r)
		for i := 0; i < n; i++ {
			s := img.Pix16[3*i : 3*i+3]
			m.SetRGBA64(i%img.Width, i/img.Width, color.RGBA64{R: s[0], G: s[1], B: s[2], A: 0xffff})
		}
		return m, nil
	default:
		return nil, errors.Unsupported(errors.PhaseExport,
			strconv.Itoa(img.Colors)+" channel "+strconv.Itoa(img.Bits)+"-bit image conversion")
	}
}

// EncodeTIFF writes the image as a baseline TIFF. A nil opt writes it
// uncompressed.
func (img *Image) EncodeTIFF(w io.Writer, opt *tiff.Options) error {
	m, err := img.ToImage()
	if err != nil {
		return err
	}
	if err := tiff.Encode(w, m, opt); err != nil {
		return errors.Wrap(errors.PhaseExport, errors.KindInvalidData, err, "encode tiff")
	}
	return nil
}

// Preview scales the image so its longer side is at most maxSide pixels.
// A nil interp uses bilinear filtering. Images already within bounds are
// converted without scaling.
func (img *Image) Preview(maxSide int, interp xdraw.Interpolator) (image.Image, error) {
	if maxSide <= 0 {
		return nil, errors.InvalidInput(errors.PhaseExport, "preview size must be positive")
	}
	src, err := img.ToImage()
	if err != nil {
		return nil, err
	}
	w, h := img.Width, img.Height
	if w <= maxSide && h <= maxSide {
		return src, nil
	}
	if w >= h {
		h = max(1, h*maxSide/w)
		w = maxSide
	} else {
		w = max(1, w*maxSide/h)
		h = maxSide
	}
	if interp == nil {
		interp = xdraw.BiLinear
	}
	dst := image.NewRGBA64(image.Rect(0, 0, w, h))
	interp.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst, nil
}

// View is a zero-copy window onto the engine's image buffer. It is valid
// only during the WithView callback that received it.
type View struct {
	order  binary.ByteOrder
	data   []byte
	Width  int
	Height int
	Colors int
	Bits   int
	n      int
}

// Len returns the number of samples.
func (v View) Len() int { return v.n }

// Bytes returns the raw sample bytes.
func (v View) Bytes() []byte { return v.data }

// Uint8 returns the samples of an 8-bit image, nil otherwise.
func (v View) Uint8() []uint8 {
	if v.Bits != 8 {
		return nil
	}
	return v.data
}

// Uint16 returns the samples of a 16-bit image, nil otherwise. The result
// aliases engine memory when the engine byte order matches the host and the
// buffer is aligned; otherwise it is decoded into a new slice.
func (v View) Uint16() []uint16 {
	if v.Bits != 16 || v.n == 0 {
		return nil
	}
	if sameOrder(v.order) && uintptr(unsafe.Pointer(&v.data[0]))%2 == 0 {
		return unsafe.Slice((*uint16)(unsafe.Pointer(&v.data[0])), v.n)
	}
	out := make([]uint16, v.n)
	for i := range out {
		out[i] = v.order.Uint16(v.data[2*i:])
	}
	return out
}

func sameOrder(o binary.ByteOrder) bool {
	sample := []byte{1, 0}
	return o.Uint16(sample) == binary.NativeEndian.Uint16(sample)
}

// Copy returns an owned Image holding the view's samples.
func (v View) Copy() *Image {
	out := &Image{Width: v.Width, Height: v.Height, Colors: v.Colors, Bits: v.Bits}
	if v.Bits == 8 {
		out.Pix8 = make([]uint8, v.n)
		copy(out.Pix8, v.data)
		return out
	}
	out.Pix16 = make([]uint16, v.n)
	for i := range out.Pix16 {
		out.Pix16[i] = v.order.Uint16(v.data[2*i:])
	}
	return out
}

// ImageData renders the processed image and returns an owned copy. The engine
// buffer is released before ImageData returns.
func (d *Decoder) ImageData(ctx context.Context) (*Image, error) {
	var out *Image
	err := d.WithView(ctx, func(v View) error {
		out = v.Copy()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WithView renders the processed image and calls fn with a zero-copy view of
// it. The engine buffer is released when fn returns, on every path; fn must
// not retain the view or any slice obtained from it.
func (d *Decoder) WithView(ctx context.Context, fn func(View) error) (err error) {
	if err := d.ready("image"); err != nil {
		return err
	}
	img, status, err := d.eng.MakeMemImage(ctx)
	if err != nil {
		return err
	}
	if img == nil {
		d.log.Debug("no image", zap.Int32("status", int32(status)))
		return errors.NoData(int32(status))
	}
	defer func() {
		if cerr := d.eng.ClearMem(ctx, img); cerr != nil && err == nil {
			err = cerr
		}
	}()

	v, err := viewOf(img)
	if err != nil {
		return err
	}
	d.log.Debug("image",
		zap.Int("width", v.Width),
		zap.Int("height", v.Height),
		zap.Int("colors", v.Colors),
		zap.Int("bits", v.Bits))
	return fn(v)
}

func viewOf(img *engine.ProcessedImage) (View, error) {
	if img.Type == engine.ImageJPEG {
		return View{}, errors.Unsupported(errors.PhaseExport, "jpeg image from engine")
	}
	if img.Bits != 8 && img.Bits != 16 {
		return View{}, errors.UnsupportedBitDepth(int(img.Bits))
	}

	count := int64(img.Height) * int64(img.Width) * int64(img.Colors)
	size := count * int64(img.Bits/8)
	if size > int64(img.DataSize) || size > int64(len(img.Data)) {
		return View{}, errors.InvalidData(errors.PhaseExport, nil,
			"image of "+strconv.FormatInt(size, 10)+" bytes exceeds engine buffer of "+
				strconv.FormatUint(uint64(img.DataSize), 10))
	}

	order := img.Order
	if order == nil {
		order = binary.LittleEndian
	}
	return View{
		order:  order,
		data:   img.Data[:size:size],
		Width:  int(img.Width),
		Height: int(img.Height),
		Colors: int(img.Colors),
		Bits:   int(img.Bits),
		n:      int(count),
	}, nil
}
