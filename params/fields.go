package params

// Kind is the element type of a parameter as the engine stores it.
type Kind uint8

const (
	KindInt32 Kind = iota
	KindUint32
	KindFloat32
	KindFloat64
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "i32"
	case KindUint32:
		return "u32"
	case KindFloat32:
		return "f32"
	case KindFloat64:
		return "f64"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Field binds a request key to its destination in Params.
type Field struct {
	ref func(p *Params) any
	Key string
}

// Ref returns a pointer to the field's storage in p: *int32, *float32,
// *string or a pointer to a fixed-length array.
func (f Field) Ref(p *Params) any {
	return f.ref(p)
}

// Kind reports the element kind of the destination.
func (f Field) Kind() Kind {
	switch f.ref(&Params{}).(type) {
	case *int32, *[4]int32:
		return KindInt32
	case *[4]uint32:
		return KindUint32
	case *float32, *[4]float32:
		return KindFloat32
	case *[4]float64, *[6]float64:
		return KindFloat64
	default:
		return KindString
	}
}

// Len is the fixed array length, or 0 for scalars.
func (f Field) Len() int {
	switch f.ref(&Params{}).(type) {
	case *[4]int32, *[4]uint32, *[4]float32, *[4]float64:
		return 4
	case *[6]float64:
		return 6
	default:
		return 0
	}
}

// Fields lists every recognized request key.
var Fields = []Field{
	{Key: "greybox", ref: func(p *Params) any { return &p.Greybox }},
	{Key: "cropbox", ref: func(p *Params) any { return &p.Cropbox }},
	{Key: "aber", ref: func(p *Params) any { return &p.Aber }},
	{Key: "gamm", ref: func(p *Params) any { return &p.Gamm }},
	{Key: "user_mul", ref: func(p *Params) any { return &p.UserMul }},
	{Key: "user_cblack", ref: func(p *Params) any { return &p.UserCblack }},

	{Key: "bright", ref: func(p *Params) any { return &p.Bright }},
	{Key: "threshold", ref: func(p *Params) any { return &p.Threshold }},
	{Key: "auto_bright_thr", ref: func(p *Params) any { return &p.AutoBrightThr }},
	{Key: "adjust_maximum_thr", ref: func(p *Params) any { return &p.AdjustMaximumThr }},
	{Key: "exp_shift", ref: func(p *Params) any { return &p.ExpShift }},
	{Key: "exp_preser", ref: func(p *Params) any { return &p.ExpPreser }},

	{Key: "half_size", ref: func(p *Params) any { return &p.HalfSize }},
	{Key: "four_color_rgb", ref: func(p *Params) any { return &p.FourColorRGB }},
	{Key: "highlight", ref: func(p *Params) any { return &p.Highlight }},
	{Key: "use_auto_wb", ref: func(p *Params) any { return &p.UseAutoWB }},
	{Key: "use_camera_wb", ref: func(p *Params) any { return &p.UseCameraWB }},
	{Key: "use_camera_matrix", ref: func(p *Params) any { return &p.UseCameraMatrix }},
	{Key: "output_color", ref: func(p *Params) any { return &p.OutputColor }},
	{Key: "output_bps", ref: func(p *Params) any { return &p.OutputBPS }},
	{Key: "output_tiff", ref: func(p *Params) any { return &p.OutputTIFF }},
	{Key: "output_flags", ref: func(p *Params) any { return &p.OutputFlags }},
	{Key: "user_flip", ref: func(p *Params) any { return &p.UserFlip }},
	{Key: "user_qual", ref: func(p *Params) any { return &p.UserQual }},
	{Key: "user_black", ref: func(p *Params) any { return &p.UserBlack }},
	{Key: "user_sat", ref: func(p *Params) any { return &p.UserSat }},
	{Key: "med_passes", ref: func(p *Params) any { return &p.MedPasses }},
	{Key: "no_auto_bright", ref: func(p *Params) any { return &p.NoAutoBright }},
	{Key: "use_fuji_rotate", ref: func(p *Params) any { return &p.UseFujiRotate }},
	{Key: "green_matching", ref: func(p *Params) any { return &p.GreenMatching }},
	{Key: "dcb_iterations", ref: func(p *Params) any { return &p.DCBIterations }},
	{Key: "dcb_enhance_fl", ref: func(p *Params) any { return &p.DCBEnhanceFl }},
	{Key: "fbdd_noiserd", ref: func(p *Params) any { return &p.FBDDNoiserd }},
	{Key: "exp_correc", ref: func(p *Params) any { return &p.ExpCorrec }},
	{Key: "no_auto_scale", ref: func(p *Params) any { return &p.NoAutoScale }},
	{Key: "no_interpolation", ref: func(p *Params) any { return &p.NoInterpolation }},

	{Key: "output_profile", ref: func(p *Params) any { return &p.OutputProfile }},
	{Key: "camera_profile", ref: func(p *Params) any { return &p.CameraProfile }},
	{Key: "bad_pixels", ref: func(p *Params) any { return &p.BadPixels }},
	{Key: "dark_frame", ref: func(p *Params) any { return &p.DarkFrame }},
}

var fieldIndex = func() map[string]int {
	m := make(map[string]int, len(Fields))
	for i, f := range Fields {
		m[f.Key] = i
	}
	return m
}()

// Lookup returns the field registered under key.
func Lookup(key string) (Field, bool) {
	i, ok := fieldIndex[key]
	if !ok {
		return Field{}, false
	}
	return Fields[i], true
}
