package params

import "math"

// Output colour spaces accepted by OutputColor.
const (
	OutputColorRaw int32 = iota
	OutputColorSRGB
	OutputColorAdobe
	OutputColorWide
	OutputColorProPhoto
	OutputColorXYZ
	OutputColorACES
)

// unsetCblack is LibRaw's "not set by user" value for user_cblack entries.
const unsetCblack int32 = -1000001

// Params mirrors the part of libraw_output_params_t that decode requests can set.
// Field names follow the engine's option keys; see Fields for the mapping.
type Params struct {
	OutputProfile string
	CameraProfile string
	BadPixels     string
	DarkFrame     string

	Gamm       [6]float64
	Aber       [4]float64
	Greybox    [4]uint32
	Cropbox    [4]uint32
	UserMul    [4]float32
	UserCblack [4]int32

	Bright           float32
	Threshold        float32
	AutoBrightThr    float32
	AdjustMaximumThr float32
	ExpShift         float32
	ExpPreser        float32

	HalfSize        int32
	FourColorRGB    int32
	Highlight       int32
	UseAutoWB       int32
	UseCameraWB     int32
	UseCameraMatrix int32
	OutputColor     int32
	OutputBPS       int32
	OutputTIFF      int32
	OutputFlags     int32
	UserFlip        int32
	UserQual        int32
	UserBlack       int32
	UserSat         int32
	MedPasses       int32
	NoAutoBright    int32
	UseFujiRotate   int32
	GreenMatching   int32
	DCBIterations   int32
	DCBEnhanceFl    int32
	FBDDNoiserd     int32
	ExpCorrec       int32
	NoAutoScale     int32
	NoInterpolation int32
}

// Defaults returns the values LibRaw's constructor assigns.
func Defaults() Params {
	return Params{
		Gamm:       [6]float64{0.45, 4.5, 0, 0, 0, 0},
		Aber:       [4]float64{1, 1, 1, 1},
		Greybox:    [4]uint32{0, 0, math.MaxUint32, math.MaxUint32},
		Cropbox:    [4]uint32{0, 0, math.MaxUint32, math.MaxUint32},
		UserCblack: [4]int32{unsetCblack, unsetCblack, unsetCblack, unsetCblack},

		Bright:           1,
		AutoBrightThr:    0.01,
		AdjustMaximumThr: 0.75,
		ExpShift:         1,

		UseCameraMatrix: 1,
		OutputColor:     OutputColorSRGB,
		OutputBPS:       8,
		UserFlip:        -1,
		UserQual:        -1,
		UserBlack:       -1,
		UserSat:         -1,
		UseFujiRotate:   1,
		DCBIterations:   -1,
	}
}
