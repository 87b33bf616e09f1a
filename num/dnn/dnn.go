// Package dnn has generic descriptor types for deep neural network layers which are
// shared by the host and Cuda devices.
package dnn

import (
	"errors"
	"fmt"
)

// ErrShape is returned when a dimension is invalid or does not match the data supplied.
var ErrShape = errors.New("invalid shape")

type ResType int

const (
	Src ResType = iota
	Dst
	Filter
	Bias
	PoolDst
	ResNumber
)

var resNames = map[ResType]string{
	Src:     "Src",
	Dst:     "Dst",
	Filter:  "Filter",
	Bias:    "Bias",
	PoolDst: "PoolDst",
}

func (r ResType) String() string {
	if s, ok := resNames[r]; ok {
		return s
	}
	return fmt.Sprintf("ResType(%d)", int(r))
}

// OutputDim is the shape of a computed layer output.
type OutputDim struct {
	Images      int
	FeatureMaps int
	Height      int
	Width       int
}

func (d OutputDim) Size() int {
	return d.Images * d.FeatureMaps * d.Height * d.Width
}

func (d OutputDim) Tensor() TensorDesc {
	return TensorDesc{N: d.Images, C: d.FeatureMaps, H: d.Height, W: d.Width}
}

func (d OutputDim) String() string {
	return fmt.Sprintf("%dx%dx%dx%d", d.Images, d.FeatureMaps, d.Height, d.Width)
}

// TensorDesc describes a 4d float32 tensor in NCHW layout.
type TensorDesc struct {
	N, C, H, W int
}

func NewTensor(n, c, h, w int) (TensorDesc, error) {
	t := TensorDesc{N: n, C: c, H: h, W: w}
	return t, t.Validate()
}

func (t TensorDesc) Validate() error {
	if t.N <= 0 || t.C <= 0 || t.H <= 0 || t.W <= 0 {
		return fmt.Errorf("tensor %v: dimensions must be positive: %w", t.Dims(), ErrShape)
	}
	return nil
}

func (t TensorDesc) Dims() []int { return []int{t.N, t.C, t.H, t.W} }

func (t TensorDesc) Size() int { return t.N * t.C * t.H * t.W }

func (t TensorDesc) Dim() OutputDim {
	return OutputDim{Images: t.N, FeatureMaps: t.C, Height: t.H, Width: t.W}
}

// FilterDesc describes a convolution kernel with K output and C input feature maps.
type FilterDesc struct {
	K, C, H, W int
}

func NewFilter(k, c, h, w int) (FilterDesc, error) {
	f := FilterDesc{K: k, C: c, H: h, W: w}
	return f, f.Validate()
}

func (f FilterDesc) Validate() error {
	if f.K <= 0 || f.C <= 0 || f.H <= 0 || f.W <= 0 {
		return fmt.Errorf("filter %v: dimensions must be positive: %w", f.Dims(), ErrShape)
	}
	return nil
}

func (f FilterDesc) Dims() []int { return []int{f.K, f.C, f.H, f.W} }

func (f FilterDesc) Size() int { return f.K * f.C * f.H * f.W }

type ConvMode int

const (
	CrossCorrelation ConvMode = iota
	Convolution
)

// ConvDesc holds 2d convolution parameters. Zero stride or dilation is treated as 1.
type ConvDesc struct {
	PadH, PadW           int
	StrideH, StrideW     int
	DilationH, DilationW int
	Mode                 ConvMode
}

// Normalise fills in default values and checks the parameters.
func (c ConvDesc) Normalise() (ConvDesc, error) {
	c.StrideH, c.StrideW = orOne(c.StrideH), orOne(c.StrideW)
	c.DilationH, c.DilationW = orOne(c.DilationH), orOne(c.DilationW)
	if c.PadH < 0 || c.PadW < 0 || c.StrideH < 0 || c.StrideW < 0 || c.DilationH < 0 || c.DilationW < 0 {
		return c, fmt.Errorf("convolution %+v: negative parameter: %w", c, ErrShape)
	}
	return c, nil
}

type PoolMode int

const (
	MaxPool PoolMode = iota
	AvgPoolInclPad
	AvgPoolExclPad
)

var poolNames = map[PoolMode]string{
	MaxPool:        "max",
	AvgPoolInclPad: "avg_incl_pad",
	AvgPoolExclPad: "avg_excl_pad",
}

func (m PoolMode) String() string { return poolNames[m] }

// ParsePoolMode converts a pooling mode name as used in config files.
func ParsePoolMode(s string) (PoolMode, error) {
	if s == "" || s == "max" {
		return MaxPool, nil
	}
	for m, name := range poolNames {
		if name == s {
			return m, nil
		}
	}
	return MaxPool, fmt.Errorf("unknown pooling mode %q", s)
}

// PoolDesc holds 2d pooling parameters. Zero strides default to the window size.
type PoolDesc struct {
	Mode             PoolMode
	WindowH, WindowW int
	PadH, PadW       int
	StrideV, StrideH int
}

func (p PoolDesc) Normalise() (PoolDesc, error) {
	if p.WindowH <= 0 || p.WindowW <= 0 {
		return p, fmt.Errorf("pooling window %dx%d: %w", p.WindowH, p.WindowW, ErrShape)
	}
	if p.StrideV == 0 {
		p.StrideV = p.WindowH
	}
	if p.StrideH == 0 {
		p.StrideH = p.WindowW
	}
	if p.StrideV < 0 || p.StrideH < 0 || p.PadH < 0 || p.PadW < 0 {
		return p, fmt.Errorf("pooling %+v: negative parameter: %w", p, ErrShape)
	}
	if p.PadH >= p.WindowH || p.PadW >= p.WindowW {
		return p, fmt.Errorf("pooling padding %dx%d must be less than window %dx%d: %w",
			p.PadH, p.PadW, p.WindowH, p.WindowW, ErrShape)
	}
	return p, nil
}

// ConvOutputDim returns the forward output shape of a convolution, as computed by
// cudnnGetConvolution2dForwardOutputDim.
func ConvOutputDim(src TensorDesc, filt FilterDesc, conv ConvDesc) (OutputDim, error) {
	if err := src.Validate(); err != nil {
		return OutputDim{}, err
	}
	if err := filt.Validate(); err != nil {
		return OutputDim{}, err
	}
	if src.C != filt.C {
		return OutputDim{}, fmt.Errorf("input has %d feature maps, filter expects %d: %w", src.C, filt.C, ErrShape)
	}
	conv, err := conv.Normalise()
	if err != nil {
		return OutputDim{}, err
	}
	h, err := convOutSize(src.H, filt.H, conv.PadH, conv.StrideH, conv.DilationH)
	if err != nil {
		return OutputDim{}, fmt.Errorf("height: %w", err)
	}
	w, err := convOutSize(src.W, filt.W, conv.PadW, conv.StrideW, conv.DilationW)
	if err != nil {
		return OutputDim{}, fmt.Errorf("width: %w", err)
	}
	return OutputDim{Images: src.N, FeatureMaps: filt.K, Height: h, Width: w}, nil
}

// PoolOutputDim returns the forward output shape of a pooling layer, as computed by
// cudnnGetPooling2dForwardOutputDim.
func PoolOutputDim(src TensorDesc, pool PoolDesc) (OutputDim, error) {
	if err := src.Validate(); err != nil {
		return OutputDim{}, err
	}
	pool, err := pool.Normalise()
	if err != nil {
		return OutputDim{}, err
	}
	h, err := convOutSize(src.H, pool.WindowH, pool.PadH, pool.StrideV, 1)
	if err != nil {
		return OutputDim{}, fmt.Errorf("height: %w", err)
	}
	w, err := convOutSize(src.W, pool.WindowW, pool.PadW, pool.StrideH, 1)
	if err != nil {
		return OutputDim{}, fmt.Errorf("width: %w", err)
	}
	return OutputDim{Images: src.N, FeatureMaps: src.C, Height: h, Width: w}, nil
}

func convOutSize(in, filter, pad, stride, dilation int) (int, error) {
	span := (filter-1)*dilation + 1
	if span > in+2*pad {
		return 0, fmt.Errorf("filter size %d > padded input size %d: %w", span, in+2*pad, ErrShape)
	}
	return 1 + (in+2*pad-span)/stride, nil
}

func orOne(x int) int {
	if x == 0 {
		return 1
	}
	return x
}
