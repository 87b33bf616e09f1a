//go:build cuda

package cuda

/*
#include <cudnn.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/ryukinkou/scenelabeling/num/dnn"
)

var poolingModes = map[dnn.PoolMode]C.cudnnPoolingMode_t{
	dnn.MaxPool:        C.CUDNN_POOLING_MAX,
	dnn.AvgPoolInclPad: C.CUDNN_POOLING_AVERAGE_COUNT_INCLUDE_PADDING,
	dnn.AvgPoolExclPad: C.CUDNN_POOLING_AVERAGE_COUNT_EXCLUDE_PADDING,
}

// Convolution layer descriptor
type ConvLayer struct {
	Src    *Layout
	Filter *FilterLayout
	Dst    *Layout
	OutDim dnn.OutputDim
	desc   C.cudnnConvolutionDescriptor_t
	freed  bool
}

// Create new convolution layer. The output layout is sized from the shape cuDNN
// computes for the given input, filter and convolution parameters.
func Convolution(src dnn.TensorDesc, filt dnn.FilterDesc, conv dnn.ConvDesc) (l *ConvLayer, err error) {
	if conv, err = conv.Normalise(); err != nil {
		return nil, err
	}
	l = &ConvLayer{freed: true}
	defer func() {
		if err != nil {
			l.Release()
			l = nil
		}
	}()
	if l.Src, err = NewLayout(src); err != nil {
		return
	}
	if l.Filter, err = NewFilterLayout(filt); err != nil {
		return
	}
	if err = getDnnError(C.cudnnCreateConvolutionDescriptor(&l.desc)); err != nil {
		return
	}
	l.freed = false
	mode := C.cudnnConvolutionMode_t(C.CUDNN_CROSS_CORRELATION)
	if conv.Mode == dnn.Convolution {
		mode = C.CUDNN_CONVOLUTION
	}
	err = getDnnError(C.cudnnSetConvolution2dDescriptor(l.desc, C.int(conv.PadH), C.int(conv.PadW),
		C.int(conv.StrideH), C.int(conv.StrideW), C.int(conv.DilationH), C.int(conv.DilationW),
		mode, C.CUDNN_DATA_FLOAT))
	if err != nil {
		return
	}
	var n, c, h, w C.int
	err = getDnnError(C.cudnnGetConvolution2dForwardOutputDim(l.desc, l.Src.desc, l.Filter.desc, &n, &c, &h, &w))
	if err != nil {
		return
	}
	l.OutDim = dnn.OutputDim{Images: int(n), FeatureMaps: int(c), Height: int(h), Width: int(w)}
	l.Dst, err = NewLayout(l.OutDim.Tensor())
	return
}

func (l *ConvLayer) Release() {
	if l.Src != nil {
		l.Src.Release()
	}
	if l.Filter != nil {
		l.Filter.Release()
	}
	if l.Dst != nil {
		l.Dst.Release()
	}
	if !l.freed {
		C.cudnnDestroyConvolutionDescriptor(l.desc)
		l.freed = true
	}
}

// Pooling layer description
type PoolLayer struct {
	Src    *Layout
	Dst    *Layout
	OutDim dnn.OutputDim
	desc   C.cudnnPoolingDescriptor_t
	freed  bool
}

// Setup new max or average pooling layer
func Pooling(src dnn.TensorDesc, pool dnn.PoolDesc) (l *PoolLayer, err error) {
	if pool, err = pool.Normalise(); err != nil {
		return nil, err
	}
	mode, ok := poolingModes[pool.Mode]
	if !ok {
		return nil, fmt.Errorf("cuDNN: pooling mode %d is not valid", pool.Mode)
	}
	l = &PoolLayer{freed: true}
	defer func() {
		if err != nil {
			l.Release()
			l = nil
		}
	}()
	if l.Src, err = NewLayout(src); err != nil {
		return
	}
	if err = getDnnError(C.cudnnCreatePoolingDescriptor(&l.desc)); err != nil {
		return
	}
	l.freed = false
	err = getDnnError(C.cudnnSetPooling2dDescriptor(l.desc, mode, C.CUDNN_PROPAGATE_NAN,
		C.int(pool.WindowH), C.int(pool.WindowW), C.int(pool.PadH), C.int(pool.PadW),
		C.int(pool.StrideV), C.int(pool.StrideH)))
	if err != nil {
		return
	}
	var n, c, h, w C.int
	if err = getDnnError(C.cudnnGetPooling2dForwardOutputDim(l.desc, l.Src.desc, &n, &c, &h, &w)); err != nil {
		return
	}
	l.OutDim = dnn.OutputDim{Images: int(n), FeatureMaps: int(c), Height: int(h), Width: int(w)}
	l.Dst, err = NewLayout(l.OutDim.Tensor())
	return
}

// Forward runs the pooling forward pass on the stream: dst = pool(src)
func (l *PoolLayer) Forward(s *Stream, src, dst *Buffer) error {
	if src.Size() < l.Src.Size() || dst.Size() < l.Dst.Size() {
		return fmt.Errorf("cuDNN pooling: buffer too small: src %d/%d dst %d/%d",
			src.Size(), l.Src.Size(), dst.Size(), l.Dst.Size())
	}
	alpha, beta := C.float(1), C.float(0)
	return getDnnError(C.cudnnPoolingForward(s.cudnn, l.desc,
		unsafe.Pointer(&alpha), l.Src.desc, src.Data(),
		unsafe.Pointer(&beta), l.Dst.desc, dst.Data()))
}

func (l *PoolLayer) Release() {
	if l.Src != nil {
		l.Src.Release()
	}
	if l.Dst != nil {
		l.Dst.Release()
	}
	if !l.freed {
		C.cudnnDestroyPoolingDescriptor(l.desc)
		l.freed = true
	}
}

// Layout type represents a cuDNN tensor descriptor
type Layout struct {
	dnn.TensorDesc
	desc  C.cudnnTensorDescriptor_t
	freed bool
}

func NewLayout(t dnn.TensorDesc) (*Layout, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	l := &Layout{TensorDesc: t}
	if err := getDnnError(C.cudnnCreateTensorDescriptor(&l.desc)); err != nil {
		return nil, err
	}
	err := getDnnError(C.cudnnSetTensor4dDescriptor(l.desc, C.CUDNN_TENSOR_NCHW, C.CUDNN_DATA_FLOAT,
		C.int(t.N), C.int(t.C), C.int(t.H), C.int(t.W)))
	if err != nil {
		l.Release()
		return nil, err
	}
	return l, nil
}

func (l *Layout) Release() {
	if !l.freed {
		C.cudnnDestroyTensorDescriptor(l.desc)
		l.freed = true
	}
}

// Filter layout type
type FilterLayout struct {
	dnn.FilterDesc
	desc  C.cudnnFilterDescriptor_t
	freed bool
}

func NewFilterLayout(f dnn.FilterDesc) (*FilterLayout, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	l := &FilterLayout{FilterDesc: f}
	if err := getDnnError(C.cudnnCreateFilterDescriptor(&l.desc)); err != nil {
		return nil, err
	}
	err := getDnnError(C.cudnnSetFilter4dDescriptor(l.desc, C.CUDNN_DATA_FLOAT, C.CUDNN_TENSOR_NCHW,
		C.int(f.K), C.int(f.C), C.int(f.H), C.int(f.W)))
	if err != nil {
		l.Release()
		return nil, err
	}
	return l, nil
}

func (l *FilterLayout) Release() {
	if !l.freed {
		C.cudnnDestroyFilterDescriptor(l.desc)
		l.freed = true
	}
}

func getDnnError(err C.cudnnStatus_t) error {
	if err == C.CUDNN_STATUS_SUCCESS {
		return nil
	}
	cstr := C.cudnnGetErrorString(err)
	return fmt.Errorf("cuDNN error: %s", C.GoString(cstr))
}
