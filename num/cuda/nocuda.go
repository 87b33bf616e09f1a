//go:build !cuda

// Package cuda contains wrapper functions for Cuda api. This build was compiled
// without the cuda tag so every constructor fails with ErrNotAvailable.
package cuda

import (
	"errors"
	"unsafe"

	"github.com/ryukinkou/scenelabeling/num/dnn"
)

// Available reports if this build was compiled with Cuda support.
const Available = false

// ErrNotAvailable is returned by all constructors in builds without the cuda tag.
var ErrNotAvailable = errors.New("Cuda support not compiled in: rebuild with -tags cuda")

type Device int

func DeviceCount() (int, error) { return 0, ErrNotAvailable }

func NewDevice(id int) (Device, error) { return 0, ErrNotAvailable }

func (d Device) Use() error { return ErrNotAvailable }

func (d Device) Name() string { return "none" }

type Stream struct{}

func NewStream() (*Stream, error) { return nil, ErrNotAvailable }

func (s *Stream) Sync() error { return ErrNotAvailable }

func (s *Stream) Release() {}

type Buffer struct{}

func NewBuffer(size int) (*Buffer, error) { return nil, ErrNotAvailable }

func (b *Buffer) Data() unsafe.Pointer { return nil }

func (b *Buffer) Size() int { return 0 }

func (b *Buffer) Upload(data []float32) error { return ErrNotAvailable }

func (b *Buffer) Download(data []float32) error { return ErrNotAvailable }

func (b *Buffer) Release() {}

type ConvLayer struct {
	OutDim dnn.OutputDim
}

func Convolution(src dnn.TensorDesc, filt dnn.FilterDesc, conv dnn.ConvDesc) (*ConvLayer, error) {
	return nil, ErrNotAvailable
}

func (l *ConvLayer) Release() {}

type PoolLayer struct {
	OutDim dnn.OutputDim
}

func Pooling(src dnn.TensorDesc, pool dnn.PoolDesc) (*PoolLayer, error) {
	return nil, ErrNotAvailable
}

func (l *PoolLayer) Forward(s *Stream, src, dst *Buffer) error { return ErrNotAvailable }

func (l *PoolLayer) Release() {}
