// Package num contains the devices which hold layer data, either in main memory or on
// a Cuda GPU, together with routines for manipulating host side float32 arrays.
package num

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"unsafe"

	"github.com/ryukinkou/scenelabeling/num/cuda"
	"github.com/ryukinkou/scenelabeling/num/dnn"
	"k8s.io/klog/v2"
)

var (
	// ErrNoGPU is returned when a GPU device is requested from a build without Cuda support.
	ErrNoGPU = errors.New("no GPU support: rebuild with -tags cuda")
	// ErrReleased is returned when accessing a buffer which has already been released.
	ErrReleased = errors.New("buffer has been released")
)

// Device interface type
type Device interface {
	// Name of the device for logging
	Name() string
	// Allocate a new zeroed buffer with given number of 32 bit words
	NewBuffer(typ dnn.ResType, size int) (Buffer, error)
	// Allocate a new buffer and copy the host data into it
	Upload(typ dnn.ResType, data []float32) (Buffer, error)
	// Forward output shape of a convolution
	ConvOutputDim(src dnn.TensorDesc, filt dnn.FilterDesc, conv dnn.ConvDesc) (dnn.OutputDim, error)
	// Forward output shape of a pooling layer
	PoolOutputDim(src dnn.TensorDesc, pool dnn.PoolDesc) (dnn.OutputDim, error)
	// Pooling forward pass from src to dst, dst must be sized as per PoolOutputDim
	PoolForward(src, dst Buffer, in dnn.TensorDesc, pool dnn.PoolDesc) error
	// Enable profiling
	Profiling(on bool)
	PrintProfile(w io.Writer)
	// Release any resources held by the device
	Release()
}

// Buffer is a block of float32 values owned by a single caller until Release is called.
type Buffer interface {
	// Role of the data held in the buffer
	Role() dnn.ResType
	// Size is the number of 32 bit words
	Size() int
	// Copy the start of the buffer to host memory
	Read(dst []float32) error
	// Reference to the raw data, nil once released
	Ptr() unsafe.Pointer
	// Release any allocated memory, may be called more than once
	Release()
}

// Initialise new host or GPU device.
func NewDevice(useGPU bool) (Device, error) {
	if useGPU {
		return NewGPUDevice(-1)
	}
	return NewCPUDevice(), nil
}

// Initialise Cuda device with given id, or the first device if id is -1.
func NewGPUDevice(id int) (Device, error) {
	if !cuda.Available {
		return nil, ErrNoGPU
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	dev, err := cuda.NewDevice(id)
	if err != nil {
		return nil, err
	}
	stream, err := cuda.NewStream()
	if err != nil {
		return nil, err
	}
	d := &gpuDevice{dev: dev, stream: stream, profile: newProfile()}
	klog.V(1).InfoS("opened device", "device", d.Name())
	return d, nil
}

// ReadAll copies the entire contents of the buffer to a new slice.
func ReadAll(b Buffer) ([]float32, error) {
	data := make([]float32, b.Size())
	if err := b.Read(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Release one or more buffers
func Release(bufs ...Buffer) {
	for _, b := range bufs {
		if b != nil {
			b.Release()
		}
	}
}

// Total size of one of more buffers in bytes
func Bytes(bufs ...Buffer) (bytes int) {
	for _, b := range bufs {
		if b != nil {
			bytes += 4 * b.Size()
		}
	}
	return bytes
}

func checkRead(b Buffer, dst []float32) error {
	if b.Ptr() == nil {
		return fmt.Errorf("read %s: %w", b.Role(), ErrReleased)
	}
	if len(dst) > b.Size() {
		return fmt.Errorf("read %s: %d values requested from buffer of size %d: %w", b.Role(), len(dst), b.Size(), dnn.ErrShape)
	}
	return nil
}
