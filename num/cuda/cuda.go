//go:build cuda

// Package cuda contains wrapper functions for Cuda api
package cuda

/*
#cgo CFLAGS: -I /usr/local/cuda/include
#cgo LDFLAGS: -L /usr/local/cuda/lib64 -lcudnn -lcudart
#include <cuda_runtime.h>
#include <cudnn.h>
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"
)

// Available reports if this build was compiled with Cuda support.
const Available = true

type Device C.int

// DeviceCount returns the number of Cuda devices.
func DeviceCount() (int, error) {
	var deviceCount C.int
	if err := getError(C.cudaGetDeviceCount(&deviceCount)); err != nil {
		return 0, err
	}
	return int(deviceCount), nil
}

// Get new device, if id is -1 then use the first device found. The device is made
// current for the calling thread.
func NewDevice(id int) (Device, error) {
	deviceCount, err := DeviceCount()
	if err != nil {
		return 0, err
	}
	if deviceCount < 1 {
		return 0, errors.New("no Cuda device found")
	}
	if id < 0 {
		id = 0
	}
	if id >= deviceCount {
		return 0, fmt.Errorf("Cuda device %d not found: have %d devices", id, deviceCount)
	}
	d := Device(id)
	if err := d.Use(); err != nil {
		return 0, err
	}
	return d, nil
}

// Use makes d the current device of the calling OS thread. The current device is
// per thread, so callers hold the thread with runtime.LockOSThread until their Cuda
// calls are complete.
func (d Device) Use() error {
	return getError(C.cudaSetDevice(C.int(d)))
}

// Name of the device as reported by the driver
func (d Device) Name() string {
	var prop C.struct_cudaDeviceProp
	if C.cudaGetDeviceProperties(&prop, C.int(d)) != C.cudaSuccess {
		return fmt.Sprintf("cuda:%d", int(d))
	}
	return C.GoString(&prop.name[0])
}

type Stream struct {
	stream C.cudaStream_t
	cudnn  C.cudnnHandle_t
	freed  bool
}

// Allocate new Cuda stream and associate cuDNN context with this.
func NewStream() (*Stream, error) {
	s := new(Stream)
	if err := getError(C.cudaStreamCreate(&s.stream)); err != nil {
		return nil, err
	}
	if err := getDnnError(C.cudnnCreate(&s.cudnn)); err != nil {
		C.cudaStreamDestroy(s.stream)
		return nil, err
	}
	if err := getDnnError(C.cudnnSetStream(s.cudnn, s.stream)); err != nil {
		C.cudnnDestroy(s.cudnn)
		C.cudaStreamDestroy(s.stream)
		return nil, err
	}
	return s, nil
}

func (s *Stream) Sync() error {
	return getError(C.cudaStreamSynchronize(s.stream))
}

func (s *Stream) Release() {
	if !s.freed {
		C.cudnnDestroy(s.cudnn)
		C.cudaStreamDestroy(s.stream)
		s.freed = true
	}
}

type Buffer struct {
	ptr  unsafe.Pointer
	size int
}

// Allocate a zeroed buffer on the GPU with given number of 32 bit words
func NewBuffer(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("NewBuffer: size must be greater than 0, got %d", size)
	}
	b := &Buffer{size: size}
	if err := getError(C.cudaMalloc(&b.ptr, C.size_t(size*4))); err != nil {
		return nil, fmt.Errorf("cudaMalloc %d bytes: %w", size*4, err)
	}
	if err := getError(C.cudaMemset(b.ptr, 0, C.size_t(size*4))); err != nil {
		C.cudaFree(b.ptr)
		return nil, err
	}
	return b, nil
}

func (b *Buffer) Data() unsafe.Pointer {
	return b.ptr
}

func (b *Buffer) Size() int {
	return b.size
}

// Copy data from host memory to the start of the buffer
func (b *Buffer) Upload(data []float32) error {
	if len(data) == 0 {
		return nil
	}
	if len(data) > b.size {
		return fmt.Errorf("Upload: %d values will not fit in buffer of size %d", len(data), b.size)
	}
	return getError(C.cudaMemcpy(b.ptr, unsafe.Pointer(&data[0]), C.size_t(len(data)*4), C.cudaMemcpyHostToDevice))
}

// Copy data from the start of the buffer back to host memory
func (b *Buffer) Download(data []float32) error {
	if len(data) == 0 {
		return nil
	}
	if len(data) > b.size {
		return fmt.Errorf("Download: %d values requested from buffer of size %d", len(data), b.size)
	}
	return getError(C.cudaMemcpy(unsafe.Pointer(&data[0]), b.ptr, C.size_t(len(data)*4), C.cudaMemcpyDeviceToHost))
}

func (b *Buffer) Release() {
	if b.size > 0 {
		C.cudaFree(b.ptr)
		b.size = 0
		b.ptr = nil
	}
}

func getError(err C.cudaError_t) error {
	if err == C.cudaSuccess {
		return nil
	}
	cstr := C.cudaGetErrorString(err)
	return fmt.Errorf("Cuda error: %s", C.GoString(cstr))
}
