package num

import (
	"fmt"
	"runtime"
	"time"
	"unsafe"

	"github.com/ryukinkou/scenelabeling/num/cuda"
	"github.com/ryukinkou/scenelabeling/num/dnn"
	"k8s.io/klog/v2"
)

// gpuDevice corresponds to a Cuda device with a single stream and cuDNN handle.
type gpuDevice struct {
	dev    cuda.Device
	stream *cuda.Stream
	*profile
}

func (d *gpuDevice) Name() string { return d.dev.Name() }

// bind locks the goroutine to its OS thread and makes dev current on that thread. The
// returned function must be called once the Cuda calls are done.
func bind(dev cuda.Device) (func(), error) {
	runtime.LockOSThread()
	if err := dev.Use(); err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	return runtime.UnlockOSThread, nil
}

func (d *gpuDevice) NewBuffer(typ dnn.ResType, size int) (Buffer, error) {
	defer d.record("alloc", time.Now())
	if size <= 0 {
		return nil, fmt.Errorf("allocate %s: size must be greater than 0, got %d: %w", typ, size, dnn.ErrShape)
	}
	unbind, err := bind(d.dev)
	if err != nil {
		return nil, err
	}
	defer unbind()
	buf, err := cuda.NewBuffer(size)
	if err != nil {
		return nil, fmt.Errorf("allocate %s: %w", typ, err)
	}
	klog.V(4).InfoS("allocate buffer", "device", d.Name(), "role", typ, "size", size)
	return &gpuBuffer{typ: typ, dev: d.dev, buf: buf}, nil
}

func (d *gpuDevice) Upload(typ dnn.ResType, data []float32) (Buffer, error) {
	b, err := d.NewBuffer(typ, len(data))
	if err != nil {
		return nil, err
	}
	defer d.record("copy_h2d", time.Now())
	unbind, err := bind(d.dev)
	if err != nil {
		b.Release()
		return nil, err
	}
	defer unbind()
	if err := b.(*gpuBuffer).buf.Upload(data); err != nil {
		b.Release()
		return nil, fmt.Errorf("upload %s: %w", typ, err)
	}
	return b, nil
}

func (d *gpuDevice) ConvOutputDim(src dnn.TensorDesc, filt dnn.FilterDesc, conv dnn.ConvDesc) (dnn.OutputDim, error) {
	if src.C != filt.C {
		return dnn.OutputDim{}, fmt.Errorf("input has %d feature maps, filter expects %d: %w", src.C, filt.C, dnn.ErrShape)
	}
	l, err := cuda.Convolution(src, filt, conv)
	if err != nil {
		return dnn.OutputDim{}, err
	}
	defer l.Release()
	return l.OutDim, nil
}

func (d *gpuDevice) PoolOutputDim(src dnn.TensorDesc, pool dnn.PoolDesc) (dnn.OutputDim, error) {
	l, err := cuda.Pooling(src, pool)
	if err != nil {
		return dnn.OutputDim{}, err
	}
	defer l.Release()
	return l.OutDim, nil
}

func (d *gpuDevice) PoolForward(src, dst Buffer, in dnn.TensorDesc, pool dnn.PoolDesc) error {
	defer d.record("pool_fprop", time.Now())
	s, ok1 := src.(*gpuBuffer)
	t, ok2 := dst.(*gpuBuffer)
	if !ok1 || !ok2 {
		return fmt.Errorf("PoolForward: buffers must be allocated on the %s device", d.Name())
	}
	if s.buf == nil || t.buf == nil {
		return fmt.Errorf("PoolForward: %w", ErrReleased)
	}
	unbind, err := bind(d.dev)
	if err != nil {
		return err
	}
	defer unbind()
	l, err := cuda.Pooling(in, pool)
	if err != nil {
		return err
	}
	defer l.Release()
	if err := l.Forward(d.stream, s.buf, t.buf); err != nil {
		return err
	}
	return d.stream.Sync()
}

func (d *gpuDevice) Release() {
	if unbind, err := bind(d.dev); err == nil {
		defer unbind()
	}
	d.stream.Release()
}

// buffer resident on GPU
type gpuBuffer struct {
	typ dnn.ResType
	dev cuda.Device
	buf *cuda.Buffer
}

func (b *gpuBuffer) Role() dnn.ResType { return b.typ }

func (b *gpuBuffer) Size() int {
	if b.buf == nil {
		return 0
	}
	return b.buf.Size()
}

func (b *gpuBuffer) Read(dst []float32) error {
	if err := checkRead(b, dst); err != nil {
		return err
	}
	unbind, err := bind(b.dev)
	if err != nil {
		return err
	}
	defer unbind()
	return b.buf.Download(dst)
}

func (b *gpuBuffer) Ptr() unsafe.Pointer {
	if b.buf == nil {
		return nil
	}
	return b.buf.Data()
}

func (b *gpuBuffer) Release() {
	if b.buf != nil {
		if unbind, err := bind(b.dev); err == nil {
			defer unbind()
		}
		b.buf.Release()
		b.buf = nil
	}
}

func (b *gpuBuffer) String() string {
	return fmt.Sprintf("%s[%d]", b.typ, b.Size())
}
