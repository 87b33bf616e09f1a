package num

import (
	"fmt"
	"math"
	"time"
	"unsafe"

	"github.com/ryukinkou/scenelabeling/num/dnn"
	"k8s.io/klog/v2"
)

// cpuDevice keeps buffers in main memory and is used where no GPU is available.
type cpuDevice struct {
	*profile
}

// Initialise new host memory device.
func NewCPUDevice() Device {
	return &cpuDevice{profile: newProfile()}
}

func (d *cpuDevice) Name() string { return "cpu" }

func (d *cpuDevice) NewBuffer(typ dnn.ResType, size int) (Buffer, error) {
	defer d.record("alloc", time.Now())
	if size <= 0 {
		return nil, fmt.Errorf("allocate %s: size must be greater than 0, got %d: %w", typ, size, dnn.ErrShape)
	}
	klog.V(4).InfoS("allocate buffer", "device", d.Name(), "role", typ, "size", size)
	return &cpuBuffer{typ: typ, data: make([]float32, size)}, nil
}

func (d *cpuDevice) Upload(typ dnn.ResType, data []float32) (Buffer, error) {
	b, err := d.NewBuffer(typ, len(data))
	if err != nil {
		return nil, err
	}
	defer d.record("copy_h2d", time.Now())
	copy(b.(*cpuBuffer).data, data)
	return b, nil
}

func (d *cpuDevice) ConvOutputDim(src dnn.TensorDesc, filt dnn.FilterDesc, conv dnn.ConvDesc) (dnn.OutputDim, error) {
	return dnn.ConvOutputDim(src, filt, conv)
}

func (d *cpuDevice) PoolOutputDim(src dnn.TensorDesc, pool dnn.PoolDesc) (dnn.OutputDim, error) {
	return dnn.PoolOutputDim(src, pool)
}

func (d *cpuDevice) PoolForward(src, dst Buffer, in dnn.TensorDesc, pool dnn.PoolDesc) error {
	defer d.record("pool_fprop", time.Now())
	s, ok1 := src.(*cpuBuffer)
	t, ok2 := dst.(*cpuBuffer)
	if !ok1 || !ok2 {
		return fmt.Errorf("PoolForward: buffers must be allocated on the %s device", d.Name())
	}
	if s.data == nil || t.data == nil {
		return fmt.Errorf("PoolForward: %w", ErrReleased)
	}
	pool, err := pool.Normalise()
	if err != nil {
		return err
	}
	out, err := dnn.PoolOutputDim(in, pool)
	if err != nil {
		return err
	}
	if len(s.data) < in.Size() || len(t.data) < out.Size() {
		return fmt.Errorf("PoolForward: buffer too small: src %d/%d dst %d/%d: %w",
			len(s.data), in.Size(), len(t.data), out.Size(), dnn.ErrShape)
	}
	poolForward(s.data, t.data, in, out, pool)
	return nil
}

func (d *cpuDevice) Release() {}

// poolForward is the reference pooling forward pass. Padded cells are skipped by max
// pooling and counted as zero by average pooling when the mode includes padding.
func poolForward(src, dst []float32, in dnn.TensorDesc, out dnn.OutputDim, p dnn.PoolDesc) {
	plane := in.H * in.W
	for n := 0; n < in.N; n++ {
		for c := 0; c < in.C; c++ {
			chIn := src[(n*in.C+c)*plane : (n*in.C+c+1)*plane]
			chOut := dst[(n*in.C+c)*out.Height*out.Width:]
			for oh := 0; oh < out.Height; oh++ {
				h0 := oh*p.StrideV - p.PadH
				for ow := 0; ow < out.Width; ow++ {
					w0 := ow*p.StrideH - p.PadW
					maxVal := float32(math.Inf(-1))
					sum, count := float32(0), 0
					for kh := 0; kh < p.WindowH; kh++ {
						h := h0 + kh
						if h < 0 || h >= in.H {
							continue
						}
						row := chIn[h*in.W : (h+1)*in.W]
						for kw := 0; kw < p.WindowW; kw++ {
							w := w0 + kw
							if w < 0 || w >= in.W {
								continue
							}
							val := row[w]
							if val > maxVal || math.IsNaN(float64(val)) {
								maxVal = val
							}
							sum += val
							count++
						}
					}
					var res float32
					switch p.Mode {
					case dnn.AvgPoolInclPad:
						res = sum / float32(p.WindowH*p.WindowW)
					case dnn.AvgPoolExclPad:
						if count > 0 {
							res = sum / float32(count)
						}
					default:
						res = maxVal
					}
					chOut[oh*out.Width+ow] = res
				}
			}
		}
	}
}

// buffer resident in main memory
type cpuBuffer struct {
	typ  dnn.ResType
	data []float32
}

func (b *cpuBuffer) Role() dnn.ResType { return b.typ }

func (b *cpuBuffer) Size() int { return len(b.data) }

func (b *cpuBuffer) Read(dst []float32) error {
	if err := checkRead(b, dst); err != nil {
		return err
	}
	copy(dst, b.data)
	return nil
}

func (b *cpuBuffer) Ptr() unsafe.Pointer {
	if len(b.data) == 0 {
		return nil
	}
	return unsafe.Pointer(&b.data[0])
}

func (b *cpuBuffer) Release() { b.data = nil }

func (b *cpuBuffer) String() string {
	return fmt.Sprintf("%s[%d]", b.typ, len(b.data))
}
