package nnet

import (
	"fmt"

	"github.com/ryukinkou/scenelabeling/num"
	"github.com/ryukinkou/scenelabeling/num/dnn"
	"k8s.io/klog/v2"
)

// DataLayer is a tensor held on a device together with its descriptor.
type DataLayer struct {
	Desc dnn.TensorDesc
	Buf  num.Buffer
}

// Dim returns the shape of the data held in the layer.
func (l *DataLayer) Dim() dnn.OutputDim { return l.Desc.Dim() }

// Read copies the layer data back to host memory.
func (l *DataLayer) Read() ([]float32, error) {
	return num.ReadAll(l.Buf)
}

func (l *DataLayer) Release() {
	if l != nil && l.Buf != nil {
		l.Buf.Release()
	}
}

func (l *DataLayer) String() string {
	return fmt.Sprintf("%s %s", l.Buf.Role(), l.Dim())
}

// Kernel holds convolution filter weights on a device.
type Kernel struct {
	Desc dnn.FilterDesc
	Buf  num.Buffer
}

func (k *Kernel) Read() ([]float32, error) {
	return num.ReadAll(k.Buf)
}

func (k *Kernel) Release() {
	if k != nil && k.Buf != nil {
		k.Buf.Release()
	}
}

func (k *Kernel) String() string {
	return fmt.Sprintf("%s %dx%dx%dx%d", k.Buf.Role(), k.Desc.K, k.Desc.C, k.Desc.H, k.Desc.W)
}

// PoolingLayer holds the output of a pooling operation along with its parameters.
type PoolingLayer struct {
	DataLayer
	Src  dnn.TensorDesc
	Pool dnn.PoolDesc
}

// CreateInputDataLayer copies batchSize images of featureMaps x height x width values to
// the device. The data must be in NCHW order.
func CreateInputDataLayer(dev num.Device, hostData []float32, batchSize, featureMaps, height, width int) (*DataLayer, error) {
	desc, err := dnn.NewTensor(batchSize, featureMaps, height, width)
	if err != nil {
		return nil, fmt.Errorf("input layer: %w", err)
	}
	if len(hostData) != desc.Size() {
		return nil, fmt.Errorf("input layer: have %d values, expecting %d for shape %v: %w",
			len(hostData), desc.Size(), desc.Dims(), dnn.ErrShape)
	}
	buf, err := dev.Upload(dnn.Src, hostData)
	if err != nil {
		return nil, fmt.Errorf("input layer: %w", err)
	}
	klog.V(2).InfoS("created input layer", "device", dev.Name(), "shape", desc.Dim())
	return &DataLayer{Desc: desc, Buf: buf}, nil
}

// CreateKernel copies convolution weights for outFeatureMaps x inFeatureMaps filters of
// size kernelHeight x kernelWidth to the device.
func CreateKernel(dev num.Device, hostKernel []float32, inFeatureMaps, outFeatureMaps, kernelHeight, kernelWidth int) (*Kernel, error) {
	desc, err := dnn.NewFilter(outFeatureMaps, inFeatureMaps, kernelHeight, kernelWidth)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	if len(hostKernel) != desc.Size() {
		return nil, fmt.Errorf("kernel: have %d values, expecting %d for shape %v: %w",
			len(hostKernel), desc.Size(), desc.Dims(), dnn.ErrShape)
	}
	buf, err := dev.Upload(dnn.Filter, hostKernel)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	klog.V(2).InfoS("created kernel", "device", dev.Name(), "shape", desc.Dims())
	return &Kernel{Desc: desc, Buf: buf}, nil
}

// CreateOutputDataLayer allocates a zeroed buffer sized for the output of convolving the
// input layer with the kernel.
func CreateOutputDataLayer(dev num.Device, input *DataLayer, kernel *Kernel, conv dnn.ConvDesc) (*DataLayer, error) {
	dim, err := dev.ConvOutputDim(input.Desc, kernel.Desc, conv)
	if err != nil {
		return nil, fmt.Errorf("output layer: %w", err)
	}
	buf, err := dev.NewBuffer(dnn.Dst, dim.Size())
	if err != nil {
		return nil, fmt.Errorf("output layer: %w", err)
	}
	klog.V(2).InfoS("created output layer", "device", dev.Name(), "input", input.Dim(), "shape", dim)
	return &DataLayer{Desc: dim.Tensor(), Buf: buf}, nil
}

// AddBiasUnits copies bias values for outFeatureMaps maps of kernelHeight x kernelWidth to
// the device. Use 1x1 for a single bias value per feature map.
func AddBiasUnits(dev num.Device, hostBias []float32, outFeatureMaps, kernelHeight, kernelWidth int) (*DataLayer, error) {
	desc, err := dnn.NewTensor(1, outFeatureMaps, kernelHeight, kernelWidth)
	if err != nil {
		return nil, fmt.Errorf("bias: %w", err)
	}
	if len(hostBias) != desc.Size() {
		return nil, fmt.Errorf("bias: have %d values, expecting %d for shape %v: %w",
			len(hostBias), desc.Size(), desc.Dims(), dnn.ErrShape)
	}
	buf, err := dev.Upload(dnn.Bias, hostBias)
	if err != nil {
		return nil, fmt.Errorf("bias: %w", err)
	}
	klog.V(2).InfoS("created bias", "device", dev.Name(), "shape", desc.Dim())
	return &DataLayer{Desc: desc, Buf: buf}, nil
}

// CreatePoolingLayer runs a pooling pass over the input layer and returns the result.
func CreatePoolingLayer(dev num.Device, input *DataLayer, pool dnn.PoolDesc) (*PoolingLayer, error) {
	pool, err := pool.Normalise()
	if err != nil {
		return nil, fmt.Errorf("pooling layer: %w", err)
	}
	dim, err := dev.PoolOutputDim(input.Desc, pool)
	if err != nil {
		return nil, fmt.Errorf("pooling layer: %w", err)
	}
	buf, err := dev.NewBuffer(dnn.PoolDst, dim.Size())
	if err != nil {
		return nil, fmt.Errorf("pooling layer: %w", err)
	}
	if err := dev.PoolForward(input.Buf, buf, input.Desc, pool); err != nil {
		buf.Release()
		return nil, fmt.Errorf("pooling layer: %w", err)
	}
	klog.V(2).InfoS("created pooling layer", "device", dev.Name(), "mode", pool.Mode, "input", input.Dim(), "shape", dim)
	return &PoolingLayer{DataLayer: DataLayer{Desc: dim.Tensor(), Buf: buf}, Src: input.Desc, Pool: pool}, nil
}
