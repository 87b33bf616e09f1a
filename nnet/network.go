// Package nnet builds convolutional network layers on a num.Device.
package nnet

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/ryukinkou/scenelabeling/num"
	"github.com/ryukinkou/scenelabeling/num/dnn"
	"k8s.io/klog/v2"
)

// Layer interface type represents one built layer of the network.
type Layer interface {
	// Output data of the layer
	Output() *DataLayer
	// Release all buffers owned by the layer
	Release()
	ToString() string
}

// Network holds a stack of layers built on a single device and owns all of their buffers.
type Network struct {
	Config
	Input  *DataLayer
	Layers []Layer
	dev    num.Device
	rng    *rand.Rand
}

// New builds the network described by conf with the given input data. On error any
// buffers allocated so far are released.
func New(dev num.Device, conf Config, input []float32) (n *Network, err error) {
	n = &Network{Config: conf, dev: dev, rng: rand.New(rand.NewSource(conf.RandSeed))}
	defer func() {
		if err != nil {
			n.Release()
			n = nil
		}
	}()
	n.Input, err = CreateInputDataLayer(dev, input, conf.BatchSize, conf.FeatureMaps, conf.Height, conf.Width)
	if err != nil {
		return
	}
	prev := n.Input
	for i, lc := range conf.Layers {
		var cfg ConfigLayer
		if cfg, err = lc.Unmarshal(); err != nil {
			return
		}
		var layer Layer
		if layer, err = cfg.build(n, prev); err != nil {
			err = fmt.Errorf("layer %d %s: %w", i, cfg.ToString(), err)
			return
		}
		n.Layers = append(n.Layers, layer)
		prev = layer.Output()
	}
	klog.V(1).InfoS("built network", "device", dev.Name(), "layers", len(n.Layers), "output", n.Output().Dim())
	return n, nil
}

// Output returns the data from the last layer, or the input if there are no layers.
func (n *Network) Output() *DataLayer {
	if len(n.Layers) == 0 {
		return n.Input
	}
	return n.Layers[len(n.Layers)-1].Output()
}

// Release all layers. The device is owned by the caller and is not released.
func (n *Network) Release() {
	for _, l := range n.Layers {
		l.Release()
	}
	n.Layers = nil
	n.Input.Release()
	n.Input = nil
}

func (n *Network) String() string {
	str := []string{fmt.Sprintf("== Network on %s ==", n.dev.Name())}
	if n.Input != nil {
		str = append(str, fmt.Sprintf("%2d: %-40s => %s", 0, "input", n.Input.Dim()))
	}
	for i, l := range n.Layers {
		str = append(str, fmt.Sprintf("%2d: %-40s => %s", i+1, l.ToString(), l.Output().Dim()))
	}
	return strings.Join(str, "\n")
}

// CheckErr logs the error and exits if it is not nil
func CheckErr(err error) {
	if err != nil {
		klog.ErrorS(err, "fatal error")
		klog.FlushAndExit(klog.ExitFlushTimeout, 1)
	}
}

// convolution layer with kernel, bias and output buffers
type convLayer struct {
	Conv
	Kernel *Kernel
	Bias   *DataLayer
	Dst    *DataLayer
}

func (c Conv) build(n *Network, in *DataLayer) (Layer, error) {
	nIn := in.Desc.C
	filt, err := dnn.NewFilter(c.Nfeats, nIn, c.Size, c.Size)
	if err != nil {
		return nil, err
	}
	conv, err := dnn.ConvDesc{PadH: c.Pad, PadW: c.Pad, StrideH: c.Stride, StrideW: c.Stride}.Normalise()
	if err != nil {
		return nil, err
	}
	l := &convLayer{Conv: c}
	scale := float32(n.WeightScale)
	if scale == 0 {
		scale = 1 / float32(c.Size*c.Size*nIn)
	}
	weights := make([]float32, filt.Size())
	for i := range weights {
		weights[i] = scale * (2*n.rng.Float32() - 1)
	}
	if l.Kernel, err = CreateKernel(n.dev, weights, nIn, c.Nfeats, c.Size, c.Size); err != nil {
		return nil, err
	}
	bias := make([]float32, c.Nfeats)
	for i := range bias {
		bias[i] = float32(n.Bias)
	}
	if l.Bias, err = AddBiasUnits(n.dev, bias, c.Nfeats, 1, 1); err != nil {
		l.Release()
		return nil, err
	}
	if l.Dst, err = CreateOutputDataLayer(n.dev, in, l.Kernel, conv); err != nil {
		l.Release()
		return nil, err
	}
	return l, nil
}

func (l *convLayer) Output() *DataLayer { return l.Dst }

func (l *convLayer) Release() {
	l.Kernel.Release()
	l.Bias.Release()
	l.Dst.Release()
}

// pooling layer
type poolLayer struct {
	Pool
	*PoolingLayer
}

func (c Pool) build(n *Network, in *DataLayer) (Layer, error) {
	mode, err := dnn.ParsePoolMode(c.Mode)
	if err != nil {
		return nil, err
	}
	p := dnn.PoolDesc{Mode: mode, WindowH: c.Size, WindowW: c.Size, StrideV: c.Stride, StrideH: c.Stride}
	pl, err := CreatePoolingLayer(n.dev, in, p)
	if err != nil {
		return nil, err
	}
	return &poolLayer{Pool: c, PoolingLayer: pl}, nil
}

func (l *poolLayer) Output() *DataLayer { return &l.DataLayer }
