package nnet

import (
	"testing"

	"github.com/ryukinkou/scenelabeling/num"
	"github.com/ryukinkou/scenelabeling/num/dnn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lenetConfig() Config {
	return Config{
		BatchSize:   2,
		FeatureMaps: 1,
		Height:      32,
		Width:       32,
		Bias:        0.1,
		RandSeed:    42,
	}.AddLayers(
		Conv{Nfeats: 6, Size: 5},
		Pool{Size: 2},
		Conv{Nfeats: 16, Size: 5},
		Pool{Size: 2, Mode: "avg_excl_pad"},
	)
}

func TestNetwork(t *testing.T) {
	dev := num.NewCPUDevice()
	conf := lenetConfig()
	n, err := New(dev, conf, seq(2*32*32))
	require.NoError(t, err)
	defer n.Release()

	require.Len(t, n.Layers, 4)
	expect := []dnn.OutputDim{
		{Images: 2, FeatureMaps: 6, Height: 28, Width: 28},
		{Images: 2, FeatureMaps: 6, Height: 14, Width: 14},
		{Images: 2, FeatureMaps: 16, Height: 10, Width: 10},
		{Images: 2, FeatureMaps: 16, Height: 5, Width: 5},
	}
	for i, l := range n.Layers {
		assert.Equal(t, expect[i], l.Output().Dim(), "layer %d", i)
		assert.Equal(t, expect[i].Size(), l.Output().Buf.Size(), "layer %d", i)
	}
	assert.Equal(t, expect[3], n.Output().Dim())

	conv := n.Layers[0].(*convLayer)
	assert.Equal(t, dnn.FilterDesc{K: 6, C: 1, H: 5, W: 5}, conv.Kernel.Desc)
	bias, err := conv.Bias.Read()
	require.NoError(t, err)
	for _, b := range bias {
		assert.InDelta(t, 0.1, b, 1e-7)
	}
	weights, err := conv.Kernel.Read()
	require.NoError(t, err)
	for _, w := range weights {
		assert.LessOrEqual(t, w, float32(1.0/25))
		assert.GreaterOrEqual(t, w, float32(-1.0/25))
	}

	s := n.String()
	assert.Contains(t, s, "== Network on cpu ==")
	assert.Contains(t, s, "2x16x5x5")
}

func TestNetworkSameSeedSameWeights(t *testing.T) {
	dev := num.NewCPUDevice()
	conf := lenetConfig()
	n1, err := New(dev, conf, seq(2*32*32))
	require.NoError(t, err)
	defer n1.Release()
	n2, err := New(dev, conf, seq(2*32*32))
	require.NoError(t, err)
	defer n2.Release()
	w1, err := n1.Layers[2].(*convLayer).Kernel.Read()
	require.NoError(t, err)
	w2, err := n2.Layers[2].(*convLayer).Kernel.Read()
	require.NoError(t, err)
	assert.Equal(t, w1, w2)
}

func TestNetworkNoLayers(t *testing.T) {
	dev := num.NewCPUDevice()
	conf := Config{BatchSize: 1, FeatureMaps: 1, Height: 2, Width: 2}
	n, err := New(dev, conf, seq(4))
	require.NoError(t, err)
	assert.Same(t, n.Input, n.Output())
	n.Release()
	assert.Nil(t, n.Input)
}

func TestNetworkReleasesOnError(t *testing.T) {
	dev := num.NewCPUDevice()
	conf := Config{BatchSize: 1, FeatureMaps: 1, Height: 8, Width: 8}.AddLayers(
		Conv{Nfeats: 4, Size: 3},
		Pool{Size: 2},
		Conv{Nfeats: 4, Size: 5},
	)
	dev.Profiling(true)
	_, err := New(dev, conf, seq(64))
	assert.ErrorIs(t, err, dnn.ErrShape)
	assert.Contains(t, err.Error(), "layer 2")

	_, err = New(dev, conf, seq(63))
	assert.ErrorIs(t, err, dnn.ErrShape)

	bad := Config{BatchSize: 1, FeatureMaps: 1, Height: 8, Width: 8, Layers: []LayerConfig{{Type: "dense"}}}
	_, err = New(dev, bad, seq(64))
	assert.Error(t, err)
}

func TestNetworkBadPoolMode(t *testing.T) {
	dev := num.NewCPUDevice()
	conf := Config{BatchSize: 1, FeatureMaps: 1, Height: 8, Width: 8}.AddLayers(Pool{Size: 2, Mode: "median"})
	_, err := New(dev, conf, seq(64))
	assert.Error(t, err)
}

func TestNewInvalidLayer(t *testing.T) {
	dev := num.NewCPUDevice()
	for _, layer := range []ConfigLayer{
		Conv{Nfeats: -2, Size: 3},
		Conv{Nfeats: 4, Size: 0},
		Conv{Nfeats: 4, Size: -3},
		Conv{Nfeats: 4, Size: 3, Pad: -1},
		Conv{Nfeats: 4, Size: 3, Stride: -2},
		Pool{Size: -2},
	} {
		conf := Config{BatchSize: 1, FeatureMaps: 1, Height: 8, Width: 8}.AddLayers(layer)
		assert.NotPanics(t, func() {
			_, err := New(dev, conf, seq(64))
			assert.ErrorIs(t, err, dnn.ErrShape, layer.ToString())
		}, layer.ToString())
	}
}

func TestNewInvalidInput(t *testing.T) {
	dev := num.NewCPUDevice()
	conf := LeNet(1)
	conf.BatchSize = -1
	assert.NotPanics(t, func() {
		_, err := New(dev, conf, nil)
		assert.ErrorIs(t, err, dnn.ErrShape)
	})
}
