package num

import (
	"bytes"
	"testing"

	"github.com/ryukinkou/scenelabeling/num/dnn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDevice(t *testing.T) {
	dev, err := NewDevice(false)
	require.NoError(t, err)
	assert.Equal(t, "cpu", dev.Name())
	dev.Release()
}

func TestBuffer(t *testing.T) {
	dev := NewCPUDevice()
	defer dev.Release()
	data := []float32{1, 2, 3, 4, 5, 6}
	b, err := dev.Upload(dnn.Src, data)
	require.NoError(t, err)
	assert.Equal(t, dnn.Src, b.Role())
	assert.Equal(t, len(data), b.Size())
	assert.Equal(t, 24, Bytes(b, nil))
	assert.NotNil(t, b.Ptr())

	res, err := ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, data, res)

	// buffer holds a copy of the host data
	data[0] = 42
	res, err = ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, float32(1), res[0])

	assert.ErrorIs(t, b.Read(make([]float32, 7)), dnn.ErrShape)

	Release(b, nil)
	assert.Nil(t, b.Ptr())
	assert.ErrorIs(t, b.Read(make([]float32, 1)), ErrReleased)
	b.Release()
}

func TestNewBufferZeroed(t *testing.T) {
	dev := NewCPUDevice()
	b, err := dev.NewBuffer(dnn.Dst, 10)
	require.NoError(t, err)
	res, err := ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 10), res)

	_, err = dev.NewBuffer(dnn.Dst, 0)
	assert.ErrorIs(t, err, dnn.ErrShape)
	_, err = dev.Upload(dnn.Src, nil)
	assert.ErrorIs(t, err, dnn.ErrShape)
}

func poolTest(t *testing.T, in dnn.TensorDesc, pool dnn.PoolDesc, data []float32) ([]float32, dnn.OutputDim) {
	dev := NewCPUDevice()
	src, err := dev.Upload(dnn.Src, data)
	require.NoError(t, err)
	dim, err := dev.PoolOutputDim(in, pool)
	require.NoError(t, err)
	dst, err := dev.NewBuffer(dnn.PoolDst, dim.Size())
	require.NoError(t, err)
	require.NoError(t, dev.PoolForward(src, dst, in, pool))
	res, err := ReadAll(dst)
	require.NoError(t, err)
	Release(src, dst)
	return res, dim
}

func TestMaxPool(t *testing.T) {
	in := dnn.TensorDesc{N: 1, C: 1, H: 4, W: 4}
	res, dim := poolTest(t, in, dnn.PoolDesc{WindowH: 2, WindowW: 2, StrideV: 2, StrideH: 2}, seq(16))
	assert.Equal(t, dnn.OutputDim{Images: 1, FeatureMaps: 1, Height: 2, Width: 2}, dim)
	assert.Equal(t, []float32{6, 8, 14, 16}, res)
}

func TestMaxPoolOverlapping(t *testing.T) {
	in := dnn.TensorDesc{N: 1, C: 1, H: 5, W: 5}
	res, dim := poolTest(t, in, dnn.PoolDesc{WindowH: 3, WindowW: 3, StrideV: 1, StrideH: 1}, seq(25))
	assert.Equal(t, 3, dim.Height)
	assert.Equal(t, []float32{13, 14, 15, 18, 19, 20, 23, 24, 25}, res)
}

func TestMaxPoolMultiChannel(t *testing.T) {
	in := dnn.TensorDesc{N: 2, C: 2, H: 2, W: 2}
	res, dim := poolTest(t, in, dnn.PoolDesc{WindowH: 2, WindowW: 2}, seq(16))
	assert.Equal(t, dnn.OutputDim{Images: 2, FeatureMaps: 2, Height: 1, Width: 1}, dim)
	assert.Equal(t, []float32{4, 8, 12, 16}, res)
}

func TestAvgPool(t *testing.T) {
	in := dnn.TensorDesc{N: 1, C: 1, H: 4, W: 4}
	res, _ := poolTest(t, in, dnn.PoolDesc{Mode: dnn.AvgPoolInclPad, WindowH: 2, WindowW: 2}, seq(16))
	assert.Equal(t, []float32{3.5, 5.5, 11.5, 13.5}, res)
}

func TestAvgPoolPadding(t *testing.T) {
	in := dnn.TensorDesc{N: 1, C: 1, H: 2, W: 2}
	data := []float32{1, 2, 3, 4}
	pool := dnn.PoolDesc{WindowH: 2, WindowW: 2, PadH: 1, PadW: 1}

	pool.Mode = dnn.AvgPoolExclPad
	res, dim := poolTest(t, in, pool, data)
	assert.Equal(t, 2, dim.Height)
	assert.Equal(t, []float32{1, 2, 3, 4}, res)

	pool.Mode = dnn.AvgPoolInclPad
	res, _ = poolTest(t, in, pool, data)
	assert.Equal(t, []float32{0.25, 0.5, 0.75, 1}, res)

	pool.Mode = dnn.MaxPool
	res, _ = poolTest(t, in, pool, []float32{-1, -2, -3, -4})
	assert.Equal(t, []float32{-1, -2, -3, -4}, res)
}

func TestPoolForwardErrors(t *testing.T) {
	dev := NewCPUDevice()
	in := dnn.TensorDesc{N: 1, C: 1, H: 4, W: 4}
	pool := dnn.PoolDesc{WindowH: 2, WindowW: 2}
	src, err := dev.Upload(dnn.Src, seq(16))
	require.NoError(t, err)
	small, err := dev.NewBuffer(dnn.PoolDst, 3)
	require.NoError(t, err)
	assert.ErrorIs(t, dev.PoolForward(src, small, in, pool), dnn.ErrShape)

	dst, err := dev.NewBuffer(dnn.PoolDst, 4)
	require.NoError(t, err)
	src.Release()
	assert.ErrorIs(t, dev.PoolForward(src, dst, in, pool), ErrReleased)
}

func TestProfile(t *testing.T) {
	dev := NewCPUDevice()
	b, err := dev.Upload(dnn.Src, seq(4))
	require.NoError(t, err)
	b.Release()
	assert.Equal(t, 0, dev.(*cpuDevice).calls("alloc"), "profiling is off by default")

	dev.Profiling(true)
	for i := 0; i < 3; i++ {
		b, err := dev.Upload(dnn.Src, seq(4))
		require.NoError(t, err)
		b.Release()
	}
	assert.Equal(t, 3, dev.(*cpuDevice).calls("alloc"))
	assert.Equal(t, 3, dev.(*cpuDevice).calls("copy_h2d"))

	var buf bytes.Buffer
	dev.PrintProfile(&buf)
	assert.Contains(t, buf.String(), "== Profile ==")
	assert.Contains(t, buf.String(), "alloc")
	assert.Contains(t, buf.String(), "TOTAL")
}
