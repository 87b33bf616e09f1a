package dnn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvOutputDim(t *testing.T) {
	tests := []struct {
		name   string
		src    TensorDesc
		filt   FilterDesc
		conv   ConvDesc
		expect OutputDim
	}{
		{"lenet", TensorDesc{1, 1, 32, 32}, FilterDesc{6, 1, 5, 5}, ConvDesc{}, OutputDim{1, 6, 28, 28}},
		{"same", TensorDesc{2, 3, 28, 28}, FilterDesc{20, 3, 5, 5}, ConvDesc{PadH: 2, PadW: 2}, OutputDim{2, 20, 28, 28}},
		{"stride", TensorDesc{1, 3, 227, 227}, FilterDesc{96, 3, 11, 11}, ConvDesc{StrideH: 4, StrideW: 4}, OutputDim{1, 96, 55, 55}},
		{"dilation", TensorDesc{1, 1, 10, 10}, FilterDesc{1, 1, 3, 3}, ConvDesc{DilationH: 2, DilationW: 2}, OutputDim{1, 1, 6, 6}},
		{"rect", TensorDesc{1, 1, 12, 8}, FilterDesc{4, 1, 3, 1}, ConvDesc{StrideH: 3}, OutputDim{1, 4, 4, 8}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dim, err := ConvOutputDim(tc.src, tc.filt, tc.conv)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, dim)
		})
	}
}

func TestConvOutputDimErrors(t *testing.T) {
	_, err := ConvOutputDim(TensorDesc{1, 3, 32, 32}, FilterDesc{6, 1, 5, 5}, ConvDesc{})
	assert.ErrorIs(t, err, ErrShape)

	_, err = ConvOutputDim(TensorDesc{1, 1, 4, 4}, FilterDesc{6, 1, 5, 5}, ConvDesc{})
	assert.ErrorIs(t, err, ErrShape)

	_, err = ConvOutputDim(TensorDesc{0, 1, 4, 4}, FilterDesc{6, 1, 3, 3}, ConvDesc{})
	assert.ErrorIs(t, err, ErrShape)

	_, err = ConvOutputDim(TensorDesc{1, 1, 8, 8}, FilterDesc{6, 1, 3, 3}, ConvDesc{PadH: -1})
	assert.ErrorIs(t, err, ErrShape)
}

func TestPoolOutputDim(t *testing.T) {
	dim, err := PoolOutputDim(TensorDesc{1, 6, 28, 28}, PoolDesc{WindowH: 2, WindowW: 2, StrideV: 2, StrideH: 2})
	require.NoError(t, err)
	assert.Equal(t, OutputDim{1, 6, 14, 14}, dim)

	// strides default to the window size
	dim, err = PoolOutputDim(TensorDesc{4, 16, 10, 10}, PoolDesc{WindowH: 2, WindowW: 2})
	require.NoError(t, err)
	assert.Equal(t, OutputDim{4, 16, 5, 5}, dim)

	dim, err = PoolOutputDim(TensorDesc{1, 1, 5, 5}, PoolDesc{WindowH: 3, WindowW: 3, StrideV: 1, StrideH: 1})
	require.NoError(t, err)
	assert.Equal(t, OutputDim{1, 1, 3, 3}, dim)

	dim, err = PoolOutputDim(TensorDesc{1, 1, 5, 5}, PoolDesc{WindowH: 2, WindowW: 2, PadH: 1, PadW: 1})
	require.NoError(t, err)
	assert.Equal(t, OutputDim{1, 1, 3, 3}, dim)
}

func TestPoolOutputDimErrors(t *testing.T) {
	_, err := PoolOutputDim(TensorDesc{1, 1, 4, 4}, PoolDesc{})
	assert.ErrorIs(t, err, ErrShape)

	_, err = PoolOutputDim(TensorDesc{1, 1, 2, 2}, PoolDesc{WindowH: 3, WindowW: 3})
	assert.ErrorIs(t, err, ErrShape)

	_, err = PoolOutputDim(TensorDesc{1, 1, 8, 8}, PoolDesc{WindowH: 2, WindowW: 2, PadH: 2})
	assert.ErrorIs(t, err, ErrShape)
}

func TestOutputDim(t *testing.T) {
	d := OutputDim{Images: 2, FeatureMaps: 3, Height: 4, Width: 5}
	assert.Equal(t, 120, d.Size())
	assert.Equal(t, TensorDesc{2, 3, 4, 5}, d.Tensor())
	assert.Equal(t, d, d.Tensor().Dim())
	assert.Equal(t, "2x3x4x5", d.String())
}

func TestNames(t *testing.T) {
	assert.Equal(t, "Filter", Filter.String())
	assert.Equal(t, "ResType(42)", ResType(42).String())
	for _, m := range []PoolMode{MaxPool, AvgPoolInclPad, AvgPoolExclPad} {
		got, err := ParsePoolMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	m, err := ParsePoolMode("")
	require.NoError(t, err)
	assert.Equal(t, MaxPool, m)
	_, err = ParsePoolMode("median")
	assert.Error(t, err)
}
