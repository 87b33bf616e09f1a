// Package img renders feature maps held in host memory as images.
package img

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/ryukinkou/scenelabeling/num"
	"github.com/ryukinkou/scenelabeling/num/dnn"
)

var GrayModel = color.ModelFunc(grayModel)

// Gray color stored a float in range 0-1
type Gray struct {
	Y float32
}

func (c Gray) RGBA() (r, g, b, a uint32) {
	y := clampu(c.Y, 0, 1)
	return y, y, y, 0xffff
}

func grayModel(c color.Color) color.Color {
	if _, ok := c.(Gray); ok {
		return c
	}
	r, g, b, _ := c.RGBA()
	return Gray{Y: 0.299*float32(r)/0xffff + 0.587*float32(g)/0xffff + 0.114*float32(b)/0xffff}
}

// GrayImage type stores the image data as float32 values in row major order.
type GrayImage struct {
	Pix    []float32
	Height int
	Width  int
}

func NewGray(width, height int) *GrayImage {
	return &GrayImage{Pix: make([]float32, height*width), Height: height, Width: width}
}

// FromMatrix creates an image from the matrix with values rescaled to the range 0-1.
func FromMatrix(m num.Matrix) *GrayImage {
	rows, cols := m.Dims()
	dst := NewGray(cols, rows)
	copy(dst.Pix, m.Flatten())
	lo, hi := minMax(dst.Pix)
	if hi > lo {
		for i, v := range dst.Pix {
			dst.Pix[i] = (v - lo) / (hi - lo)
		}
	} else {
		for i := range dst.Pix {
			dst.Pix[i] = 0
		}
	}
	return dst
}

func (m *GrayImage) ColorModel() color.Model {
	return GrayModel
}

func (m *GrayImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

func (m *GrayImage) GrayAt(x, y int) Gray {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return Gray{}
	}
	return Gray{Y: m.Pix[x+y*m.Width]}
}

func (m *GrayImage) At(x, y int) color.Color {
	return m.GrayAt(x, y)
}

func (m *GrayImage) Set(x, y int, c color.Color) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return
	}
	m.Pix[x+y*m.Width] = grayModel(c).(Gray).Y
}

// WritePNG encodes the matrix as a grayscale png
func WritePNG(w io.Writer, m num.Matrix) error {
	return png.Encode(w, FromMatrix(m))
}

// FeatureMaps splits the data for one image of a layer output into a matrix per feature map.
func FeatureMaps(data []float32, dim dnn.OutputDim, image int) ([]num.Matrix, error) {
	if len(data) != dim.Size() {
		return nil, fmt.Errorf("FeatureMaps: have %d values for shape %s: %w", len(data), dim, dnn.ErrShape)
	}
	if image < 0 || image >= dim.Images {
		return nil, fmt.Errorf("FeatureMaps: image %d out of range: %w", image, dnn.ErrShape)
	}
	imgs, err := num.SplitArray(data, dim.Images, dim.FeatureMaps*dim.Height*dim.Width)
	if err != nil {
		return nil, err
	}
	maps, err := num.SplitArray(imgs[image], dim.FeatureMaps, dim.Height*dim.Width)
	if err != nil {
		return nil, err
	}
	res := make([]num.Matrix, len(maps))
	for i, fm := range maps {
		if res[i], err = num.ArrayToMatrix(fm, dim.Width, dim.Height); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func minMax(data []float32) (lo, hi float32) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi = data[0], data[0]
	for _, v := range data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func clamp(x, x0, x1 float32) float32 {
	if x < x0 {
		return x0
	}
	if x > x1 {
		return x1
	}
	return x
}

func clampu(x, x0, x1 float32) uint32 {
	return uint32(clamp(x, x0, x1) * 0xffff)
}
