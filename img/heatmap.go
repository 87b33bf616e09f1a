package img

import (
	"fmt"
	"io"

	"github.com/ryukinkou/scenelabeling/num"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgsvg"
)

// number of colours in the heat map palette
const paletteSize = 64

// grid adapts a row major matrix to plotter.GridXYZ with row 0 drawn at the top
type grid struct {
	m          num.Matrix
	rows, cols int
}

func newGrid(m num.Matrix) grid {
	rows, cols := m.Dims()
	return grid{m: m, rows: rows, cols: cols}
}

func (g grid) Dims() (c, r int) { return g.cols, g.rows }

func (g grid) Z(c, r int) float64 { return float64(g.m[g.rows-1-r][c]) }

func (g grid) X(c int) float64 { return float64(c) }

func (g grid) Y(r int) float64 { return float64(r) }

// Heatmap returns a plot of the matrix values
func Heatmap(m num.Matrix, title string) (*plot.Plot, error) {
	rows, cols := m.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("Heatmap: empty matrix")
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Padding, p.Y.Padding = 0, 0
	h := plotter.NewHeatMap(newGrid(m), palette.Heat(paletteSize, 1))
	if h.Min == h.Max {
		// constant data, e.g. an unfilled output buffer
		h.Min, h.Max = h.Min-0.5, h.Max+0.5
	}
	p.Add(h)
	return p, nil
}

// WriteHeatmapSVG writes a heat map of the matrix as an svg image of the given size in pixels.
func WriteHeatmapSVG(w io.Writer, m num.Matrix, title string, width, height int) error {
	p, err := Heatmap(m, title)
	if err != nil {
		return err
	}
	writer, err := p.WriterTo(vg.Points(float64(width)), vg.Points(float64(height)), "svg")
	if err != nil {
		return err
	}
	_, err = writer.WriteTo(w)
	return err
}

// WriteFeatureMapsSVG draws one heat map per feature map, tiled with cols per row. Each
// tile is size pixels square.
func WriteFeatureMapsSVG(w io.Writer, maps []num.Matrix, cols, size int) error {
	if len(maps) == 0 {
		return fmt.Errorf("WriteFeatureMapsSVG: no feature maps")
	}
	if cols <= 0 || cols > len(maps) {
		cols = len(maps)
	}
	rows := (len(maps) + cols - 1) / cols
	plots := make([][]*plot.Plot, rows)
	for j := range plots {
		plots[j] = make([]*plot.Plot, cols)
		for i := range plots[j] {
			ix := j*cols + i
			if ix >= len(maps) {
				p := plot.New()
				p.HideAxes()
				plots[j][i] = p
				continue
			}
			p, err := Heatmap(maps[ix], fmt.Sprintf("map %d", ix))
			if err != nil {
				return err
			}
			plots[j][i] = p
		}
	}
	tile := vg.Points(float64(size))
	canvas := vgsvg.New(tile*vg.Length(cols), tile*vg.Length(rows))
	tiles := draw.Tiles{Rows: rows, Cols: cols, PadX: vg.Millimeter, PadY: vg.Millimeter}
	canvases := plot.Align(plots, tiles, draw.New(canvas))
	for j := range plots {
		for i, p := range plots[j] {
			p.Draw(canvases[j][i])
		}
	}
	_, err := canvas.WriteTo(w)
	return err
}
