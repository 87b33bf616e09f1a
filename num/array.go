package num

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/ryukinkou/scenelabeling/num/dnn"
)

// Parameters for array printing
var (
	PrintThreshold = 12
	PrintEdgeitems = 4
)

// Tolerances used by FloatIsEqual
const (
	AbsTolerance = 1e-6
	RelTolerance = 1e-5
)

// Matrix is a row major two dimensional array.
type Matrix [][]float32

// Dims returns the number of rows and columns
func (m Matrix) Dims() (rows, cols int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m), len(m[0])
}

// Flatten copies the matrix back to a flat row major array.
func (m Matrix) Flatten() []float32 {
	rows, cols := m.Dims()
	arr := make([]float32, 0, rows*cols)
	for _, row := range m {
		arr = append(arr, row...)
	}
	return arr
}

func (m Matrix) String() string {
	rows, cols := m.Dims()
	return SprintArray([]int{rows, cols}, m.Flatten())
}

// VectorToArray returns a copy of the vector as a new flat array of the same length.
func VectorToArray(v []float32) []float32 {
	arr := make([]float32, len(v))
	copy(arr, v)
	return arr
}

// ArrayToMatrix reshapes a flat array into height rows of width elements.
func ArrayToMatrix(array []float32, width, height int) (Matrix, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("ArrayToMatrix: invalid size %dx%d: %w", width, height, dnn.ErrShape)
	}
	if len(array) != width*height {
		return nil, fmt.Errorf("ArrayToMatrix: array length %d != width %d x height %d: %w",
			len(array), width, height, dnn.ErrShape)
	}
	m := make(Matrix, height)
	for i := range m {
		m[i] = make([]float32, width)
		copy(m[i], array[i*width:(i+1)*width])
	}
	return m, nil
}

// FloatIsEqual compares two values using an absolute tolerance near zero and a relative
// tolerance otherwise. NaN is not equal to any value.
func FloatIsEqual(a, b float32) bool {
	if a == b {
		return true
	}
	x, y := float64(a), float64(b)
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return false
	}
	diff := math.Abs(x - y)
	if diff <= AbsTolerance {
		return true
	}
	return diff <= RelTolerance*math.Max(math.Abs(x), math.Abs(y))
}

// SplitArray returns part segments of length step, segment i starting at i*step.
// The segments share memory with array and have their capacity capped so appending to
// one does not overwrite the next. Any elements after part*step are not included.
func SplitArray(array []float32, part, step int) ([][]float32, error) {
	if part <= 0 || step <= 0 {
		return nil, fmt.Errorf("SplitArray: part %d and step %d must be positive: %w", part, step, dnn.ErrShape)
	}
	if part*step > len(array) {
		return nil, fmt.Errorf("SplitArray: %d parts of %d exceeds array length %d: %w",
			part, step, len(array), dnn.ErrShape)
	}
	res := make([][]float32, part)
	for i := range res {
		res[i] = array[i*step : (i+1)*step : (i+1)*step]
	}
	return res, nil
}

// PrintDynamicArray writes the first length elements of array to w.
func PrintDynamicArray(w io.Writer, array []float32, length int) error {
	if length < 0 || length > len(array) {
		return fmt.Errorf("PrintDynamicArray: length %d out of range for array of %d: %w", length, len(array), dnn.ErrShape)
	}
	_, err := fmt.Fprintln(w, SprintArray([]int{length}, array[:length]))
	return err
}

// SprintArray formats data with the given row major shape. Dimensions larger than
// PrintThreshold are truncated to PrintEdgeitems values at each end.
func SprintArray(dims []int, data []float32) string {
	if Prod(dims) > len(data) {
		return fmt.Sprintf("<invalid shape %v for %d values>", dims, len(data))
	}
	if len(dims) == 0 {
		return strings.TrimSpace(formatValue(data[0]))
	}
	return strings.TrimSuffix(format(dims, data, 0, ""), "\n")
}

func format(dims []int, data []float32, at int, indent string) string {
	var s strings.Builder
	if len(dims) == 1 {
		s.WriteString("[")
		for i := 0; i < dims[0]; i++ {
			if dims[0] > PrintThreshold+1 && i == PrintEdgeitems {
				s.WriteString("    ... ")
				i = dims[0] - PrintEdgeitems - 1
				continue
			}
			s.WriteString(formatValue(data[at+i]))
		}
		s.WriteString("]")
		return s.String()
	}
	size := Prod(dims[1:])
	for i := 0; i < dims[0]; i++ {
		pre, post := " ", "\n"
		if i == 0 {
			pre = "["
		}
		if i == dims[0]-1 {
			post = "]\n"
		}
		if dims[0] > PrintThreshold+1 && i == PrintEdgeitems {
			s.WriteString(indent + " ...\n")
			i = dims[0] - PrintEdgeitems - 1
			continue
		}
		if i == 0 {
			s.WriteString(pre)
		} else {
			s.WriteString(indent + pre)
		}
		s.WriteString(strings.TrimSuffix(format(dims[1:], data, at+i*size, indent+" "), "\n"))
		s.WriteString(post)
	}
	return s.String()
}

func formatValue(val float32) string {
	if abs(val) < 1 {
		val = float32(math.Round(10000*float64(val))) / 10000
	}
	return fmt.Sprintf("%7.5g ", val)
}

func abs(x float32) float32 {
	if x >= 0 {
		return x
	}
	return -x
}

// Product of elements of an integer array. Zero dimension array (scalar) has size 1.
func Prod(arr []int) int {
	prod := 1
	for _, v := range arr {
		prod *= v
	}
	return prod
}

// Check if two arrays are the same shape
func SameShape(xd, yd []int) bool {
	if len(xd) != len(yd) {
		return false
	}
	for i := range xd {
		if xd[i] != yd[i] {
			return false
		}
	}
	return true
}
