package inference

import (
	"fmt"
	"math"
)

// Tensor is a dense channels×height×width float32 array in CHW order.
type Tensor struct {
	C, H, W int
	Data    []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(c, h, w int) Tensor {
	return Tensor{C: c, H: h, W: w, Data: make([]float32, c*h*w)}
}

// At returns the value at channel c, row y, column x.
func (t Tensor) At(c, y, x int) float32 {
	return t.Data[(c*t.H+y)*t.W+x]
}

// Set stores v at channel c, row y, column x.
func (t Tensor) Set(c, y, x int, v float32) {
	t.Data[(c*t.H+y)*t.W+x] = v
}

// Shape returns [C, H, W].
func (t Tensor) Shape() [3]int { return [3]int{t.C, t.H, t.W} }

// AbsDiff returns |a - b| element-wise. Shapes must match.
func AbsDiff(a, b Tensor) (Tensor, error) {
	if a.Shape() != b.Shape() {
		return Tensor{}, fmt.Errorf("inference: shape mismatch %v vs %v", a.Shape(), b.Shape())
	}
	out := NewTensor(a.C, a.H, a.W)
	for i := range a.Data {
		out.Data[i] = float32(math.Abs(float64(a.Data[i] - b.Data[i])))
	}
	return out, nil
}

// Normalize applies (v - mean[c]) / std[c] per channel in place.
func (t Tensor) Normalize(mean, std []float32) error {
	if len(mean) != t.C || len(std) != t.C {
		return fmt.Errorf("inference: normalize wants %d channels, got mean=%d std=%d", t.C, len(mean), len(std))
	}
	plane := t.H * t.W
	for c := 0; c < t.C; c++ {
		m, s := mean[c], std[c]
		if s == 0 {
			return fmt.Errorf("inference: zero std for channel %d", c)
		}
		d := t.Data[c*plane : (c+1)*plane]
		for i := range d {
			d[i] = (d[i] - m) / s
		}
	}
	return nil
}
