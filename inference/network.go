package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Layer types understood by Network.
const (
	LayerConv2D        = "conv2d"
	LayerReLU          = "relu"
	LayerMaxPool       = "maxpool"
	LayerAvgPool       = "avgpool"
	LayerGlobalAvgPool = "global_avg_pool"
	LayerFlatten       = "flatten"
	LayerLinear        = "linear"
)

// Layer is one stage of a Network. Which fields apply depends on Type.
// Convolution weights are laid out [out][in][k][k], linear weights [out][in].
type Layer struct {
	Type    string    `json:"type"`
	In      int       `json:"in,omitempty"`
	Out     int       `json:"out,omitempty"`
	Kernel  int       `json:"kernel,omitempty"`
	Stride  int       `json:"stride,omitempty"`
	Padding int       `json:"padding,omitempty"`
	Weights []float32 `json:"weights,omitempty"`
	Bias    []float32 `json:"bias,omitempty"`
}

// Network is a small feed-forward CNN evaluated on the CPU.
type Network struct {
	Name   string  `json:"name"`
	Input  [3]int  `json:"input"`
	Layers []Layer `json:"layers"`
}

// LoadNetwork reads and validates a JSON network file.
func LoadNetwork(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inference: read %s: %w", path, err)
	}
	var n Network
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("inference: parse %s: %w", path, err)
	}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("inference: %s: %w", path, err)
	}
	return &n, nil
}

// Validate checks that every layer's parameters are consistent.
func (n *Network) Validate() error {
	if len(n.Layers) == 0 {
		return fmt.Errorf("network has no layers")
	}
	for i := range n.Layers {
		l := &n.Layers[i]
		if l.Stride <= 0 {
			l.Stride = 1
		}
		switch l.Type {
		case LayerConv2D:
			if l.In <= 0 || l.Out <= 0 || l.Kernel <= 0 {
				return fmt.Errorf("layer %d: conv2d needs in, out and kernel", i)
			}
			if want := l.Out * l.In * l.Kernel * l.Kernel; len(l.Weights) != want {
				return fmt.Errorf("layer %d: conv2d has %d weights, want %d", i, len(l.Weights), want)
			}
			if len(l.Bias) != 0 && len(l.Bias) != l.Out {
				return fmt.Errorf("layer %d: conv2d has %d biases, want %d", i, len(l.Bias), l.Out)
			}
		case LayerLinear:
			if l.In <= 0 || l.Out <= 0 {
				return fmt.Errorf("layer %d: linear needs in and out", i)
			}
			if want := l.Out * l.In; len(l.Weights) != want {
				return fmt.Errorf("layer %d: linear has %d weights, want %d", i, len(l.Weights), want)
			}
			if len(l.Bias) != 0 && len(l.Bias) != l.Out {
				return fmt.Errorf("layer %d: linear has %d biases, want %d", i, len(l.Bias), l.Out)
			}
		case LayerMaxPool, LayerAvgPool:
			if l.Kernel <= 0 {
				return fmt.Errorf("layer %d: %s needs kernel", i, l.Type)
			}
		case LayerReLU, LayerGlobalAvgPool, LayerFlatten:
		default:
			return fmt.Errorf("layer %d: unknown type %q", i, l.Type)
		}
	}
	return nil
}

// Predict runs the forward pass and returns the final activations.
func (n *Network) Predict(ctx context.Context, in Tensor) ([]float32, error) {
	if n.Input != [3]int{} && in.Shape() != n.Input {
		return nil, fmt.Errorf("inference: %s wants input %v, got %v", n.Name, n.Input, in.Shape())
	}
	x := in
	for i, l := range n.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		switch l.Type {
		case LayerConv2D:
			x, err = conv2d(x, l)
		case LayerReLU:
			x = relu(x)
		case LayerMaxPool:
			x = pool(x, l.Kernel, l.Stride, true)
		case LayerAvgPool:
			x = pool(x, l.Kernel, l.Stride, false)
		case LayerGlobalAvgPool:
			x = globalAvgPool(x)
		case LayerFlatten:
			x = Tensor{C: len(x.Data), H: 1, W: 1, Data: x.Data}
		case LayerLinear:
			x, err = linear(x, l)
		}
		if err != nil {
			return nil, fmt.Errorf("inference: layer %d (%s): %w", i, l.Type, err)
		}
	}
	return x.Data, nil
}

func conv2d(x Tensor, l Layer) (Tensor, error) {
	if x.C != l.In {
		return Tensor{}, fmt.Errorf("input has %d channels, want %d", x.C, l.In)
	}
	k, s, p := l.Kernel, max(l.Stride, 1), l.Padding
	oh := (x.H+2*p-k)/s + 1
	ow := (x.W+2*p-k)/s + 1
	if oh <= 0 || ow <= 0 {
		return Tensor{}, fmt.Errorf("input %dx%d too small for kernel %d", x.H, x.W, k)
	}
	out := NewTensor(l.Out, oh, ow)
	for o := 0; o < l.Out; o++ {
		var bias float32
		if len(l.Bias) > 0 {
			bias = l.Bias[o]
		}
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				sum := bias
				for c := 0; c < l.In; c++ {
					wBase := ((o*l.In + c) * k) * k
					for ky := 0; ky < k; ky++ {
						iy := oy*s + ky - p
						if iy < 0 || iy >= x.H {
							continue
						}
						for kx := 0; kx < k; kx++ {
							ix := ox*s + kx - p
							if ix < 0 || ix >= x.W {
								continue
							}
							sum += l.Weights[wBase+ky*k+kx] * x.At(c, iy, ix)
						}
					}
				}
				out.Set(o, oy, ox, sum)
			}
		}
	}
	return out, nil
}

func relu(x Tensor) Tensor {
	out := NewTensor(x.C, x.H, x.W)
	for i, v := range x.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out
}

func pool(x Tensor, k, s int, useMax bool) Tensor {
	s = max(s, 1)
	oh := (x.H-k)/s + 1
	ow := (x.W-k)/s + 1
	if oh < 1 {
		oh = 1
	}
	if ow < 1 {
		ow = 1
	}
	out := NewTensor(x.C, oh, ow)
	for c := 0; c < x.C; c++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				acc := float32(math.Inf(-1))
				if !useMax {
					acc = 0
				}
				count := 0
				for ky := 0; ky < k && oy*s+ky < x.H; ky++ {
					for kx := 0; kx < k && ox*s+kx < x.W; kx++ {
						v := x.At(c, oy*s+ky, ox*s+kx)
						if useMax {
							if v > acc {
								acc = v
							}
						} else {
							acc += v
						}
						count++
					}
				}
				if !useMax && count > 0 {
					acc /= float32(count)
				}
				out.Set(c, oy, ox, acc)
			}
		}
	}
	return out
}

func globalAvgPool(x Tensor) Tensor {
	out := NewTensor(x.C, 1, 1)
	plane := x.H * x.W
	for c := 0; c < x.C; c++ {
		var sum float32
		for _, v := range x.Data[c*plane : (c+1)*plane] {
			sum += v
		}
		out.Data[c] = sum / float32(plane)
	}
	return out
}

func linear(x Tensor, l Layer) (Tensor, error) {
	if len(x.Data) != l.In {
		return Tensor{}, fmt.Errorf("input has %d values, want %d", len(x.Data), l.In)
	}
	out := NewTensor(l.Out, 1, 1)
	for o := 0; o < l.Out; o++ {
		var sum float32
		if len(l.Bias) > 0 {
			sum = l.Bias[o]
		}
		row := l.Weights[o*l.In : (o+1)*l.In]
		for i, w := range row {
			sum += w * x.Data[i]
		}
		out.Data[o] = sum
	}
	return out, nil
}
