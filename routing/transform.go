package routing

import (
	"github.com/gorgonia/emcaps/capsule"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Transform holds the learned 4x4 transform matrices of a layer. The variant is picked once,
// at construction: Shared ignores the kernel offset, PerOffset does not.
type Transform interface {
	// Matrix returns the flattened 4x4 matrix used for input type in, kernel offset (ky, kx) and output type out.
	Matrix(in, ky, kx, out int) []float32

	// Weights returns the backing parameter.
	Weights() *tensor.Dense
}

// Shared is a transform with one matrix per (input type, output type), shaped (B, C, 4, 4).
type Shared struct{ W *tensor.Dense }

// PerOffset is a transform with one matrix per (input type, kernel row, kernel col, output type),
// shaped (B, K, K, C, 4, 4).
type PerOffset struct{ W *tensor.Dense }

func (t Shared) Matrix(in, ky, kx, out int) []float32 {
	c := t.W.Shape()[1]
	start := (in*c + out) * capsule.PoseSize
	return t.W.Data().([]float32)[start : start+capsule.PoseSize]
}

func (t Shared) Weights() *tensor.Dense { return t.W }

func (t PerOffset) Matrix(in, ky, kx, out int) []float32 {
	s := t.W.Shape()
	start := ((((in*s[1]+ky)*s[2])+kx)*s[3] + out) * capsule.PoseSize
	return t.W.Data().([]float32)[start : start+capsule.PoseSize]
}

func (t PerOffset) Weights() *tensor.Dense { return t.W }

// newTransform draws a standard normal transform of the variant conf asks for.
func newTransform(conf Config, g *Geometry) Transform {
	if conf.Shared {
		shape := []int{g.In, g.Out, capsule.PoseDim, capsule.PoseDim}
		return Shared{W: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(G.Gaussian(0, 1)(tensor.Float32, shape...)))}
	}
	shape := []int{g.In, g.KH, g.KW, g.Out, capsule.PoseDim, capsule.PoseDim}
	return PerOffset{W: tensor.New(tensor.WithShape(shape...), tensor.WithBacking(G.Gaussian(0, 1)(tensor.Float32, shape...)))}
}

// checkTransform verifies that a caller supplied transform fits the geometry.
func checkTransform(t Transform, conf Config, g *Geometry) error {
	var want tensor.Shape
	switch t.(type) {
	case Shared:
		if !conf.Shared {
			return capsule.Invalid(stage, "transform", "layer is configured per offset but got a shared transform")
		}
		want = tensor.Shape{g.In, g.Out, capsule.PoseDim, capsule.PoseDim}
	case PerOffset:
		if conf.Shared {
			return capsule.Invalid(stage, "transform", "layer is configured as shared but got a per offset transform")
		}
		want = tensor.Shape{g.In, g.KH, g.KW, g.Out, capsule.PoseDim, capsule.PoseDim}
	default:
		return capsule.Invalid(stage, "transform", "unknown transform %T", t)
	}
	got := t.Weights().Shape()
	if !got.Eq(want) {
		return capsule.Invalid(stage, "transform shape", "want %v, got %v", want, got)
	}
	if _, ok := t.Weights().Data().([]float32); !ok {
		return capsule.Invalid(stage, "transform dtype", "want float32, got %v", t.Weights().Dtype())
	}
	return nil
}
