// Package capsule holds the data shared by every stage of a matrix capsule network:
// the capsule grid, 4x4 pose arithmetic and configuration errors.
package capsule

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	// PoseSize is the number of components of a flattened 4x4 pose matrix.
	PoseSize = 16

	// PoseDim is the side of a pose matrix.
	PoseDim = 4
)

// Grid is a capsule grid: for each batch element, capsule type and location it holds a pose and an activation.
//
// Pose is shaped (N, T, H, W, 16) and Activation (N, T, H, W).
type Grid struct {
	Pose       *tensor.Dense
	Activation *tensor.Dense
}

// NewGrid allocates a zeroed grid.
func NewGrid(n, types, h, w int) *Grid {
	return &Grid{
		Pose:       tensor.New(tensor.WithShape(n, types, h, w, PoseSize), tensor.Of(tensor.Float32)),
		Activation: tensor.New(tensor.WithShape(n, types, h, w), tensor.Of(tensor.Float32)),
	}
}

// FromBacking wraps existing backings. The backings are not copied.
func FromBacking(n, types, h, w int, poses, acts []float32) (*Grid, error) {
	if len(poses) != n*types*h*w*PoseSize {
		return nil, Mismatch("grid", "pose backing", n*types*h*w*PoseSize, len(poses))
	}
	if len(acts) != n*types*h*w {
		return nil, Mismatch("grid", "activation backing", n*types*h*w, len(acts))
	}
	return &Grid{
		Pose:       tensor.New(tensor.WithShape(n, types, h, w, PoseSize), tensor.WithBacking(poses)),
		Activation: tensor.New(tensor.WithShape(n, types, h, w), tensor.WithBacking(acts)),
	}, nil
}

func (g *Grid) Batch() int  { return g.Activation.Shape()[0] }
func (g *Grid) Types() int  { return g.Activation.Shape()[1] }
func (g *Grid) Height() int { return g.Activation.Shape()[2] }
func (g *Grid) Width() int  { return g.Activation.Shape()[3] }

// Poses returns the pose backing of batch element n, laid out (T, H, W, 16).
func (g *Grid) Poses(n int) []float32 {
	stride := g.Types() * g.Height() * g.Width() * PoseSize
	return g.Pose.Data().([]float32)[n*stride : (n+1)*stride]
}

// Activations returns the activation backing of batch element n, laid out (T, H, W).
func (g *Grid) Activations(n int) []float32 {
	stride := g.Types() * g.Height() * g.Width()
	return g.Activation.Data().([]float32)[n*stride : (n+1)*stride]
}

// PoseAt returns the 16 pose components of one capsule instance. The returned slice aliases the grid.
func (g *Grid) PoseAt(n, t, y, x int) []float32 {
	start := (((n*g.Types()+t)*g.Height()+y)*g.Width() + x) * PoseSize
	return g.Pose.Data().([]float32)[start : start+PoseSize]
}

// ActivationAt returns the activation of one capsule instance.
func (g *Grid) ActivationAt(n, t, y, x int) float32 {
	return g.Activation.Data().([]float32)[((n*g.Types()+t)*g.Height()+y)*g.Width()+x]
}

// SetActivation sets the activation of one capsule instance.
func (g *Grid) SetActivation(n, t, y, x int, v float32) {
	g.Activation.Data().([]float32)[((n*g.Types()+t)*g.Height()+y)*g.Width()+x] = v
}

// Clone deep copies the grid.
func (g *Grid) Clone() *Grid {
	return &Grid{
		Pose:       g.Pose.Clone().(*tensor.Dense),
		Activation: g.Activation.Clone().(*tensor.Dense),
	}
}

// Check verifies that the pose and activation tensors agree with each other.
func (g *Grid) Check() error {
	if g == nil || g.Pose == nil || g.Activation == nil {
		return errors.WithStack(ConfigError{Stage: "grid", Dim: "tensors", Reason: "nil pose or activation"})
	}
	ps, as := g.Pose.Shape(), g.Activation.Shape()
	if ps.Dims() != 5 {
		return Mismatch("grid", "pose dims", 5, ps.Dims())
	}
	if as.Dims() != 4 {
		return Mismatch("grid", "activation dims", 4, as.Dims())
	}
	if ps[4] != PoseSize {
		return Mismatch("grid", "pose size", PoseSize, ps[4])
	}
	names := [...]string{"batch", "types", "height", "width"}
	for i, name := range names {
		if ps[i] != as[i] {
			return Mismatch("grid", name, ps[i], as[i])
		}
	}
	if _, ok := g.Pose.Data().([]float32); !ok {
		return errors.WithStack(ConfigError{Stage: "grid", Dim: "dtype", Reason: "poses must be float32"})
	}
	if _, ok := g.Activation.Data().([]float32); !ok {
		return errors.WithStack(ConfigError{Stage: "grid", Dim: "dtype", Reason: "activations must be float32"})
	}
	return nil
}
