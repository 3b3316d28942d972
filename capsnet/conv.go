package capsnet

import (
	"github.com/gorgonia/emcaps/capsule"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const (
	convKernel = 5
	convStride = 2
)

// convStage is the simple convolution stage: one strided convolution with a per channel bias, followed by a rectifier.
// It is a gorgonia graph, built once for a fixed batch size.
type convStage struct {
	g      *G.ExprGraph
	image  *G.Node // BatchSize, 3, ImageSize, ImageSize
	filter *G.Node
	bias   *G.Node // 1, A, 1, 1
	output *G.Node

	value G.Value
	m     G.VM
}

func newConvStage(conf Config) (*convStage, error) {
	s := &convStage{g: G.NewGraph()}

	// note, the data should be arranged like so:
	//	BatchSize, Channels, Height, Width
	// because Gorgonia only supports doing convolutions on BCHW format
	s.image = G.NewTensor(s.g, Float, 4, G.WithShape(conf.BatchSize, 3, conf.ImageSize, conf.ImageSize), G.WithName("Image"))

	var m maebe
	var convolved, biased *G.Node
	convolved, s.filter = m.conv(s.image, conf.A, convKernel, convStride, "Conv1")
	biased, s.bias = m.bias(convolved, "Conv1")
	s.output = m.rectify(biased)
	if m.err != nil {
		return nil, m.err
	}
	G.Read(s.output, &s.value)
	s.m = G.NewTapeMachine(s.g)
	return s, nil
}

// fwd runs the convolution over image and returns a copy of the rectified feature maps.
func (s *convStage) fwd(image *tensor.Dense) (*tensor.Dense, error) {
	want := s.image.Shape()
	got := image.Shape()
	if got.Dims() != 4 {
		return nil, capsule.Mismatch("conv1", "image dims", 4, got.Dims())
	}
	names := [...]string{"batch size", "image channels", "image height", "image width"}
	for i, name := range names {
		if got[i] != want[i] {
			return nil, capsule.Mismatch("conv1", name, want[i], got[i])
		}
	}
	if image.Dtype() != Float {
		return nil, capsule.Invalid("conv1", "image dtype", "want %v, got %v", Float, image.Dtype())
	}

	defer s.m.Reset()
	if err := G.Let(s.image, image); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := s.m.RunAll(); err != nil {
		return nil, errors.Wrap(err, "conv1 failed")
	}
	return s.value.(*tensor.Dense).Clone().(*tensor.Dense), nil
}

func (s *convStage) weights() []*tensor.Dense {
	return []*tensor.Dense{s.filter.Value().(*tensor.Dense), s.bias.Value().(*tensor.Dense)}
}

func (s *convStage) Close() error { return s.m.Close() }
