package capsnet

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/gorgonia/ops/nn"
)

type maebe struct {
	err error
}

// conv is an unpadded, strided convolution. The filter is returned so that it can be saved and restored.
func (m *maebe) conv(input *G.Node, filterCount, size, stride int, name string) (retVal, filter *G.Node) {
	if m.err != nil {
		return nil, nil
	}
	featureCount := input.Shape()[1]
	filter = G.NewTensor(input.Graph(), Float, 4, G.WithShape(filterCount, featureCount, size, size), G.WithName("Filter"+name), G.WithInit(G.GlorotU(1.0)))

	if retVal, m.err = nnops.Conv2d(input, filter, []int{size, size}, []int{0, 0}, []int{stride, stride}, []int{1, 1}); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

// bias adds one learned offset per feature map to a BCHW input.
func (m *maebe) bias(input *G.Node, name string) (retVal, bias *G.Node) {
	if m.err != nil {
		return nil, nil
	}
	bias = G.NewTensor(input.Graph(), Float, 4, G.WithShape(1, input.Shape()[1], 1, 1), G.WithName("Bias"+name), G.WithInit(G.Zeroes()))
	if retVal, m.err = G.BroadcastAdd(input, bias, nil, []byte{0, 2, 3}); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

func (m *maebe) rectify(input *G.Node) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = nnops.Rectify(input); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}
