package capsnet

import (
	"bytes"
	"log"

	"github.com/gorgonia/emcaps/capsule"
	"gorgonia.org/tensor"
)

// Inferencer holds a single image copy of a *Net, so that inference doesn't need a full batch.
type Inferencer struct {
	n       *Net
	invTemp float32

	input *tensor.Dense
	buf   *bytes.Buffer
}

// Infer takes a trained *Net and creates an inference data structure that classifies one image at a time.
func Infer(n *Net, invTemp float32, toLog bool) (*Inferencer, error) {
	conf := n.Config
	conf.BatchSize = 1
	retVal := &Inferencer{
		n:       New(conf),
		invTemp: invTemp,
		input:   tensor.New(tensor.WithShape(1, 3, conf.ImageSize, conf.ImageSize), tensor.Of(Float)),
		buf:     new(bytes.Buffer),
	}
	if err := retVal.n.Init(); err != nil {
		return nil, err
	}
	if err := copyParams(retVal.n.Params(), n.Params()); err != nil {
		return nil, err
	}
	if toLog {
		retVal.n.SetLogger(log.New(retVal.buf, "", 0))
	}
	return retVal, nil
}

// Net returns the single image network.
func (m *Inferencer) Net() *Net { return m.n }

// Infer takes one image, laid out (3, ImageSize, ImageSize), and returns the class activations
// and the segmentation map (E, ImageSize, ImageSize).
func (m *Inferencer) Infer(image []float32) (acts, seg []float32, err error) {
	m.buf.Reset()
	data := m.input.Data().([]float32)
	if len(image) != len(data) {
		return nil, nil, capsule.Mismatch("inferencer", "image size", len(data), len(image))
	}
	copy(data, image)

	classOut, segMap, err := m.n.Forward(m.input, m.invTemp)
	if err != nil {
		return nil, nil, err
	}
	out := classOut.Data().([]float32)
	return out[m.n.E*capsule.PoseSize:], segMap.Data().([]float32), nil
}

// ExecLog returns the execution log. If Infer was called with toLog = false, then it will return an empty string
func (m *Inferencer) ExecLog() string { return m.buf.String() }

// Close implements a closer, because well, a gorgonia VM is a resource.
func (m *Inferencer) Close() error { return m.n.Close() }
