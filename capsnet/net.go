package capsnet

import (
	"bytes"
	"encoding/gob"
	"log"

	"github.com/gorgonia/emcaps/capsule"
	"github.com/gorgonia/emcaps/routing"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var Float = G.Float32

// Net is the whole matrix capsule network:
//
//	image -> conv1 -> primary caps -> convcaps1 -> convcaps2 -> class caps -> class vector
//
// A Net is not safe for concurrent use: the convolution stage owns a tape machine.
type Net struct {
	Config

	conv    *convStage
	primary *primaryCaps
	caps1   *routing.Layer
	caps2   *routing.Layer
	class   *routing.Layer

	logger *log.Logger
}

// New returns a new, uninitialized *Net.
func New(conf Config) *Net {
	retVal := &Net{
		Config: conf,
	}
	return retVal
}

// Init builds every stage. All geometry is checked here, so a Net that initialized without error
// never raises a configuration error in the middle of routing.
func (n *Net) Init() (err error) {
	n.reset()
	if !n.IsValid() {
		return capsule.Invalid("capsnet", "config", "%+v", n.Config)
	}
	side := n.convOut()

	if n.conv, err = newConvStage(n.Config); err != nil {
		return err
	}
	n.primary = newPrimaryCaps(n.A, n.B)

	if n.caps1, err = routing.New(routing.Config{In: n.B, Out: n.C, Kernel: 3, Stride: 2, Iters: n.R}, side, side, routing.WithName("convcaps1")); err != nil {
		return errors.Wrap(err, "convcaps1")
	}
	g1 := n.caps1.Geometry()
	if n.caps2, err = routing.New(routing.Config{In: n.C, Out: n.D, Kernel: 3, Stride: 1, Iters: n.R}, g1.OutH, g1.OutW, routing.WithName("convcaps2")); err != nil {
		return errors.Wrap(err, "convcaps2")
	}
	g2 := n.caps2.Geometry()
	if n.class, err = routing.New(routing.Config{In: n.D, Out: n.E, Kernel: 0, Stride: 1, Iters: n.R, Coordinates: true, Shared: true}, g2.OutH, g2.OutW, routing.WithName("classcaps")); err != nil {
		return errors.Wrap(err, "classcaps")
	}
	n.SetLogger(n.logger)
	return nil
}

// SetLogger makes the network log the shape of every stage's output. A nil logger silences it.
func (n *Net) SetLogger(logger *log.Logger) {
	n.logger = logger
	for _, l := range n.layers() {
		l.SetLogger(logger)
	}
}

// Forward runs image, shaped (BatchSize, 3, ImageSize, ImageSize), through the network.
// invTemp is the inverse temperature used by every routing layer.
//
// classOut is shaped (BatchSize, E*16+E): class c's pose at [c*16, c*16+16), then the E class activations.
// seg is the auxiliary segmentation map, shaped (BatchSize, E, ImageSize, ImageSize).
func (n *Net) Forward(image *tensor.Dense, invTemp float32) (classOut, seg *tensor.Dense, err error) {
	if n.conv == nil {
		return nil, nil, errors.New("capsnet: Forward called before Init")
	}
	n.logf("Image Input %v", image.Shape())

	var features *tensor.Dense
	if features, err = n.conv.fwd(image); err != nil {
		return nil, nil, err
	}
	n.logf("After conv1 %v", features.Shape())

	var x *capsule.Grid
	if x, err = n.primary.fwd(features); err != nil {
		return nil, nil, err
	}
	n.logf("After Primary Caps %v", x.Activation.Shape())

	if x, err = n.caps1.Route(x, invTemp); err != nil {
		return nil, nil, err
	}
	n.logf("After ConvCaps1 %v", x.Activation.Shape())

	if x, err = n.caps2.Route(x, invTemp); err != nil {
		return nil, nil, err
	}
	n.logf("After ConvCaps2 %v", x.Activation.Shape())

	classes, trace, err := n.class.RouteTrace(x, invTemp)
	if err != nil {
		return nil, nil, err
	}
	n.logf("After ClassCaps %v", classes.Activation.Shape())

	classOut = flatten(classes)
	n.logf("After ClassCaps Reshape %v", classOut.Shape())
	seg = segmentation(x, trace, n.ImageSize, n.ImageSize)
	return classOut, seg, nil
}

// flatten lays a 1x1 class grid out as one vector per batch element: all poses, then all activations.
func flatten(classes *capsule.Grid) *tensor.Dense {
	batch, e := classes.Batch(), classes.Types()
	size := e*capsule.PoseSize + e
	retVal := tensor.New(tensor.WithShape(batch, size), tensor.Of(tensor.Float32))
	data := retVal.Data().([]float32)
	for i := 0; i < batch; i++ {
		row := data[i*size : (i+1)*size]
		copy(row, classes.Poses(i))
		copy(row[e*capsule.PoseSize:], classes.Activations(i))
	}
	return retVal
}

// Params returns the learnable parameters, in a stable order.
func (n *Net) Params() []*tensor.Dense {
	retVal := n.conv.weights()
	retVal = append(retVal, n.primary.params()...)
	for _, l := range n.layers() {
		retVal = append(retVal, l.Params()...)
	}
	return retVal
}

// Layers returns the three routing layers.
func (n *Net) Layers() []*routing.Layer { return n.layers() }

func (n *Net) layers() []*routing.Layer {
	if n.caps1 == nil {
		return nil
	}
	return []*routing.Layer{n.caps1, n.caps2, n.class}
}

// Clone returns a new network with a copy of the parameters.
func (n *Net) Clone() (*Net, error) {
	n2 := New(n.Config)
	if err := n2.Init(); err != nil {
		return nil, err
	}
	if err := copyParams(n2.Params(), n.Params()); err != nil {
		return nil, err
	}
	n2.SetLogger(n.logger)
	return n2, nil
}

// Close releases the tape machine of the convolution stage.
func (n *Net) Close() error {
	if n.conv == nil {
		return nil
	}
	return n.conv.Close()
}

func (n *Net) reset() {
	if n.conv != nil {
		n.conv.Close()
	}
	n.conv = nil
	n.primary = nil
	n.caps1 = nil
	n.caps2 = nil
	n.class = nil
}

func (n *Net) logf(format string, args ...interface{}) {
	if n.logger != nil {
		n.logger.Printf(format, args...)
	}
}

func (n *Net) GobEncode() (retVal []byte, err error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err = enc.Encode(n.Config); err != nil {
		return nil, errors.WithStack(err)
	}
	for _, p := range n.Params() {
		if err = enc.Encode(p); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return buf.Bytes(), nil
}

func (n *Net) GobDecode(p []byte) error {
	buf := bytes.NewBuffer(p)
	dec := gob.NewDecoder(buf)
	if err := dec.Decode(&n.Config); err != nil {
		return errors.WithStack(err)
	}
	if err := n.Init(); err != nil {
		return err
	}
	params := n.Params()
	decoded := make([]*tensor.Dense, len(params))
	for i := range params {
		decoded[i] = new(tensor.Dense)
		if err := dec.Decode(decoded[i]); err != nil {
			return errors.Wrapf(err, "decoding parameter %d", i)
		}
	}
	return copyParams(params, decoded)
}

func copyParams(dst, src []*tensor.Dense) error {
	if len(dst) != len(src) {
		return capsule.Mismatch("capsnet", "parameter count", len(dst), len(src))
	}
	for i := range dst {
		if !dst[i].Shape().Eq(src[i].Shape()) {
			return capsule.Invalid("capsnet", "parameter shape", "parameter %d: want %v, got %v", i, dst[i].Shape(), src[i].Shape())
		}
		copy(dst[i].Data().([]float32), src[i].Data().([]float32))
	}
	return nil
}
