// Package routing implements the convolutional capsule layer: votes are cast through learned
// 4x4 transforms and output capsules are found by EM routing.
package routing

import (
	"log"
	"runtime"
	"sync"

	"github.com/gorgonia/emcaps/capsule"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Layer is a convolutional capsule layer. Its parameters are only read while routing,
// so a Layer may route several grids concurrently.
type Layer struct {
	Config
	Name string

	W     Transform
	BetaU *tensor.Dense // (1)
	BetaA *tensor.Dense // (Out)

	geo     *Geometry
	workers int
	logger  *log.Logger
}

// Option configures a Layer at construction.
type Option func(l *Layer) error

// WithTransform uses t instead of a randomly drawn transform.
func WithTransform(t Transform) Option {
	return func(l *Layer) error {
		if err := checkTransform(t, l.Config, l.geo); err != nil {
			return err
		}
		l.W = t
		return nil
	}
}

// WithCost sets the learned cost parameters.
func WithCost(betaU float32, betaA []float32) Option {
	return func(l *Layer) error {
		if len(betaA) != l.Out {
			return capsule.Mismatch(l.Name, "beta_a", l.Out, len(betaA))
		}
		l.BetaU = tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{betaU}))
		l.BetaA = tensor.New(tensor.WithShape(l.Out), tensor.WithBacking(append([]float32(nil), betaA...)))
		return nil
	}
}

// WithWorkers bounds how many batch elements are routed at once.
func WithWorkers(n int) Option {
	return func(l *Layer) error {
		if n < 1 {
			return capsule.Invalid(l.Name, "workers", "must be positive, got %d", n)
		}
		l.workers = n
		return nil
	}
}

// WithName names the layer in errors and logs.
func WithName(name string) Option {
	return func(l *Layer) error {
		l.Name = name
		return nil
	}
}

// WithLogger logs the routing progress of every batch.
func WithLogger(logger *log.Logger) Option {
	return func(l *Layer) error {
		l.logger = logger
		return nil
	}
}

// New creates a layer for inputs of inH x inW locations. Parameters are drawn from a standard normal
// unless options say otherwise. Incompatible geometry is reported as a capsule.ConfigError.
func New(conf Config, inH, inW int, opts ...Option) (*Layer, error) {
	geo, err := NewGeometry(conf, inH, inW)
	if err != nil {
		return nil, err
	}
	retVal := &Layer{
		Config:  conf,
		Name:    stage,
		geo:     geo,
		workers: runtime.NumCPU(),
	}
	retVal.W = newTransform(conf, geo)
	retVal.BetaU = tensor.New(tensor.WithShape(1), tensor.WithBacking(G.Gaussian(0, 1)(tensor.Float32, 1)))
	retVal.BetaA = tensor.New(tensor.WithShape(conf.Out), tensor.WithBacking(G.Gaussian(0, 1)(tensor.Float32, conf.Out)))

	for _, opt := range opts {
		if err := opt(retVal); err != nil {
			return nil, err
		}
	}
	return retVal, nil
}

// Geometry returns the receptive field bookkeeping of the layer.
func (l *Layer) Geometry() *Geometry { return l.geo }

// Params returns the learnable parameters: the transform, beta_u and beta_a.
func (l *Layer) Params() []*tensor.Dense { return []*tensor.Dense{l.W.Weights(), l.BetaU, l.BetaA} }

// Route routes in to the output capsules. invTemp is the inverse temperature of the activation logistic.
func (l *Layer) Route(in *capsule.Grid, invTemp float32) (*capsule.Grid, error) {
	out, _, err := l.RouteTrace(in, invTemp)
	return out, err
}

// RouteTrace is Route, also returning the last routing assignment of every batch element.
func (l *Layer) RouteTrace(in *capsule.Grid, invTemp float32) (*capsule.Grid, []*Assignment, error) {
	if err := l.check(in); err != nil {
		return nil, nil, err
	}

	n := in.Batch()
	g := l.geo
	out := capsule.NewGrid(n, g.Out, g.OutH, g.OutW)
	trace := make([]*Assignment, n)

	workers := l.workers
	if workers > n {
		workers = n
	}
	var wg sync.WaitGroup
	ch := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range ch {
				gs, r := l.routeOne(in, i, invTemp)
				copy(out.Poses(i), gs.Mu)
				copy(out.Activations(i), gs.Act)
				trace[i] = r
			}
		}()
	}
	for i := 0; i < n; i++ {
		ch <- i
	}
	close(ch)
	wg.Wait()

	if l.logger != nil {
		l.logger.Printf("%s: routed %v -> %v in %d iterations", l.Name, in.Activation.Shape(), out.Activation.Shape(), l.Iters)
	}
	return out, trace, nil
}

// routeOne runs EM routing for batch element n. The loop is M-step then E-step,
// except for the last iteration which only runs the M-step.
func (l *Layer) routeOne(in *capsule.Grid, n int, invTemp float32) (*Gaussians, *Assignment) {
	votes := borrowFloats(l.geo.Entries() * capsule.PoseSize)
	castVotes(votes, in, n, l.W, l.geo)
	if l.Coordinates {
		added := addCoordinates(votes, l.geo)
		returnFloats(votes)
		votes = added
	}
	defer returnFloats(votes)

	acts := in.Activations(n)
	r := Uniform(l.geo)
	var gs *Gaussians
	for it := 1; it <= l.Iters; it++ {
		gs = l.mStep(votes, acts, r, invTemp)
		if it < l.Iters {
			r = l.eStep(votes, gs)
		}
	}
	return gs, r
}

func (l *Layer) check(in *capsule.Grid) error {
	if in.Activation == nil || in.Activation.Dims() == 0 || in.Batch() < 1 {
		return capsule.Invalid(l.Name, "batch", "cannot route an empty batch")
	}
	if err := in.Check(); err != nil {
		return errors.Wrapf(err, "%s: bad input grid", l.Name)
	}
	if in.Types() != l.geo.In {
		return capsule.Mismatch(l.Name, "input capsule types", l.geo.In, in.Types())
	}
	if in.Height() != l.geo.InH {
		return capsule.Mismatch(l.Name, "input height", l.geo.InH, in.Height())
	}
	if in.Width() != l.geo.InW {
		return capsule.Mismatch(l.Name, "input width", l.geo.InW, in.Width())
	}
	return nil
}

// SetLogger replaces the logger. A nil logger silences the layer.
func (l *Layer) SetLogger(logger *log.Logger) { l.logger = logger }
