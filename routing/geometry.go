package routing

import (
	"github.com/gorgonia/emcaps/capsule"
)

const stage = "convcaps"

// Link is one (output location, kernel offset) pair through which an input location feeds an output location.
type Link struct {
	OY, OX int // output location
	KY, KX int // kernel offset
}

// Geometry is the strided receptive field bookkeeping of a layer. It is immutable once built.
type Geometry struct {
	In, Out    int // capsule types
	InH, InW   int
	KH, KW     int
	Stride     int
	OutH, OutW int

	links [][]Link // indexed by iy*InW+ix
}

// NewGeometry checks conf against the input extent and enumerates the receptive fields.
func NewGeometry(conf Config, inH, inW int) (*Geometry, error) {
	switch {
	case conf.In < 1:
		return nil, capsule.Invalid(stage, "input types", "must be positive, got %d", conf.In)
	case conf.Out < 1:
		return nil, capsule.Invalid(stage, "output types", "must be positive, got %d", conf.Out)
	case conf.Kernel < 0:
		return nil, capsule.Invalid(stage, "kernel", "must not be negative, got %d", conf.Kernel)
	case conf.Stride < 1:
		return nil, capsule.Invalid(stage, "stride", "must be positive, got %d", conf.Stride)
	case conf.Iters < 1:
		return nil, capsule.Invalid(stage, "iterations", "at least one EM iteration is required, got %d", conf.Iters)
	case inH < 1 || inW < 1:
		return nil, capsule.Invalid(stage, "input extent", "got %dx%d", inH, inW)
	}

	g := &Geometry{
		In:     conf.In,
		Out:    conf.Out,
		InH:    inH,
		InW:    inW,
		Stride: conf.Stride,
	}
	if conf.Kernel == 0 {
		if !conf.Shared {
			return nil, capsule.Invalid(stage, "kernel", "a full receptive field requires transform sharing")
		}
		g.KH, g.KW = inH, inW
		g.OutH, g.OutW = 1, 1
	} else {
		if conf.Kernel > inH || conf.Kernel > inW {
			return nil, capsule.Invalid(stage, "kernel", "kernel %d leaves no valid output position in a %dx%d input", conf.Kernel, inH, inW)
		}
		g.KH, g.KW = conf.Kernel, conf.Kernel
		g.OutH = (inH-conf.Kernel)/conf.Stride + 1
		g.OutW = (inW-conf.Kernel)/conf.Stride + 1
	}

	g.links = make([][]Link, inH*inW)
	for oy := 0; oy < g.OutH; oy++ {
		for ox := 0; ox < g.OutW; ox++ {
			for ky := 0; ky < g.KH; ky++ {
				for kx := 0; kx < g.KW; kx++ {
					iy, ix := g.Source(oy, ox, ky, kx)
					g.links[iy*inW+ix] = append(g.links[iy*inW+ix], Link{OY: oy, OX: ox, KY: ky, KX: kx})
				}
			}
		}
	}
	return g, nil
}

// Source returns the input location seen by output location (oy, ox) at kernel offset (ky, kx).
func (g *Geometry) Source(oy, ox, ky, kx int) (iy, ix int) {
	return g.Stride*oy + ky, g.Stride*ox + kx
}

// Links returns every (output location, kernel offset) pair reachable from input location (iy, ix).
// Locations on the edges may have fewer links than the interior; locations no kernel covers have none.
func (g *Geometry) Links(iy, ix int) []Link { return g.links[iy*g.InW+ix] }

// Entries is the number of (output location, kernel offset, input type, output type) tuples,
// which is the number of votes and of routing assignment entries.
func (g *Geometry) Entries() int { return g.OutH * g.OutW * g.KH * g.KW * g.In * g.Out }

// Entry returns the flat index of a vote / assignment entry.
func (g *Geometry) Entry(oy, ox, ky, kx, b, c int) int {
	return ((((oy*g.OutW+ox)*g.KH+ky)*g.KW+kx)*g.In+b)*g.Out + c
}

// Output returns the flat index of output capsule (c, oy, ox).
func (g *Geometry) Output(c, oy, ox int) int { return (c*g.OutH+oy)*g.OutW + ox }

// Outputs is the number of output capsule instances per batch element.
func (g *Geometry) Outputs() int { return g.Out * g.OutH * g.OutW }
