package routing

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/gorgonia/emcaps/capsule"
	"gorgonia.org/vecf32"
)

const (
	// VarianceFloor is the smallest variance an output Gaussian may have. It keeps log and sqrt well defined.
	VarianceFloor float32 = 0.01

	// MassFloor is the smallest weight R·a an input may contribute to an output Gaussian,
	// so the mass used as a normalizer is never zero.
	MassFloor float32 = 0.01

	// activationFloor keeps the log of a dead output capsule finite in the E-step.
	activationFloor float32 = 1e-30
)

var log2Pi = float32(math.Log(2 * math.Pi))

// Assignment is the routing assignment R of one batch element: for every input capsule instance,
// a distribution over the output capsules it can reach. It is laid out like the votes, without the pose axis.
//
// An Assignment is never mutated once built; every E-step produces a new one.
type Assignment struct {
	geo *Geometry
	R   []float32
}

// Uniform spreads every input capsule evenly over its competing output capsules.
func Uniform(g *Geometry) *Assignment {
	retVal := &Assignment{geo: g, R: make([]float32, g.Entries())}
	for iy := 0; iy < g.InH; iy++ {
		for ix := 0; ix < g.InW; ix++ {
			links := g.Links(iy, ix)
			if len(links) == 0 {
				continue
			}
			share := 1 / float32(len(links)*g.Out)
			for _, l := range links {
				for b := 0; b < g.In; b++ {
					for c := 0; c < g.Out; c++ {
						retVal.R[g.Entry(l.OY, l.OX, l.KY, l.KX, b, c)] = share
					}
				}
			}
		}
	}
	return retVal
}

// Geometry returns the geometry the assignment was built for.
func (a *Assignment) Geometry() *Geometry { return a.geo }

// At returns the share of input type b, seen through link l, that is routed to output type c.
func (a *Assignment) At(l Link, b, c int) float32 {
	return a.R[a.geo.Entry(l.OY, l.OX, l.KY, l.KX, b, c)]
}

// Total sums the assignment of input capsule (b, iy, ix) over all of its competing output capsules.
func (a *Assignment) Total(b, iy, ix int) float32 {
	var sum float32
	for _, l := range a.geo.Links(iy, ix) {
		for c := 0; c < a.geo.Out; c++ {
			sum += a.At(l, b, c)
		}
	}
	return sum
}

// Routed returns how much activation mass input location (iy, ix) sends to output type c,
// summed over input types. acts is the input activation backing of the batch element, laid out (In, InH, InW).
func (a *Assignment) Routed(iy, ix, c int, acts []float32) float32 {
	g := a.geo
	var sum float32
	for _, l := range g.Links(iy, ix) {
		for b := 0; b < g.In; b++ {
			sum += a.At(l, b, c) * acts[(b*g.InH+iy)*g.InW+ix]
		}
	}
	return sum
}

// Gaussians are the output capsule statistics produced by an M-step.
// Mu and Sigma are laid out (Out, OutH, OutW, 16), Act is (Out, OutH, OutW).
type Gaussians struct {
	Mu    []float32
	Sigma []float32
	Act   []float32
}

// mStep fits one Gaussian per output capsule to the votes, weighted by r and the input activations,
// and computes the output activations.
func (l *Layer) mStep(votes, acts []float32, r *Assignment, invTemp float32) *Gaussians {
	g := l.geo
	retVal := &Gaussians{
		Mu:    make([]float32, g.Outputs()*capsule.PoseSize),
		Sigma: make([]float32, g.Outputs()*capsule.PoseSize),
		Act:   make([]float32, g.Outputs()),
	}
	betaU := l.BetaU.Data().([]float32)[0]
	betaA := l.BetaA.Data().([]float32)

	k := g.KH * g.KW * g.In
	weights := borrowFloats(k)
	defer returnFloats(weights)
	cost := make([]float32, capsule.PoseSize)

	for c := 0; c < g.Out; c++ {
		for oy := 0; oy < g.OutH; oy++ {
			for ox := 0; ox < g.OutW; ox++ {
				o := g.Output(c, oy, ox)
				mu := retVal.Mu[o*capsule.PoseSize : (o+1)*capsule.PoseSize]
				sigma := retVal.Sigma[o*capsule.PoseSize : (o+1)*capsule.PoseSize]

				// mass and mean
				var sum float32
				i := 0
				for ky := 0; ky < g.KH; ky++ {
					for kx := 0; kx < g.KW; kx++ {
						iy, ix := g.Source(oy, ox, ky, kx)
						for b := 0; b < g.In; b++ {
							e := g.Entry(oy, ox, ky, kx, b, c)
							w := r.R[e] * acts[(b*g.InH+iy)*g.InW+ix]
							if w < MassFloor {
								w = MassFloor
							}
							weights[i] = w
							sum += w
							v := votes[e*capsule.PoseSize : (e+1)*capsule.PoseSize]
							for h := range mu {
								mu[h] += w * v[h]
							}
							i++
						}
					}
				}
				vecf32.Scale(mu, 1/sum)

				// variance
				i = 0
				for ky := 0; ky < g.KH; ky++ {
					for kx := 0; kx < g.KW; kx++ {
						for b := 0; b < g.In; b++ {
							e := g.Entry(oy, ox, ky, kx, b, c)
							v := votes[e*capsule.PoseSize : (e+1)*capsule.PoseSize]
							w := weights[i]
							for h := range sigma {
								d := v[h] - mu[h]
								sigma[h] += w * d * d
							}
							i++
						}
					}
				}
				vecf32.Scale(sigma, 1/sum)
				for h := range sigma {
					if !(sigma[h] >= VarianceFloor) {
						sigma[h] = VarianceFloor
					}
					cost[h] = (betaU + math32.Log(sigma[h])) * sum
				}
				retVal.Act[o] = sigmoid(invTemp * (betaA[c] - vecf32.Sum(cost)))
			}
		}
	}
	return retVal
}

// eStep recomputes the assignment: every input capsule's vote is scored under each reachable
// output Gaussian, weighted by that output's activation and normalized over the competitors.
func (l *Layer) eStep(votes []float32, gs *Gaussians) *Assignment {
	g := l.geo
	retVal := &Assignment{geo: g, R: make([]float32, g.Entries())}

	// per output constants of the diagonal Gaussian log density
	halfPrec := make([]float32, len(gs.Sigma))
	logNorm := make([]float32, g.Outputs())
	for o := range logNorm {
		var ln float32
		for h := 0; h < capsule.PoseSize; h++ {
			s := gs.Sigma[o*capsule.PoseSize+h]
			halfPrec[o*capsule.PoseSize+h] = 1 / (2 * s)
			ln += log2Pi + math32.Log(s)
		}
		a := gs.Act[o]
		if !(a >= activationFloor) {
			a = activationFloor
		}
		logNorm[o] = math32.Log(a) - ln/2
	}

	var scores []float32
	for iy := 0; iy < g.InH; iy++ {
		for ix := 0; ix < g.InW; ix++ {
			links := g.Links(iy, ix)
			if len(links) == 0 {
				continue
			}
			n := len(links) * g.Out
			if cap(scores) < n {
				scores = make([]float32, n)
			}
			scores = scores[:n]

			for b := 0; b < g.In; b++ {
				max := math32.Inf(-1)
				i := 0
				for _, lk := range links {
					for c := 0; c < g.Out; c++ {
						e := g.Entry(lk.OY, lk.OX, lk.KY, lk.KX, b, c)
						o := g.Output(c, lk.OY, lk.OX)
						v := votes[e*capsule.PoseSize : (e+1)*capsule.PoseSize]
						mu := gs.Mu[o*capsule.PoseSize : (o+1)*capsule.PoseSize]
						hp := halfPrec[o*capsule.PoseSize : (o+1)*capsule.PoseSize]
						s := logNorm[o]
						for h := range v {
							d := v[h] - mu[h]
							s -= d * d * hp[h]
						}
						scores[i] = s
						if s > max {
							max = s
						}
						i++
					}
				}

				// the largest score maps to exp(0) = 1, so the normalizer is at least 1
				var sum float32
				for i := range scores {
					scores[i] = math32.Exp(scores[i] - max)
					sum += scores[i]
				}
				if !(sum >= 1) {
					// only reachable when every score is NaN or -Inf
					for i := range scores {
						scores[i] = 1
					}
					sum = float32(n)
				}
				vecf32.Scale(scores, 1/sum)

				i = 0
				for _, lk := range links {
					for c := 0; c < g.Out; c++ {
						retVal.R[g.Entry(lk.OY, lk.OX, lk.KY, lk.KX, b, c)] = scores[i]
						i++
					}
				}
			}
		}
	}
	return retVal
}

func sigmoid(x float32) float32 { return 1 / (1 + math32.Exp(-x)) }
