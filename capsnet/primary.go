package capsnet

import (
	"github.com/chewxy/math32"
	"github.com/gorgonia/emcaps/capsule"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// primaryCaps turns A feature maps into B capsule types with a 1x1 projection per type.
//
// All the per type projections live in one weight block: rows t*16 .. t*16+15 project type t's pose,
// row B*16+t projects its activation logit.
type primaryCaps struct {
	A, B int
	W    *tensor.Dense // (B*17, A)
	Bias *tensor.Dense // (B*17)
}

func newPrimaryCaps(a, b int) *primaryCaps {
	rows := b * (capsule.PoseSize + 1)
	return &primaryCaps{
		A:    a,
		B:    b,
		W:    tensor.New(tensor.WithShape(rows, a), tensor.WithBacking(G.GlorotU(1.0)(tensor.Float32, rows, a))),
		Bias: tensor.New(tensor.WithShape(rows), tensor.Of(tensor.Float32)),
	}
}

// fwd maps features (N, A, H, W) to a capsule grid (N, B, H, W).
func (p *primaryCaps) fwd(features *tensor.Dense) (*capsule.Grid, error) {
	s := features.Shape()
	if s.Dims() != 4 {
		return nil, capsule.Mismatch("primarycaps", "feature dims", 4, s.Dims())
	}
	if s[1] != p.A {
		return nil, capsule.Mismatch("primarycaps", "feature channels", p.A, s[1])
	}
	n, h, w := s[0], s[2], s[3]
	hw := h * w
	data := features.Data().([]float32)
	bias := p.Bias.Data().([]float32)

	retVal := capsule.NewGrid(n, p.B, h, w)
	for i := 0; i < n; i++ {
		x := tensor.New(tensor.WithShape(p.A, hw), tensor.WithBacking(data[i*p.A*hw:(i+1)*p.A*hw]))
		proj, err := p.W.MatMul(x)
		if err != nil {
			return nil, errors.Wrapf(err, "primarycaps: projection of batch element %d", i)
		}
		pd := proj.Data().([]float32)

		poses := retVal.Poses(i)
		for t := 0; t < p.B; t++ {
			for k := 0; k < capsule.PoseSize; k++ {
				row := t*capsule.PoseSize + k
				for j := 0; j < hw; j++ {
					poses[(t*hw+j)*capsule.PoseSize+k] = pd[row*hw+j] + bias[row]
				}
			}
		}
		acts := retVal.Activations(i)
		for t := 0; t < p.B; t++ {
			row := p.B*capsule.PoseSize + t
			for j := 0; j < hw; j++ {
				acts[t*hw+j] = sigmoid(pd[row*hw+j] + bias[row])
			}
		}
	}
	return retVal, nil
}

func (p *primaryCaps) params() []*tensor.Dense { return []*tensor.Dense{p.W, p.Bias} }

func sigmoid(x float32) float32 { return 1 / (1 + math32.Exp(-x)) }
