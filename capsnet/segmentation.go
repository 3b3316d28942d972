package capsnet

import (
	"github.com/gorgonia/emcaps/capsule"
	"github.com/gorgonia/emcaps/routing"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// segmentation derives a per pixel class map from the class layer's routing: every input location of
// the class layer votes for each class with the activation mass it routed there. The masses are
// normalized over classes and upsampled (nearest neighbour) to h x w.
//
// in is the input of the class layer and trace its last routing assignments. The result is (N, E, h, w).
func segmentation(in *capsule.Grid, trace []*routing.Assignment, h, w int) *tensor.Dense {
	batch := in.Batch()
	if batch == 0 || len(trace) == 0 {
		return nil
	}
	g := trace[0].Geometry()
	e := g.Out
	retVal := tensor.New(tensor.WithShape(batch, e, h, w), tensor.Of(tensor.Float32))
	data := retVal.Data().([]float32)

	mass := make([]float32, e)
	for n := 0; n < batch; n++ {
		acts := in.Activations(n)
		out := data[n*e*h*w : (n+1)*e*h*w]
		for y := 0; y < h; y++ {
			iy := y * g.InH / h
			for x := 0; x < w; x++ {
				ix := x * g.InW / w
				for c := range mass {
					mass[c] = trace[n].Routed(iy, ix, c, acts)
				}
				if total := vecf32.Sum(mass); total > 1e-12 {
					vecf32.Scale(mass, 1/total)
				} else {
					for c := range mass {
						mass[c] = 1 / float32(e)
					}
				}
				for c := range mass {
					out[(c*h+y)*w+x] = mass[c]
				}
			}
		}
	}
	return retVal
}
