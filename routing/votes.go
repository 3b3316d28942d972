package routing

import (
	"github.com/gorgonia/emcaps/capsule"
)

// castVotes fills dst, laid out as (OutH, OutW, KH, KW, In, Out, 16), with W · pose for batch element n.
func castVotes(dst []float32, in *capsule.Grid, n int, t Transform, g *Geometry) {
	for oy := 0; oy < g.OutH; oy++ {
		for ox := 0; ox < g.OutW; ox++ {
			for ky := 0; ky < g.KH; ky++ {
				for kx := 0; kx < g.KW; kx++ {
					iy, ix := g.Source(oy, ox, ky, kx)
					for b := 0; b < g.In; b++ {
						pose := in.PoseAt(n, b, iy, ix)
						for c := 0; c < g.Out; c++ {
							e := g.Entry(oy, ox, ky, kx, b, c) * capsule.PoseSize
							capsule.MatMul4(dst[e:e+capsule.PoseSize], t.Matrix(b, ky, kx, c), pose)
						}
					}
				}
			}
		}
	}
}

// Coordinate returns the normalized input coordinate seen by output location (oy, ox) at kernel offset (ky, kx).
func Coordinate(g *Geometry, oy, ox, ky, kx int) (row, col float32) {
	iy, ix := g.Source(oy, ox, ky, kx)
	return float32(iy) / float32(g.InH), float32(ix) / float32(g.InW)
}

// addCoordinates returns a copy of votes with the normalized input coordinate added
// to the first two components of every vote.
func addCoordinates(votes []float32, g *Geometry) []float32 {
	retVal := make([]float32, len(votes))
	copy(retVal, votes)
	for oy := 0; oy < g.OutH; oy++ {
		for ox := 0; ox < g.OutW; ox++ {
			for ky := 0; ky < g.KH; ky++ {
				for kx := 0; kx < g.KW; kx++ {
					row, col := Coordinate(g, oy, ox, ky, kx)
					for b := 0; b < g.In; b++ {
						for c := 0; c < g.Out; c++ {
							e := g.Entry(oy, ox, ky, kx, b, c) * capsule.PoseSize
							retVal[e] += row
							retVal[e+1] += col
						}
					}
				}
			}
		}
	}
	return retVal
}
