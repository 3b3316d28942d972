package capsule

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

func TestMatMul4(t *testing.T) {
	a := []float32{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		13, 14, 15, 16,
	}
	dst := make([]float32, PoseSize)
	MatMul4(dst, a, Identity())
	assert.Equal(t, a, dst)
	MatMul4(dst, Identity(), a)
	assert.Equal(t, a, dst)

	MatMul4(dst, a, a)
	assert.Equal(t, float32(1*1+2*5+3*9+4*13), dst[0])
	assert.Equal(t, float32(13*4+14*8+15*12+16*16), dst[15])
}

func TestGrid(t *testing.T) {
	g := NewGrid(2, 3, 4, 5)
	assert.NoError(t, g.Check())
	assert.Equal(t, 2, g.Batch())
	assert.Equal(t, 3, g.Types())
	assert.Equal(t, 4, g.Height())
	assert.Equal(t, 5, g.Width())

	copy(g.PoseAt(1, 2, 3, 4), Identity())
	g.SetActivation(1, 2, 3, 4, 0.5)
	assert.Equal(t, Identity(), g.PoseAt(1, 2, 3, 4))
	assert.Equal(t, float32(0.5), g.ActivationAt(1, 2, 3, 4))

	// the last capsule of the second batch element is the last element of the per-element views
	assert.Equal(t, float32(0.5), g.Activations(1)[3*4*5-1])
	assert.Equal(t, Identity(), g.Poses(1)[(3*4*5-1)*PoseSize:])

	c := g.Clone()
	c.SetActivation(1, 2, 3, 4, 1)
	assert.Equal(t, float32(0.5), g.ActivationAt(1, 2, 3, 4), "clones do not share backings")
}

func TestGridCheck(t *testing.T) {
	g := NewGrid(1, 2, 3, 3)
	g.Activation = tensor.New(tensor.WithShape(1, 2, 3, 4), tensor.Of(tensor.Float32))
	err := g.Check()
	assert.Error(t, err)
	ce, ok := errors.Cause(err).(ConfigError)
	if assert.True(t, ok) {
		assert.Equal(t, "width", ce.Dim)
		assert.Equal(t, 3, ce.Want)
		assert.Equal(t, 4, ce.Got)
	}

	_, err = FromBacking(1, 1, 1, 1, make([]float32, 15), make([]float32, 1))
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "pose backing")
}
