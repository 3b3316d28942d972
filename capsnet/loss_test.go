package capsnet

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/gorgonia/emcaps/capsule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func matrix(rows, cols int, data ...float32) *tensor.Dense {
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data))
}

func TestMarginLoss(t *testing.T) {
	const m = 0.2
	tests := []struct {
		name    string
		acts    *tensor.Dense
		targets []int
		want    float32
	}{
		{"exactly at the margin", matrix(1, 3, 0.7, 0.5, 0.5), []int{0}, 0},
		{"beyond the margin", matrix(1, 3, 0.1, 0.9, 0.2), []int{1}, 0},
		{"one violation", matrix(1, 3, 0.5, 0.6, 0.1), []int{0}, (m + 0.1) * (m + 0.1)},
		{"averaged over the batch", matrix(2, 2, 0.5, 0.5, 1, 0), []int{0, 0}, m * m / 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loss, err := MarginLoss(tc.acts, tc.targets, m)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, loss, 1e-6)
		})
	}

	_, err := MarginLoss(matrix(1, 2, 0, 1), []int{2}, m)
	assert.Error(t, err)
	_, err = MarginLoss(matrix(1, 2, 0, 1), []int{0, 1}, m)
	assert.True(t, capsule.IsConfigError(err))
}

func TestCrossEntropyLoss(t *testing.T) {
	loss, err := CrossEntropyLoss(matrix(1, 4, 0.3, 0.3, 0.3, 0.3), []int{2})
	require.NoError(t, err)
	assert.InDelta(t, math32.Log(4), loss, 1e-6)

	confident, err := CrossEntropyLoss(matrix(1, 2, 10, -10), []int{0})
	require.NoError(t, err)
	wrong, err := CrossEntropyLoss(matrix(1, 2, 10, -10), []int{1})
	require.NoError(t, err)
	assert.True(t, confident < 1e-6)
	assert.InDelta(t, 20, wrong, 1e-4)
}

func TestPresenceLoss(t *testing.T) {
	loss, err := PresenceLoss(matrix(1, 2, 0.5, 0.5), matrix(1, 2, 1, 0))
	require.NoError(t, err)
	assert.InDelta(t, math32.Log(2), loss, 1e-6)

	perfect, err := PresenceLoss(matrix(1, 2, 1, 0), matrix(1, 2, 1, 0))
	require.NoError(t, err)
	assert.True(t, perfect < 1e-5, "saturated activations are clamped, got %v", perfect)

	_, err = PresenceLoss(matrix(1, 2, 1, 0), matrix(2, 1, 1, 0))
	assert.True(t, capsule.IsConfigError(err))
}

func TestSegmentationLoss(t *testing.T) {
	loss, err := SegmentationLoss(matrix(2, 2, 1, 0, 0.5, 0.5), matrix(2, 2, 1, 0, 0, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.125, loss, 1e-6)
}

func TestClassActivations(t *testing.T) {
	const e = 2
	row := make([]float32, e*capsule.PoseSize+e)
	for i := range row {
		row[i] = float32(i)
	}
	acts, err := ClassActivations(matrix(1, len(row), row...), e)
	require.NoError(t, err)
	assert.Equal(t, []float32{32, 33}, acts.Data())

	_, err = ClassActivations(matrix(1, len(row), row...), 3)
	assert.True(t, capsule.IsConfigError(err))
}

func TestLossesEmptyBatch(t *testing.T) {
	empty := func() *tensor.Dense { return tensor.New(tensor.WithShape(0, 3), tensor.WithBacking([]float32{})) }

	_, err := MarginLoss(empty(), nil, 0.2)
	assert.True(t, capsule.IsConfigError(err), "%+v", err)
	_, err = CrossEntropyLoss(empty(), nil)
	assert.True(t, capsule.IsConfigError(err), "%+v", err)
	_, err = PresenceLoss(empty(), empty())
	assert.True(t, capsule.IsConfigError(err), "%+v", err)
	_, err = SegmentationLoss(empty(), empty())
	assert.True(t, capsule.IsConfigError(err), "%+v", err)
}
