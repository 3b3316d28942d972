package capsnet

import (
	"github.com/chewxy/math32"
	"github.com/gorgonia/emcaps/capsule"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

const logEps float32 = 1e-7

// ClassActivations extracts the trailing numClasses activations of every row of classOut.
func ClassActivations(classOut *tensor.Dense, numClasses int) (*tensor.Dense, error) {
	s := classOut.Shape()
	if s.Dims() != 2 {
		return nil, capsule.Mismatch("capsnet", "class output dims", 2, s.Dims())
	}
	size := numClasses*capsule.PoseSize + numClasses
	if s[1] != size {
		return nil, capsule.Mismatch("capsnet", "class output width", size, s[1])
	}
	data := classOut.Data().([]float32)
	retVal := tensor.New(tensor.WithShape(s[0], numClasses), tensor.Of(tensor.Float32))
	acts := retVal.Data().([]float32)
	for i := 0; i < s[0]; i++ {
		copy(acts[i*numClasses:(i+1)*numClasses], data[i*size+numClasses*capsule.PoseSize:(i+1)*size])
	}
	return retVal, nil
}

// rows checks that acts is (N, E) and targets holds N valid class indices.
func rows(acts *tensor.Dense, targets []int) (data []float32, n, e int, err error) {
	s := acts.Shape()
	if s.Dims() != 2 {
		return nil, 0, 0, capsule.Mismatch("loss", "activation dims", 2, s.Dims())
	}
	n, e = s[0], s[1]
	if n < 1 || e < 1 {
		return nil, 0, 0, capsule.Invalid("loss", "activations", "empty batch %v", s)
	}
	if len(targets) != n {
		return nil, 0, 0, capsule.Mismatch("loss", "targets", n, len(targets))
	}
	for i, t := range targets {
		if t < 0 || t >= e {
			return nil, 0, 0, errors.Errorf("loss: target %d of sample %d is not a class in [0, %d)", t, i, e)
		}
	}
	return acts.Data().([]float32), n, e, nil
}

// MarginLoss is the spread loss: for every wrong class i, max(0, m - (a_t - a_i))² is paid,
// summed over classes and averaged over the batch. acts is (N, E).
func MarginLoss(acts *tensor.Dense, targets []int, m float32) (float32, error) {
	data, n, e, err := rows(acts, targets)
	if err != nil {
		return 0, err
	}
	var loss float32
	for i := 0; i < n; i++ {
		row := data[i*e : (i+1)*e]
		at := row[targets[i]]
		for c, a := range row {
			if c == targets[i] {
				continue
			}
			if u := m - (at - a); u > 0 {
				loss += u * u
			}
		}
	}
	return loss / float32(n), nil
}

// CrossEntropyLoss is the softmax cross entropy of acts (N, E) against target class indices, averaged over the batch.
func CrossEntropyLoss(acts *tensor.Dense, targets []int) (float32, error) {
	data, n, e, err := rows(acts, targets)
	if err != nil {
		return 0, err
	}
	var loss float32
	for i := 0; i < n; i++ {
		row := data[i*e : (i+1)*e]
		max := row[vecf32.Argmax(row)]
		var sum float32
		for _, a := range row {
			sum += math32.Exp(a - max)
		}
		loss += math32.Log(sum) + max - row[targets[i]]
	}
	return loss / float32(n), nil
}

// PresenceLoss is the binary cross entropy of acts (N, E) against a class presence vector of the same shape, averaged.
func PresenceLoss(acts, presence *tensor.Dense) (float32, error) {
	if !acts.Shape().Eq(presence.Shape()) {
		return 0, capsule.Invalid("loss", "presence shape", "want %v, got %v", acts.Shape(), presence.Shape())
	}
	a := acts.Data().([]float32)
	y := presence.Data().([]float32)
	if len(a) == 0 {
		return 0, capsule.Invalid("loss", "activations", "empty batch %v", acts.Shape())
	}
	var loss float32
	for i := range a {
		p := clamp(a[i], logEps, 1-logEps)
		loss -= y[i]*math32.Log(p) + (1-y[i])*math32.Log(1-p)
	}
	return loss / float32(len(a)), nil
}

// SegmentationLoss is the mean squared error between a segmentation map and its one hot target.
func SegmentationLoss(seg, oneHot *tensor.Dense) (float32, error) {
	if !seg.Shape().Eq(oneHot.Shape()) {
		return 0, capsule.Invalid("loss", "segmentation shape", "want %v, got %v", seg.Shape(), oneHot.Shape())
	}
	a := seg.Data().([]float32)
	b := oneHot.Data().([]float32)
	if len(a) == 0 {
		return 0, capsule.Invalid("loss", "segmentation", "empty batch %v", seg.Shape())
	}
	var loss float32
	for i := range a {
		d := a[i] - b[i]
		loss += d * d
	}
	return loss / float32(len(a)), nil
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
