package emcaps

import (
	"github.com/gorgonia/emcaps/capsule"
	"gorgonia.org/tensor"
)

// Batch is what the dataset collaborator hands to a training step.
type Batch struct {
	Images   *tensor.Dense // (N, 3, H, W)
	Targets  []int         // one class index per image, for the margin and cross entropy losses
	Presence *tensor.Dense // (N, E): 1 if a class occurs anywhere in the image
	OneHot   *tensor.Dense // (N, E, H, W): per pixel one hot ground truth
}

// Check verifies that the parts of a batch agree on the batch size and the image extent.
func (b Batch) Check(numClasses int) error {
	if b.Images == nil || b.Images.Shape().Dims() != 4 {
		return capsule.Invalid("batch", "images", "want a (N, 3, H, W) tensor")
	}
	s := b.Images.Shape()
	n, h, w := s[0], s[2], s[3]
	if b.Targets != nil && len(b.Targets) != n {
		return capsule.Mismatch("batch", "targets", n, len(b.Targets))
	}
	if b.Presence != nil && !b.Presence.Shape().Eq(tensor.Shape{n, numClasses}) {
		return capsule.Invalid("batch", "presence", "want %v, got %v", tensor.Shape{n, numClasses}, b.Presence.Shape())
	}
	if b.OneHot != nil && !b.OneHot.Shape().Eq(tensor.Shape{n, numClasses, h, w}) {
		return capsule.Invalid("batch", "one hot", "want %v, got %v", tensor.Shape{n, numClasses, h, w}, b.OneHot.Shape())
	}
	return nil
}

// Loss is the breakdown of a training step's loss.
type Loss struct {
	Class        float32
	Segmentation float32
	Total        float32
}
