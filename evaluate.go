package emcaps

import (
	"github.com/gorgonia/emcaps/capsnet"
	"github.com/pkg/errors"
)

// Evaluate runs one batch through net at the schedule's inverse temperature and scores it the way
// the training loop does: the class loss is the presence loss when a presence vector is given and the
// margin loss otherwise; the segmentation loss is added when a one hot target is given.
func Evaluate(net *capsnet.Net, b Batch, sched Schedule) (Loss, error) {
	if err := b.Check(net.E); err != nil {
		return Loss{}, err
	}
	classOut, seg, err := net.Forward(b.Images, sched.Lambda)
	if err != nil {
		return Loss{}, errors.WithMessage(err, "forward failed")
	}
	acts, err := capsnet.ClassActivations(classOut, net.E)
	if err != nil {
		return Loss{}, err
	}

	var class, segmentation float32
	switch {
	case b.Presence != nil:
		class, err = capsnet.PresenceLoss(acts, b.Presence)
	case b.Targets != nil:
		class, err = capsnet.MarginLoss(acts, b.Targets, sched.Margin)
	default:
		err = errors.New("batch has neither targets nor a presence vector")
	}
	if err != nil {
		return Loss{}, err
	}
	if b.OneHot != nil {
		if segmentation, err = capsnet.SegmentationLoss(seg, b.OneHot); err != nil {
			return Loss{}, err
		}
	}
	return Combine(class, segmentation), nil
}
