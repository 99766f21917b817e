package nets

import (
	"fmt"

	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// Adversarial objectives in least-squares form: the discriminator is
// pushed toward 1 on real patches and 0 on translated ones, while the
// generator is rewarded for logits near 1 on its translations. Every term
// is built from autograd ops, so both losses stay differentiable parts of
// the shared forward trace.

// DiscriminatorLoss scores a decision map over a combined batch whose
// first realCount entries are genuine images and whose remainder are
// generator output.
type DiscriminatorLoss struct{}

func (DiscriminatorLoss) Forward(decision *tensor.Tensor, realCount int) (*tensor.Tensor, error) {
	total := decision.Shape[0]
	if realCount <= 0 || realCount >= total {
		return nil, fmt.Errorf("discriminator loss: %d real entries in a combined batch of %d", realCount, total)
	}

	real := tensor.NarrowAutograd(decision, 0, realCount)
	fake := tensor.NarrowAutograd(decision, realCount, total-realCount)

	realShift := tensor.AddScalarAutograd(real, -1)
	realTerm := tensor.MeanAutograd(tensor.MulAutograd(realShift, realShift))
	fakeTerm := tensor.MeanAutograd(tensor.MulAutograd(fake, fake))

	return tensor.ScaleAutograd(tensor.AddAutograd(realTerm, fakeTerm), 0.5), nil
}

// GeneratorLoss scores the same decision map from the generator's side:
// only the translated half matters, and its target flips to 1.
type GeneratorLoss struct{}

func (GeneratorLoss) Forward(decision *tensor.Tensor, realCount int) (*tensor.Tensor, error) {
	total := decision.Shape[0]
	if realCount <= 0 || realCount >= total {
		return nil, fmt.Errorf("generator loss: %d real entries in a combined batch of %d", realCount, total)
	}

	fake := tensor.NarrowAutograd(decision, realCount, total-realCount)
	shift := tensor.AddScalarAutograd(fake, -1)
	return tensor.MeanAutograd(tensor.MulAutograd(shift, shift)), nil
}

// cycleLoss is the mean absolute error between a round-trip translation
// and the original batch.
func cycleLoss(roundTrip, original *tensor.Tensor) *tensor.Tensor {
	return tensor.MeanAutograd(tensor.AbsAutograd(tensor.SubAutograd(roundTrip, original)))
}
