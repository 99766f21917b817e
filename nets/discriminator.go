package nets

import (
	"fmt"
	"math/rand"

	"github.com/sebastianlutter/artReCycleGAN/layers"
	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// Discriminator is a PatchGAN classifier: a ladder of stride-2
// convolutions whose 1-channel output is a spatial map of real-vs-fake
// logits, one per receptive-field patch. Filter count doubles at every
// downsampling block while the grid halves.
type Discriminator struct {
	name  string
	stack *layers.Sequential
}

func NewDiscriminator(name string, cfg Config, rng *rand.Rand) (*Discriminator, error) {
	filters := cfg.BaseFilters

	// Input block: no normalization on raw pixels.
	input, err := layers.NewConvBlock("input", 3, layers.ConvBlockConfig{
		Filters: filters, KernelSize: 4, Stride: 2,
		PadMode: tensor.PadSame,
		Norm:    false, Activation: layers.ActivationLeakyReLU, UseBias: true,
	}, rng)
	if err != nil {
		return nil, err
	}

	stack := layers.NewSequential(name, input)
	for i := 0; i < cfg.DiscriminatorDepth; i++ {
		filters *= 2
		block, err := layers.NewConvBlock(fmt.Sprintf("down_%d", i+1), filters/2, layers.ConvBlockConfig{
			Filters: filters, KernelSize: 4, Stride: 2,
			PadMode: tensor.PadSame,
			Norm:    true, Activation: layers.ActivationLeakyReLU, UseBias: true,
		}, rng)
		if err != nil {
			return nil, err
		}
		stack.Append(block)
	}

	// Output block: raw logits, no normalization, no activation.
	logits, err := layers.NewConvBlock("logits", filters, layers.ConvBlockConfig{
		Filters: 1, KernelSize: 4, Stride: 1,
		PadMode: tensor.PadSame,
		Norm:    false, Activation: layers.ActivationNone, UseBias: true,
	}, rng)
	if err != nil {
		return nil, err
	}
	stack.Append(logits)

	return &Discriminator{name: name, stack: stack}, nil
}

// Forward maps [n, h, w, 3] images to [n, h/2^(depth+1), w/2^(depth+1), 1]
// patch logits.
func (d *Discriminator) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := d.stack.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", d.name, err)
	}
	return out, nil
}

func (d *Discriminator) Parameters() []*tensor.Tensor {
	return d.stack.Parameters()
}

func (d *Discriminator) NamedParameters() []layers.NamedParameter {
	return d.stack.NamedParameters()
}

func (d *Discriminator) Name() string {
	return d.name
}
