package layers

import (
	"fmt"
	"math/rand"

	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// ResidualBlock is two 3x3 convolutional sub-blocks plus the identity skip
// connection. Both sub-blocks preserve spatial size and channel count, a
// precondition of the skip addition.
type ResidualBlock struct {
	name   string
	first  *ConvBlock
	second *ConvBlock
}

func NewResidualBlock(name string, channels int, rng *rand.Rand) (*ResidualBlock, error) {
	first, err := NewConvBlock(name+"/conv_1", channels, ConvBlockConfig{
		Filters:    channels,
		KernelSize: 3,
		Stride:     1,
		PadMode:    tensor.PadSame,
		Norm:       true,
		Activation: ActivationReLU,
	}, rng)
	if err != nil {
		return nil, err
	}

	// No activation after the second sub-block: the skip sum is the output.
	second, err := NewConvBlock(name+"/conv_2", channels, ConvBlockConfig{
		Filters:    channels,
		KernelSize: 3,
		Stride:     1,
		PadMode:    tensor.PadSame,
		Norm:       true,
		Activation: ActivationNone,
	}, rng)
	if err != nil {
		return nil, err
	}

	return &ResidualBlock{name: name, first: first, second: second}, nil
}

func (r *ResidualBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := r.first.Forward(x)
	if err != nil {
		return nil, err
	}
	out, err = r.second.Forward(out)
	if err != nil {
		return nil, err
	}

	if !sameShape(out.Shape, x.Shape) {
		return nil, fmt.Errorf("residual block %s: shape %v diverged from input %v, skip addition impossible", r.name, out.Shape, x.Shape)
	}
	return tensor.AddAutograd(out, x), nil
}

func (r *ResidualBlock) Parameters() []*tensor.Tensor {
	return append(r.first.Parameters(), r.second.Parameters()...)
}

func (r *ResidualBlock) NamedParameters() []NamedParameter {
	return append(r.first.NamedParameters(), r.second.NamedParameters()...)
}

func (r *ResidualBlock) Name() string {
	return r.name
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
