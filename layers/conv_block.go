package layers

import (
	"fmt"
	"math/rand"

	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

const (
	// Weight init follows the CycleGAN convention: N(0, 0.02).
	weightInitStd = 0.02
	normEpsilon   = 1e-5
	leakySlope    = 0.2
)

// ConvBlockConfig describes one convolutional block. The toggles let the
// same block type serve encoder, decoder and output layers: convolution or
// transposed convolution, optional per-instance normalization, and a
// selectable activation.
type ConvBlockConfig struct {
	Filters    int
	KernelSize int
	Stride     int

	// PadMode/Pad are ignored for transposed blocks, which always scale
	// spatial size by Stride.
	PadMode tensor.PadMode
	Pad     int

	Transpose  bool
	Norm       bool
	Activation Activation
	UseBias    bool
}

// ConvBlock is convolution (or transposed convolution), optional instance
// normalization, optional activation.
type ConvBlock struct {
	name string
	cfg  ConvBlockConfig

	weight *tensor.Tensor
	bias   *tensor.Tensor
	gamma  *tensor.Tensor
	beta   *tensor.Tensor
}

// NewConvBlock builds a block for the given input channel count. All
// trainable parameters are allocated here and never reallocated.
func NewConvBlock(name string, inChannels int, cfg ConvBlockConfig, rng *rand.Rand) (*ConvBlock, error) {
	if inChannels < 1 {
		return nil, fmt.Errorf("conv block %s: input channels must be positive, got %d", name, inChannels)
	}
	if cfg.Filters < 1 {
		return nil, fmt.Errorf("conv block %s: filters must be positive, got %d", name, cfg.Filters)
	}
	if cfg.KernelSize < 1 {
		return nil, fmt.Errorf("conv block %s: kernel size must be positive, got %d", name, cfg.KernelSize)
	}
	if cfg.Stride < 1 {
		return nil, fmt.Errorf("conv block %s: stride must be positive, got %d", name, cfg.Stride)
	}

	b := &ConvBlock{name: name, cfg: cfg}

	var weightShape []int
	if cfg.Transpose {
		weightShape = []int{cfg.KernelSize, cfg.KernelSize, cfg.Filters, inChannels}
	} else {
		weightShape = []int{cfg.KernelSize, cfg.KernelSize, inChannels, cfg.Filters}
	}

	weight, err := tensor.RandomNormal(weightShape, 0, weightInitStd, rng)
	if err != nil {
		return nil, err
	}
	weight.SetRequiresGrad(true)
	b.weight = weight

	if cfg.UseBias {
		bias, err := tensor.Zeros([]int{cfg.Filters})
		if err != nil {
			return nil, err
		}
		bias.SetRequiresGrad(true)
		b.bias = bias
	}

	if cfg.Norm {
		gamma, err := tensor.Ones([]int{cfg.Filters})
		if err != nil {
			return nil, err
		}
		gamma.SetRequiresGrad(true)
		b.gamma = gamma

		beta, err := tensor.Zeros([]int{cfg.Filters})
		if err != nil {
			return nil, err
		}
		beta.SetRequiresGrad(true)
		b.beta = beta
	}

	return b, nil
}

func (b *ConvBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("conv block %s: expected 4D input, got %v", b.name, x.Shape)
	}

	var out *tensor.Tensor
	if b.cfg.Transpose {
		out = tensor.ConvTranspose2DAutograd(x, b.weight, b.bias, b.cfg.Stride)
	} else {
		out = tensor.Conv2DAutograd(x, b.weight, b.bias, b.cfg.Stride, b.cfg.PadMode, b.cfg.Pad)
	}

	if b.cfg.Norm {
		out = tensor.InstanceNormAutograd(out, b.gamma, b.beta, normEpsilon)
	}

	switch b.cfg.Activation {
	case ActivationNone:
	case ActivationReLU:
		out = tensor.ReLUAutograd(out)
	case ActivationLeakyReLU:
		out = tensor.LeakyReLUAutograd(out, leakySlope)
	case ActivationTanh:
		out = tensor.TanhAutograd(out)
	default:
		return nil, fmt.Errorf("conv block %s: unknown activation %d", b.name, b.cfg.Activation)
	}
	return out, nil
}

func (b *ConvBlock) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{b.weight}
	if b.bias != nil {
		params = append(params, b.bias)
	}
	if b.gamma != nil {
		params = append(params, b.gamma, b.beta)
	}
	return params
}

func (b *ConvBlock) NamedParameters() []NamedParameter {
	params := []NamedParameter{{Name: b.name + ".weight", Param: b.weight}}
	if b.bias != nil {
		params = append(params, NamedParameter{Name: b.name + ".bias", Param: b.bias})
	}
	if b.gamma != nil {
		params = append(params,
			NamedParameter{Name: b.name + ".norm.weight", Param: b.gamma},
			NamedParameter{Name: b.name + ".norm.bias", Param: b.beta})
	}
	return params
}

func (b *ConvBlock) Name() string {
	return b.name
}
