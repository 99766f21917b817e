package nets

import (
	"fmt"
	"math/rand"

	"github.com/sebastianlutter/artReCycleGAN/layers"
	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// Generator translates a batch of images from one domain to the other,
// preserving spatial shape and channel count. Encoding widens channels and
// shrinks the spatial grid, the transformation stage is a stack of residual
// blocks at constant width, and decoding upsamples back to an RGB image
// squashed by tanh.
type Generator struct {
	name      string
	encode    *layers.Sequential
	transform *layers.Sequential
	decode    *layers.Sequential
}

func NewGenerator(name string, cfg Config, rng *rand.Rand) (*Generator, error) {
	base := cfg.BaseFilters

	enc1, err := layers.NewConvBlock("encode_1", 3, layers.ConvBlockConfig{
		Filters: base, KernelSize: 7, Stride: 1,
		PadMode: tensor.PadExplicit, Pad: 3,
		Norm: true, Activation: layers.ActivationReLU, UseBias: true,
	}, rng)
	if err != nil {
		return nil, err
	}
	enc2, err := layers.NewConvBlock("encode_2", base, layers.ConvBlockConfig{
		Filters: base * 2, KernelSize: 3, Stride: 2,
		PadMode: tensor.PadSame,
		Norm:    true, Activation: layers.ActivationReLU, UseBias: true,
	}, rng)
	if err != nil {
		return nil, err
	}
	enc3, err := layers.NewConvBlock("encode_3", base*2, layers.ConvBlockConfig{
		Filters: base * 4, KernelSize: 3, Stride: 2,
		PadMode: tensor.PadSame,
		Norm:    true, Activation: layers.ActivationReLU, UseBias: true,
	}, rng)
	if err != nil {
		return nil, err
	}

	transform := layers.NewSequential(name)
	for i := 0; i < cfg.ResidualBlocks; i++ {
		block, err := layers.NewResidualBlock(fmt.Sprintf("resnet_%d", i+1), base*4, rng)
		if err != nil {
			return nil, err
		}
		transform.Append(block)
	}

	dec1, err := layers.NewConvBlock("decode_1", base*4, layers.ConvBlockConfig{
		Filters: base * 2, KernelSize: 3, Stride: 2,
		Transpose: true,
		Norm:      true, Activation: layers.ActivationReLU, UseBias: true,
	}, rng)
	if err != nil {
		return nil, err
	}
	dec2, err := layers.NewConvBlock("decode_2", base*2, layers.ConvBlockConfig{
		Filters: base, KernelSize: 3, Stride: 2,
		Transpose: true,
		Norm:      true, Activation: layers.ActivationReLU, UseBias: true,
	}, rng)
	if err != nil {
		return nil, err
	}
	// Final convolution back to RGB: no normalization, tanh bounds the
	// pixel range to [-1, 1].
	out, err := layers.NewConvBlock("decode_out", base, layers.ConvBlockConfig{
		Filters: 3, KernelSize: 7, Stride: 1,
		PadMode: tensor.PadExplicit, Pad: 3,
		Norm:    false, Activation: layers.ActivationTanh, UseBias: true,
	}, rng)
	if err != nil {
		return nil, err
	}

	return &Generator{
		name:      name,
		encode:    layers.NewSequential(name, enc1, enc2, enc3),
		transform: transform,
		decode:    layers.NewSequential(name, dec1, dec2, out),
	}, nil
}

func (g *Generator) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := g.encode.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("%s encoding: %v", g.name, err)
	}
	out, err = g.transform.Forward(out)
	if err != nil {
		return nil, fmt.Errorf("%s transformation: %v", g.name, err)
	}
	out, err = g.decode.Forward(out)
	if err != nil {
		return nil, fmt.Errorf("%s decoding: %v", g.name, err)
	}
	return out, nil
}

func (g *Generator) Parameters() []*tensor.Tensor {
	params := g.encode.Parameters()
	params = append(params, g.transform.Parameters()...)
	params = append(params, g.decode.Parameters()...)
	return params
}

func (g *Generator) NamedParameters() []layers.NamedParameter {
	params := g.encode.NamedParameters()
	params = append(params, g.transform.NamedParameters()...)
	params = append(params, g.decode.NamedParameters()...)
	return params
}

func (g *Generator) Name() string {
	return g.name
}
