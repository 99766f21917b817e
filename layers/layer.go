// Package layers provides the network stages CycleGAN generators and
// discriminators are assembled from. Every stage satisfies the Layer
// interface; heterogeneous stacks are typed Sequential values rather than
// lists of bare callables.
package layers

import (
	"fmt"

	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// Activation selects the nonlinearity applied by a block.
type Activation int

const (
	ActivationNone Activation = iota
	ActivationReLU
	ActivationLeakyReLU
	ActivationTanh
)

func (a Activation) String() string {
	switch a {
	case ActivationNone:
		return "None"
	case ActivationReLU:
		return "ReLU"
	case ActivationLeakyReLU:
		return "LeakyReLU"
	case ActivationTanh:
		return "Tanh"
	default:
		return "Unknown"
	}
}

// NamedParameter pairs a trainable tensor with its checkpoint name.
type NamedParameter struct {
	Name  string
	Param *tensor.Tensor
}

// Layer is one stage of a network: a forward transform with a fixed
// output-shape contract and an owned set of trainable parameters.
type Layer interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	NamedParameters() []NamedParameter
	Name() string
}

// Sequential runs an ordered stack of layers.
type Sequential struct {
	name   string
	stack  []Layer
}

func NewSequential(name string, stack ...Layer) *Sequential {
	return &Sequential{name: name, stack: stack}
}

func (s *Sequential) Append(l Layer) {
	s.stack = append(s.stack, l)
}

func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := x
	var err error
	for _, l := range s.stack {
		out, err = l.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %v", l.Name(), err)
		}
	}
	return out, nil
}

func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, l := range s.stack {
		params = append(params, l.Parameters()...)
	}
	return params
}

func (s *Sequential) NamedParameters() []NamedParameter {
	var params []NamedParameter
	for _, l := range s.stack {
		for _, np := range l.NamedParameters() {
			params = append(params, NamedParameter{
				Name:  s.name + "/" + np.Name,
				Param: np.Param,
			})
		}
	}
	return params
}

func (s *Sequential) Name() string {
	return s.name
}

func (s *Sequential) Layers() []Layer {
	return s.stack
}
