package training

import (
	"fmt"

	"github.com/sebastianlutter/artReCycleGAN/layers"
	"github.com/sebastianlutter/artReCycleGAN/nets"
	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// ParameterGroups partitions the model's trainable parameters into the
// four independently optimized sets. The groups are disjoint: each
// sub-network's loss only ever updates its own parameters.
type ParameterGroups struct {
	DiscriminatorA []*tensor.Tensor
	DiscriminatorB []*tensor.Tensor
	GeneratorAB    []*tensor.Tensor
	GeneratorBA    []*tensor.Tensor
}

// BuildParameterGroups collects the parameter groups from a model. It
// fails if any group is empty, so a wiring mistake surfaces at
// construction time rather than as a silent no-op during training.
func BuildParameterGroups(model *nets.CycleGAN) (ParameterGroups, error) {
	groups := ParameterGroups{
		DiscriminatorA: model.DiscriminatorA.Parameters(),
		DiscriminatorB: model.DiscriminatorB.Parameters(),
		GeneratorAB:    model.GeneratorAB.Parameters(),
		GeneratorBA:    model.GeneratorBA.Parameters(),
	}
	for name, group := range map[string][]*tensor.Tensor{
		"discriminator A": groups.DiscriminatorA,
		"discriminator B": groups.DiscriminatorB,
		"generator AB":    groups.GeneratorAB,
		"generator BA":    groups.GeneratorBA,
	} {
		if len(group) == 0 {
			return ParameterGroups{}, fmt.Errorf("parameter group for %s is empty", name)
		}
	}
	return groups, nil
}

// NamedGroups returns the named parameters of each group keyed by the
// checkpoint group names.
func NamedGroups(model *nets.CycleGAN) map[string][]layers.NamedParameter {
	return map[string][]layers.NamedParameter{
		"dA":  model.DiscriminatorA.NamedParameters(),
		"dB":  model.DiscriminatorB.NamedParameters(),
		"gAB": model.GeneratorAB.NamedParameters(),
		"gBA": model.GeneratorBA.NamedParameters(),
	}
}
