package layers

import (
	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// Resize resamples incoming batches to the model's fixed input resolution.
// It is a pure function of its input: no parameters, no randomness, no
// state across calls.
type Resize struct {
	name string
	outH int
	outW int
}

func NewResize(name string, outH, outW int) *Resize {
	return &Resize{name: name, outH: outH, outW: outW}
}

func (r *Resize) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.ResizeBilinear(x, r.outH, r.outW)
}

func (r *Resize) Parameters() []*tensor.Tensor {
	return nil
}

func (r *Resize) NamedParameters() []NamedParameter {
	return nil
}

func (r *Resize) Name() string {
	return r.name
}
