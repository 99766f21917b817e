package tensor

import (
	"fmt"
)

// AddOp implements the Operation interface for elementwise addition.
type AddOp struct {
	inputs []*Tensor
}

func (op *AddOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("AddOp requires exactly 2 inputs")
	}
	op.inputs = inputs

	result, err := Add(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad || inputs[1].requiresGrad
	return result
}

func (op *AddOp) Backward(gradOut *Tensor) []*Tensor {
	// Gradient flows unchanged to both inputs.
	gradA, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	gradB, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

func (op *AddOp) Inputs() []*Tensor { return op.inputs }

// SubOp implements the Operation interface for elementwise subtraction.
type SubOp struct {
	inputs []*Tensor
}

func (op *SubOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("SubOp requires exactly 2 inputs")
	}
	op.inputs = inputs

	result, err := Sub(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad || inputs[1].requiresGrad
	return result
}

func (op *SubOp) Backward(gradOut *Tensor) []*Tensor {
	gradA, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	gradB, err := Scale(gradOut, -1)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

func (op *SubOp) Inputs() []*Tensor { return op.inputs }

// MulOp implements the Operation interface for elementwise multiplication.
type MulOp struct {
	inputs []*Tensor
}

func (op *MulOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 {
		panic("MulOp requires exactly 2 inputs")
	}
	op.inputs = inputs

	result, err := Mul(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad || inputs[1].requiresGrad
	return result
}

func (op *MulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	gradA, err := Mul(gradOut, b)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	gradB, err := Mul(gradOut, a)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

func (op *MulOp) Inputs() []*Tensor { return op.inputs }

// ScaleOp multiplies by a constant, which carries no gradient of its own.
type ScaleOp struct {
	inputs []*Tensor
	factor float32
}

func (op *ScaleOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ScaleOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := Scale(inputs[0], op.factor)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad
	return result
}

func (op *ScaleOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := Scale(gradOut, op.factor)
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{grad}
}

func (op *ScaleOp) Inputs() []*Tensor { return op.inputs }

// AddScalarOp shifts by a constant.
type AddScalarOp struct {
	inputs []*Tensor
	value  float32
}

func (op *AddScalarOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("AddScalarOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := AddScalar(inputs[0], op.value)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad
	return result
}

func (op *AddScalarOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	return []*Tensor{grad}
}

func (op *AddScalarOp) Inputs() []*Tensor { return op.inputs }

// ReLUOp implements the Operation interface for ReLU activation.
type ReLUOp struct {
	inputs []*Tensor
}

func (op *ReLUOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("ReLUOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := ReLU(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad
	return result
}

func (op *ReLUOp) Backward(gradOut *Tensor) []*Tensor {
	x := op.inputs[0]
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	for i := range grad.Data {
		if x.Data[i] <= 0 {
			grad.Data[i] = 0
		}
	}
	return []*Tensor{grad}
}

func (op *ReLUOp) Inputs() []*Tensor { return op.inputs }

// LeakyReLUOp implements leaky ReLU with a configurable negative slope.
type LeakyReLUOp struct {
	inputs        []*Tensor
	negativeSlope float32
}

func (op *LeakyReLUOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("LeakyReLUOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := LeakyReLU(inputs[0], op.negativeSlope)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad
	return result
}

func (op *LeakyReLUOp) Backward(gradOut *Tensor) []*Tensor {
	x := op.inputs[0]
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	for i := range grad.Data {
		if x.Data[i] <= 0 {
			grad.Data[i] *= op.negativeSlope
		}
	}
	return []*Tensor{grad}
}

func (op *LeakyReLUOp) Inputs() []*Tensor { return op.inputs }

// TanhOp stores its output: the derivative is 1 - tanh^2.
type TanhOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *TanhOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("TanhOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := Tanh(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	op.output = result

	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad
	return result
}

func (op *TanhOp) Backward(gradOut *Tensor) []*Tensor {
	if op.output == nil {
		panic("TanhOp: output not stored for backward pass")
	}
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	for i := range grad.Data {
		y := op.output.Data[i]
		grad.Data[i] *= 1 - y*y
	}
	return []*Tensor{grad}
}

func (op *TanhOp) Inputs() []*Tensor { return op.inputs }

// AbsOp implements elementwise absolute value.
type AbsOp struct {
	inputs []*Tensor
}

func (op *AbsOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("AbsOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := Abs(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad
	return result
}

func (op *AbsOp) Backward(gradOut *Tensor) []*Tensor {
	x := op.inputs[0]
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}
	for i := range grad.Data {
		if x.Data[i] < 0 {
			grad.Data[i] = -grad.Data[i]
		}
	}
	return []*Tensor{grad}
}

func (op *AbsOp) Inputs() []*Tensor { return op.inputs }

// MeanOp reduces all elements to one scalar.
type MeanOp struct {
	inputs []*Tensor
}

func (op *MeanOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("MeanOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := Mean(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad
	return result
}

func (op *MeanOp) Backward(gradOut *Tensor) []*Tensor {
	x := op.inputs[0]
	g, err := gradOut.Item()
	if err != nil {
		panic(fmt.Sprintf("Backward pass failed: %v", err))
	}

	grad, _ := Zeros(x.Shape)
	scale := g / float32(x.NumElems)
	for i := range grad.Data {
		grad.Data[i] = scale
	}
	return []*Tensor{grad}
}

func (op *MeanOp) Inputs() []*Tensor { return op.inputs }

// ConcatOp joins any number of tensors along the batch axis. Backward
// splits the output gradient back into per-input slices.
type ConcatOp struct {
	inputs []*Tensor
}

func (op *ConcatOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) < 1 {
		panic("ConcatOp requires at least 1 input")
	}
	op.inputs = inputs

	result, err := Concat(inputs...)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	for _, in := range inputs {
		if in.requiresGrad {
			result.requiresGrad = true
		}
	}
	return result
}

func (op *ConcatOp) Backward(gradOut *Tensor) []*Tensor {
	grads := make([]*Tensor, len(op.inputs))
	start := 0
	for i, in := range op.inputs {
		g, err := Narrow(gradOut, start, in.Shape[0])
		if err != nil {
			panic(fmt.Sprintf("Backward pass failed: %v", err))
		}
		grads[i] = g
		start += in.Shape[0]
	}
	return grads
}

func (op *ConcatOp) Inputs() []*Tensor { return op.inputs }

// NarrowOp slices along the batch axis. Backward pads the slice gradient
// with zeros outside the window.
type NarrowOp struct {
	inputs        []*Tensor
	start, length int
}

func (op *NarrowOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 1 {
		panic("NarrowOp requires exactly 1 input")
	}
	op.inputs = inputs

	result, err := Narrow(inputs[0], op.start, op.length)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	result.requiresGrad = inputs[0].requiresGrad
	return result
}

func (op *NarrowOp) Backward(gradOut *Tensor) []*Tensor {
	x := op.inputs[0]
	grad, _ := Zeros(x.Shape)

	rowSize := x.NumElems / x.Shape[0]
	copy(grad.Data[op.start*rowSize:(op.start+op.length)*rowSize], gradOut.Data)
	return []*Tensor{grad}
}

func (op *NarrowOp) Inputs() []*Tensor { return op.inputs }

// Conv2DOp records a convolution together with the patch matrix built at
// forward time, so backward never re-runs the forward pass.
type Conv2DOp struct {
	inputs []*Tensor
	stride int
	mode   PadMode
	pad    int
	cols   []float32
}

func (op *Conv2DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 && len(inputs) != 3 {
		panic("Conv2DOp requires input and weight, with optional bias")
	}
	op.inputs = inputs

	var bias *Tensor
	if len(inputs) == 3 {
		bias = inputs[2]
	}

	result, cols, err := conv2DForward(inputs[0], inputs[1], bias, op.stride, op.mode, op.pad)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	op.cols = cols

	result.creator = op
	for _, in := range inputs {
		if in.requiresGrad {
			result.requiresGrad = true
		}
	}
	return result
}

func (op *Conv2DOp) Backward(gradOut *Tensor) []*Tensor {
	hasBias := len(op.inputs) == 3
	gradX, gradW, gradB := conv2DBackward(op.inputs[0], op.inputs[1], hasBias, op.cols, gradOut, op.stride, op.mode, op.pad)
	if hasBias {
		return []*Tensor{gradX, gradW, gradB}
	}
	return []*Tensor{gradX, gradW}
}

func (op *Conv2DOp) Inputs() []*Tensor { return op.inputs }

// ConvTranspose2DOp records a transposed convolution.
type ConvTranspose2DOp struct {
	inputs []*Tensor
	stride int
}

func (op *ConvTranspose2DOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 2 && len(inputs) != 3 {
		panic("ConvTranspose2DOp requires input and weight, with optional bias")
	}
	op.inputs = inputs

	var bias *Tensor
	if len(inputs) == 3 {
		bias = inputs[2]
	}

	result, _, err := convTranspose2DForward(inputs[0], inputs[1], bias, op.stride)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}

	result.creator = op
	for _, in := range inputs {
		if in.requiresGrad {
			result.requiresGrad = true
		}
	}
	return result
}

func (op *ConvTranspose2DOp) Backward(gradOut *Tensor) []*Tensor {
	hasBias := len(op.inputs) == 3
	gradX, gradW, gradB := convTranspose2DBackward(op.inputs[0], op.inputs[1], hasBias, gradOut, op.stride)
	if hasBias {
		return []*Tensor{gradX, gradW, gradB}
	}
	return []*Tensor{gradX, gradW}
}

func (op *ConvTranspose2DOp) Inputs() []*Tensor { return op.inputs }

// InstanceNormOp caches the normalized values and inverse deviations from
// the forward pass for the backward formulas.
type InstanceNormOp struct {
	inputs []*Tensor
	eps    float32
	xhat   []float32
	invStd []float32
}

func (op *InstanceNormOp) Forward(inputs ...*Tensor) *Tensor {
	if len(inputs) != 3 {
		panic("InstanceNormOp requires input, scale and shift")
	}
	op.inputs = inputs

	result, xhat, invStd, err := instanceNormForward(inputs[0], inputs[1], inputs[2], op.eps)
	if err != nil {
		panic(fmt.Sprintf("Forward pass failed: %v", err))
	}
	op.xhat = xhat
	op.invStd = invStd

	result.creator = op
	for _, in := range inputs {
		if in.requiresGrad {
			result.requiresGrad = true
		}
	}
	return result
}

func (op *InstanceNormOp) Backward(gradOut *Tensor) []*Tensor {
	gradX, gradGamma, gradBeta := instanceNormBackward(op.inputs[0], op.inputs[1], op.xhat, op.invStd, gradOut)
	return []*Tensor{gradX, gradGamma, gradBeta}
}

func (op *InstanceNormOp) Inputs() []*Tensor { return op.inputs }

// High-level autograd functions that create and execute operations.

// AddAutograd performs addition with automatic differentiation.
func AddAutograd(a, b *Tensor) *Tensor {
	op := &AddOp{}
	return op.Forward(a, b)
}

// SubAutograd performs subtraction with automatic differentiation.
func SubAutograd(a, b *Tensor) *Tensor {
	op := &SubOp{}
	return op.Forward(a, b)
}

// MulAutograd performs elementwise multiplication with automatic differentiation.
func MulAutograd(a, b *Tensor) *Tensor {
	op := &MulOp{}
	return op.Forward(a, b)
}

// ScaleAutograd multiplies by a constant with automatic differentiation.
func ScaleAutograd(a *Tensor, factor float32) *Tensor {
	op := &ScaleOp{factor: factor}
	return op.Forward(a)
}

// AddScalarAutograd shifts by a constant with automatic differentiation.
func AddScalarAutograd(a *Tensor, value float32) *Tensor {
	op := &AddScalarOp{value: value}
	return op.Forward(a)
}

// ReLUAutograd applies ReLU with automatic differentiation.
func ReLUAutograd(a *Tensor) *Tensor {
	op := &ReLUOp{}
	return op.Forward(a)
}

// LeakyReLUAutograd applies leaky ReLU with automatic differentiation.
func LeakyReLUAutograd(a *Tensor, negativeSlope float32) *Tensor {
	op := &LeakyReLUOp{negativeSlope: negativeSlope}
	return op.Forward(a)
}

// TanhAutograd applies tanh with automatic differentiation.
func TanhAutograd(a *Tensor) *Tensor {
	op := &TanhOp{}
	return op.Forward(a)
}

// AbsAutograd applies absolute value with automatic differentiation.
func AbsAutograd(a *Tensor) *Tensor {
	op := &AbsOp{}
	return op.Forward(a)
}

// MeanAutograd reduces to a scalar with automatic differentiation.
func MeanAutograd(a *Tensor) *Tensor {
	op := &MeanOp{}
	return op.Forward(a)
}

// ConcatAutograd joins along the batch axis with automatic differentiation.
func ConcatAutograd(ts ...*Tensor) *Tensor {
	op := &ConcatOp{}
	return op.Forward(ts...)
}

// NarrowAutograd slices along the batch axis with automatic differentiation.
func NarrowAutograd(a *Tensor, start, length int) *Tensor {
	op := &NarrowOp{start: start, length: length}
	return op.Forward(a)
}

// Conv2DAutograd performs a convolution with automatic differentiation.
// Pass a nil bias to convolve without one.
func Conv2DAutograd(x, weight, bias *Tensor, stride int, mode PadMode, pad int) *Tensor {
	op := &Conv2DOp{stride: stride, mode: mode, pad: pad}
	if bias == nil {
		return op.Forward(x, weight)
	}
	return op.Forward(x, weight, bias)
}

// ConvTranspose2DAutograd performs a transposed convolution with automatic
// differentiation. Pass a nil bias to convolve without one.
func ConvTranspose2DAutograd(x, weight, bias *Tensor, stride int) *Tensor {
	op := &ConvTranspose2DOp{stride: stride}
	if bias == nil {
		return op.Forward(x, weight)
	}
	return op.Forward(x, weight, bias)
}

// InstanceNormAutograd normalizes per instance and channel with automatic
// differentiation.
func InstanceNormAutograd(x, gamma, beta *Tensor, eps float32) *Tensor {
	op := &InstanceNormOp{eps: eps}
	return op.Forward(x, gamma, beta)
}
