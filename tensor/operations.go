package tensor

import (
	"fmt"
	"math"
)

func checkShapesCompatible(shape1, shape2 []int) ([]int, error) {
	if len(shape1) == 0 || len(shape2) == 0 {
		return nil, fmt.Errorf("cannot operate on empty tensors")
	}

	if len(shape1) != len(shape2) {
		return nil, fmt.Errorf("tensor shapes must have same number of dimensions: %v vs %v", shape1, shape2)
	}

	for i := range shape1 {
		if shape1[i] != shape2[i] {
			return nil, fmt.Errorf("tensor shapes must match: %v vs %v", shape1, shape2)
		}
	}

	return shape1, nil
}

func Add(t1, t2 *Tensor) (*Tensor, error) {
	outputShape, err := checkShapesCompatible(t1.Shape, t2.Shape)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outputShape)
	if err != nil {
		return nil, err
	}

	for i := 0; i < t1.NumElems; i++ {
		result.Data[i] = t1.Data[i] + t2.Data[i]
	}
	return result, nil
}

func Sub(t1, t2 *Tensor) (*Tensor, error) {
	outputShape, err := checkShapesCompatible(t1.Shape, t2.Shape)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outputShape)
	if err != nil {
		return nil, err
	}

	for i := 0; i < t1.NumElems; i++ {
		result.Data[i] = t1.Data[i] - t2.Data[i]
	}
	return result, nil
}

func Mul(t1, t2 *Tensor) (*Tensor, error) {
	outputShape, err := checkShapesCompatible(t1.Shape, t2.Shape)
	if err != nil {
		return nil, err
	}

	result, err := Zeros(outputShape)
	if err != nil {
		return nil, err
	}

	for i := 0; i < t1.NumElems; i++ {
		result.Data[i] = t1.Data[i] * t2.Data[i]
	}
	return result, nil
}

// Scale multiplies every element by a constant.
func Scale(t *Tensor, s float32) (*Tensor, error) {
	result, err := Zeros(t.Shape)
	if err != nil {
		return nil, err
	}

	for i := 0; i < t.NumElems; i++ {
		result.Data[i] = t.Data[i] * s
	}
	return result, nil
}

// AddScalar adds a constant to every element.
func AddScalar(t *Tensor, s float32) (*Tensor, error) {
	result, err := Zeros(t.Shape)
	if err != nil {
		return nil, err
	}

	for i := 0; i < t.NumElems; i++ {
		result.Data[i] = t.Data[i] + s
	}
	return result, nil
}

func ReLU(t *Tensor) (*Tensor, error) {
	result, err := Zeros(t.Shape)
	if err != nil {
		return nil, err
	}

	for i := 0; i < t.NumElems; i++ {
		if t.Data[i] > 0 {
			result.Data[i] = t.Data[i]
		}
	}
	return result, nil
}

func LeakyReLU(t *Tensor, negativeSlope float32) (*Tensor, error) {
	result, err := Zeros(t.Shape)
	if err != nil {
		return nil, err
	}

	for i := 0; i < t.NumElems; i++ {
		if t.Data[i] > 0 {
			result.Data[i] = t.Data[i]
		} else {
			result.Data[i] = t.Data[i] * negativeSlope
		}
	}
	return result, nil
}

func Tanh(t *Tensor) (*Tensor, error) {
	result, err := Zeros(t.Shape)
	if err != nil {
		return nil, err
	}

	for i := 0; i < t.NumElems; i++ {
		result.Data[i] = float32(math.Tanh(float64(t.Data[i])))
	}
	return result, nil
}

func Abs(t *Tensor) (*Tensor, error) {
	result, err := Zeros(t.Shape)
	if err != nil {
		return nil, err
	}

	for i := 0; i < t.NumElems; i++ {
		if t.Data[i] < 0 {
			result.Data[i] = -t.Data[i]
		} else {
			result.Data[i] = t.Data[i]
		}
	}
	return result, nil
}

// Mean reduces all elements to a single [1] scalar.
func Mean(t *Tensor) (*Tensor, error) {
	if t.NumElems == 0 {
		return nil, fmt.Errorf("cannot take mean of empty tensor")
	}

	var sum float32
	for _, v := range t.Data {
		sum += v
	}
	return NewTensor([]int{1}, []float32{sum / float32(t.NumElems)})
}

// Concat joins tensors along the batch axis (dim 0). All inputs must agree
// on every other dimension.
func Concat(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("concat requires at least one tensor")
	}

	batch := 0
	for _, t := range ts {
		if !shapesEqual(t.Shape[1:], ts[0].Shape[1:]) {
			return nil, fmt.Errorf("concat shapes must match beyond batch axis: %v vs %v", t.Shape, ts[0].Shape)
		}
		batch += t.Shape[0]
	}

	outShape := append([]int{batch}, ts[0].Shape[1:]...)
	result, err := Zeros(outShape)
	if err != nil {
		return nil, err
	}

	offset := 0
	for _, t := range ts {
		copy(result.Data[offset:offset+t.NumElems], t.Data)
		offset += t.NumElems
	}
	return result, nil
}

// Narrow slices length elements along the batch axis starting at start.
func Narrow(t *Tensor, start, length int) (*Tensor, error) {
	if start < 0 || length <= 0 || start+length > t.Shape[0] {
		return nil, fmt.Errorf("narrow [%d:%d] out of range for batch size %d", start, start+length, t.Shape[0])
	}

	rowSize := t.NumElems / t.Shape[0]
	outShape := append([]int{length}, t.Shape[1:]...)
	data := make([]float32, length*rowSize)
	copy(data, t.Data[start*rowSize:(start+length)*rowSize])
	return NewTensor(outShape, data)
}

// HasNaN reports whether any element is NaN or infinite.
func (t *Tensor) HasNaN() bool {
	for _, v := range t.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true
		}
	}
	return false
}

// Norm returns the L2 norm of all elements.
func (t *Tensor) Norm() float32 {
	var sum float64
	for _, v := range t.Data {
		sum += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sum))
}

func (t *Tensor) Equal(other *Tensor) bool {
	if !shapesEqual(t.Shape, other.Shape) {
		return false
	}
	for i := 0; i < t.NumElems; i++ {
		if t.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}
