package tensor

import (
	"fmt"
)

// topoSort orders the trace reachable from root so that every tensor
// appears before the inputs of its creator. Subgraphs that cannot reach a
// trainable parameter are pruned via requiresGrad.
func topoSort(root *Tensor) []*Tensor {
	var order []*Tensor
	visited := make(map[*Tensor]bool)

	var visit func(t *Tensor)
	visit = func(t *Tensor) {
		if visited[t] || !t.requiresGrad {
			return
		}
		visited[t] = true
		if t.creator != nil {
			for _, in := range t.creator.Inputs() {
				visit(in)
			}
		}
		order = append(order, t)
	}
	visit(root)

	// Reverse: gradients propagate from the root down to the leaves.
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Gradients extracts d(loss)/d(param) for every tensor in params from the
// retained forward trace rooted at loss. The trace is read-only here: no
// tensor's grad field is touched, so Gradients can be called any number of
// times against the same forward pass, once per loss.
//
// It is an error to request the gradient of a parameter that the loss does
// not depend on. That means a miswired network, not a recoverable state.
func Gradients(loss *Tensor, params []*Tensor) ([]*Tensor, error) {
	if loss.NumElems != 1 {
		return nil, fmt.Errorf("gradients require a scalar loss, got shape %v", loss.Shape)
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("gradients requested for an empty parameter group")
	}
	if !loss.requiresGrad {
		return nil, fmt.Errorf("loss does not depend on any trainable parameter")
	}

	order := topoSort(loss)

	grads := make(map[*Tensor]*Tensor, len(order))
	seed, err := Ones(loss.Shape)
	if err != nil {
		return nil, err
	}
	grads[loss] = seed

	for _, node := range order {
		gradOut := grads[node]
		if gradOut == nil || node.creator == nil {
			continue
		}

		inputGrads := node.creator.Backward(gradOut)
		inputs := node.creator.Inputs()
		if len(inputGrads) != len(inputs) {
			return nil, fmt.Errorf("operation %T returned %d gradients for %d inputs", node.creator, len(inputGrads), len(inputs))
		}

		for i, in := range inputs {
			if !in.requiresGrad {
				continue
			}
			if existing := grads[in]; existing != nil {
				sum, err := Add(existing, inputGrads[i])
				if err != nil {
					return nil, fmt.Errorf("gradient accumulation failed: %v", err)
				}
				grads[in] = sum
			} else {
				grads[in] = inputGrads[i]
			}
		}
	}

	result := make([]*Tensor, len(params))
	for i, p := range params {
		if p == nil {
			return nil, fmt.Errorf("parameter %d is nil", i)
		}
		if !p.requiresGrad {
			return nil, fmt.Errorf("parameter %d does not require gradients", i)
		}
		g := grads[p]
		if g == nil {
			return nil, fmt.Errorf("parameter %d (shape %v) is not reachable from the loss", i, p.Shape)
		}
		result[i] = g
	}
	return result, nil
}

// Backward accumulates gradients of t into the grad field of every
// reachable tensor that requires them. Single-loss convenience; training
// with several losses over one trace uses Gradients instead.
func (t *Tensor) Backward() error {
	if t.NumElems != 1 {
		return fmt.Errorf("backward requires a scalar tensor, got shape %v", t.Shape)
	}

	order := topoSort(t)

	grads := make(map[*Tensor]*Tensor, len(order))
	seed, err := Ones(t.Shape)
	if err != nil {
		return err
	}
	grads[t] = seed

	for _, node := range order {
		gradOut := grads[node]
		if gradOut == nil {
			continue
		}

		if node.grad != nil {
			sum, err := Add(node.grad, gradOut)
			if err != nil {
				return fmt.Errorf("gradient accumulation failed: %v", err)
			}
			node.grad = sum
		} else {
			node.grad = gradOut
		}

		if node.creator == nil {
			continue
		}
		inputGrads := node.creator.Backward(gradOut)
		for i, in := range node.creator.Inputs() {
			if !in.requiresGrad {
				continue
			}
			if existing := grads[in]; existing != nil {
				sum, err := Add(existing, inputGrads[i])
				if err != nil {
					return fmt.Errorf("gradient accumulation failed: %v", err)
				}
				grads[in] = sum
			} else {
				grads[in] = inputGrads[i]
			}
		}
	}
	return nil
}

// ZeroGrad clears accumulated gradients on the given tensors.
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		t.grad = nil
	}
}
