package optimizer

import (
	"fmt"

	"github.com/sebastianlutter/artReCycleGAN/checkpoints"
	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// Optimizer updates a fixed set of parameters from externally computed
// gradients. Implementations own per-parameter accumulator state and
// size it lazily on the first Step call, so the same constructor serves
// any parameter group.
type Optimizer interface {
	// Step applies one update. params[i] is updated in place using
	// grads[i]; both slices must have the same length and matching
	// shapes across calls.
	Step(params, grads []*tensor.Tensor) error

	// GetState snapshots hyperparameters, step count, and accumulator
	// tensors for checkpointing.
	GetState() (*checkpoints.OptimizerState, error)

	// LoadState restores a snapshot produced by GetState. The
	// optimizer type and accumulator shapes must match.
	LoadState(state *checkpoints.OptimizerState) error

	// GetStepCount reports how many updates have been applied.
	GetStepCount() uint64

	// UpdateLearningRate changes the learning rate for subsequent
	// steps without touching accumulator state.
	UpdateLearningRate(lr float32)
}

func checkStepArgs(params, grads []*tensor.Tensor) error {
	if len(params) == 0 {
		return fmt.Errorf("optimizer step requires at least one parameter")
	}
	if len(params) != len(grads) {
		return fmt.Errorf("parameter/gradient count mismatch: %d parameters, %d gradients", len(params), len(grads))
	}
	for i := range params {
		if grads[i] == nil {
			return fmt.Errorf("gradient %d is nil", i)
		}
		if len(params[i].Data) != len(grads[i].Data) {
			return fmt.Errorf("parameter %d shape %v does not match gradient shape %v", i, params[i].Shape, grads[i].Shape)
		}
	}
	return nil
}
