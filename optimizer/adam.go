package optimizer

import (
	"fmt"
	"math"

	"github.com/sebastianlutter/artReCycleGAN/checkpoints"
	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// AdamConfig holds hyperparameters for the Adam optimizer.
type AdamConfig struct {
	LearningRate float32
	Beta1        float32
	Beta2        float32
	Epsilon      float32
	WeightDecay  float32
}

// DefaultAdamConfig returns the standard Adam hyperparameters.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.0,
	}
}

// AdamOptimizer implements Adam with bias correction and optional
// decoupled weight decay. Momentum and variance buffers are allocated
// on the first Step call to match the parameter shapes.
type AdamOptimizer struct {
	config    AdamConfig
	stepCount uint64
	momentum  [][]float32
	variance  [][]float32
}

// NewAdamOptimizer creates an Adam optimizer with the given config.
func NewAdamOptimizer(config AdamConfig) (*AdamOptimizer, error) {
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %f", config.LearningRate)
	}
	if config.Beta1 < 0 || config.Beta1 >= 1 {
		return nil, fmt.Errorf("beta1 must be in [0, 1), got %f", config.Beta1)
	}
	if config.Beta2 < 0 || config.Beta2 >= 1 {
		return nil, fmt.Errorf("beta2 must be in [0, 1), got %f", config.Beta2)
	}
	if config.Epsilon <= 0 {
		return nil, fmt.Errorf("epsilon must be positive, got %f", config.Epsilon)
	}
	return &AdamOptimizer{config: config}, nil
}

// Step applies one Adam update to all parameters.
func (a *AdamOptimizer) Step(params, grads []*tensor.Tensor) error {
	if err := checkStepArgs(params, grads); err != nil {
		return err
	}
	if a.momentum == nil {
		a.momentum = make([][]float32, len(params))
		a.variance = make([][]float32, len(params))
		for i, p := range params {
			a.momentum[i] = make([]float32, len(p.Data))
			a.variance[i] = make([]float32, len(p.Data))
		}
	}
	if len(a.momentum) != len(params) {
		return fmt.Errorf("optimizer tracks %d parameters, step received %d", len(a.momentum), len(params))
	}

	a.stepCount++
	correction1 := float32(1 - math.Pow(float64(a.config.Beta1), float64(a.stepCount)))
	correction2 := float32(1 - math.Pow(float64(a.config.Beta2), float64(a.stepCount)))

	for i, p := range params {
		m := a.momentum[i]
		v := a.variance[i]
		if len(m) != len(p.Data) {
			return fmt.Errorf("parameter %d size changed: optimizer state has %d elements, parameter %d", i, len(m), len(p.Data))
		}
		g := grads[i].Data
		for j := range p.Data {
			grad := g[j]
			if a.config.WeightDecay > 0 {
				grad += a.config.WeightDecay * p.Data[j]
			}
			m[j] = a.config.Beta1*m[j] + (1-a.config.Beta1)*grad
			v[j] = a.config.Beta2*v[j] + (1-a.config.Beta2)*grad*grad
			mHat := m[j] / correction1
			vHat := v[j] / correction2
			p.Data[j] -= a.config.LearningRate * mHat / (float32(math.Sqrt(float64(vHat))) + a.config.Epsilon)
		}
	}
	return nil
}

// GetState snapshots the optimizer for checkpointing.
func (a *AdamOptimizer) GetState() (*checkpoints.OptimizerState, error) {
	state := &checkpoints.OptimizerState{
		Type: "Adam",
		Parameters: map[string]float64{
			"learning_rate": float64(a.config.LearningRate),
			"beta1":         float64(a.config.Beta1),
			"beta2":         float64(a.config.Beta2),
			"epsilon":       float64(a.config.Epsilon),
			"weight_decay":  float64(a.config.WeightDecay),
		},
		StepCount: a.stepCount,
	}
	for i := range a.momentum {
		state.StateData = append(state.StateData,
			snapshotBuffer(fmt.Sprintf("param_%d", i), "momentum", a.momentum[i]),
			snapshotBuffer(fmt.Sprintf("param_%d", i), "variance", a.variance[i]))
	}
	return state, nil
}

// LoadState restores a snapshot produced by GetState.
func (a *AdamOptimizer) LoadState(state *checkpoints.OptimizerState) error {
	if state.Type != "Adam" {
		return fmt.Errorf("cannot load %s state into Adam optimizer", state.Type)
	}
	if lr, ok := state.Parameters["learning_rate"]; ok {
		a.config.LearningRate = float32(lr)
	}
	a.stepCount = state.StepCount

	var momentum, variance [][]float32
	for _, st := range state.StateData {
		buf := make([]float32, len(st.Data))
		copy(buf, st.Data)
		switch st.StateType {
		case "momentum":
			momentum = append(momentum, buf)
		case "variance":
			variance = append(variance, buf)
		default:
			return fmt.Errorf("unknown Adam state type %q", st.StateType)
		}
	}
	if len(momentum) != len(variance) {
		return fmt.Errorf("inconsistent Adam state: %d momentum buffers, %d variance buffers", len(momentum), len(variance))
	}
	a.momentum = momentum
	a.variance = variance
	return nil
}

// GetStepCount reports the number of updates applied so far.
func (a *AdamOptimizer) GetStepCount() uint64 {
	return a.stepCount
}

// UpdateLearningRate changes the learning rate for subsequent steps.
func (a *AdamOptimizer) UpdateLearningRate(lr float32) {
	a.config.LearningRate = lr
}

func snapshotBuffer(name, stateType string, data []float32) checkpoints.OptimizerTensor {
	buf := make([]float32, len(data))
	copy(buf, data)
	return checkpoints.OptimizerTensor{
		Name:      name,
		StateType: stateType,
		Shape:     []int{len(data)},
		Data:      buf,
	}
}
