package optimizer

import (
	"fmt"

	"github.com/sebastianlutter/artReCycleGAN/checkpoints"
	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// SGDConfig holds hyperparameters for stochastic gradient descent.
type SGDConfig struct {
	LearningRate float32
	Momentum     float32
	WeightDecay  float32
	Nesterov     bool
}

// DefaultSGDConfig returns plain SGD with momentum 0.9.
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.9,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

// SGDOptimizer implements SGD with optional momentum and Nesterov
// acceleration.
type SGDOptimizer struct {
	config    SGDConfig
	stepCount uint64
	velocity  [][]float32
}

// NewSGDOptimizer creates an SGD optimizer with the given config.
func NewSGDOptimizer(config SGDConfig) (*SGDOptimizer, error) {
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %f", config.LearningRate)
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		return nil, fmt.Errorf("momentum must be in [0, 1), got %f", config.Momentum)
	}
	if config.Nesterov && config.Momentum == 0 {
		return nil, fmt.Errorf("nesterov acceleration requires nonzero momentum")
	}
	return &SGDOptimizer{config: config}, nil
}

// Step applies one SGD update to all parameters.
func (s *SGDOptimizer) Step(params, grads []*tensor.Tensor) error {
	if err := checkStepArgs(params, grads); err != nil {
		return err
	}
	useMomentum := s.config.Momentum > 0
	if useMomentum && s.velocity == nil {
		s.velocity = make([][]float32, len(params))
		for i, p := range params {
			s.velocity[i] = make([]float32, len(p.Data))
		}
	}
	if useMomentum && len(s.velocity) != len(params) {
		return fmt.Errorf("optimizer tracks %d parameters, step received %d", len(s.velocity), len(params))
	}

	s.stepCount++
	for i, p := range params {
		g := grads[i].Data
		if !useMomentum {
			for j := range p.Data {
				grad := g[j]
				if s.config.WeightDecay > 0 {
					grad += s.config.WeightDecay * p.Data[j]
				}
				p.Data[j] -= s.config.LearningRate * grad
			}
			continue
		}
		v := s.velocity[i]
		if len(v) != len(p.Data) {
			return fmt.Errorf("parameter %d size changed: optimizer state has %d elements, parameter %d", i, len(v), len(p.Data))
		}
		for j := range p.Data {
			grad := g[j]
			if s.config.WeightDecay > 0 {
				grad += s.config.WeightDecay * p.Data[j]
			}
			v[j] = s.config.Momentum*v[j] + grad
			update := v[j]
			if s.config.Nesterov {
				update = s.config.Momentum*v[j] + grad
			}
			p.Data[j] -= s.config.LearningRate * update
		}
	}
	return nil
}

// GetState snapshots the optimizer for checkpointing.
func (s *SGDOptimizer) GetState() (*checkpoints.OptimizerState, error) {
	state := &checkpoints.OptimizerState{
		Type: "SGD",
		Parameters: map[string]float64{
			"learning_rate": float64(s.config.LearningRate),
			"momentum":      float64(s.config.Momentum),
			"weight_decay":  float64(s.config.WeightDecay),
		},
		StepCount: s.stepCount,
	}
	if s.config.Nesterov {
		state.Parameters["nesterov"] = 1
	}
	for i := range s.velocity {
		state.StateData = append(state.StateData,
			snapshotBuffer(fmt.Sprintf("param_%d", i), "velocity", s.velocity[i]))
	}
	return state, nil
}

// LoadState restores a snapshot produced by GetState.
func (s *SGDOptimizer) LoadState(state *checkpoints.OptimizerState) error {
	if state.Type != "SGD" {
		return fmt.Errorf("cannot load %s state into SGD optimizer", state.Type)
	}
	if lr, ok := state.Parameters["learning_rate"]; ok {
		s.config.LearningRate = float32(lr)
	}
	s.stepCount = state.StepCount

	var velocity [][]float32
	for _, st := range state.StateData {
		if st.StateType != "velocity" {
			return fmt.Errorf("unknown SGD state type %q", st.StateType)
		}
		buf := make([]float32, len(st.Data))
		copy(buf, st.Data)
		velocity = append(velocity, buf)
	}
	s.velocity = velocity
	return nil
}

// GetStepCount reports the number of updates applied so far.
func (s *SGDOptimizer) GetStepCount() uint64 {
	return s.stepCount
}

// UpdateLearningRate changes the learning rate for subsequent steps.
func (s *SGDOptimizer) UpdateLearningRate(lr float32) {
	s.config.LearningRate = lr
}
