package checkpoints

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/sebastianlutter/artReCycleGAN/layers"
	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// FormatVersion identifies the checkpoint file layout. Bump on
// incompatible changes to the JSON structure.
const FormatVersion = "1.0"

// Parameter group names used as checkpoint keys. A checkpoint stores
// one weight set per group so each network can be restored
// independently.
const (
	GroupDiscriminatorA = "dA"
	GroupDiscriminatorB = "dB"
	GroupGeneratorAB    = "gAB"
	GroupGeneratorBA    = "gBA"
)

// WeightTensor is a serialized parameter with enough metadata to
// restore it into the right place with the right shape.
type WeightTensor struct {
	Name  string    `json:"name"`
	Group string    `json:"group"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// OptimizerTensor holds one per-parameter accumulator (momentum,
// variance, ...) belonging to an optimizer state snapshot.
type OptimizerTensor struct {
	Name      string    `json:"name"`
	StateType string    `json:"state_type"`
	Shape     []int     `json:"shape"`
	Data      []float32 `json:"data"`
}

// OptimizerState snapshots one optimizer: its hyperparameters, step
// count, and accumulator tensors.
type OptimizerState struct {
	Type       string             `json:"type"`
	Parameters map[string]float64 `json:"parameters"`
	StepCount  uint64             `json:"step_count"`
	StateData  []OptimizerTensor  `json:"state_data,omitempty"`
}

// TrainingState records where in the schedule the run stopped.
type TrainingState struct {
	Epoch      int                `json:"epoch"`
	GlobalStep int                `json:"global_step"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// Checkpoint is the on-disk representation of a training run: all four
// parameter groups, optional optimizer snapshots keyed by group, and
// the training position.
type Checkpoint struct {
	Version       string                     `json:"version"`
	Description   string                     `json:"description,omitempty"`
	CreatedAt     time.Time                  `json:"created_at"`
	Weights       []WeightTensor             `json:"weights"`
	Optimizers    map[string]*OptimizerState `json:"optimizers,omitempty"`
	TrainingState *TrainingState             `json:"training_state,omitempty"`
}

// ExtractWeights converts a layer's named parameters into serializable
// weight tensors tagged with the given group name.
func ExtractWeights(group string, params []layers.NamedParameter) []WeightTensor {
	weights := make([]WeightTensor, 0, len(params))
	for _, np := range params {
		shape := make([]int, len(np.Param.Shape))
		copy(shape, np.Param.Shape)
		data := make([]float32, len(np.Param.Data))
		copy(data, np.Param.Data)
		weights = append(weights, WeightTensor{
			Name:  np.Name,
			Group: group,
			Shape: shape,
			Data:  data,
		})
	}
	return weights
}

// RestoreWeights copies checkpoint weights for one group back into a
// layer's parameters. Every stored weight must find a parameter with a
// matching name and shape, and every parameter must be covered.
func RestoreWeights(group string, weights []WeightTensor, params []layers.NamedParameter) error {
	byName := make(map[string]*tensor.Tensor, len(params))
	for _, np := range params {
		byName[np.Name] = np.Param
	}

	restored := make(map[string]bool, len(params))
	for _, w := range weights {
		if w.Group != group {
			continue
		}
		param, ok := byName[w.Name]
		if !ok {
			return errors.Errorf("checkpoint weight %q has no matching parameter in group %s", w.Name, group)
		}
		if !shapeEqual(w.Shape, param.Shape) {
			return errors.Errorf("shape mismatch for %q: checkpoint %v, model %v", w.Name, w.Shape, param.Shape)
		}
		if len(w.Data) != len(param.Data) {
			return errors.Errorf("data length mismatch for %q: checkpoint %d, model %d", w.Name, len(w.Data), len(param.Data))
		}
		copy(param.Data, w.Data)
		restored[w.Name] = true
	}

	for _, np := range params {
		if !restored[np.Name] {
			return errors.Errorf("checkpoint is missing parameter %q for group %s", np.Name, group)
		}
	}
	return nil
}

// Save writes the checkpoint as JSON. The file is written atomically
// via a temporary file so an interrupted save never corrupts an
// existing checkpoint.
func (c *Checkpoint) Save(path string) error {
	if c.Version == "" {
		c.Version = FormatVersion
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshaling checkpoint")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing checkpoint %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "renaming checkpoint to %s", path)
	}
	return nil
}

// Load reads a checkpoint file written by Save.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading checkpoint %s", path)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, errors.Wrapf(err, "parsing checkpoint %s", path)
	}
	if cp.Version != FormatVersion {
		return nil, errors.Errorf("unsupported checkpoint version %q (expected %s)", cp.Version, FormatVersion)
	}
	return &cp, nil
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
