package training

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"path/filepath"

	"github.com/sebastianlutter/artReCycleGAN/checkpoints"
	"github.com/sebastianlutter/artReCycleGAN/nets"
	"github.com/sebastianlutter/artReCycleGAN/optimizer"
	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

// BatchSource yields paired domain batches for one epoch. Next returns
// io.EOF when the epoch is exhausted; Reset rewinds for the next epoch.
type BatchSource interface {
	Next() (batchA, batchB *tensor.Tensor, err error)
	Reset() error
}

// TrainerConfig controls the training schedule.
type TrainerConfig struct {
	Epochs          int
	LearningRate    float32
	CheckpointDir   string
	CheckpointEvery int // epochs between saves; 0 saves only at the end
	LogEvery        int // steps between progress lines; 0 disables
}

// DefaultTrainerConfig returns the standard training schedule.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		Epochs:          100,
		LearningRate:    0.0002,
		CheckpointEvery: 1,
		LogEvery:        50,
	}
}

// Trainer drives the four-network training protocol: one forward pass
// per step, four independent gradient extractions from that pass, and
// four optimizer updates applied against the pre-step parameter values.
type Trainer struct {
	model  *nets.CycleGAN
	groups ParameterGroups
	config TrainerConfig

	optDA  optimizer.Optimizer
	optDB  optimizer.Optimizer
	optGAB optimizer.Optimizer
	optGBA optimizer.Optimizer

	metrics    *MetricSet
	logger     *log.Logger
	epoch      int
	globalStep int
}

// NewTrainer wires a model to four Adam optimizers. Parameter groups
// are collected and validated here so an empty group fails construction
// instead of corrupting a run.
func NewTrainer(model *nets.CycleGAN, config TrainerConfig, logger *log.Logger) (*Trainer, error) {
	if config.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", config.Epochs)
	}
	if logger == nil {
		logger = log.Default()
	}

	groups, err := BuildParameterGroups(model)
	if err != nil {
		return nil, err
	}

	adamConfig := optimizer.DefaultAdamConfig()
	if config.LearningRate > 0 {
		adamConfig.LearningRate = config.LearningRate
	}
	opts := make([]optimizer.Optimizer, 4)
	for i := range opts {
		opt, err := optimizer.NewAdamOptimizer(adamConfig)
		if err != nil {
			return nil, err
		}
		opts[i] = opt
	}

	return &Trainer{
		model:   model,
		groups:  groups,
		config:  config,
		optDA:   opts[0],
		optDB:   opts[1],
		optGAB:  opts[2],
		optGBA:  opts[3],
		metrics: NewMetricSet(),
		logger:  logger,
	}, nil
}

// Metrics exposes the running per-epoch loss means.
func (t *Trainer) Metrics() *MetricSet {
	return t.metrics
}

// Epoch reports the current epoch index.
func (t *Trainer) Epoch() int {
	return t.epoch
}

// GlobalStep reports the number of completed training steps.
func (t *Trainer) GlobalStep() int {
	return t.globalStep
}

// Step runs one training step on a paired batch. All four gradients
// are extracted from the single forward trace before any parameter is
// touched, so every update sees the pre-step values.
func (t *Trainer) Step(batchA, batchB *tensor.Tensor) (*nets.StepOutputs, error) {
	out, err := t.model.Forward(batchA, batchB)
	if err != nil {
		return nil, fmt.Errorf("forward pass failed: %v", err)
	}

	gradsDA, err := tensor.Gradients(out.DiscriminatorALoss, t.groups.DiscriminatorA)
	if err != nil {
		return nil, fmt.Errorf("discriminator A gradients: %v", err)
	}
	gradsDB, err := tensor.Gradients(out.DiscriminatorBLoss, t.groups.DiscriminatorB)
	if err != nil {
		return nil, fmt.Errorf("discriminator B gradients: %v", err)
	}
	gradsGAB, err := tensor.Gradients(out.GeneratorABLoss, t.groups.GeneratorAB)
	if err != nil {
		return nil, fmt.Errorf("generator AB gradients: %v", err)
	}
	gradsGBA, err := tensor.Gradients(out.GeneratorBALoss, t.groups.GeneratorBA)
	if err != nil {
		return nil, fmt.Errorf("generator BA gradients: %v", err)
	}

	if err := t.optDA.Step(t.groups.DiscriminatorA, gradsDA); err != nil {
		return nil, fmt.Errorf("discriminator A update: %v", err)
	}
	if err := t.optDB.Step(t.groups.DiscriminatorB, gradsDB); err != nil {
		return nil, fmt.Errorf("discriminator B update: %v", err)
	}
	if err := t.optGAB.Step(t.groups.GeneratorAB, gradsGAB); err != nil {
		return nil, fmt.Errorf("generator AB update: %v", err)
	}
	if err := t.optGBA.Step(t.groups.GeneratorBA, gradsGBA); err != nil {
		return nil, fmt.Errorf("generator BA update: %v", err)
	}

	t.metrics.Update(MetricDiscriminatorA, lossValue(out.DiscriminatorALoss))
	t.metrics.Update(MetricDiscriminatorB, lossValue(out.DiscriminatorBLoss))
	t.metrics.Update(MetricGeneratorAB, lossValue(out.GeneratorABLoss))
	t.metrics.Update(MetricGeneratorBA, lossValue(out.GeneratorBALoss))
	t.globalStep++

	return out, nil
}

// Fit trains for the configured number of epochs, drawing batches from
// the source. Checkpoints are written at epoch boundaries. Cancelling
// the context stops training at the next step boundary.
func (t *Trainer) Fit(ctx context.Context, source BatchSource) error {
	for ; t.epoch < t.config.Epochs; t.epoch++ {
		if err := source.Reset(); err != nil {
			return fmt.Errorf("resetting batch source for epoch %d: %v", t.epoch, err)
		}
		t.metrics.Reset()

		step := 0
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			batchA, batchB, err := source.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("fetching batch: %v", err)
			}

			if _, err := t.Step(batchA, batchB); err != nil {
				return fmt.Errorf("epoch %d step %d: %v", t.epoch, step, err)
			}
			step++

			if t.config.LogEvery > 0 && step%t.config.LogEvery == 0 {
				t.logger.Printf("epoch %d step %d: %s", t.epoch, step, t.metrics)
			}
		}

		t.logger.Printf("epoch %d done (%d steps): %s", t.epoch, step, t.metrics)

		if t.shouldCheckpoint() {
			path := t.checkpointPath()
			if err := t.SaveCheckpoint(path); err != nil {
				return fmt.Errorf("saving checkpoint after epoch %d: %v", t.epoch, err)
			}
			t.logger.Printf("wrote checkpoint %s", path)
		}
	}
	return nil
}

func (t *Trainer) shouldCheckpoint() bool {
	if t.config.CheckpointDir == "" {
		return false
	}
	if t.config.CheckpointEvery <= 0 {
		return t.epoch == t.config.Epochs-1
	}
	return (t.epoch+1)%t.config.CheckpointEvery == 0 || t.epoch == t.config.Epochs-1
}

func (t *Trainer) checkpointPath() string {
	return filepath.Join(t.config.CheckpointDir, fmt.Sprintf("epoch_%04d.json", t.epoch))
}

// SaveCheckpoint writes all four parameter groups, optimizer states,
// and the training position to one checkpoint file.
func (t *Trainer) SaveCheckpoint(path string) error {
	cp := &checkpoints.Checkpoint{
		Description: "artReCycleGAN training checkpoint",
		Optimizers:  map[string]*checkpoints.OptimizerState{},
		TrainingState: &checkpoints.TrainingState{
			Epoch:      t.epoch,
			GlobalStep: t.globalStep,
			Metrics:    t.metrics.Values(),
		},
	}
	for group, params := range NamedGroups(t.model) {
		cp.Weights = append(cp.Weights, checkpoints.ExtractWeights(group, params)...)
	}
	for group, opt := range t.optimizers() {
		state, err := opt.GetState()
		if err != nil {
			return fmt.Errorf("snapshotting %s optimizer: %v", group, err)
		}
		cp.Optimizers[group] = state
	}
	return cp.Save(path)
}

// Resume restores model weights and the training position from a
// checkpoint. Optimizer accumulators are left at zero: each resumed run
// rebuilds its momentum from scratch.
func (t *Trainer) Resume(path string) error {
	cp, err := checkpoints.Load(path)
	if err != nil {
		return err
	}
	for group, params := range NamedGroups(t.model) {
		if err := checkpoints.RestoreWeights(group, cp.Weights, params); err != nil {
			return fmt.Errorf("restoring group %s: %v", group, err)
		}
	}
	if cp.TrainingState != nil {
		t.epoch = cp.TrainingState.Epoch + 1
		t.globalStep = cp.TrainingState.GlobalStep
	}
	return nil
}

// ExportONNX writes the current model weights as an ONNX file.
func (t *Trainer) ExportONNX(path string) error {
	var weights []checkpoints.WeightTensor
	for group, params := range NamedGroups(t.model) {
		weights = append(weights, checkpoints.ExtractWeights(group, params)...)
	}
	return checkpoints.ExportONNX(path, weights)
}

func lossValue(t *tensor.Tensor) float64 {
	v, err := t.Item()
	if err != nil {
		return math.NaN()
	}
	return float64(v)
}

func (t *Trainer) optimizers() map[string]optimizer.Optimizer {
	return map[string]optimizer.Optimizer{
		checkpoints.GroupDiscriminatorA: t.optDA,
		checkpoints.GroupDiscriminatorB: t.optDB,
		checkpoints.GroupGeneratorAB:    t.optGAB,
		checkpoints.GroupGeneratorBA:    t.optGBA,
	}
}
