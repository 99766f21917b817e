package training

import (
	"context"
	"io"
	"log"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/sebastianlutter/artReCycleGAN/nets"
	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

func testModel(t *testing.T) *nets.CycleGAN {
	t.Helper()
	model, err := nets.NewCycleGAN(nets.Config{
		InputHeight:        16,
		InputWidth:         16,
		ResidualBlocks:     1,
		DiscriminatorDepth: 1,
		BaseFilters:        4,
		Seed:               1,
	})
	if err != nil {
		t.Fatalf("NewCycleGAN failed: %v", err)
	}
	return model
}

func testBatches(t *testing.T, seed int64) (*tensor.Tensor, *tensor.Tensor) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	a, err := tensor.RandomNormal([]int{2, 16, 16, 3}, 0, 0.5, rng)
	if err != nil {
		t.Fatalf("RandomNormal failed: %v", err)
	}
	b, err := tensor.RandomNormal([]int{2, 16, 16, 3}, 0, 0.5, rng)
	if err != nil {
		t.Fatalf("RandomNormal failed: %v", err)
	}
	return a, b
}

func testTrainer(t *testing.T, model *nets.CycleGAN, cfg TrainerConfig) *Trainer {
	t.Helper()
	trainer, err := NewTrainer(model, cfg, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("NewTrainer failed: %v", err)
	}
	return trainer
}

func snapshotGroups(groups ParameterGroups) map[string][]float32 {
	out := map[string][]float32{}
	for name, group := range map[string][]*tensor.Tensor{
		"dA": groups.DiscriminatorA, "dB": groups.DiscriminatorB,
		"gAB": groups.GeneratorAB, "gBA": groups.GeneratorBA,
	} {
		var flat []float32
		for _, p := range group {
			flat = append(flat, p.Data...)
		}
		out[name] = flat
	}
	return out
}

func TestMeanMetric(t *testing.T) {
	var m MeanMetric
	if m.Value() != 0 {
		t.Errorf("Empty metric value = %f, expected 0", m.Value())
	}
	m.Update(2)
	m.Update(4)
	if m.Value() != 3 {
		t.Errorf("Mean = %f, expected 3", m.Value())
	}
	if m.Count() != 2 {
		t.Errorf("Count = %d, expected 2", m.Count())
	}
	m.Reset()
	if m.Count() != 0 {
		t.Error("Expected empty metric after Reset")
	}
}

func TestMetricSet(t *testing.T) {
	s := NewMetricSet()
	s.Update(MetricDiscriminatorA, 1)
	s.Update(MetricDiscriminatorA, 3)
	s.Update(MetricGeneratorAB, 0.5)
	s.Update("unknown", 99)

	if s.Value(MetricDiscriminatorA) != 2 {
		t.Errorf("dA_loss = %f, expected 2", s.Value(MetricDiscriminatorA))
	}
	if s.Value("unknown") != 0 {
		t.Error("Unknown metric should read as zero")
	}
	values := s.Values()
	if len(values) != 4 {
		t.Errorf("Values has %d entries, expected 4", len(values))
	}
}

func TestBuildParameterGroups(t *testing.T) {
	groups, err := BuildParameterGroups(testModel(t))
	if err != nil {
		t.Fatalf("BuildParameterGroups failed: %v", err)
	}

	// The four groups are disjoint parameter sets.
	seen := map[*tensor.Tensor]string{}
	for name, group := range map[string][]*tensor.Tensor{
		"dA": groups.DiscriminatorA, "dB": groups.DiscriminatorB,
		"gAB": groups.GeneratorAB, "gBA": groups.GeneratorBA,
	} {
		if len(group) == 0 {
			t.Errorf("Group %s is empty", name)
		}
		for _, p := range group {
			if prior, ok := seen[p]; ok {
				t.Errorf("Parameter shared between groups %s and %s", prior, name)
			}
			seen[p] = name
		}
	}
}

func TestTrainerStepUpdatesAllGroups(t *testing.T) {
	model := testModel(t)
	trainer := testTrainer(t, model, TrainerConfig{Epochs: 1, LearningRate: 0.001})

	before := snapshotGroups(trainer.groups)
	batchA, batchB := testBatches(t, 7)
	out, err := trainer.Step(batchA, batchB)
	if err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	if out.FakeA == nil || out.FakeB == nil {
		t.Fatal("Step must return the translated batches")
	}
	for name, loss := range map[string]float64{
		MetricDiscriminatorA: trainer.Metrics().Value(MetricDiscriminatorA),
		MetricDiscriminatorB: trainer.Metrics().Value(MetricDiscriminatorB),
		MetricGeneratorAB:    trainer.Metrics().Value(MetricGeneratorAB),
		MetricGeneratorBA:    trainer.Metrics().Value(MetricGeneratorBA),
	} {
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			t.Errorf("Metric %s = %f, expected finite", name, loss)
		}
	}

	after := snapshotGroups(trainer.groups)
	for name := range before {
		changed := false
		for i := range before[name] {
			if before[name][i] != after[name][i] {
				changed = true
				break
			}
		}
		if !changed {
			t.Errorf("Group %s was not updated by the step", name)
		}
	}
	if trainer.GlobalStep() != 1 {
		t.Errorf("Global step = %d, expected 1", trainer.GlobalStep())
	}
}

// stubSource replays a fixed number of identical batches per epoch.
type stubSource struct {
	batchA, batchB *tensor.Tensor
	perEpoch       int
	served         int
	resets         int
}

func (s *stubSource) Reset() error {
	s.served = 0
	s.resets++
	return nil
}

func (s *stubSource) Next() (*tensor.Tensor, *tensor.Tensor, error) {
	if s.served >= s.perEpoch {
		return nil, nil, io.EOF
	}
	s.served++
	return s.batchA, s.batchB, nil
}

func TestTrainerFit(t *testing.T) {
	model := testModel(t)
	trainer := testTrainer(t, model, TrainerConfig{Epochs: 2, LearningRate: 0.001})

	batchA, batchB := testBatches(t, 9)
	source := &stubSource{batchA: batchA, batchB: batchB, perEpoch: 2}

	if err := trainer.Fit(context.Background(), source); err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if source.resets != 2 {
		t.Errorf("Source reset %d times, expected 2", source.resets)
	}
	if trainer.GlobalStep() != 4 {
		t.Errorf("Global step = %d, expected 4", trainer.GlobalStep())
	}
}

func TestTrainerFitCancellation(t *testing.T) {
	model := testModel(t)
	trainer := testTrainer(t, model, TrainerConfig{Epochs: 100, LearningRate: 0.001})

	batchA, batchB := testBatches(t, 10)
	source := &stubSource{batchA: batchA, batchB: batchB, perEpoch: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := trainer.Fit(ctx, source); err != context.Canceled {
		t.Errorf("Fit returned %v, expected context.Canceled", err)
	}
}

func TestTrainerCheckpointResume(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ckpt.json")

	model := testModel(t)
	trainer := testTrainer(t, model, TrainerConfig{Epochs: 3, LearningRate: 0.001})

	batchA, batchB := testBatches(t, 11)
	if _, err := trainer.Step(batchA, batchB); err != nil {
		t.Fatalf("Step failed: %v", err)
	}
	if err := trainer.SaveCheckpoint(path); err != nil {
		t.Fatalf("SaveCheckpoint failed: %v", err)
	}

	// A fresh model restored from the checkpoint carries the trained
	// weights.
	restoredModel := testModel(t)
	restored := testTrainer(t, restoredModel, TrainerConfig{Epochs: 3, LearningRate: 0.001})
	if err := restored.Resume(path); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	want := snapshotGroups(trainer.groups)
	got := snapshotGroups(restored.groups)
	for name := range want {
		for i := range want[name] {
			if want[name][i] != got[name][i] {
				t.Fatalf("Group %s differs after resume at %d", name, i)
			}
		}
	}
	if restored.GlobalStep() != trainer.GlobalStep() {
		t.Errorf("Resumed step = %d, expected %d", restored.GlobalStep(), trainer.GlobalStep())
	}
	if restored.Epoch() != trainer.Epoch()+1 {
		t.Errorf("Resumed epoch = %d, expected %d", restored.Epoch(), trainer.Epoch()+1)
	}

	// Resume rebuilds optimizer momentum from scratch.
	if restored.optDA.GetStepCount() != 0 {
		t.Error("Expected fresh optimizer state after resume")
	}
}

func TestTrainerONNXExport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")

	trainer := testTrainer(t, testModel(t), TrainerConfig{Epochs: 1})
	if err := trainer.ExportONNX(path); err != nil {
		t.Fatalf("ExportONNX failed: %v", err)
	}
}
