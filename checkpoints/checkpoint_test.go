package checkpoints

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebastianlutter/artReCycleGAN/layers"
	"github.com/sebastianlutter/artReCycleGAN/tensor"
)

func namedParams(t *testing.T) []layers.NamedParameter {
	t.Helper()
	w, err := tensor.NewTensor([]int{2, 2}, []float32{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	b, err := tensor.NewTensor([]int{2}, []float32{5, 6})
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	return []layers.NamedParameter{
		{Name: "conv.weight", Param: w},
		{Name: "conv.bias", Param: b},
	}
}

func TestExtractRestoreWeights(t *testing.T) {
	params := namedParams(t)
	weights := ExtractWeights(GroupGeneratorAB, params)

	if len(weights) != 2 {
		t.Fatalf("Extracted %d weights, expected 2", len(weights))
	}

	t.Run("Extraction copies data", func(t *testing.T) {
		params[0].Param.Data[0] = 99
		if weights[0].Data[0] == 99 {
			t.Error("Extracted weights alias the parameter buffer")
		}
		params[0].Param.Data[0] = 1
	})

	t.Run("Restore round trip", func(t *testing.T) {
		target := namedParams(t)
		for _, np := range target {
			for i := range np.Param.Data {
				np.Param.Data[i] = 0
			}
		}
		if err := RestoreWeights(GroupGeneratorAB, weights, target); err != nil {
			t.Fatalf("RestoreWeights failed: %v", err)
		}
		if target[0].Param.Data[3] != 4 || target[1].Param.Data[1] != 6 {
			t.Error("Restored values do not match the extraction")
		}
	})

	t.Run("Missing parameter", func(t *testing.T) {
		if err := RestoreWeights(GroupGeneratorAB, weights[:1], namedParams(t)); err == nil {
			t.Error("Expected error when a parameter has no stored weight")
		}
	})

	t.Run("Shape mismatch", func(t *testing.T) {
		bad := make([]WeightTensor, len(weights))
		copy(bad, weights)
		bad[0].Shape = []int{4}
		if err := RestoreWeights(GroupGeneratorAB, bad, namedParams(t)); err == nil {
			t.Error("Expected error for mismatched shape")
		}
	})

	t.Run("Unknown weight name", func(t *testing.T) {
		bad := make([]WeightTensor, len(weights))
		copy(bad, weights)
		bad[0].Name = "missing.weight"
		if err := RestoreWeights(GroupGeneratorAB, bad, namedParams(t)); err == nil {
			t.Error("Expected error for weight with no matching parameter")
		}
	})

	t.Run("Other groups are ignored", func(t *testing.T) {
		other := ExtractWeights(GroupDiscriminatorA, namedParams(t))
		combined := append(append([]WeightTensor{}, weights...), other...)
		if err := RestoreWeights(GroupGeneratorAB, combined, namedParams(t)); err != nil {
			t.Errorf("Expected foreign groups to be skipped, got %v", err)
		}
	})
}

func TestCheckpointSaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoint.json")

	cp := &Checkpoint{
		Description: "test run",
		Weights:     ExtractWeights(GroupDiscriminatorB, namedParams(t)),
		Optimizers: map[string]*OptimizerState{
			GroupDiscriminatorB: {
				Type:       "Adam",
				Parameters: map[string]float64{"learning_rate": 0.0002},
				StepCount:  7,
			},
		},
		TrainingState: &TrainingState{Epoch: 3, GlobalStep: 120},
	}
	if err := cp.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Version != FormatVersion {
		t.Errorf("Version = %q, expected %q", loaded.Version, FormatVersion)
	}
	if len(loaded.Weights) != 2 {
		t.Errorf("Loaded %d weights, expected 2", len(loaded.Weights))
	}
	if loaded.TrainingState.Epoch != 3 || loaded.TrainingState.GlobalStep != 120 {
		t.Errorf("Training state = %+v, expected epoch 3 step 120", loaded.TrainingState)
	}
	if loaded.Optimizers[GroupDiscriminatorB].StepCount != 7 {
		t.Error("Optimizer state did not survive the round trip")
	}
}

func TestLoadRejectsMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	t.Run("Missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "nope.json")); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("Wrong version", func(t *testing.T) {
		path := filepath.Join(dir, "old.json")
		cp := &Checkpoint{Version: "0.1"}
		if err := cp.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Error("Expected error for unsupported version")
		}
	})
}

func TestONNXRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")

	weights := ExtractWeights(GroupGeneratorBA, namedParams(t))
	if err := ExportONNX(path, weights); err != nil {
		t.Fatalf("ExportONNX failed: %v", err)
	}

	loaded, err := ImportONNX(path)
	if err != nil {
		t.Fatalf("ImportONNX failed: %v", err)
	}
	if len(loaded) != len(weights) {
		t.Fatalf("Imported %d tensors, expected %d", len(loaded), len(weights))
	}

	byName := map[string]WeightTensor{}
	for _, w := range loaded {
		byName[w.Name] = w
	}
	for _, want := range weights {
		got, ok := byName[want.Name]
		if !ok {
			t.Fatalf("Tensor %q missing after round trip", want.Name)
		}
		if got.Group != want.Group {
			t.Errorf("Tensor %q group = %q, expected %q", want.Name, got.Group, want.Group)
		}
		if !shapeEqual(got.Shape, want.Shape) {
			t.Errorf("Tensor %q shape = %v, expected %v", want.Name, got.Shape, want.Shape)
		}
		for i := range want.Data {
			if got.Data[i] != want.Data[i] {
				t.Errorf("Tensor %q data[%d] = %f, expected %f", want.Name, i, got.Data[i], want.Data[i])
			}
		}
	}
}

func TestImportONNXRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.onnx")
	if err := os.WriteFile(path, []byte{0xff, 0xff, 0xff, 0xff}, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := ImportONNX(path); err == nil {
		t.Error("Expected error for malformed model bytes")
	}
}
