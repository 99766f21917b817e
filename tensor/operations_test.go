package tensor

import (
	"math"
	"testing"
)

func floatsClose(a, b float32, tol float64) bool {
	return math.Abs(float64(a)-float64(b)) <= tol
}

func TestCheckShapesCompatible(t *testing.T) {
	t.Run("Matching shapes", func(t *testing.T) {
		out, err := checkShapesCompatible([]int{2, 3}, []int{2, 3})
		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if !shapesEqual(out, []int{2, 3}) {
			t.Errorf("Result = %v, expected [2 3]", out)
		}
	})

	t.Run("Mismatched shapes", func(t *testing.T) {
		if _, err := checkShapesCompatible([]int{2, 3}, []int{3, 2}); err == nil {
			t.Error("Expected error for mismatched shapes")
		}
	})
}

func TestElementwiseOps(t *testing.T) {
	a, _ := NewTensor([]int{2, 2}, []float32{1, -2, 3, -4})
	b, _ := NewTensor([]int{2, 2}, []float32{10, 20, 30, 40})

	t.Run("Add", func(t *testing.T) {
		out, err := Add(a, b)
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		want := []float32{11, 18, 33, 36}
		for i, v := range out.Data {
			if v != want[i] {
				t.Errorf("Add[%d] = %f, expected %f", i, v, want[i])
			}
		}
	})

	t.Run("Sub", func(t *testing.T) {
		out, err := Sub(b, a)
		if err != nil {
			t.Fatalf("Sub failed: %v", err)
		}
		want := []float32{9, 22, 27, 44}
		for i, v := range out.Data {
			if v != want[i] {
				t.Errorf("Sub[%d] = %f, expected %f", i, v, want[i])
			}
		}
	})

	t.Run("Mul", func(t *testing.T) {
		out, err := Mul(a, b)
		if err != nil {
			t.Fatalf("Mul failed: %v", err)
		}
		want := []float32{10, -40, 90, -160}
		for i, v := range out.Data {
			if v != want[i] {
				t.Errorf("Mul[%d] = %f, expected %f", i, v, want[i])
			}
		}
	})

	t.Run("Shape mismatch", func(t *testing.T) {
		c, _ := NewTensor([]int{4}, []float32{1, 2, 3, 4})
		if _, err := Add(a, c); err == nil {
			t.Error("Expected error for shape mismatch")
		}
	})
}

func TestActivations(t *testing.T) {
	x, _ := NewTensor([]int{4}, []float32{-2, -0.5, 0, 3})

	t.Run("ReLU", func(t *testing.T) {
		out, err := ReLU(x)
		if err != nil {
			t.Fatalf("ReLU failed: %v", err)
		}
		want := []float32{0, 0, 0, 3}
		for i, v := range out.Data {
			if v != want[i] {
				t.Errorf("ReLU[%d] = %f, expected %f", i, v, want[i])
			}
		}
	})

	t.Run("LeakyReLU", func(t *testing.T) {
		out, err := LeakyReLU(x, 0.2)
		if err != nil {
			t.Fatalf("LeakyReLU failed: %v", err)
		}
		want := []float32{-0.4, -0.1, 0, 3}
		for i, v := range out.Data {
			if !floatsClose(v, want[i], 1e-6) {
				t.Errorf("LeakyReLU[%d] = %f, expected %f", i, v, want[i])
			}
		}
	})

	t.Run("Tanh range", func(t *testing.T) {
		out, err := Tanh(x)
		if err != nil {
			t.Fatalf("Tanh failed: %v", err)
		}
		for i, v := range out.Data {
			if v < -1 || v > 1 {
				t.Errorf("Tanh[%d] = %f outside [-1, 1]", i, v)
			}
		}
		if !floatsClose(out.Data[2], 0, 1e-7) {
			t.Errorf("Tanh(0) = %f, expected 0", out.Data[2])
		}
	})

	t.Run("Abs", func(t *testing.T) {
		out, err := Abs(x)
		if err != nil {
			t.Fatalf("Abs failed: %v", err)
		}
		want := []float32{2, 0.5, 0, 3}
		for i, v := range out.Data {
			if v != want[i] {
				t.Errorf("Abs[%d] = %f, expected %f", i, v, want[i])
			}
		}
	})
}

func TestMean(t *testing.T) {
	x, _ := NewTensor([]int{2, 2}, []float32{1, 2, 3, 6})
	out, err := Mean(x)
	if err != nil {
		t.Fatalf("Mean failed: %v", err)
	}
	if !shapesEqual(out.Shape, []int{1}) {
		t.Errorf("Mean shape = %v, expected [1]", out.Shape)
	}
	if out.Data[0] != 3 {
		t.Errorf("Mean = %f, expected 3", out.Data[0])
	}
}

func TestConcatNarrow(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	b, _ := NewTensor([]int{1, 3}, []float32{7, 8, 9})

	t.Run("Concat along batch", func(t *testing.T) {
		out, err := Concat(a, b)
		if err != nil {
			t.Fatalf("Concat failed: %v", err)
		}
		if !shapesEqual(out.Shape, []int{3, 3}) {
			t.Errorf("Concat shape = %v, expected [3 3]", out.Shape)
		}
		if out.Data[6] != 7 || out.Data[8] != 9 {
			t.Errorf("Concat data wrong: %v", out.Data)
		}
	})

	t.Run("Narrow recovers slice", func(t *testing.T) {
		out, err := Narrow(a, 1, 1)
		if err != nil {
			t.Fatalf("Narrow failed: %v", err)
		}
		if !shapesEqual(out.Shape, []int{1, 3}) {
			t.Errorf("Narrow shape = %v, expected [1 3]", out.Shape)
		}
		want := []float32{4, 5, 6}
		for i, v := range out.Data {
			if v != want[i] {
				t.Errorf("Narrow[%d] = %f, expected %f", i, v, want[i])
			}
		}
	})

	t.Run("Narrow out of range", func(t *testing.T) {
		if _, err := Narrow(a, 1, 5); err == nil {
			t.Error("Expected error for out of range narrow")
		}
	})

	t.Run("Concat trailing shape mismatch", func(t *testing.T) {
		c, _ := NewTensor([]int{1, 4}, []float32{1, 2, 3, 4})
		if _, err := Concat(a, c); err == nil {
			t.Error("Expected error for mismatched trailing dims")
		}
	})
}

func TestHasNaN(t *testing.T) {
	x, _ := NewTensor([]int{2}, []float32{1, 2})
	if x.HasNaN() {
		t.Error("Expected no NaN in finite tensor")
	}
	x.Data[1] = float32(math.NaN())
	if !x.HasNaN() {
		t.Error("Expected NaN to be detected")
	}
}
