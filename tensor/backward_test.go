package tensor

import (
	"testing"
)

func gradParam(t *testing.T, shape []int, data []float32) *Tensor {
	t.Helper()
	p, err := NewTensor(shape, data)
	if err != nil {
		t.Fatalf("NewTensor failed: %v", err)
	}
	p.SetRequiresGrad(true)
	return p
}

func TestGradientsSimpleChain(t *testing.T) {
	// loss = mean(w2 * (w1 * x)) with N = 2 elements:
	// dL/dw1 = w2*x/N, dL/dw2 = w1*x/N.
	x, _ := NewTensor([]int{2}, []float32{2, 4})
	w1 := gradParam(t, []int{2}, []float32{3, 5})
	w2 := gradParam(t, []int{2}, []float32{7, 9})

	y := MulAutograd(w1, x)
	z := MulAutograd(w2, y)
	loss := MeanAutograd(z)

	grads, err := Gradients(loss, []*Tensor{w1, w2})
	if err != nil {
		t.Fatalf("Gradients failed: %v", err)
	}

	wantW1 := []float32{7, 18}  // w2*x/2
	wantW2 := []float32{3, 10}  // w1*x/2
	for i := range wantW1 {
		if !floatsClose(grads[0].Data[i], wantW1[i], 1e-5) {
			t.Errorf("dL/dw1[%d] = %f, expected %f", i, grads[0].Data[i], wantW1[i])
		}
		if !floatsClose(grads[1].Data[i], wantW2[i], 1e-5) {
			t.Errorf("dL/dw2[%d] = %f, expected %f", i, grads[1].Data[i], wantW2[i])
		}
	}
}

func TestGradientsDoesNotMutate(t *testing.T) {
	x, _ := NewTensor([]int{2}, []float32{1, 2})
	w := gradParam(t, []int{2}, []float32{3, 4})
	loss := MeanAutograd(MulAutograd(w, x))

	first, err := Gradients(loss, []*Tensor{w})
	if err != nil {
		t.Fatalf("First extraction failed: %v", err)
	}
	second, err := Gradients(loss, []*Tensor{w})
	if err != nil {
		t.Fatalf("Second extraction failed: %v", err)
	}

	if w.Grad() != nil {
		t.Error("Gradients must not populate the grad field")
	}
	for i := range first[0].Data {
		if first[0].Data[i] != second[0].Data[i] {
			t.Errorf("Extraction %d differs between runs: %f vs %f", i, first[0].Data[i], second[0].Data[i])
		}
	}
}

func TestGradientsDisjointGroups(t *testing.T) {
	// Two losses over one trace, each extracted against its own group.
	x, _ := NewTensor([]int{2}, []float32{1, 1})
	wA := gradParam(t, []int{2}, []float32{2, 2})
	wB := gradParam(t, []int{2}, []float32{3, 3})

	shared := MulAutograd(wA, x)
	lossA := MeanAutograd(shared)
	lossB := MeanAutograd(MulAutograd(wB, shared))

	gradsA, err := Gradients(lossA, []*Tensor{wA})
	if err != nil {
		t.Fatalf("Group A extraction failed: %v", err)
	}
	gradsB, err := Gradients(lossB, []*Tensor{wB})
	if err != nil {
		t.Fatalf("Group B extraction failed: %v", err)
	}

	// dLossA/dwA = x/2, dLossB/dwB = wA*x/2.
	for i := 0; i < 2; i++ {
		if !floatsClose(gradsA[0].Data[i], 0.5, 1e-6) {
			t.Errorf("dLossA/dwA[%d] = %f, expected 0.5", i, gradsA[0].Data[i])
		}
		if !floatsClose(gradsB[0].Data[i], 1, 1e-6) {
			t.Errorf("dLossB/dwB[%d] = %f, expected 1", i, gradsB[0].Data[i])
		}
	}
}

func TestGradientsErrors(t *testing.T) {
	x, _ := NewTensor([]int{2}, []float32{1, 2})
	w := gradParam(t, []int{2}, []float32{3, 4})
	loss := MeanAutograd(MulAutograd(w, x))

	t.Run("Non-scalar loss", func(t *testing.T) {
		vector := MulAutograd(w, x)
		if _, err := Gradients(vector, []*Tensor{w}); err == nil {
			t.Error("Expected error for non-scalar loss")
		}
	})

	t.Run("Empty parameter group", func(t *testing.T) {
		if _, err := Gradients(loss, nil); err == nil {
			t.Error("Expected error for empty parameter group")
		}
	})

	t.Run("Unreachable parameter", func(t *testing.T) {
		other := gradParam(t, []int{2}, []float32{1, 1})
		if _, err := Gradients(loss, []*Tensor{other}); err == nil {
			t.Error("Expected error for parameter outside the trace")
		}
	})

	t.Run("Loss without trainable inputs", func(t *testing.T) {
		constLoss, _ := Mean(x)
		if _, err := Gradients(constLoss, []*Tensor{w}); err == nil {
			t.Error("Expected error for loss with no gradient path")
		}
	})
}

func TestBackwardAccumulates(t *testing.T) {
	x, _ := NewTensor([]int{2}, []float32{2, 6})
	w := gradParam(t, []int{2}, []float32{1, 1})
	loss := MeanAutograd(MulAutograd(w, x))

	if err := loss.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}
	grad := w.Grad()
	if grad == nil {
		t.Fatal("Expected grad to be populated")
	}
	if !floatsClose(grad.Data[0], 1, 1e-6) || !floatsClose(grad.Data[1], 3, 1e-6) {
		t.Errorf("Grad = %v, expected [1 3]", grad.Data)
	}

	// A second pass accumulates instead of replacing.
	if err := loss.Backward(); err != nil {
		t.Fatalf("Second backward failed: %v", err)
	}
	grad = w.Grad()
	if !floatsClose(grad.Data[0], 2, 1e-6) || !floatsClose(grad.Data[1], 6, 1e-6) {
		t.Errorf("Accumulated grad = %v, expected [2 6]", grad.Data)
	}

	ZeroGrad([]*Tensor{w})
	if w.Grad() != nil {
		t.Error("Expected grad cleared after ZeroGrad")
	}
}

func TestActivationGradients(t *testing.T) {
	t.Run("ReLU", func(t *testing.T) {
		w := gradParam(t, []int{4}, []float32{-2, -1, 1, 2})
		loss := MeanAutograd(ReLUAutograd(w))
		grads, err := Gradients(loss, []*Tensor{w})
		if err != nil {
			t.Fatalf("Gradients failed: %v", err)
		}
		want := []float32{0, 0, 0.25, 0.25}
		for i, v := range grads[0].Data {
			if !floatsClose(v, want[i], 1e-6) {
				t.Errorf("dReLU[%d] = %f, expected %f", i, v, want[i])
			}
		}
	})

	t.Run("LeakyReLU", func(t *testing.T) {
		w := gradParam(t, []int{2}, []float32{-1, 1})
		loss := MeanAutograd(LeakyReLUAutograd(w, 0.2))
		grads, err := Gradients(loss, []*Tensor{w})
		if err != nil {
			t.Fatalf("Gradients failed: %v", err)
		}
		if !floatsClose(grads[0].Data[0], 0.1, 1e-6) || !floatsClose(grads[0].Data[1], 0.5, 1e-6) {
			t.Errorf("dLeakyReLU = %v, expected [0.1 0.5]", grads[0].Data)
		}
	})

	t.Run("Tanh at zero", func(t *testing.T) {
		w := gradParam(t, []int{2}, []float32{0, 0})
		loss := MeanAutograd(TanhAutograd(w))
		grads, err := Gradients(loss, []*Tensor{w})
		if err != nil {
			t.Fatalf("Gradients failed: %v", err)
		}
		// d tanh(0) = 1, divided by N = 2.
		for i, v := range grads[0].Data {
			if !floatsClose(v, 0.5, 1e-6) {
				t.Errorf("dTanh[%d] = %f, expected 0.5", i, v)
			}
		}
	})
}

func TestConvAutogradGradientFlow(t *testing.T) {
	// A 1x1 single-channel convolution is elementwise scaling, so the
	// weight gradient of mean(conv(x, w)) is mean(x).
	x, _ := NewTensor([]int{1, 2, 2, 1}, []float32{1, 2, 3, 4})
	w := gradParam(t, []int{1, 1, 1, 1}, []float32{0.5})

	out := Conv2DAutograd(x, w, nil, 1, PadSame, 0)
	loss := MeanAutograd(out)

	grads, err := Gradients(loss, []*Tensor{w})
	if err != nil {
		t.Fatalf("Gradients failed: %v", err)
	}
	if !floatsClose(grads[0].Data[0], 2.5, 1e-5) {
		t.Errorf("dL/dw = %f, expected 2.5", grads[0].Data[0])
	}
}
