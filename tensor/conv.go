package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// PadMode selects how convolution padding is derived.
type PadMode int

const (
	// PadSame keeps output size at ceil(in/stride), with the total pad
	// split small-side-first (TensorFlow convention).
	PadSame PadMode = iota
	// PadExplicit pads all four sides by a fixed amount.
	PadExplicit
)

// convGeometry is the resolved spatial arithmetic shared by the forward
// kernel and both backward products.
type convGeometry struct {
	kh, kw           int
	stride           int
	padTop, padLeft  int
	inH, inW         int
	outH, outW       int
}

func resolveConvGeometry(inH, inW, kh, kw, stride int, mode PadMode, pad int) (convGeometry, error) {
	if stride < 1 {
		return convGeometry{}, fmt.Errorf("stride must be >= 1, got %d", stride)
	}

	g := convGeometry{kh: kh, kw: kw, stride: stride, inH: inH, inW: inW}
	switch mode {
	case PadSame:
		g.outH = (inH + stride - 1) / stride
		g.outW = (inW + stride - 1) / stride
		padTotalH := max0((g.outH-1)*stride + kh - inH)
		padTotalW := max0((g.outW-1)*stride + kw - inW)
		g.padTop = padTotalH / 2
		g.padLeft = padTotalW / 2
	case PadExplicit:
		if pad < 0 {
			return convGeometry{}, fmt.Errorf("explicit pad must be >= 0, got %d", pad)
		}
		g.outH = (inH+2*pad-kh)/stride + 1
		g.outW = (inW+2*pad-kw)/stride + 1
		g.padTop = pad
		g.padLeft = pad
	default:
		return convGeometry{}, fmt.Errorf("unknown pad mode %d", mode)
	}

	if g.outH < 1 || g.outW < 1 {
		return convGeometry{}, fmt.Errorf("convolution output collapses to %dx%d for input %dx%d kernel %dx%d stride %d",
			g.outH, g.outW, inH, inW, kh, kw, stride)
	}
	return g, nil
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// im2col gathers the receptive-field patch of every output position of x
// into a row of a [n*outH*outW, kh*kw*c] matrix. Out-of-bounds taps read
// as zero padding.
func im2col(x []float32, n, h, w, c int, g convGeometry) []float32 {
	patch := g.kh * g.kw * c
	cols := make([]float32, n*g.outH*g.outW*patch)

	for ni := 0; ni < n; ni++ {
		for oh := 0; oh < g.outH; oh++ {
			for ow := 0; ow < g.outW; ow++ {
				row := ((ni*g.outH+oh)*g.outW + ow) * patch
				for ki := 0; ki < g.kh; ki++ {
					ih := oh*g.stride - g.padTop + ki
					if ih < 0 || ih >= h {
						continue
					}
					for kj := 0; kj < g.kw; kj++ {
						iw := ow*g.stride - g.padLeft + kj
						if iw < 0 || iw >= w {
							continue
						}
						src := ((ni*h+ih)*w + iw) * c
						dst := row + (ki*g.kw+kj)*c
						copy(cols[dst:dst+c], x[src:src+c])
					}
				}
			}
		}
	}
	return cols
}

// col2im is the adjoint of im2col: rows scatter-accumulate back into an
// [n, h, w, c] image buffer.
func col2im(cols []float32, n, h, w, c int, g convGeometry) []float32 {
	patch := g.kh * g.kw * c
	x := make([]float32, n*h*w*c)

	for ni := 0; ni < n; ni++ {
		for oh := 0; oh < g.outH; oh++ {
			for ow := 0; ow < g.outW; ow++ {
				row := ((ni*g.outH+oh)*g.outW + ow) * patch
				for ki := 0; ki < g.kh; ki++ {
					ih := oh*g.stride - g.padTop + ki
					if ih < 0 || ih >= h {
						continue
					}
					for kj := 0; kj < g.kw; kj++ {
						iw := ow*g.stride - g.padLeft + kj
						if iw < 0 || iw >= w {
							continue
						}
						dst := ((ni*h+ih)*w + iw) * c
						src := row + (ki*g.kw+kj)*c
						for ci := 0; ci < c; ci++ {
							x[dst+ci] += cols[src+ci]
						}
					}
				}
			}
		}
	}
	return x
}

func general(rows, cols int, data []float32) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}

// Conv2D applies a 2D convolution. x is [n, h, w, inC], weight is
// [kh, kw, inC, outC], bias is [outC] or nil. Returns [n, outH, outW, outC].
func Conv2D(x, weight, bias *Tensor, stride int, mode PadMode, pad int) (*Tensor, error) {
	out, _, err := conv2DForward(x, weight, bias, stride, mode, pad)
	return out, err
}

func conv2DForward(x, weight, bias *Tensor, stride int, mode PadMode, pad int) (*Tensor, []float32, error) {
	if len(x.Shape) != 4 {
		return nil, nil, fmt.Errorf("conv2d input must be 4D [n,h,w,c], got %v", x.Shape)
	}
	if len(weight.Shape) != 4 {
		return nil, nil, fmt.Errorf("conv2d weight must be 4D [kh,kw,inC,outC], got %v", weight.Shape)
	}

	n, h, w, inC := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	kh, kw, wInC, outC := weight.Shape[0], weight.Shape[1], weight.Shape[2], weight.Shape[3]
	if inC != wInC {
		return nil, nil, fmt.Errorf("conv2d channel mismatch: input has %d, weight expects %d", inC, wInC)
	}
	if bias != nil && (len(bias.Shape) != 1 || bias.Shape[0] != outC) {
		return nil, nil, fmt.Errorf("conv2d bias must be [%d], got %v", outC, bias.Shape)
	}

	g, err := resolveConvGeometry(h, w, kh, kw, stride, mode, pad)
	if err != nil {
		return nil, nil, err
	}

	patch := kh * kw * inC
	rows := n * g.outH * g.outW
	cols := im2col(x.Data, n, h, w, inC, g)

	out, err := Zeros([]int{n, g.outH, g.outW, outC})
	if err != nil {
		return nil, nil, err
	}

	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		general(rows, patch, cols),
		general(patch, outC, weight.Data),
		0, general(rows, outC, out.Data))

	if bias != nil {
		for r := 0; r < rows; r++ {
			base := r * outC
			for f := 0; f < outC; f++ {
				out.Data[base+f] += bias.Data[f]
			}
		}
	}
	return out, cols, nil
}

// conv2DBackward produces the three gradients of Conv2D from the output
// gradient and the patch matrix cached at forward time.
func conv2DBackward(x, weight *Tensor, hasBias bool, cols []float32, gradOut *Tensor, stride int, mode PadMode, pad int) (gradX, gradW, gradB *Tensor) {
	n, h, w, inC := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	kh, kw, outC := weight.Shape[0], weight.Shape[1], weight.Shape[3]

	g, err := resolveConvGeometry(h, w, kh, kw, stride, mode, pad)
	if err != nil {
		panic(fmt.Sprintf("conv2d backward geometry: %v", err))
	}

	patch := kh * kw * inC
	rows := n * g.outH * g.outW

	gradW, _ = Zeros(weight.Shape)
	blas32.Gemm(blas.Trans, blas.NoTrans, 1,
		general(rows, patch, cols),
		general(rows, outC, gradOut.Data),
		0, general(patch, outC, gradW.Data))

	if hasBias {
		gradB, _ = Zeros([]int{outC})
		for r := 0; r < rows; r++ {
			base := r * outC
			for f := 0; f < outC; f++ {
				gradB.Data[f] += gradOut.Data[base+f]
			}
		}
	}

	dcols := make([]float32, rows*patch)
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		general(rows, outC, gradOut.Data),
		general(patch, outC, weight.Data),
		0, general(rows, patch, dcols))

	gradX, _ = NewTensor(x.Shape, col2im(dcols, n, h, w, inC, g))
	return gradX, gradW, gradB
}

// transposeGeometry is the virtual forward-convolution arithmetic behind a
// transposed convolution: output spatial size is input*stride, and the
// input grid plays the role of the conv's output positions.
// The gather/scatter positions range over the input grid (outH/outW fields
// of the geometry), while the scatter target is the upsampled image.
func transposeGeometry(inH, inW, kh, kw, stride int) (convGeometry, int, int) {
	g := convGeometry{
		kh: kh, kw: kw, stride: stride,
		padTop:  max0(kh-stride) / 2,
		padLeft: max0(kw-stride) / 2,
		inH:     inH, inW: inW,
		outH: inH, outW: inW,
	}
	return g, inH * stride, inW * stride
}

// ConvTranspose2D applies a stride-s transposed convolution that scales
// spatial size by s. x is [n, h, w, inC], weight is [kh, kw, outC, inC],
// bias is [outC] or nil. Returns [n, h*s, w*s, outC].
func ConvTranspose2D(x, weight, bias *Tensor, stride int) (*Tensor, error) {
	out, _, err := convTranspose2DForward(x, weight, bias, stride)
	return out, err
}

func convTranspose2DForward(x, weight, bias *Tensor, stride int) (*Tensor, []float32, error) {
	if len(x.Shape) != 4 {
		return nil, nil, fmt.Errorf("conv transpose input must be 4D [n,h,w,c], got %v", x.Shape)
	}
	if len(weight.Shape) != 4 {
		return nil, nil, fmt.Errorf("conv transpose weight must be 4D [kh,kw,outC,inC], got %v", weight.Shape)
	}

	n, h, w, inC := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	kh, kw, outC, wInC := weight.Shape[0], weight.Shape[1], weight.Shape[2], weight.Shape[3]
	if inC != wInC {
		return nil, nil, fmt.Errorf("conv transpose channel mismatch: input has %d, weight expects %d", inC, wInC)
	}
	if bias != nil && (len(bias.Shape) != 1 || bias.Shape[0] != outC) {
		return nil, nil, fmt.Errorf("conv transpose bias must be [%d], got %v", outC, bias.Shape)
	}

	g, outH, outW := transposeGeometry(h, w, kh, kw, stride)

	patch := kh * kw * outC
	rows := n * h * w

	// Every input position expands to a full kernel patch, then patches
	// scatter-accumulate onto the upsampled grid.
	cols := make([]float32, rows*patch)
	blas32.Gemm(blas.NoTrans, blas.Trans, 1,
		general(rows, inC, x.Data),
		general(patch, inC, weight.Data),
		0, general(rows, patch, cols))

	outData := col2im(cols, n, outH, outW, outC, g)
	out, err := NewTensor([]int{n, outH, outW, outC}, outData)
	if err != nil {
		return nil, nil, err
	}

	if bias != nil {
		positions := n * outH * outW
		for r := 0; r < positions; r++ {
			base := r * outC
			for f := 0; f < outC; f++ {
				out.Data[base+f] += bias.Data[f]
			}
		}
	}
	return out, cols, nil
}

func convTranspose2DBackward(x, weight *Tensor, hasBias bool, gradOut *Tensor, stride int) (gradX, gradW, gradB *Tensor) {
	n, h, w, inC := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	kh, kw, outC := weight.Shape[0], weight.Shape[1], weight.Shape[2]

	g, outH, outW := transposeGeometry(h, w, kh, kw, stride)

	patch := kh * kw * outC
	rows := n * h * w

	// The scatter is linear, so its adjoint is the matching gather.
	dcols := im2col(gradOut.Data, n, outH, outW, outC, g)

	gradX, _ = Zeros(x.Shape)
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		general(rows, patch, dcols),
		general(patch, inC, weight.Data),
		0, general(rows, inC, gradX.Data))

	gradW, _ = Zeros(weight.Shape)
	blas32.Gemm(blas.Trans, blas.NoTrans, 1,
		general(rows, patch, dcols),
		general(rows, inC, x.Data),
		0, general(patch, inC, gradW.Data))

	if hasBias {
		gradB, _ = Zeros([]int{outC})
		positions := n * outH * outW
		for r := 0; r < positions; r++ {
			base := r * outC
			for f := 0; f < outC; f++ {
				gradB.Data[f] += gradOut.Data[base+f]
			}
		}
	}
	return gradX, gradW, gradB
}
