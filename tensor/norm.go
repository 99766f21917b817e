package tensor

import (
	"fmt"
	"math"
)

// instanceNormForward normalizes every (sample, channel) plane over its
// spatial extent, then applies the per-channel scale and shift. No running
// statistics are kept: each call normalizes from scratch.
//
// x is [n, h, w, c]; gamma and beta are [c]. The returned xhat and invStd
// are cached by the autograd op for the backward pass.
func instanceNormForward(x, gamma, beta *Tensor, eps float32) (out *Tensor, xhat []float32, invStd []float32, err error) {
	if len(x.Shape) != 4 {
		return nil, nil, nil, fmt.Errorf("instance norm input must be 4D [n,h,w,c], got %v", x.Shape)
	}
	n, h, w, c := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	if len(gamma.Shape) != 1 || gamma.Shape[0] != c || len(beta.Shape) != 1 || beta.Shape[0] != c {
		return nil, nil, nil, fmt.Errorf("instance norm scale/shift must be [%d], got %v and %v", c, gamma.Shape, beta.Shape)
	}

	out, err = Zeros(x.Shape)
	if err != nil {
		return nil, nil, nil, err
	}

	m := h * w
	xhat = make([]float32, x.NumElems)
	invStd = make([]float32, n*c)

	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			var sum float64
			for p := 0; p < m; p++ {
				sum += float64(x.Data[(ni*m+p)*c+ci])
			}
			mean := sum / float64(m)

			var variance float64
			for p := 0; p < m; p++ {
				d := float64(x.Data[(ni*m+p)*c+ci]) - mean
				variance += d * d
			}
			variance /= float64(m)

			inv := 1.0 / math.Sqrt(variance+float64(eps))
			invStd[ni*c+ci] = float32(inv)

			for p := 0; p < m; p++ {
				idx := (ni*m+p)*c + ci
				nv := float32((float64(x.Data[idx]) - mean) * inv)
				xhat[idx] = nv
				out.Data[idx] = gamma.Data[ci]*nv + beta.Data[ci]
			}
		}
	}
	return out, xhat, invStd, nil
}

// instanceNormBackward derives gradients for input, scale, and shift from
// the cached normalized values.
func instanceNormBackward(x, gamma *Tensor, xhat, invStd []float32, gradOut *Tensor) (gradX, gradGamma, gradBeta *Tensor) {
	n, h, w, c := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	m := h * w

	gradX, _ = Zeros(x.Shape)
	gradGamma, _ = Zeros([]int{c})
	gradBeta, _ = Zeros([]int{c})

	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			var sumG, sumGX float64
			for p := 0; p < m; p++ {
				idx := (ni*m+p)*c + ci
				g := float64(gradOut.Data[idx])
				sumG += g
				sumGX += g * float64(xhat[idx])
			}
			gradBeta.Data[ci] += float32(sumG)
			gradGamma.Data[ci] += float32(sumGX)

			meanG := sumG / float64(m)
			meanGX := sumGX / float64(m)
			scale := float64(gamma.Data[ci]) * float64(invStd[ni*c+ci])
			for p := 0; p < m; p++ {
				idx := (ni*m+p)*c + ci
				g := float64(gradOut.Data[idx])
				gradX.Data[idx] = float32(scale * (g - meanG - float64(xhat[idx])*meanGX))
			}
		}
	}
	return gradX, gradGamma, gradBeta
}
