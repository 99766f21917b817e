package tensor

import (
	"fmt"
)

// ResizeBilinear resamples an NHWC batch to the target spatial size with
// bilinear interpolation. The computation is fully deterministic, so two
// calls on the same batch yield bit-identical results. The resize is not
// recorded in the autograd trace: it is applied to leaf input batches only.
func ResizeBilinear(x *Tensor, outH, outW int) (*Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("resize input must be 4D [n,h,w,c], got %v", x.Shape)
	}
	if outH < 1 || outW < 1 {
		return nil, fmt.Errorf("resize target must be positive, got %dx%d", outH, outW)
	}

	n, h, w, c := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	if h == outH && w == outW {
		return x.Clone()
	}

	out, err := Zeros([]int{n, outH, outW, c})
	if err != nil {
		return nil, err
	}

	scaleY := float64(h) / float64(outH)
	scaleX := float64(w) / float64(outW)

	for ni := 0; ni < n; ni++ {
		for oy := 0; oy < outH; oy++ {
			// Half-pixel centers keep the resampling symmetric.
			srcY := (float64(oy)+0.5)*scaleY - 0.5
			y0 := int(srcY)
			if srcY < 0 {
				srcY, y0 = 0, 0
			}
			y1 := y0 + 1
			if y1 > h-1 {
				y1 = h - 1
			}
			fy := float32(srcY - float64(y0))

			for ox := 0; ox < outW; ox++ {
				srcX := (float64(ox)+0.5)*scaleX - 0.5
				x0 := int(srcX)
				if srcX < 0 {
					srcX, x0 = 0, 0
				}
				x1 := x0 + 1
				if x1 > w-1 {
					x1 = w - 1
				}
				fx := float32(srcX - float64(x0))

				for ci := 0; ci < c; ci++ {
					v00 := x.Data[((ni*h+y0)*w+x0)*c+ci]
					v01 := x.Data[((ni*h+y0)*w+x1)*c+ci]
					v10 := x.Data[((ni*h+y1)*w+x0)*c+ci]
					v11 := x.Data[((ni*h+y1)*w+x1)*c+ci]

					top := v00 + (v01-v00)*fx
					bottom := v10 + (v11-v10)*fx
					out.Data[((ni*outH+oy)*outW+ox)*c+ci] = top + (bottom-top)*fy
				}
			}
		}
	}
	return out, nil
}
