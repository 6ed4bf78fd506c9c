package denoise

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// conv1d is a 1-d convolution with implicit zero padding chosen to preserve
// length ("same" padding).
type conv1d struct {
	in       int
	out      int
	kernel   int
	dilation int
	// weight[o][c] is the kernel for output channel o applied to input
	// channel c.
	weight [][][]float64
	// bias has one entry per output channel.
	bias []float64
}

// apply convolves src ([in][L]) into dst ([out][L]).  dst is overwritten,
// and must not alias src.
func (cv *conv1d) apply(src, dst [][]float64) {
	n := len(src[0])
	padLeft := ((cv.kernel - 1) * cv.dilation) / 2
	for o := 0; o < cv.out; o++ {
		row := dst[o]
		b := cv.bias[o]
		for t := range row {
			row[t] = b
		}
		for c := 0; c < cv.in; c++ {
			x := src[c]
			wrow := cv.weight[o][c]
			for j := 0; j < cv.kernel; j++ {
				w := wrow[j]
				if w == 0 {
					continue
				}
				// row[t] += w * x[t+off] wherever t+off stays in bounds; the
				// out-of-bounds remainder is the implicit zero padding.
				off := j*cv.dilation - padLeft
				lo, hi := 0, n
				if off < 0 {
					lo = -off
				} else {
					hi = n - off
				}
				if lo < hi {
					floats.AddScaled(row[lo:hi], w, x[lo+off:hi+off])
				}
			}
		}
	}
}

func relu(rows [][]float64) {
	for _, row := range rows {
		for i, v := range row {
			if v < 0 {
				row[i] = 0
			}
		}
	}
}

func sigmoid(rows [][]float64) {
	for _, row := range rows {
		for i, v := range row {
			row[i] = 1 / (1 + math.Exp(-v))
		}
	}
}
