package denoise

import (
	"math/rand"
	"testing"

	"github.com/grailbio/testutil/expect"
	"gonum.org/v1/gonum/floats"
)

// convRef is a direct translation of the same-padding convolution
// definition, used to cross-check the sliced implementation.
func convRef(cv *conv1d, src [][]float64) [][]float64 {
	n := len(src[0])
	left := ((cv.kernel - 1) * cv.dilation) / 2
	dst := make([][]float64, cv.out)
	for o := range dst {
		dst[o] = make([]float64, n)
		for t := 0; t < n; t++ {
			acc := cv.bias[o]
			for c := 0; c < cv.in; c++ {
				for j := 0; j < cv.kernel; j++ {
					ti := t + j*cv.dilation - left
					if ti >= 0 && ti < n {
						acc += cv.weight[o][c][j] * src[c][ti]
					}
				}
			}
			dst[o][t] = acc
		}
	}
	return dst
}

func TestConvIdentity(t *testing.T) {
	cv := &conv1d{
		in: 1, out: 1, kernel: 3, dilation: 1,
		weight: [][][]float64{{{0, 1, 0}}},
		bias:   []float64{0},
	}
	src := [][]float64{{3, 1, 4, 1, 5, 9, 2, 6}}
	dst := [][]float64{make([]float64, 8)}
	cv.apply(src, dst)
	expect.EQ(t, dst[0], src[0])
}

func TestConvShiftAndPadding(t *testing.T) {
	// A kernel with only its first tap set reads one position to the left,
	// so the first output position sees nothing but zero padding.
	cv := &conv1d{
		in: 1, out: 1, kernel: 3, dilation: 1,
		weight: [][][]float64{{{1, 0, 0}}},
		bias:   []float64{0.25},
	}
	src := [][]float64{{2, 4, 8, 16}}
	dst := [][]float64{make([]float64, 4)}
	cv.apply(src, dst)
	expect.EQ(t, dst[0], []float64{0.25, 2.25, 4.25, 8.25})
}

func TestConvDilation(t *testing.T) {
	// kernel 3, dilation 2 reaches two positions either side.
	cv := &conv1d{
		in: 1, out: 1, kernel: 3, dilation: 2,
		weight: [][][]float64{{{1, 0, 1}}},
		bias:   []float64{0},
	}
	src := [][]float64{{1, 2, 3, 4, 5, 6}}
	dst := [][]float64{make([]float64, 6)}
	cv.apply(src, dst)
	expect.EQ(t, dst[0], []float64{3, 4, 6, 8, 3, 4})
}

func TestConvRandom(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for iter := 0; iter < 20; iter++ {
		cv := &conv1d{
			in:       1 + rnd.Intn(3),
			out:      1 + rnd.Intn(3),
			kernel:   1 + rnd.Intn(7),
			dilation: 1 + rnd.Intn(3),
		}
		cv.bias = make([]float64, cv.out)
		cv.weight = make([][][]float64, cv.out)
		for o := range cv.weight {
			cv.bias[o] = rnd.NormFloat64()
			cv.weight[o] = make([][]float64, cv.in)
			for c := range cv.weight[o] {
				row := make([]float64, cv.kernel)
				for j := range row {
					row[j] = rnd.NormFloat64()
				}
				cv.weight[o][c] = row
			}
		}
		n := 1 + rnd.Intn(40)
		src := make([][]float64, cv.in)
		for c := range src {
			src[c] = make([]float64, n)
			for t := range src[c] {
				src[c][t] = rnd.NormFloat64()
			}
		}
		dst := newBuffer(cv.out, n)
		cv.apply(src, dst)
		want := convRef(cv, src)
		for o := range want {
			expect.True(t, floats.EqualApprox(dst[o], want[o], 1e-12))
		}
	}
}

func TestActivations(t *testing.T) {
	rows := [][]float64{{-1, 0, 2.5}}
	relu(rows)
	expect.EQ(t, rows[0], []float64{0, 0, 2.5})
	rows = [][]float64{{0, -1000, 1000}}
	sigmoid(rows)
	expect.EQ(t, rows[0][0], 0.5)
	expect.True(t, rows[0][1] < 1e-9)
	expect.True(t, rows[0][2] > 1-1e-9)
}
