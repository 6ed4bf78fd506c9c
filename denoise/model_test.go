package denoise

import (
	"math"
	"testing"

	"github.com/grailbio/testutil/expect"
)

// tinyNet builds a 2-channel net out of pure center-tap kernels: the trunk
// block doubles its input, the classification block doubles it again, and
// the two heads average their input channels.  For coverage-like inputs
// (x >= 0), reg(x) = 2x and cla(x) = sigmoid(4x), position by position.
func tinyNet() *Net {
	cfg := Config{Channels: 2, KernelSize: 3, KernelSizeClass: 3, Dilation: 1, Blocks: 1, BlocksClass: 1}
	center := func(out, in int, tap func(o, c int) float64) conv1d {
		cv := conv1d{in: in, out: out, kernel: 3, dilation: 1, bias: make([]float64, out)}
		cv.weight = make([][][]float64, out)
		for o := range cv.weight {
			cv.weight[o] = make([][]float64, in)
			for c := range cv.weight[o] {
				cv.weight[o][c] = []float64{0, tap(o, c), 0}
			}
		}
		return cv
	}
	ident := func(o, c int) float64 {
		if o == c {
			return 1
		}
		return 0
	}
	mean := func(o, c int) float64 { return 0.5 }
	block := resBlock{
		conv1: center(2, 2, ident),
		conv2: center(2, 2, ident),
		conv3: center(2, 2, ident),
	}
	return &Net{
		cfg:         cfg,
		conv1:       center(2, 1, func(o, c int) float64 { return 1 }),
		blocks:      []resBlock{block},
		reg:         center(1, 2, mean),
		blocksClass: []resBlock{block},
		class:       center(1, 2, mean),
	}
}

func TestForwardTiny(t *testing.T) {
	net := tinyNet()
	in := []float64{0, 1, 2, 0, 3}
	reg, cla := net.Forward(in)
	expect.EQ(t, len(reg), len(in))
	expect.EQ(t, len(cla), len(in))
	for i, x := range in {
		expect.EQ(t, reg[i], 2*x)
		want := 1 / (1 + math.Exp(-4*x))
		expect.True(t, math.Abs(cla[i]-want) < 1e-12)
	}
}

func TestForwardScratchReuse(t *testing.T) {
	net := tinyNet()
	s := net.newScratch(4)
	in := []float64{1, 2, 3, 4}
	reg, _ := net.forward(in, s)
	first := append([]float64(nil), reg...)
	_, _ = net.forward([]float64{5, 0, 1, 9}, s)
	reg, _ = net.forward(in, s)
	expect.EQ(t, reg, first)
}
