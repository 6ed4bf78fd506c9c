package denoise

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Config describes the shape of a denoising network.  It is stored alongside
// the weights, so a loaded Net is self-describing.
type Config struct {
	// Channels is the width of the residual trunk.
	Channels int
	// KernelSize is the kernel length of the trunk convolutions and of the
	// regression output.
	KernelSize int
	// KernelSizeClass is the kernel length of the classification head.
	KernelSizeClass int
	// Dilation applies to every convolution except 1x1 skip projections.
	Dilation int
	// Blocks is the number of residual blocks in the trunk.
	Blocks int
	// BlocksClass is the number of residual blocks in the classification
	// head.
	BlocksClass int
}

// DefaultConfig matches the published single-cell denoising checkpoints.
var DefaultConfig = Config{
	Channels:        15,
	KernelSize:      51,
	KernelSizeClass: 51,
	Dilation:        8,
	Blocks:          5,
	BlocksClass:     2,
}

func (c *Config) validate() error {
	if c.Channels <= 0 || c.KernelSize <= 0 || c.KernelSizeClass <= 0 ||
		c.Dilation <= 0 || c.Blocks < 0 || c.BlocksClass < 0 {
		return fmt.Errorf("denoise: invalid network configuration %+v", *c)
	}
	return nil
}

// resBlock is three stacked convolutions with a skip connection.  skip is
// nil when the input feeds through unchanged (channel counts agree).
type resBlock struct {
	conv1 conv1d
	conv2 conv1d
	conv3 conv1d
	skip  *conv1d
}

// apply runs the block over src ([in][L]), leaving the result in dst
// ([out][L]).  tmp is a scratch buffer of the same shape as dst.  src is
// left unchanged.
func (b *resBlock) apply(src, dst, tmp [][]float64) {
	b.conv1.apply(src, dst)
	relu(dst)
	b.conv2.apply(dst, tmp)
	relu(tmp)
	b.conv3.apply(tmp, dst)
	if b.skip == nil {
		for c := range dst {
			floats.Add(dst[c], src[c])
		}
	} else {
		b.skip.apply(src, tmp)
		for c := range dst {
			floats.Add(dst[c], tmp[c])
		}
	}
	relu(dst)
}

// Net is a loaded denoising network.  It is safe for concurrent use; each
// Forward call works on its own activation buffers.
type Net struct {
	cfg Config
	// conv1 lifts the single input channel to the trunk width.
	conv1  conv1d
	blocks []resBlock
	// reg maps trunk activations to the denoised signal.
	reg conv1d
	// blocksClass and class map trunk activations to peak probabilities.
	blocksClass []resBlock
	class       conv1d
}

// Config returns the network configuration.
func (n *Net) Config() Config {
	return n.cfg
}

func newBuffer(channels, length int) [][]float64 {
	backing := make([]float64, channels*length)
	rows := make([][]float64, channels)
	for i := range rows {
		rows[i] = backing[i*length : (i+1)*length]
	}
	return rows
}

// scratch holds the activation buffers for forward passes over windows of a
// fixed length, so repeated passes don't reallocate.
type scratch struct {
	length int
	cur    [][]float64
	next   [][]float64
	tmp    [][]float64
	regRow [][]float64
	claRow [][]float64
}

func (n *Net) newScratch(length int) *scratch {
	return &scratch{
		length: length,
		cur:    newBuffer(n.cfg.Channels, length),
		next:   newBuffer(n.cfg.Channels, length),
		tmp:    newBuffer(n.cfg.Channels, length),
		regRow: [][]float64{make([]float64, length)},
		claRow: [][]float64{make([]float64, length)},
	}
}

// forward runs the network over one padded coverage window.  The returned
// slices are views into s and stay valid until the next call with the same
// scratch.
func (n *Net) forward(signal []float64, s *scratch) (reg, cla []float64) {
	if len(signal) != s.length {
		panic(fmt.Sprintf("denoise: window length %d, scratch sized for %d", len(signal), s.length))
	}
	cur, next, tmp := s.cur, s.next, s.tmp
	n.conv1.apply([][]float64{signal}, cur)
	relu(cur)
	for i := range n.blocks {
		n.blocks[i].apply(cur, next, tmp)
		cur, next = next, cur
	}

	n.reg.apply(cur, s.regRow)
	relu(s.regRow)

	for i := range n.blocksClass {
		n.blocksClass[i].apply(cur, next, tmp)
		cur, next = next, cur
	}
	n.class.apply(cur, s.claRow)
	sigmoid(s.claRow)
	return s.regRow[0], s.claRow[0]
}

// Forward runs the network over one padded coverage window, returning the
// denoised signal and the per-position peak probability, both of the
// input's length.
func (n *Net) Forward(signal []float64) (reg, cla []float64) {
	return n.forward(signal, n.newScratch(len(signal)))
}
