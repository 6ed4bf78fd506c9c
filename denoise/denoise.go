// Package denoise runs a pretrained convolutional residual network over
// per-cluster coverage tracks, producing a denoised signal and a
// per-position peak probability for each cluster.
package denoise

import (
	"context"
	"fmt"
	"runtime"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/scatac/coverage"
	"github.com/grailbio/scatac/interval"
)

// PosType is the type of genomic positions.
type PosType = interval.PosType

// DefaultIntervalSize is the tile width the published checkpoints were
// trained at.
const DefaultIntervalSize = 50000

// Opts defines optional Infer behavior.
type Opts struct {
	// IntervalSize is the number of unpadded positions denoised per model
	// invocation.  0 means DefaultIntervalSize; sizes larger than the window
	// are clamped to the window length.  The window length must be a
	// multiple of the effective interval size.
	IntervalSize int
	// Parallelism is the number of concurrent worker jobs.  0 = NumCPU.
	Parallelism int
}

// DefaultOpts contains default values for Opts.
var DefaultOpts = Opts{
	IntervalSize: DefaultIntervalSize,
	Parallelism:  0,
}

// Result holds the denoised tracks for one window, with the coverage
// padding trimmed off.
type Result struct {
	Chrom string
	// Start and End are the unpadded window bounds; every track row covers
	// [Start, End).
	Start, End PosType
	// Labels[i] names the cluster of track row i.
	Labels []string
	// Reg[i] is the denoised signal for cluster Labels[i].
	Reg [][]float64
	// Cla[i] is the per-position peak probability for cluster Labels[i].
	Cla [][]float64
}

// SplitWindow computes how a padded coverage window is cut into model
// inputs.  It returns the effective interval size (intervalSize clamped to
// the unpadded window length, DefaultIntervalSize if zero) and the tile
// start offsets into the padded rows; each tile spans effective+2*Pad
// positions, so neighboring tiles share their padding with each other's
// cores and the trimmed outputs concatenate seamlessly.
func SplitWindow(m *coverage.Matrix, intervalSize int) (int, []int, error) {
	if m.End <= m.Start {
		return 0, nil, fmt.Errorf("denoise: empty window %s:%d-%d", m.Chrom, m.Start, m.End)
	}
	if m.Pad < 0 {
		return 0, nil, fmt.Errorf("denoise: negative pad %d", m.Pad)
	}
	core := int(m.End - m.Start)
	if intervalSize <= 0 {
		intervalSize = DefaultIntervalSize
	}
	if intervalSize > core {
		intervalSize = core
	}
	if core%intervalSize != 0 {
		return 0, nil, fmt.Errorf("denoise: window %s:%d-%d length %d is not a multiple of interval size %d",
			m.Chrom, m.Start, m.End, core, intervalSize)
	}
	starts := make([]int, core/intervalSize)
	for i := range starts {
		starts[i] = i * intervalSize
	}
	return intervalSize, starts, nil
}

// Infer denoises every cluster row of a coverage matrix.  Tiles are
// processed in parallel and reassembled in position order; the result
// covers the unpadded window [m.Start, m.End) with rows in m.Labels order.
func Infer(ctx context.Context, net *Net, m *coverage.Matrix, opts Opts) (*Result, error) {
	intervalSize, starts, err := SplitWindow(m, opts.IntervalSize)
	if err != nil {
		return nil, err
	}
	pad := int(m.Pad)
	tileLen := intervalSize + 2*pad
	core := int(m.End - m.Start)
	for i, row := range m.Data {
		if len(row) != core+2*pad {
			return nil, fmt.Errorf("denoise: cluster row %d has %d positions, want %d", i, len(row), core+2*pad)
		}
	}
	nClusters := len(m.Data)
	res := &Result{
		Chrom:  m.Chrom,
		Start:  m.Start,
		End:    m.End,
		Labels: m.Labels,
		Reg:    newBuffer(nClusters, core),
		Cla:    newBuffer(nClusters, core),
	}
	nTiles := len(starts)
	totalTasks := nClusters * nTiles
	if totalTasks == 0 {
		return res, nil
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > totalTasks {
		parallelism = totalTasks
	}
	err = traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * totalTasks) / parallelism
		endIdx := ((jobIdx + 1) * totalTasks) / parallelism
		s := net.newScratch(tileLen)
		for task := startIdx; task < endIdx; task++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			row := task / nTiles
			tile := task % nTiles
			off := starts[tile]
			reg, cla := net.forward(m.Data[row][off:off+tileLen], s)
			copy(res.Reg[row][tile*intervalSize:(tile+1)*intervalSize], reg[pad:pad+intervalSize])
			copy(res.Cla[row][tile*intervalSize:(tile+1)*intervalSize], cla[pad:pad+intervalSize])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug.Printf("denoise: %s:%d-%d: %d clusters x %d tiles of %d",
		m.Chrom, m.Start, m.End, nClusters, nTiles, intervalSize)
	return res, nil
}
