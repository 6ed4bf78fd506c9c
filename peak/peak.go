// Package peak extracts peak calls from per-position probability tracks.
package peak

import (
	"io"
	"math"
	"strconv"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/scatac/interval"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PosType is the type of genomic positions.
type PosType = interval.PosType

// Opts defines peak calling behavior.
type Opts struct {
	// Threshold is the minimum classification probability inside a peak.
	Threshold float64
	// MergeDist merges neighboring peaks separated by fewer than this many
	// positions; 0 never merges.
	MergeDist int
	// MinLen drops peaks spanning fewer than this many positions.
	MinLen int
}

// DefaultOpts contains default values for Opts.
var DefaultOpts = Opts{
	Threshold: 0.5,
	MergeDist: 0,
	MinLen:    20,
}

// Peak is one called peak over the half-open region [Start, End).
type Peak struct {
	Chrom string
	Start PosType
	End   PosType
	// Summit is the position of the strongest denoised signal inside the
	// peak, or -1 when no signal track was supplied.
	Summit PosType
	// MaxProb and MeanProb summarize the classification probabilities over
	// [Start, End).
	MaxProb  float64
	MeanProb float64
}

// Call extracts peaks from one cluster's probability track.  cla[i] is the
// peak probability at position origin+i of chrom; reg, when non-nil, holds
// the matching denoised signal and supplies peak summits.  Positions with
// probability >= opts.Threshold seed peaks, peaks separated by fewer than
// opts.MergeDist positions are merged, and merged peaks shorter than
// opts.MinLen are dropped.
func Call(chrom string, origin PosType, cla, reg []float64, opts Opts) []Peak {
	if reg != nil && len(reg) != len(cla) {
		log.Panicf("peak: signal length %d does not match probability length %d", len(reg), len(cla))
	}
	type span struct{ start, end int }
	var spans []span
	inPeak := false
	for i, v := range cla {
		switch {
		case v >= opts.Threshold && !inPeak:
			spans = append(spans, span{start: i})
			inPeak = true
		case v < opts.Threshold && inPeak:
			spans[len(spans)-1].end = i
			inPeak = false
		}
	}
	if inPeak {
		spans[len(spans)-1].end = len(cla)
	}

	merged := spans[:0]
	for _, s := range spans {
		if n := len(merged); n > 0 && s.start-merged[n-1].end < opts.MergeDist {
			merged[n-1].end = s.end
			continue
		}
		merged = append(merged, s)
	}

	peaks := make([]Peak, 0, len(merged))
	for _, s := range merged {
		if s.end-s.start < opts.MinLen {
			continue
		}
		p := Peak{
			Chrom:    chrom,
			Start:    origin + PosType(s.start),
			End:      origin + PosType(s.end),
			Summit:   -1,
			MaxProb:  floats.Max(cla[s.start:s.end]),
			MeanProb: stat.Mean(cla[s.start:s.end], nil),
		}
		if reg != nil {
			p.Summit = origin + PosType(s.start+floats.MaxIdx(reg[s.start:s.end]))
		}
		peaks = append(peaks, p)
	}
	return peaks
}

// WriteBED writes peaks as 6-column BED (chrom, start, end, name, score,
// strand).  Scores scale the maximum probability to 0..1000.
func WriteBED(w io.Writer, peaks []Peak) (err error) {
	tw := tsv.NewWriter(w)
	for i, p := range peaks {
		tw.WriteString(p.Chrom)
		tw.WriteUint32(uint32(p.Start))
		tw.WriteUint32(uint32(p.End))
		tw.WriteString("peak_" + strconv.Itoa(i+1))
		tw.WriteUint32(uint32(math.Round(1000 * p.MaxProb)))
		tw.WriteString(".")
		if err = tw.EndLine(); err != nil {
			return
		}
	}
	return tw.Flush()
}
