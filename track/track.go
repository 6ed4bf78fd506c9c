// Package track writes per-cluster genomic signal tracks as bedGraph text
// or numpy matrices.
package track

import (
	"context"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/biogo/hts/bgzf"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/scatac/interval"
)

// PosType is the type of genomic positions.
type PosType = interval.PosType

// Conventional signal names used in output file names.
const (
	SignalCoverage       = "coverage"
	SignalDenoised       = "denoised"
	SignalClassification = "classification"
)

// WriteBedGraph writes one signal track as bedGraph lines covering
// [start, start+len(values)) of chrom.  Runs of equal values merge into a
// single line and zero runs are skipped.  Values are rounded to prec
// decimal places; prec 0 prints bare integers.
func WriteBedGraph(w io.Writer, chrom string, start PosType, values []float64, prec int) (err error) {
	tw := tsv.NewWriter(w)
	scale := math.Pow(10, float64(prec))
	for i, n := 0, len(values); i < n; {
		val := math.Round(values[i]*scale) / scale
		j := i + 1
		for j < n && math.Round(values[j]*scale)/scale == val {
			j++
		}
		if val != 0 {
			tw.WriteString(chrom)
			tw.WriteUint32(uint32(int(start) + i))
			tw.WriteUint32(uint32(int(start) + j))
			tw.WriteString(strconv.FormatFloat(val, 'f', prec, 64))
			if err = tw.EndLine(); err != nil {
				return
			}
		}
		i = j
	}
	return tw.Flush()
}

// BedGraphPath returns the output path for one cluster's signal track.
func BedGraphPath(prefix, label, signal string, gzip bool) string {
	path := fmt.Sprintf("%s.cluster_%s.%s.bedgraph", prefix, label, signal)
	if gzip {
		path += ".gz"
	}
	return path
}

func writeBedGraphFile(ctx context.Context, path, chrom string, start PosType, values []float64, prec int, gzip bool) (err error) {
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, dst, &err)
	if !gzip {
		return WriteBedGraph(dst.Writer(ctx), chrom, start, values, prec)
	}
	bgzfWriter := bgzf.NewWriter(dst.Writer(ctx), 1)
	defer func() {
		if e := bgzfWriter.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return WriteBedGraph(bgzfWriter, chrom, start, values, prec)
}

// WriteBedGraphFiles writes one bedGraph file per cluster row, named
// <prefix>.cluster_<label>.<signal>.bedgraph[.gz], and returns the paths
// written.  Gzipped output is bgzf, so the files can be tabix indexed.
func WriteBedGraphFiles(ctx context.Context, prefix, signal, chrom string, start PosType, labels []string, rows [][]float64, prec int, gzip bool) ([]string, error) {
	if len(labels) != len(rows) {
		return nil, fmt.Errorf("track: %d labels for %d rows", len(labels), len(rows))
	}
	paths := make([]string, len(rows))
	for i, row := range rows {
		path := BedGraphPath(prefix, labels[i], signal, gzip)
		if err := writeBedGraphFile(ctx, path, chrom, start, row, prec, gzip); err != nil {
			return nil, err
		}
		paths[i] = path
	}
	return paths, nil
}
