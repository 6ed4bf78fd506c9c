package track

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/file"
	"github.com/kshedden/gonpy"
)

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// WriteNpy writes rows as a single float64 matrix of shape
// (len(rows), len(rows[0])) in npy format.
func WriteNpy(w io.Writer, rows [][]float64) error {
	width := 0
	if len(rows) > 0 {
		width = len(rows[0])
	}
	flat := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("track: row %d has %d values, want %d", i, len(row), width)
		}
		flat = append(flat, row...)
	}
	npw, err := gonpy.NewWriter(nopCloser{w})
	if err != nil {
		return err
	}
	npw.Shape = []int{len(rows), width}
	return npw.WriteFloat64(flat)
}

// NpyPath returns the output path for a signal matrix.
func NpyPath(prefix, signal string) string {
	return prefix + "." + signal + ".npy"
}

// WriteNpyFile writes rows as a float64 matrix at <prefix>.<signal>.npy and
// returns the path written.  Row i holds the track of cluster labels[i] as
// recorded by WriteClusterLabels.
func WriteNpyFile(ctx context.Context, prefix, signal string, rows [][]float64) (path string, err error) {
	path = NpyPath(prefix, signal)
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return "", err
	}
	defer file.CloseAndReport(ctx, dst, &err)
	bufw := bufio.NewWriter(dst.Writer(ctx))
	if err = WriteNpy(bufw, rows); err != nil {
		return "", err
	}
	if err = bufw.Flush(); err != nil {
		return "", err
	}
	return path, nil
}

// WriteClusterLabels writes the matrix row labels, one per line, to
// <prefix>.clusters.txt and returns the path written.
func WriteClusterLabels(ctx context.Context, prefix string, labels []string) (path string, err error) {
	path = prefix + ".clusters.txt"
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return "", err
	}
	defer file.CloseAndReport(ctx, dst, &err)
	w := dst.Writer(ctx)
	for _, label := range labels {
		if _, err = io.WriteString(w, label+"\n"); err != nil {
			return "", err
		}
	}
	return path, nil
}
