// Package coverage computes per-cluster coverage tracks from single-cell
// ATAC-seq fragment files.  A coverage track counts, at every position of a
// genomic window, the fragments from cells of one cluster overlapping that
// position.
package coverage

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/scatac/encoding/fragments"
	"github.com/grailbio/scatac/interval"
)

// PosType is the coordinate type used for window bounds.
type PosType = interval.PosType

// Assignment resolves cell barcodes to cluster row indices.  cluster.Map
// implements it directly; cluster.Corrector adds barcode error correction.
type Assignment interface {
	// Labels returns the cluster labels in row order.
	Labels() []string
	// Index returns the row index for barcode.
	Index(barcode string) (int, bool)
}

// Matrix holds per-cluster coverage over one padded genomic window.  Row i
// corresponds to Labels[i]; every cluster in the assignment table gets a
// row, including clusters without any overlapping fragment.
type Matrix struct {
	// Chrom, Start, End describe the unpadded window.
	Chrom string
	Start PosType
	End   PosType
	// Pad is the number of flanking positions included on each side.  The
	// data rows cover [Start-Pad, End+Pad); positions before the start of
	// the chromosome stay zero.
	Pad PosType
	// Labels lists the cluster labels in row order.  Shared with the
	// assignment table the matrix was computed from.
	Labels []string
	// Data[i][j] is the coverage of cluster Labels[i] at position
	// Start - Pad + j.  Rows are slices of one contiguous allocation.
	Data [][]float64
}

// WindowLen returns the padded window length, End - Start + 2*Pad.
func (m *Matrix) WindowLen() int {
	return int(m.End-m.Start) + 2*int(m.Pad)
}

// Core returns the unpadded part of row i, covering [Start, End).
func (m *Matrix) Core(i int) []float64 {
	n := int(m.End - m.Start)
	return m.Data[i][int(m.Pad) : int(m.Pad)+n]
}

// Stats counts the fragment records inspected while filling coverage
// windows.
type Stats struct {
	// Assigned is the number of records whose barcode had a cluster
	// assignment.
	Assigned int64
	// Unassigned is the number of records skipped because their barcode was
	// absent from the assignment table.
	Unassigned int64
}

// Window computes per-cluster coverage for the padded window around entry.
// Fragments are fetched for the padded interval [Start-Pad, End+Pad); each
// overlapping fragment adds 1 to every position it covers within that
// window, for the cluster its barcode belongs to.  Records with unassigned
// barcodes are counted in Stats and otherwise ignored.
func Window(r *fragments.Reader, clusters Assignment, entry interval.Entry, pad PosType) (*Matrix, Stats, error) {
	var stats Stats
	if entry.End <= entry.Start0 {
		return nil, stats, fmt.Errorf("coverage.Window: invalid interval %s:%d-%d", entry.Chrom, entry.Start0, entry.End)
	}
	if pad < 0 {
		return nil, stats, fmt.Errorf("coverage.Window: negative pad %d", pad)
	}
	winLen64 := int64(entry.End-entry.Start0) + 2*int64(pad)
	if winLen64 >= interval.PosTypeMax {
		return nil, stats, fmt.Errorf("coverage.Window: window length %d out of range", winLen64)
	}
	winLen := int(winLen64)

	labels := clusters.Labels()
	backing := make([]float64, len(labels)*winLen)
	data := make([][]float64, len(labels))
	for i := range data {
		data[i] = backing[i*winLen : (i+1)*winLen]
	}

	// The window anchor may be negative for entries at the start of a
	// chromosome; the corresponding leading positions receive no counts.
	anchor := entry.Start0 - pad
	winEnd := entry.End + pad

	queryStart := anchor
	if queryStart < 0 {
		queryStart = 0
	}
	it, err := r.Query(entry.Chrom, queryStart, winEnd)
	if err != nil {
		return nil, stats, err
	}
	for it.Scan() {
		rec := it.Record()
		ci, found := clusters.Index(rec.Barcode)
		if !found {
			stats.Unassigned++
			continue
		}
		stats.Assigned++
		lo, hi := rec.Start, rec.End
		if lo < anchor {
			lo = anchor
		}
		if hi > winEnd {
			hi = winEnd
		}
		row := data[ci]
		for off, end := int(lo-anchor), int(hi-anchor); off < end; off++ {
			row[off]++
		}
	}
	if err := it.Close(); err != nil {
		return nil, stats, err
	}
	log.Debug.Printf("coverage: %s:%d-%d pad %d: %d assigned, %d unassigned record(s)",
		entry.Chrom, entry.Start0, entry.End, pad, stats.Assigned, stats.Unassigned)
	return &Matrix{
		Chrom:  entry.Chrom,
		Start:  entry.Start0,
		End:    entry.End,
		Pad:    pad,
		Labels: labels,
		Data:   data,
	}, stats, nil
}
