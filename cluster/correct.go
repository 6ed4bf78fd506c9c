package cluster

import (
	"sync/atomic"
)

// barcodeAlphabet lists the characters considered when generating
// single-substitution neighbors.  N covers no-calls in observed barcodes.
var barcodeAlphabet = []byte{'A', 'C', 'G', 'T', 'N'}

// ambiguous marks neighbor strings reachable from known barcodes in more
// than one cluster.
const ambiguous = -1

// Corrector wraps a Map with single-substitution barcode correction.  An
// observed barcode absent from the table is snapped when every known
// barcode within Hamming distance 1 of it belongs to the same cluster;
// observed barcodes near known barcodes from different clusters stay
// unassigned.  Corrector is safe for concurrent use.
type Corrector struct {
	m *Map
	// near maps each string one substitution away from a known barcode to
	// the owning cluster index, or to ambiguous.
	near map[string]int32
	hits int64
}

// NewCorrector builds the substitution neighborhood of every barcode in m.
// The table costs O(barcodes * barcode length * alphabet size) memory.
func NewCorrector(m *Map) *Corrector {
	c := &Corrector{
		m:    m,
		near: make(map[string]int32, len(m.byBarcode)*len(barcodeAlphabet)),
	}
	var buf []byte
	for barcode, ci := range m.byBarcode {
		buf = append(buf[:0], barcode...)
		for i := range buf {
			orig := buf[i]
			for _, b := range barcodeAlphabet {
				if b == orig {
					continue
				}
				buf[i] = b
				variant := string(buf)
				if _, known := m.byBarcode[variant]; known {
					continue
				}
				if prev, found := c.near[variant]; !found {
					c.near[variant] = int32(ci)
				} else if prev != int32(ci) {
					c.near[variant] = ambiguous
				}
			}
			buf[i] = orig
		}
	}
	return c
}

// Labels returns the wrapped table's cluster labels.
func (c *Corrector) Labels() []string {
	return c.m.Labels()
}

// Index returns the cluster index for barcode, trying an exact match first
// and single-substitution correction second.
func (c *Corrector) Index(barcode string) (int, bool) {
	if ci, found := c.m.Index(barcode); found {
		return ci, true
	}
	ci, found := c.near[barcode]
	if !found || ci == ambiguous {
		return 0, false
	}
	atomic.AddInt64(&c.hits, 1)
	return int(ci), true
}

// Corrected returns the number of lookups resolved by correction so far.
func (c *Corrector) Corrected() int64 {
	return atomic.LoadInt64(&c.hits)
}
