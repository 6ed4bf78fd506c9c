package peak

import (
	itree "github.com/biogo/store/interval"
	"github.com/grailbio/scatac/interval"
)

// excluded is one blacklisted region in a chromosome's tree.
type excluded struct {
	start, end int
	id         uintptr
}

func (e excluded) Overlap(b itree.IntRange) bool {
	return e.start < b.End && e.end > b.Start
}

func (e excluded) Range() itree.IntRange {
	return itree.IntRange{Start: e.start, End: e.end}
}

func (e excluded) ID() uintptr { return e.id }

// Blacklist indexes regions whose peaks should be discarded, such as the
// ENCODE exclusion lists.  A nil Blacklist excludes nothing.
type Blacklist struct {
	trees map[string]*itree.IntTree
	n     uintptr
}

// NewBlacklist builds a Blacklist from BED entries.
func NewBlacklist(entries []interval.Entry) (*Blacklist, error) {
	b := &Blacklist{trees: make(map[string]*itree.IntTree)}
	for _, e := range entries {
		t := b.trees[e.Chrom]
		if t == nil {
			t = &itree.IntTree{}
			b.trees[e.Chrom] = t
		}
		b.n++
		if err := t.Insert(excluded{start: int(e.Start0), end: int(e.End), id: b.n}, false); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// LoadBlacklist reads a BED file of excluded regions.
func LoadBlacklist(path string) (*Blacklist, error) {
	union, err := interval.NewBEDUnionFromPath(path, interval.NewBEDOpts{})
	if err != nil {
		return nil, err
	}
	return NewBlacklist(union.Entries())
}

// Overlaps reports whether [start, end) intersects any excluded region.
func (b *Blacklist) Overlaps(chrom string, start, end PosType) bool {
	if b == nil {
		return false
	}
	t := b.trees[chrom]
	if t == nil {
		return false
	}
	return len(t.Get(excluded{start: int(start), end: int(end)})) > 0
}

// Filter returns the peaks that survive the blacklist, preserving order.
// With a nil receiver the input is returned unchanged.
func (b *Blacklist) Filter(peaks []Peak) []Peak {
	if b == nil {
		return peaks
	}
	out := make([]Peak, 0, len(peaks))
	for _, p := range peaks {
		if !b.Overlaps(p.Chrom, p.Start, p.End) {
			out = append(out, p)
		}
	}
	return out
}
