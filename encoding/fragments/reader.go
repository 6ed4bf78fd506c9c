package fragments

import (
	"bufio"
	"os"

	"github.com/biogo/hts/bgzf"
	"github.com/biogo/hts/bgzf/index"
	"github.com/biogo/hts/tabix"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// Reader supports random access to a bgzip-compressed, tabix-indexed
// fragment file.  It is not safe for concurrent use; call Clone to obtain
// additional readers sharing the same parsed index.
type Reader struct {
	path    string
	f       *os.File
	bg      *bgzf.Reader
	idx     *tabix.Index
	nameSet map[string]struct{}
}

// Open opens the fragment file at path, expecting its tabix index at
// path + ".tbi".
func Open(path string) (*Reader, error) {
	return OpenWithIndex(path, path+".tbi")
}

// OpenWithIndex opens the fragment file at path with an explicitly-located
// tabix index.
func OpenWithIndex(path, indexPath string) (r *Reader, err error) {
	idxFile, err := os.Open(indexPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := idxFile.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	idxBg, err := bgzf.NewReader(idxFile, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "fragments.Open: reading %s", indexPath)
	}
	idx, err := tabix.ReadFrom(idxBg)
	if err != nil {
		return nil, errors.Wrapf(err, "fragments.Open: parsing %s", indexPath)
	}
	// Fragment files are BED-like: name/begin/end in columns 1-3, 0-based
	// half-open coordinates.
	if idx.NameColumn != 1 || idx.BeginColumn != 2 || idx.EndColumn != 3 {
		return nil, errors.Errorf("fragments.Open: unexpected index column layout (%d, %d, %d)",
			idx.NameColumn, idx.BeginColumn, idx.EndColumn)
	}
	if !idx.ZeroBased {
		return nil, errors.Errorf("fragments.Open: index built with 1-based coordinates; expected a BED-style fragment index")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if ok, eofErr := bgzf.HasEOF(f); eofErr != nil {
		_ = f.Close()
		return nil, errors.Wrapf(eofErr, "fragments.Open: %s", path)
	} else if !ok {
		// Possible truncation; the usual bgzip EOF marker is absent.
		log.Printf("fragments.Open: warning: %s has no bgzf EOF marker", path)
	}
	bg, err := bgzf.NewReader(f, 1)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "fragments.Open: %s is not bgzip-compressed", path)
	}

	nameSet := make(map[string]struct{})
	for _, name := range idx.Names() {
		nameSet[name] = struct{}{}
	}
	return &Reader{
		path:    path,
		f:       f,
		bg:      bg,
		idx:     idx,
		nameSet: nameSet,
	}, nil
}

// Clone returns an independent Reader over the same file, sharing the parsed
// index.  Use it to query from multiple goroutines.
func (r *Reader) Clone() (*Reader, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, err
	}
	bg, err := bgzf.NewReader(f, 1)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Reader{
		path:    r.path,
		f:       f,
		bg:      bg,
		idx:     r.idx,
		nameSet: r.nameSet,
	}, nil
}

// Close releases the underlying file handles.
func (r *Reader) Close() error {
	err := r.bg.Close()
	cerr := r.f.Close()
	if err != nil {
		return err
	}
	if pe, ok := cerr.(*os.PathError); ok && pe.Err == os.ErrClosed {
		// The bgzf close already closed the file.
		return nil
	}
	return cerr
}

// Chroms returns the chromosome names present in the index, in index order.
func (r *Reader) Chroms() []string {
	return r.idx.Names()
}

// HasChrom reports whether the index covers chrom.
func (r *Reader) HasChrom(chrom string) bool {
	_, found := r.nameSet[chrom]
	return found
}

// Iterator iterates over the fragment records overlapping a queried
// interval.  Use:
//
//	it, err := r.Query("chr1", 10000, 20000)
//	for it.Scan() {
//		rec := it.Record()
//		...
//	}
//	err = it.Close()
//
// The Record pointer is only valid until the next Scan call.
type Iterator struct {
	scanner *bufio.Scanner
	cr      *index.ChunkReader
	chrom   string
	start   PosType
	end     PosType
	meta    byte
	rec     Record
	err     error
	done    bool
}

// Query returns an iterator over the records overlapping [start, end) on
// chrom, in start-position order.  An interval overlaps when
// rec.End > start && rec.Start < end.  Querying a chromosome absent from the
// index yields an empty iterator, not an error.  At most one iterator per
// Reader may be live at a time.
func (r *Reader) Query(chrom string, start, end PosType) (*Iterator, error) {
	if end <= start {
		return nil, errors.Errorf("fragments.Query: invalid interval [%d, %d)", start, end)
	}
	if start < 0 {
		start = 0
	}
	it := &Iterator{
		chrom: chrom,
		start: start,
		end:   end,
		meta:  byte(r.idx.MetaChar),
	}
	if _, found := r.nameSet[chrom]; !found {
		it.done = true
		return it, nil
	}
	chunks, err := r.idx.Chunks(chrom, int(start), int(end))
	switch err {
	case nil:
	case index.ErrNoReference, index.ErrInvalid:
		// No indexed data overlaps the query.
		it.done = true
		return it, nil
	default:
		return nil, errors.Wrapf(err, "fragments.Query: %s:%d-%d", chrom, start, end)
	}
	if len(chunks) == 0 {
		it.done = true
		return it, nil
	}
	cr, err := index.NewChunkReader(r.bg, chunks)
	if err != nil {
		return nil, errors.Wrapf(err, "fragments.Query: %s:%d-%d", chrom, start, end)
	}
	it.cr = cr
	it.scanner = bufio.NewScanner(cr)
	return it, nil
}

// Scan advances the iterator to the next overlapping record, returning false
// at the end of the query interval or on error.
func (it *Iterator) Scan() bool {
	if it.done {
		return false
	}
	for it.scanner.Scan() {
		line := it.scanner.Bytes()
		if len(line) == 0 || (it.meta != 0 && line[0] == it.meta) {
			continue
		}
		if err := ParseRecord(line, &it.rec); err != nil {
			it.err = err
			it.done = true
			return false
		}
		// Chunks cover whole bgzf blocks, so lines outside the query interval
		// show up here.  Records are sorted by (chrom, start): stop for good
		// once past the interval or onto the next chromosome.
		if it.rec.Chrom != it.chrom || it.rec.Start >= it.end {
			it.done = true
			return false
		}
		if it.rec.End > it.start {
			return true
		}
	}
	it.err = it.scanner.Err()
	it.done = true
	return false
}

// Record returns the current record.  The returned pointer is invalidated by
// the next Scan call.
func (it *Iterator) Record() *Record {
	return &it.rec
}

// Err returns the first error encountered while scanning, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the iterator's hold on the Reader and returns the first
// error encountered while scanning, if any.  Every iterator must be closed
// before the next Query on the same Reader.
func (it *Iterator) Close() error {
	it.done = true
	if it.cr != nil {
		cerr := it.cr.Close()
		it.cr = nil
		if it.err == nil {
			it.err = cerr
		}
	}
	return it.err
}
