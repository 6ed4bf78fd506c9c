package interval

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

// PosType is the coordinate type used throughout this repository.  int32 is
// wide enough for every genome assembly we care about, and it's what tabix
// indexes are limited to anyway.
type PosType int32

// PosTypeMax is the maximum value representable by a PosType.
const PosTypeMax = math.MaxInt32

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		// These simple loops are better than any of the standard library
		// string-split functions when length <20 tokens are expected.
		// Unfortunately, the compiler currently does not inline any function with
		// a loop no matter how trivial, so we can't justify making these 5-line
		// for loops functions of their own.
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// searchPosType returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).  It's exactly the same
// as sort.SearchInts(), except for PosType.
func searchPosType(a []PosType, x PosType) int {
	return sort.Search(len(a), func(i int) bool { return a[i] >= x })
}

// fwdsearchPosType checks a[idx], then a[idx + 1], then a[idx + 3], then
// a[idx + 7], etc., and then uses binary search to finish the job.  It's
// usually a better choice than searchPosType when iterating in position
// order.
func fwdsearchPosType(a []PosType, x PosType, idx int) int {
	nextIncr := 1
	startIdx := idx
	endIdx := len(a)
	for idx < endIdx {
		if a[idx] >= x {
			endIdx = idx
			break
		}
		startIdx = idx + 1
		idx += nextIncr
		nextIncr *= 2
	}
	for startIdx < endIdx {
		midIdx := int(uint(startIdx+endIdx) >> 1)
		if a[midIdx] >= x {
			endIdx = midIdx
		} else {
			startIdx = midIdx + 1
		}
	}
	return startIdx
}

// NewBEDOpts defines behavior of this package's BED-loading function(s).
type NewBEDOpts struct {
	// Invert causes the complement of the interval-union to be returned.  The
	// complement extends down to position -1 at the beginning of each
	// chromosome, and 2^31 - 2 inclusive at the end.  Only chromosomes
	// mentioned in the BED file are included.  (A single empty interval
	// qualifies as a "mention" for this purpose.)
	Invert bool
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

// BEDUnion is a set of disjoint genomic intervals, keyed by chromosome name.
// Each chromosome's intervals are stored as a length-2N position sequence,
// where N is the number of intervals, the (0-based) start position of
// interval #k (numbering from zero) is in element [2k], the end position is
// in element [2k+1], and the intervals are stored in increasing order.
// Advantages of this representation over a length-N sequence of {start, end}
// structs include simpler inversion code and reuse of []int32 search
// algorithms.
type BEDUnion struct {
	// nameMap is a chromosome-name-keyed map with disjoint-interval-set values.
	// Always initialized.
	nameMap map[string]([]PosType)
	// chromOrder stores chromosome names in order of first appearance, so that
	// Entries() can return intervals in input order.
	chromOrder []string
	// lastChrIntervals points to the interval set for the most recently queried
	// chromosome.  This accelerates the common query-in-genome-order access
	// pattern.
	lastChrIntervals []PosType
	// lastChrom is the name of the most recently queried chromosome.  If it's
	// nonempty, it must be in sync with lastChrIntervals.
	lastChrom string
	// lastPosPlus1 is 1 plus the last spot-queried position.
	lastPosPlus1 PosType
	// lastIdx is searchPosType(lastChrIntervals, lastPosPlus1), cached to
	// accelerate sequential queries.
	lastIdx int
	// isSequential is true if all queries since the last chromosome change have
	// been in order of nondecreasing position.
	isSequential bool
}

func initBEDUnion() (bedUnion BEDUnion) {
	bedUnion.nameMap = make(map[string]([]PosType))
	return
}

func (u *BEDUnion) lookup(chrom string) []PosType {
	if chrom != u.lastChrom {
		u.lastChrom = chrom
		u.lastChrIntervals = u.nameMap[chrom]
		u.isSequential = false
	}
	return u.lastChrIntervals
}

// Contains checks whether the (0-based) position pos on chrom is contained
// within the interval set.
func (u *BEDUnion) Contains(chrom string, pos PosType) bool {
	posPlus1 := pos + 1
	if chrom != u.lastChrom {
		u.lastChrom = chrom
		u.lastChrIntervals = u.nameMap[chrom]
		if u.lastChrIntervals == nil {
			u.isSequential = false
			return false
		}
		u.lastIdx = searchPosType(u.lastChrIntervals, posPlus1)
		u.lastPosPlus1 = posPlus1
		u.isSequential = true
		return u.lastIdx&1 == 1
	}
	if u.lastChrIntervals == nil {
		return false
	}
	if u.isSequential {
		if posPlus1 >= u.lastPosPlus1 {
			u.lastIdx = fwdsearchPosType(u.lastChrIntervals, posPlus1, u.lastIdx)
			u.lastPosPlus1 = posPlus1
			return u.lastIdx&1 == 1
		}
		u.isSequential = false
	}
	return searchPosType(u.lastChrIntervals, posPlus1)&1 == 1
}

// Intersects checks whether [start, end) intersects the interval set.  It
// panics if end <= start.
func (u *BEDUnion) Intersects(chrom string, start, end PosType) bool {
	if end <= start {
		panic("internal error: BEDUnion.Intersects requires end > start")
	}
	chrIntervals := u.lookup(chrom)
	if chrIntervals == nil {
		return false
	}
	idxStart := searchPosType(chrIntervals, start+1)
	if idxStart&1 == 1 {
		return true
	}
	return (idxStart != len(chrIntervals)) && (end > chrIntervals[idxStart])
}

// Overlap returns the set of intervals overlapping [start, end), as a
// freshly-allocated length-2N start/end sequence clipped to the query
// boundaries.  nil is returned when there is no overlap.
func (u *BEDUnion) Overlap(chrom string, start, end PosType) []PosType {
	if end <= start {
		panic("internal error: BEDUnion.Overlap requires end > start")
	}
	chrIntervals := u.lookup(chrom)
	if chrIntervals == nil {
		return nil
	}
	// Round the first interval with an endpoint greater than start down to its
	// start element, and one past the last interval with a start element less
	// than end up to its end element.
	lo := searchPosType(chrIntervals, start+1) &^ 1
	hi := (searchPosType(chrIntervals, end) + 1) &^ 1
	if lo >= hi {
		return nil
	}
	result := append([]PosType(nil), chrIntervals[lo:hi]...)
	if result[0] < start {
		result[0] = start
	}
	if result[len(result)-1] > end {
		result[len(result)-1] = end
	}
	return result
}

// Chroms returns the chromosome names present in the union, in order of first
// appearance.
func (u *BEDUnion) Chroms() []string {
	return u.chromOrder
}

// Entries returns the disjoint intervals in the union, with chromosomes in
// order of first appearance.  Inverted unions include their sentinel
// boundaries, so callers normally invoke this on uninverted unions only.
func (u *BEDUnion) Entries() []Entry {
	var entries []Entry
	for _, chrom := range u.chromOrder {
		chrIntervals := u.nameMap[chrom]
		for i := 0; i < len(chrIntervals); i += 2 {
			entries = append(entries, Entry{
				Chrom:  chrom,
				Start0: chrIntervals[i],
				End:    chrIntervals[i+1],
			})
		}
	}
	return entries
}

// TotalBases returns the number of bases covered by the union.
func (u *BEDUnion) TotalBases() int64 {
	var tot int64
	for _, chrIntervals := range u.nameMap {
		for i := 0; i < len(chrIntervals); i += 2 {
			tot += int64(chrIntervals[i+1] - chrIntervals[i])
		}
	}
	return tot
}

func scanBEDUnion(scanner *bufio.Scanner, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	bedUnion = initBEDUnion()

	var startSubtract int
	if opts.OneBasedInput {
		startSubtract++
	}

	var tokens [3][]byte

	lineIdx := 0
	prevChrom := ""
	totBases := 0
	var prevStart, prevEnd PosType
	var chrIntervals []PosType
	for scanner.Scan() {
		lineIdx++
		// scanner.Bytes() doesn't allocate, scanner.Text() does.
		curLine := scanner.Bytes()
		nToken := getTokens(tokens[:], curLine)
		if nToken != 3 {
			if nToken == 0 {
				continue
			}
			err = fmt.Errorf("interval.scanBEDUnion: line %d has fewer tokens than expected", lineIdx)
			return
		}

		curChrom := tokens[0]
		var parsedStart int
		if parsedStart, err = strconv.Atoi(gunsafe.BytesToString(tokens[1])); err != nil {
			return
		}
		parsedStart -= startSubtract
		if parsedStart < 0 {
			err = fmt.Errorf("interval.scanBEDUnion: negative start coordinate %s on line %d", tokens[1], lineIdx)
			return
		}
		start := PosType(parsedStart)

		var parsedEnd int
		if parsedEnd, err = strconv.Atoi(gunsafe.BytesToString(tokens[2])); err != nil {
			return
		}
		if (parsedEnd < parsedStart) || (parsedEnd >= PosTypeMax) {
			err = fmt.Errorf("interval.scanBEDUnion: invalid coordinate pair on line %d", lineIdx)
			return
		}
		end := PosType(parsedEnd)
		if prevChrom != gunsafe.BytesToString(curChrom) {
			if prevChrom != "" {
				if prevEnd != -1 {
					chrIntervals = append(chrIntervals, prevStart, prevEnd)
				}
				if opts.Invert {
					chrIntervals = append(chrIntervals, PosTypeMax)
				}
				bedUnion.nameMap[prevChrom] = chrIntervals
			}
			// Must copy curChrom's contents: it refers to bytes on curLine which
			// are overwritten by the next Scan call, and it persists as a map key.
			prevChrom = string(curChrom)
			if _, found := bedUnion.nameMap[prevChrom]; found {
				err = fmt.Errorf("interval.scanBEDUnion: unsorted input (split chromosome %s)", curChrom)
				return
			}
			bedUnion.chromOrder = append(bedUnion.chromOrder, prevChrom)
			chrIntervals = []PosType{}
			if opts.Invert {
				chrIntervals = append(chrIntervals, -1)
			}
			if end == start {
				// Distinguish between 'mentioned' chromosomes without any covered
				// bases and unmentioned chromosomes.
				prevStart = -1
				prevEnd = -1
			} else {
				prevStart = start
				prevEnd = end
			}
			totBases += int(end - start)
			continue
		}
		if end == start {
			continue
		}
		if start > prevEnd {
			// New interval doesn't overlap the previous one, save the previous
			// one.
			if prevEnd != -1 {
				chrIntervals = append(chrIntervals, prevStart, prevEnd)
			}
			prevStart = start
			prevEnd = end
			totBases += int(end - start)
		} else {
			if start < prevStart {
				err = fmt.Errorf("interval.scanBEDUnion: unsorted input")
				return
			}
			// Intervals overlap, merge them.
			if end > prevEnd {
				totBases += int(end - prevEnd)
				prevEnd = end
			}
		}
	}
	if err = scanner.Err(); err != nil {
		return
	}
	log.Debug.Printf("BED loaded, %d base(s) covered", totBases)
	if prevChrom != "" {
		if prevEnd != -1 {
			chrIntervals = append(chrIntervals, prevStart, prevEnd)
		}
		if opts.Invert {
			chrIntervals = append(chrIntervals, PosTypeMax)
		}
		bedUnion.nameMap[prevChrom] = chrIntervals
	}
	return
}

// NewBEDUnion loads just the intervals from a sorted (by first coordinate)
// interval-BED, merging touching/overlapping intervals and eliminating empty
// ones in the process.  A BEDUnion is returned.
func NewBEDUnion(reader io.Reader, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	// Note that Scanner does not handle very long lines unless we specify an
	// adequate buffer size in advance; it does not auto-resize.
	// Shouldn't matter for BED files, though.
	scanner := bufio.NewScanner(reader)
	return scanBEDUnion(scanner, opts)
}

// NewBEDUnionFromPath is a wrapper for NewBEDUnion that takes a path instead
// of an io.Reader.  Gzipped files are detected by extension.
func NewBEDUnionFromPath(path string, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(reader); err != nil {
			return
		}
		defer func() {
			if cerr := gz.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		reader = gz
	}
	return NewBEDUnion(reader, opts)
}

// Entry represents a single genomic interval, with 0-based half-open
// coordinates.
type Entry struct {
	Chrom  string
	Start0 PosType
	End    PosType
}

// ParseRegionString parses a region string of one of the forms
//
//	[chrom]:[1-based first pos]-[last pos]
//	[chrom]:[1-based pos]
//	[chrom]
//
// returning a chromosome name along with 0-based interval boundaries.  The
// interval [0, PosTypeMax - 1) is returned when there is no positional
// restriction.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.IndexByte(region, ':')
	if colonPos == -1 {
		result.Chrom = region
		result.Start0 = 0
		result.End = PosTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty chromosome name in %q", region)
		return
	}
	result.Chrom = region[0:colonPos]
	rangeStr := region[colonPos+1:]
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	var start1 int
	if start1, err = strconv.Atoi(start1Str); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v out of range", start1Str)
		return
	}
	var end0 int
	if end0, err = strconv.Atoi(endStr); err != nil {
		return
	}
	// We may as well prohibit end0 == PosTypeMax so that interval sets are
	// guaranteed to contain no repeats.  This means ParseInt(., 10, 32) doesn't
	// quite do the right thing, so Atoi is used above.
	if end0 < start1 || end0 >= PosTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end0)
	return
}

// NewBEDUnionFromEntries initializes a BEDUnion from a sorted []Entry.  This
// ignores opts.OneBasedInput, since Entry.Start0 is defined to be zero-based.
func NewBEDUnionFromEntries(entries []Entry, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	bedUnion = initBEDUnion()
	prevChrom := ""
	var prevStart, prevEnd PosType
	var chrIntervals []PosType
	for _, entry := range entries {
		curChrom := entry.Chrom
		if entry.Start0 < 0 {
			err = fmt.Errorf("interval.NewBEDUnionFromEntries: negative start coordinate")
			return
		}
		if (entry.End < entry.Start0) || (entry.End >= PosTypeMax) {
			err = fmt.Errorf("interval.NewBEDUnionFromEntries: invalid coordinate pair [%d, %d)", entry.Start0, entry.End)
			return
		}
		if prevChrom != curChrom {
			if prevChrom != "" {
				if prevEnd != -1 {
					chrIntervals = append(chrIntervals, prevStart, prevEnd)
				}
				if opts.Invert {
					chrIntervals = append(chrIntervals, PosTypeMax)
				}
				bedUnion.nameMap[prevChrom] = chrIntervals
			}
			prevChrom = curChrom
			if _, found := bedUnion.nameMap[prevChrom]; found {
				err = fmt.Errorf("interval.NewBEDUnionFromEntries: unsorted input (split chromosome %s)", curChrom)
				return
			}
			bedUnion.chromOrder = append(bedUnion.chromOrder, prevChrom)
			chrIntervals = []PosType{}
			if opts.Invert {
				chrIntervals = append(chrIntervals, -1)
			}
			if entry.End == entry.Start0 {
				prevStart = -1
				prevEnd = -1
				continue
			}
			prevStart = entry.Start0
			prevEnd = entry.End
			continue
		}
		if entry.End == entry.Start0 {
			continue
		}
		if entry.Start0 > prevEnd {
			if prevEnd != -1 {
				chrIntervals = append(chrIntervals, prevStart, prevEnd)
			}
			prevStart = entry.Start0
			prevEnd = entry.End
		} else {
			if entry.Start0 < prevStart {
				err = fmt.Errorf("interval.NewBEDUnionFromEntries: unsorted input")
				return
			}
			if entry.End > prevEnd {
				prevEnd = entry.End
			}
		}
	}
	if prevChrom != "" {
		if prevEnd != -1 {
			chrIntervals = append(chrIntervals, prevStart, prevEnd)
		}
		if opts.Invert {
			chrIntervals = append(chrIntervals, PosTypeMax)
		}
		bedUnion.nameMap[prevChrom] = chrIntervals
	}
	return
}

// Clone returns a new BEDUnion which shares the interval set, but has its own
// search state.  Use it to hand one loaded union to multiple goroutines.
func (u *BEDUnion) Clone() (bedUnion BEDUnion) {
	bedUnion.nameMap = u.nameMap
	bedUnion.chromOrder = u.chromOrder
	return
}
