// Package fragments contains code for reading single-cell ATAC-seq fragment
// files.  See https://support.10xgenomics.com/single-cell-atac/software/pipelines/latest/output/fragments
// for a description of the format.  Briefly, a fragment file is a
// bgzip-compressed, tab-separated text file with one sequenced fragment per
// line:
//
//	chr1	10073	10198	AAACGAAAGCGCAATG-1	1
//
// Columns are chromosome, 0-based start, end, cell barcode, and an optional
// duplicate count.  Lines are sorted by chromosome and start position, and
// the file is usually accompanied by a tabix index (.tbi) permitting random
// access by genomic interval.
package fragments

import (
	"strconv"

	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/scatac/interval"
	"github.com/pkg/errors"
)

// PosType is the coordinate type used for fragment bounds.
type PosType = interval.PosType

// Record represents a single fragment-file line.
type Record struct {
	// Chrom is the chromosome name.
	Chrom string
	// Start is the 0-based position of the first base of the fragment.
	Start PosType
	// End is 1 past the 0-based position of the last base.
	End PosType
	// Barcode identifies the cell the fragment was sequenced from.
	Barcode string
	// Count is the duplicate count from the optional fifth column, or 1
	// when the column is absent.
	Count int
}

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.  (Same contract as the interval-BED scanner's
// tokenizer; these loops beat the standard library splitters at this column
// count.)
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
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

// ParseRecord parses a single fragment-file line into *rec.  The fifth
// (duplicate count) column is optional; any columns past it are ignored.
func ParseRecord(line []byte, rec *Record) error {
	var tokens [5][]byte
	nToken := getTokens(tokens[:], line)
	if nToken < 4 {
		return errors.Errorf("fragments.ParseRecord: %d column(s), expected at least 4", nToken)
	}
	start, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
	if err != nil {
		return errors.Wrap(err, "fragments.ParseRecord: invalid start")
	}
	end, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
	if err != nil {
		return errors.Wrap(err, "fragments.ParseRecord: invalid end")
	}
	if start < 0 || end < start || end >= interval.PosTypeMax {
		return errors.Errorf("fragments.ParseRecord: invalid coordinate pair [%d, %d)", start, end)
	}
	count := 1
	if nToken == 5 {
		if count, err = strconv.Atoi(gunsafe.BytesToString(tokens[4])); err != nil {
			return errors.Wrap(err, "fragments.ParseRecord: invalid duplicate count")
		}
		if count < 0 {
			return errors.Errorf("fragments.ParseRecord: negative duplicate count %d", count)
		}
	}
	rec.Chrom = string(tokens[0])
	rec.Start = PosType(start)
	rec.End = PosType(end)
	rec.Barcode = string(tokens[3])
	rec.Count = count
	return nil
}
