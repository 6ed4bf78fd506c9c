package fragments

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/dsnet/compress/bzip2"
	"github.com/grailbio/base/tsv"
	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
)

// ScanPath streams every record in the fragment file at path through fn,
// stopping at the first error.  Unlike Reader, this requires no index and
// accepts plain, gzip/bgzip, or bzip2 compression (detected by extension).
// Comment lines starting with '#' are skipped.
func ScanPath(path string, fn func(rec *Record) error) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	var reader io.Reader = f
	switch filepath.Ext(path) {
	case ".gz", ".bgz":
		gz, gerr := pgzip.NewReader(f)
		if gerr != nil {
			return gerr
		}
		defer func() {
			if cerr := gz.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		reader = gz
	case ".bz2":
		bz, berr := bzip2.NewReader(f, new(bzip2.ReaderConfig))
		if berr != nil {
			return berr
		}
		defer func() {
			if cerr := bz.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		reader = bz
	}
	scanner := bufio.NewScanner(reader)
	var rec Record
	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		line := scanner.Bytes()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if err = ParseRecord(line, &rec); err != nil {
			return errors.Wrapf(err, "%s: line %d", path, lineIdx)
		}
		if err = fn(&rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// BarcodeCount pairs a cell barcode with its fragment-record count.
type BarcodeCount struct {
	Barcode string
	N       int64
}

// BarcodeCounts scans the fragment file at path and returns per-barcode
// record counts, ordered by decreasing count, ties broken by barcode.  Each
// record line contributes 1 regardless of its duplicate-count column.
func BarcodeCounts(path string) ([]BarcodeCount, error) {
	counts := make(map[string]int64)
	err := ScanPath(path, func(rec *Record) error {
		counts[rec.Barcode]++
		return nil
	})
	if err != nil {
		return nil, err
	}
	result := make([]BarcodeCount, 0, len(counts))
	for barcode, n := range counts {
		result = append(result, BarcodeCount{Barcode: barcode, N: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].N != result[j].N {
			return result[i].N > result[j].N
		}
		return result[i].Barcode < result[j].Barcode
	})
	return result, nil
}

// WriteBarcodeCounts writes counts as two-column TSV (barcode, count).
func WriteBarcodeCounts(w io.Writer, counts []BarcodeCount) error {
	outTSV := tsv.NewWriter(w)
	for _, bc := range counts {
		outTSV.WriteString(bc.Barcode)
		outTSV.WriteString(strconv.FormatInt(bc.N, 10))
		if err := outTSV.EndLine(); err != nil {
			return err
		}
	}
	return outTSV.Flush()
}
