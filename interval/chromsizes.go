package interval

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

// ChromSizes stores chromosome lengths, as parsed from a UCSC-style
// chrom.sizes file (two columns: name, length).
type ChromSizes map[string]PosType

// ReadChromSizes parses a two-column chrom.sizes stream.  Columns past the
// second are ignored, so samtools faidx .fai output works too.  Blank lines
// are skipped; duplicate chromosome names are errors.
func ReadChromSizes(reader io.Reader) (sizes ChromSizes, err error) {
	sizes = make(ChromSizes)
	scanner := bufio.NewScanner(reader)
	var tokens [2][]byte
	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		nToken := getTokens(tokens[:], scanner.Bytes())
		if nToken == 0 {
			continue
		}
		if nToken != 2 {
			err = fmt.Errorf("interval.ReadChromSizes: line %d has fewer tokens than expected", lineIdx)
			return
		}
		var size int
		if size, err = strconv.Atoi(gunsafe.BytesToString(tokens[1])); err != nil {
			return
		}
		if (size <= 0) || (size >= PosTypeMax) {
			err = fmt.Errorf("interval.ReadChromSizes: invalid length %d on line %d", size, lineIdx)
			return
		}
		chrom := string(tokens[0])
		if _, found := sizes[chrom]; found {
			err = fmt.Errorf("interval.ReadChromSizes: duplicate chromosome %s on line %d", chrom, lineIdx)
			return
		}
		sizes[chrom] = PosType(size)
	}
	err = scanner.Err()
	return
}

// ReadChromSizesFromPath is a wrapper for ReadChromSizes that takes a path
// instead of an io.Reader.
func ReadChromSizesFromPath(path string) (sizes ChromSizes, err error) {
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
	return ReadChromSizes(reader)
}

// Clip truncates entry to the recorded chromosome length, returning an error
// when the chromosome is absent or the entry starts past its end.
func (s ChromSizes) Clip(entry Entry) (Entry, error) {
	size, found := s[entry.Chrom]
	if !found {
		return Entry{}, fmt.Errorf("interval.ChromSizes.Clip: unknown chromosome %s", entry.Chrom)
	}
	if entry.Start0 >= size {
		return Entry{}, fmt.Errorf("interval.ChromSizes.Clip: %s:%d-%d starts past chromosome end %d", entry.Chrom, entry.Start0+1, entry.End, size)
	}
	if entry.End > size {
		entry.End = size
	}
	return entry, nil
}
