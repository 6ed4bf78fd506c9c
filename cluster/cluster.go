// Package cluster maps cell barcodes to cluster labels.  Assignments are
// loaded from two-column (barcode, label) tables as exported by single-cell
// clustering pipelines; tab, comma, and whitespace separators are all
// accepted.  Labels are free-form strings, most often the small integers
// produced by graph-based community detection.
package cluster

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/pkg/errors"
)

// Map is an immutable barcode -> cluster assignment table.
type Map struct {
	// byBarcode maps each barcode to an index into labels.
	byBarcode map[string]int
	// labels holds the distinct cluster labels in canonical order: ascending
	// integer order when every label parses as a base-10 integer, lexical
	// order otherwise.
	labels []string
	// sizes[i] is the number of barcodes assigned to labels[i].
	sizes []int
}

// headerNames are first-column values recognized as a header line.
var headerNames = map[string]bool{
	"barcode": true,
	"cell":    true,
	"cell_id": true,
	"cellid":  true,
}

// splitFields picks the column separator from the first nonempty line: tab
// when one is present, comma otherwise, else runs of whitespace.
func splitFields(line string) func(string) []string {
	switch {
	case strings.ContainsRune(line, '\t'):
		return func(s string) []string { return strings.Split(s, "\t") }
	case strings.ContainsRune(line, ','):
		return func(s string) []string { return strings.Split(s, ",") }
	default:
		return strings.Fields
	}
}

// Read parses a two-column (barcode, label) stream.  The separator is
// sniffed from the first line (tab, comma, or whitespace).  A first line
// that looks like a header (barcode/cell in column 1, or "cluster" in
// column 2) is skipped, as are blank lines and '#' comments.  Repeating a
// barcode with the same label is permitted; conflicting assignments are an
// error.
func Read(r io.Reader) (*Map, error) {
	assignments := make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineIdx := 0
	sawData := false
	var split func(string) []string
	for scanner.Scan() {
		lineIdx++
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if split == nil {
			split = splitFields(line)
		}
		fields := split(line)
		if len(fields) < 2 {
			return nil, errors.Errorf("cluster.Read: line %d: expected 2 columns", lineIdx)
		}
		barcode := strings.TrimSpace(fields[0])
		label := strings.TrimSpace(fields[1])
		if !sawData && (headerNames[strings.ToLower(barcode)] || strings.EqualFold(label, "cluster")) {
			continue
		}
		sawData = true
		if barcode == "" || label == "" {
			return nil, errors.Errorf("cluster.Read: line %d: empty barcode or label", lineIdx)
		}
		if prev, found := assignments[barcode]; found {
			if prev != label {
				return nil, errors.Errorf("cluster.Read: line %d: barcode %s assigned to both %s and %s", lineIdx, barcode, prev, label)
			}
			continue
		}
		assignments[barcode] = label
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return nil, errors.New("cluster.Read: no assignments found")
	}
	return newMap(assignments), nil
}

func newMap(assignments map[string]string) *Map {
	labelSet := make(map[string]struct{})
	for _, label := range assignments {
		labelSet[label] = struct{}{}
	}
	labels := make([]string, 0, len(labelSet))
	for label := range labelSet {
		labels = append(labels, label)
	}
	sortLabels(labels)
	labelIdx := make(map[string]int, len(labels))
	for i, label := range labels {
		labelIdx[label] = i
	}
	byBarcode := make(map[string]int, len(assignments))
	sizes := make([]int, len(labels))
	for barcode, label := range assignments {
		i := labelIdx[label]
		byBarcode[barcode] = i
		sizes[i]++
	}
	return &Map{byBarcode: byBarcode, labels: labels, sizes: sizes}
}

// sortLabels orders labels numerically when they all parse as integers,
// lexically otherwise.
func sortLabels(labels []string) {
	values := make([]int64, len(labels))
	numeric := true
	for i, label := range labels {
		v, err := strconv.ParseInt(label, 10, 64)
		if err != nil {
			numeric = false
			break
		}
		values[i] = v
	}
	if !numeric {
		sort.Strings(labels)
		return
	}
	sort.Sort(&byValue{labels: labels, values: values})
}

type byValue struct {
	labels []string
	values []int64
}

func (s *byValue) Len() int { return len(s.labels) }
func (s *byValue) Less(i, j int) bool {
	if s.values[i] != s.values[j] {
		return s.values[i] < s.values[j]
	}
	return s.labels[i] < s.labels[j]
}
func (s *byValue) Swap(i, j int) {
	s.labels[i], s.labels[j] = s.labels[j], s.labels[i]
	s.values[i], s.values[j] = s.values[j], s.values[i]
}

// Load reads a cluster table from path.  Compressed files are detected by
// content.
func Load(path string) (m *Map, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if e := infile.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	reader, _ := compress.NewReader(infile.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if m, err = Read(reader); err != nil {
		err = errors.Wrapf(err, "loading %s", path)
	}
	return
}

// Labels returns the distinct cluster labels in canonical order.  The
// returned slice is shared; callers must not modify it.
func (m *Map) Labels() []string {
	return m.labels
}

// Label returns the i-th cluster label.
func (m *Map) Label(i int) string {
	return m.labels[i]
}

// NumClusters returns the number of distinct cluster labels.
func (m *Map) NumClusters() int {
	return len(m.labels)
}

// Len returns the number of assigned barcodes.
func (m *Map) Len() int {
	return len(m.byBarcode)
}

// Size returns the number of barcodes assigned to the i-th cluster.
func (m *Map) Size(i int) int {
	return m.sizes[i]
}

// Index returns the cluster index (into Labels()) for barcode.
func (m *Map) Index(barcode string) (int, bool) {
	i, found := m.byBarcode[barcode]
	return i, found
}
