package coverage

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/hts/bgzf"
	"github.com/grailbio/scatac/cluster"
	"github.com/grailbio/scatac/encoding/fragments"
	"github.com/grailbio/scatac/interval"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

var (
	_ Assignment = (*cluster.Map)(nil)
	_ Assignment = (*cluster.Corrector)(nil)
)

// writeIndexedFragments writes stacked fragment lines as a bgzf file with a
// matching single-bin tabix index.  All positions must stay within the first
// 16kb tile of their chromosome.
func writeIndexedFragments(t *testing.T, path string, names []string, chromLines [][]string) {
	var body bytes.Buffer
	offsets := make([]uint16, len(chromLines))
	for i, lines := range chromLines {
		offsets[i] = uint16(body.Len())
		for _, line := range lines {
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	total := uint16(body.Len())

	f, err := os.Create(path)
	assert.NoError(t, err)
	w := bgzf.NewWriter(f, 1)
	_, err = w.Write(body.Bytes())
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, f.Close())

	var idx bytes.Buffer
	le := binary.LittleEndian
	writeInt32 := func(v int32) {
		var b [4]byte
		le.PutUint32(b[:], uint32(v))
		idx.Write(b[:])
	}
	writeUint64 := func(v uint64) {
		var b [8]byte
		le.PutUint64(b[:], v)
		idx.Write(b[:])
	}
	idx.WriteString("TBI\x01")
	writeInt32(int32(len(names)))
	writeInt32(0x10000)
	writeInt32(1)
	writeInt32(2)
	writeInt32(3)
	writeInt32('#')
	writeInt32(0)
	nameBytes := 0
	for _, name := range names {
		nameBytes += len(name) + 1
	}
	writeInt32(int32(nameBytes))
	for _, name := range names {
		idx.WriteString(name)
		idx.WriteByte(0)
	}
	for i := range names {
		writeInt32(1)
		writeInt32(4681)
		writeInt32(1)
		writeUint64(uint64(offsets[i]))
		writeUint64(uint64(total))
		writeInt32(1)
		writeUint64(uint64(offsets[i]))
	}

	fi, err := os.Create(path + ".tbi")
	assert.NoError(t, err)
	wi := bgzf.NewWriter(fi, 1)
	_, err = wi.Write(idx.Bytes())
	assert.NoError(t, err)
	assert.NoError(t, wi.Close())
	assert.NoError(t, fi.Close())
}

func testFixture(t *testing.T, tmpDir string) (*fragments.Reader, *cluster.Map) {
	path := filepath.Join(tmpDir, "frags.tsv.gz")
	writeIndexedFragments(t, path,
		[]string{"chr1", "chr2"},
		[][]string{
			{
				"chr1\t100\t200\tAAAC-1\t1",
				"chr1\t150\t250\tAAAG-1\t2",
				"chr1\t300\t400\tAAAC-1\t1",
				"chr1\t5000\t5100\tTTTG-1\t3",
			},
			{
				"chr2\t10\t20\tAAAC-1\t1",
			},
		})
	r, err := fragments.Open(path)
	assert.NoError(t, err)

	clusters, err := cluster.Read(strings.NewReader(
		"AAAC-1\t0\nAAAG-1\t1\nCCCC-1\t2\n"))
	assert.NoError(t, err)
	return r, clusters
}

func sumRow(row []float64) float64 {
	var s float64
	for _, v := range row {
		s += v
	}
	return s
}

func TestWindow(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	r, clusters := testFixture(t, tmpDir)
	defer func() {
		assert.NoError(t, r.Close())
	}()

	m, stats, err := Window(r, clusters, interval.Entry{Chrom: "chr1", Start0: 150, End: 350}, 50)
	assert.NoError(t, err)
	expect.EQ(t, stats, Stats{Assigned: 3, Unassigned: 0})
	expect.EQ(t, m.Labels, []string{"0", "1", "2"})
	expect.EQ(t, len(m.Data), 3)
	expect.EQ(t, m.WindowLen(), 300)
	expect.EQ(t, len(m.Data[0]), 300)

	// Cluster 0: [100,200) fills offsets [0,100), [300,400) fills [200,300).
	expect.EQ(t, m.Data[0][0], 1.0)
	expect.EQ(t, m.Data[0][99], 1.0)
	expect.EQ(t, m.Data[0][100], 0.0)
	expect.EQ(t, m.Data[0][199], 0.0)
	expect.EQ(t, m.Data[0][200], 1.0)
	expect.EQ(t, m.Data[0][299], 1.0)
	expect.EQ(t, sumRow(m.Data[0]), 200.0)

	// Cluster 1: [150,250) fills offsets [50,150).
	expect.EQ(t, m.Data[1][49], 0.0)
	expect.EQ(t, m.Data[1][50], 1.0)
	expect.EQ(t, m.Data[1][149], 1.0)
	expect.EQ(t, m.Data[1][150], 0.0)
	expect.EQ(t, sumRow(m.Data[1]), 100.0)

	// Cluster 2 had no fragments but still gets a row.
	expect.EQ(t, sumRow(m.Data[2]), 0.0)

	// The core view drops the pads.
	core := m.Core(0)
	expect.EQ(t, len(core), 200)
	expect.EQ(t, core[0], m.Data[0][50])

	// A window over the unassigned-barcode fragment counts it without
	// contributing coverage.
	m, stats, err = Window(r, clusters, interval.Entry{Chrom: "chr1", Start0: 4900, End: 5200}, 0)
	assert.NoError(t, err)
	expect.EQ(t, stats, Stats{Assigned: 0, Unassigned: 1})
	expect.EQ(t, sumRow(m.Data[0])+sumRow(m.Data[1])+sumRow(m.Data[2]), 0.0)
}

func TestWindowBoundaries(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	r, clusters := testFixture(t, tmpDir)
	defer func() {
		assert.NoError(t, r.Close())
	}()

	// Fragment ends touching the window boundaries do not overlap.
	m, stats, err := Window(r, clusters, interval.Entry{Chrom: "chr1", Start0: 250, End: 300}, 0)
	assert.NoError(t, err)
	expect.EQ(t, stats, Stats{})
	expect.EQ(t, sumRow(m.Data[0])+sumRow(m.Data[1])+sumRow(m.Data[2]), 0.0)

	// A pad reaching past the chromosome start leaves the leading positions
	// zero.
	m, _, err = Window(r, clusters, interval.Entry{Chrom: "chr1", Start0: 100, End: 200}, 150)
	assert.NoError(t, err)
	expect.EQ(t, m.WindowLen(), 400)
	expect.EQ(t, sumRow(m.Data[0][:150]), 0.0)
	expect.EQ(t, m.Data[0][150], 1.0)
	expect.EQ(t, m.Data[0][249], 1.0)
	expect.EQ(t, m.Data[0][250], 0.0)
	// The overlapping [150,250) fragment runs into the right pad.
	expect.EQ(t, m.Data[1][200], 1.0)
	expect.EQ(t, m.Data[1][299], 1.0)
	expect.EQ(t, m.Data[1][300], 0.0)
	// [300,400) overlaps only the pad, and still contributes there.
	expect.EQ(t, m.Data[0][350], 1.0)
	expect.EQ(t, m.Data[0][399], 1.0)
	expect.EQ(t, sumRow(m.Data[0]), 150.0)

	// Unknown chromosome: all-zero matrix, no error.
	m, stats, err = Window(r, clusters, interval.Entry{Chrom: "chrM", Start0: 0, End: 100}, 0)
	assert.NoError(t, err)
	expect.EQ(t, stats, Stats{})
	expect.EQ(t, m.WindowLen(), 100)

	// Invalid arguments.
	_, _, err = Window(r, clusters, interval.Entry{Chrom: "chr1", Start0: 100, End: 100}, 0)
	expect.NotNil(t, err)
	_, _, err = Window(r, clusters, interval.Entry{Chrom: "chr1", Start0: 100, End: 200}, -1)
	expect.NotNil(t, err)
}

func TestWindowCorrected(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	path := filepath.Join(tmpDir, "frags.tsv.gz")
	writeIndexedFragments(t, path,
		[]string{"chr1"},
		[][]string{{
			"chr1\t100\t200\tAAAC-1\t1",
			"chr1\t100\t200\tAAAT-1\t1",
			"chr1\t100\t200\tTTTT-1\t1",
		}})
	r, err := fragments.Open(path)
	assert.NoError(t, err)
	defer func() {
		assert.NoError(t, r.Close())
	}()
	clusters, err := cluster.Read(strings.NewReader("AAAC-1\t0\n"))
	assert.NoError(t, err)
	entry := interval.Entry{Chrom: "chr1", Start0: 100, End: 200}

	// Without correction only the exact barcode counts.
	m, stats, err := Window(r, clusters, entry, 0)
	assert.NoError(t, err)
	expect.EQ(t, stats, Stats{Assigned: 1, Unassigned: 2})
	expect.EQ(t, m.Data[0][0], 1.0)

	// AAAT-1 is one substitution from AAAC-1; TTTT-1 stays unassigned.
	corrector := cluster.NewCorrector(clusters)
	m, stats, err = Window(r, corrector, entry, 0)
	assert.NoError(t, err)
	expect.EQ(t, stats, Stats{Assigned: 2, Unassigned: 1})
	expect.EQ(t, m.Data[0][0], 2.0)
	expect.EQ(t, corrector.Corrected(), int64(1))
}

func TestBatch(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)
	r, clusters := testFixture(t, tmpDir)
	defer func() {
		assert.NoError(t, r.Close())
	}()

	entries := []interval.Entry{
		{Chrom: "chr1", Start0: 150, End: 350},
		{Chrom: "chr1", Start0: 100, End: 200},
		{Chrom: "chr2", Start0: 10, End: 20},
	}
	opts := Opts{Pad: 50, Parallelism: 2}
	results, stats, err := Batch(context.Background(), r, clusters, entries, opts)
	assert.NoError(t, err)
	expect.EQ(t, len(results), 3)

	var wantStats Stats
	for i, entry := range entries {
		want, ws, werr := Window(r, clusters, entry, opts.Pad)
		assert.NoError(t, werr)
		wantStats.Assigned += ws.Assigned
		wantStats.Unassigned += ws.Unassigned
		expect.EQ(t, results[i].Chrom, want.Chrom)
		expect.EQ(t, results[i].Start, want.Start)
		expect.EQ(t, results[i].Data, want.Data)
	}
	expect.EQ(t, stats, wantStats)

	// chr2 fragment [10,20) lands at offsets [50,60) of the padded window.
	expect.EQ(t, results[2].Data[0][50], 1.0)
	expect.EQ(t, results[2].Data[0][59], 1.0)
	expect.EQ(t, sumRow(results[2].Data[0]), 10.0)

	empty, _, err := Batch(context.Background(), r, clusters, nil, opts)
	assert.NoError(t, err)
	expect.EQ(t, len(empty), 0)
}
