package cluster

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/pgzip"
)

func TestReadNumericLabels(t *testing.T) {
	m, err := Read(strings.NewReader(
		"# leiden clustering\n" +
			"AAAC-1\t2\n" +
			"AAAG-1\t0\n" +
			"AACA-1\t10\n" +
			"AACC-1\t1\n" +
			"AACG-1\t0\n"))
	assert.NoError(t, err)
	expect.EQ(t, m.Labels(), []string{"0", "1", "2", "10"})
	expect.EQ(t, m.NumClusters(), 4)
	expect.EQ(t, m.Len(), 5)

	i, found := m.Index("AAAC-1")
	expect.True(t, found)
	expect.EQ(t, i, 2)
	i, found = m.Index("AACA-1")
	expect.True(t, found)
	expect.EQ(t, i, 3)
	expect.EQ(t, m.Label(i), "10")
	_, found = m.Index("TTTT-1")
	expect.False(t, found)

	expect.EQ(t, m.Size(0), 2)
	expect.EQ(t, m.Size(1), 1)
	expect.EQ(t, m.Size(2), 1)
	expect.EQ(t, m.Size(3), 1)
}

func TestReadSeparators(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"csv", "barcode,cluster\nAAAC-1,0\nAAAG-1,1\n"},
		{"space", "AAAC-1 0\nAAAG-1 1\n"},
		{"tab", "cell\tcluster\nAAAC-1\t0\nAAAG-1\t1\n"},
	}
	for _, tt := range tests {
		m, err := Read(strings.NewReader(tt.body))
		assert.NoError(t, err, tt.name)
		expect.EQ(t, m.Len(), 2, tt.name)
		expect.EQ(t, m.Labels(), []string{"0", "1"}, tt.name)
	}
}

func TestReadLexicalLabels(t *testing.T) {
	m, err := Read(strings.NewReader(
		"AAAC-1\tB\n" +
			"AAAG-1\tA\n" +
			"AACA-1\tC10\n" +
			"AACC-1\tC2\n"))
	assert.NoError(t, err)
	expect.EQ(t, m.Labels(), []string{"A", "B", "C10", "C2"})
}

func TestReadHeader(t *testing.T) {
	m, err := Read(strings.NewReader(
		"barcode\tcluster\n" +
			"AAAC-1\t0\n" +
			"AAAG-1\t1\n"))
	assert.NoError(t, err)
	expect.EQ(t, m.Len(), 2)
	expect.EQ(t, m.Labels(), []string{"0", "1"})

	// A "barcode"-named row past the first data line is data, not a header.
	m, err = Read(strings.NewReader(
		"AAAC-1\t0\n" +
			"barcode\t1\n"))
	assert.NoError(t, err)
	expect.EQ(t, m.Len(), 2)
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader("AAAC-1\t0\nAAAC-1\t1\n"))
	expect.NotNil(t, err)
	_, err = Read(strings.NewReader("AAAC-1\n"))
	expect.NotNil(t, err)
	_, err = Read(strings.NewReader(""))
	expect.NotNil(t, err)
	_, err = Read(strings.NewReader("# only comments\n"))
	expect.NotNil(t, err)

	// Repeating an identical assignment is fine.
	m, err := Read(strings.NewReader("AAAC-1\t0\nAAAC-1\t0\n"))
	assert.NoError(t, err)
	expect.EQ(t, m.Len(), 1)
}

func TestLoad(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpDir)

	body := "AAAC-1\t0\nAAAG-1\t1\n"
	plainPath := filepath.Join(tmpDir, "clusters.tsv")
	assert.NoError(t, ioutil.WriteFile(plainPath, []byte(body), 0644))

	gzPath := filepath.Join(tmpDir, "clusters.tsv.gz")
	f, err := os.Create(gzPath)
	assert.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(body))
	assert.NoError(t, err)
	assert.NoError(t, gz.Close())
	assert.NoError(t, f.Close())

	for _, path := range []string{plainPath, gzPath} {
		m, err := Load(path)
		assert.NoError(t, err, path)
		expect.EQ(t, m.Len(), 2, path)
		expect.EQ(t, m.Labels(), []string{"0", "1"}, path)
	}
}
