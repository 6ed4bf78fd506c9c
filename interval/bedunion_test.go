package interval

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const testBED = `chr1	100	200
chr1	200	300
chr1	400	500
chr2	0	10
chrX	1000	1001
`

func TestBEDUnionBasic(t *testing.T) {
	u, err := NewBEDUnion(strings.NewReader(testBED), NewBEDOpts{})
	assert.NoError(t, err)

	// Touching intervals merge.
	expect.EQ(t, u.Entries(), []Entry{
		{Chrom: "chr1", Start0: 100, End: 300},
		{Chrom: "chr1", Start0: 400, End: 500},
		{Chrom: "chr2", Start0: 0, End: 10},
		{Chrom: "chrX", Start0: 1000, End: 1001},
	})
	expect.EQ(t, u.Chroms(), []string{"chr1", "chr2", "chrX"})
	expect.EQ(t, u.TotalBases(), int64(200+100+10+1))

	expect.False(t, u.Contains("chr1", 99))
	expect.True(t, u.Contains("chr1", 100))
	expect.True(t, u.Contains("chr1", 299))
	expect.False(t, u.Contains("chr1", 300))
	expect.True(t, u.Contains("chr1", 400))
	expect.False(t, u.Contains("chr1", 500))
	expect.False(t, u.Contains("chr3", 100))
	expect.True(t, u.Contains("chr2", 0))

	expect.True(t, u.Intersects("chr1", 0, 101))
	expect.False(t, u.Intersects("chr1", 0, 100))
	expect.True(t, u.Intersects("chr1", 299, 400))
	expect.False(t, u.Intersects("chr1", 300, 400))
	expect.True(t, u.Intersects("chr1", 250, 450))
	expect.False(t, u.Intersects("chr3", 0, 1000))
}

func TestBEDUnionOverlap(t *testing.T) {
	u, err := NewBEDUnion(strings.NewReader(testBED), NewBEDOpts{})
	assert.NoError(t, err)

	// Fully covered query.
	expect.EQ(t, u.Overlap("chr1", 150, 250), []PosType{150, 250})
	// Query spanning two intervals, clipped on both sides.
	expect.EQ(t, u.Overlap("chr1", 250, 450), []PosType{250, 300, 400, 450})
	// Query containing an interval.
	expect.EQ(t, u.Overlap("chr1", 350, 600), []PosType{400, 500})
	// No overlap.
	if got := u.Overlap("chr1", 300, 400); got != nil {
		t.Errorf("expected nil overlap, got %v", got)
	}
	if got := u.Overlap("chr3", 0, 100); got != nil {
		t.Errorf("expected nil overlap for absent chromosome, got %v", got)
	}
}

func TestBEDUnionInvert(t *testing.T) {
	u, err := NewBEDUnion(strings.NewReader("chr1\t100\t200\n"), NewBEDOpts{Invert: true})
	assert.NoError(t, err)
	expect.True(t, u.Contains("chr1", 0))
	expect.True(t, u.Contains("chr1", 99))
	expect.False(t, u.Contains("chr1", 100))
	expect.False(t, u.Contains("chr1", 199))
	expect.True(t, u.Contains("chr1", 200))
	expect.True(t, u.Contains("chr1", 1000000))
	expect.False(t, u.Contains("chr2", 0))
}

func TestBEDUnionOneBased(t *testing.T) {
	u, err := NewBEDUnion(strings.NewReader("chr1\t101\t200\n"), NewBEDOpts{OneBasedInput: true})
	assert.NoError(t, err)
	expect.EQ(t, u.Entries(), []Entry{{Chrom: "chr1", Start0: 100, End: 200}})
}

func TestBEDUnionErrors(t *testing.T) {
	_, err := NewBEDUnion(strings.NewReader("chr1\t200\t100\n"), NewBEDOpts{})
	expect.NotNil(t, err)
	_, err = NewBEDUnion(strings.NewReader("chr1\t300\t400\nchr1\t100\t200\n"), NewBEDOpts{})
	expect.NotNil(t, err)
	_, err = NewBEDUnion(strings.NewReader("chr1\t1\t2\nchr2\t1\t2\nchr1\t5\t6\n"), NewBEDOpts{})
	expect.NotNil(t, err)
	_, err = NewBEDUnion(strings.NewReader("chr1\t100\n"), NewBEDOpts{})
	expect.NotNil(t, err)
}

func TestNewBEDUnionFromEntries(t *testing.T) {
	u, err := NewBEDUnionFromEntries([]Entry{
		{Chrom: "chr1", Start0: 10, End: 20},
		{Chrom: "chr1", Start0: 15, End: 30},
		{Chrom: "chr1", Start0: 40, End: 50},
		{Chrom: "chr2", Start0: 5, End: 6},
	}, NewBEDOpts{})
	assert.NoError(t, err)
	expect.EQ(t, u.Entries(), []Entry{
		{Chrom: "chr1", Start0: 10, End: 30},
		{Chrom: "chr1", Start0: 40, End: 50},
		{Chrom: "chr2", Start0: 5, End: 6},
	})
}

// containsLinear is a simple comparator for the search-based Contains.
func containsLinear(entries []Entry, chrom string, pos PosType) bool {
	for _, e := range entries {
		if e.Chrom == chrom && pos >= e.Start0 && pos < e.End {
			return true
		}
	}
	return false
}

func TestBEDUnionContainsRandom(t *testing.T) {
	rand.Seed(1)
	for iter := 0; iter < 20; iter++ {
		var entries []Entry
		pos := PosType(0)
		for i := 0; i < 1+rand.Intn(30); i++ {
			pos += PosType(1 + rand.Intn(100))
			start := pos
			pos += PosType(1 + rand.Intn(100))
			entries = append(entries, Entry{Chrom: "chr1", Start0: start, End: pos})
		}
		u, err := NewBEDUnionFromEntries(entries, NewBEDOpts{})
		assert.NoError(t, err)
		maxPos := int(pos) + 100
		// Sequential queries exercise the forward-search path.
		for p := 0; p < maxPos; p++ {
			if u.Contains("chr1", PosType(p)) != containsLinear(entries, "chr1", PosType(p)) {
				t.Fatalf("iter %d: Contains(chr1, %d) mismatch (sequential)", iter, p)
			}
		}
		// Random queries exercise the binary-search path.
		for i := 0; i < 200; i++ {
			p := PosType(rand.Intn(maxPos))
			if u.Contains("chr1", p) != containsLinear(entries, "chr1", p) {
				t.Fatalf("iter %d: Contains(chr1, %d) mismatch (random)", iter, p)
			}
		}
	}
}

func TestBEDUnionClone(t *testing.T) {
	u, err := NewBEDUnion(strings.NewReader(testBED), NewBEDOpts{})
	assert.NoError(t, err)
	expect.True(t, u.Contains("chr1", 150))
	v := u.Clone()
	expect.True(t, v.Contains("chr2", 5))
	expect.True(t, u.Contains("chr1", 151))
	expect.EQ(t, v.Entries(), u.Entries())
}

func TestParseRegionString(t *testing.T) {
	tests := []struct {
		region string
		want   Entry
		wantOK bool
	}{
		{"chr1:1-1000", Entry{Chrom: "chr1", Start0: 0, End: 1000}, true},
		{"chr1:500", Entry{Chrom: "chr1", Start0: 499, End: 500}, true},
		{"chr1", Entry{Chrom: "chr1", Start0: 0, End: PosTypeMax - 1}, true},
		{"chrX:10-10", Entry{Chrom: "chrX", Start0: 9, End: 10}, true},
		{"chr1:0-1000", Entry{}, false},
		{"chr1:1000-10", Entry{}, false},
		{":100-200", Entry{}, false},
		{"", Entry{}, false},
		{"chr1:x-200", Entry{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.region, func(t *testing.T) {
			got, err := ParseRegionString(tt.region)
			if !tt.wantOK {
				expect.NotNil(t, err, "region %q", tt.region)
				return
			}
			assert.NoError(t, err)
			expect.EQ(t, got, tt.want)
		})
	}
}
