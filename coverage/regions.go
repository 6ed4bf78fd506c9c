package coverage

import (
	"fmt"

	"github.com/grailbio/scatac/interval"
)

// ResolveRegions turns the usual -regions/-region command flag pair into a
// region list.  Exactly one of bedPath and region may be nonempty.  When
// sizes is non-nil every region is clipped to its chromosome length;
// otherwise regions without an explicit end are rejected.
func ResolveRegions(bedPath, region string, sizes interval.ChromSizes) ([]interval.Entry, error) {
	if (bedPath != "") && (region != "") {
		return nil, fmt.Errorf("coverage.ResolveRegions: -regions and -region flags can't be used together")
	}
	var entries []interval.Entry
	if bedPath != "" {
		union, err := interval.NewBEDUnionFromPath(bedPath, interval.NewBEDOpts{})
		if err != nil {
			return nil, err
		}
		entries = union.Entries()
		if len(entries) == 0 {
			return nil, fmt.Errorf("coverage.ResolveRegions: no regions in %s", bedPath)
		}
	} else if region != "" {
		entry, err := interval.ParseRegionString(region)
		if err != nil {
			return nil, err
		}
		entries = []interval.Entry{entry}
	} else {
		return nil, fmt.Errorf("coverage.ResolveRegions: either -regions or -region is required")
	}
	for i, entry := range entries {
		if sizes != nil {
			clipped, err := sizes.Clip(entry)
			if err != nil {
				return nil, err
			}
			entries[i] = clipped
		} else if entry.End == interval.PosTypeMax-1 {
			return nil, fmt.Errorf("coverage.ResolveRegions: region %s has no explicit end and no chrom.sizes table was given", entry.Chrom)
		}
	}
	return entries, nil
}
