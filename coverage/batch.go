package coverage

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/grailbio/base/traverse"
	"github.com/grailbio/scatac/encoding/fragments"
	"github.com/grailbio/scatac/interval"
)

// Opts defines optional Batch behavior.
type Opts struct {
	// Pad is the number of flanking positions added to each side of every
	// window.
	Pad PosType
	// Parallelism is the number of concurrent worker jobs.  0 = NumCPU.
	Parallelism int
}

// DefaultOpts contains default values for Opts.
var DefaultOpts = Opts{
	Pad:         0,
	Parallelism: 0,
}

// Batch computes coverage matrices for a set of regions, in parallel.
// results[i] corresponds to entries[i] regardless of scheduling.  The given
// Reader is only used as a clone source; each worker queries through its own
// clone.
func Batch(ctx context.Context, r *fragments.Reader, clusters Assignment, entries []interval.Entry, opts Opts) ([]*Matrix, Stats, error) {
	var stats Stats
	if len(entries) == 0 {
		return nil, stats, nil
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > len(entries) {
		parallelism = len(entries)
	}
	results := make([]*Matrix, len(entries))
	err := traverse.Each(parallelism, func(jobIdx int) (err error) {
		startIdx := (jobIdx * len(entries)) / parallelism
		endIdx := ((jobIdx + 1) * len(entries)) / parallelism
		var rj *fragments.Reader
		if rj, err = r.Clone(); err != nil {
			return
		}
		defer func() {
			if cerr := rj.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		for i := startIdx; i < endIdx; i++ {
			if err = ctx.Err(); err != nil {
				return
			}
			m, wstats, werr := Window(rj, clusters, entries[i], opts.Pad)
			if werr != nil {
				return werr
			}
			results[i] = m
			atomic.AddInt64(&stats.Assigned, wstats.Assigned)
			atomic.AddInt64(&stats.Unassigned, wstats.Unassigned)
		}
		return
	})
	if err != nil {
		return nil, stats, err
	}
	return results, stats, nil
}
