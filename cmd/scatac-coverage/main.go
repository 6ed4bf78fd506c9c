// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

/*
scatac-coverage computes per-cluster fragment coverage tracks over genomic
regions from a tabix-indexed scATAC fragment file.
*/

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/scatac/cluster"
	"github.com/grailbio/scatac/coverage"
	"github.com/grailbio/scatac/encoding/fragments"
	"github.com/grailbio/scatac/interval"
	"github.com/grailbio/scatac/track"
)

var (
	bedPath        = flag.String("regions", "", "Input BED path; this xor -region required")
	region         = flag.String("region", "", "Restrict coverage to the specified region. Format as <contig ID>:<1-based first pos>-<last pos>, <contig ID>:<1-based pos>, or just <contig ID>; this xor -regions required")
	bedgraphPrefix = flag.String("bedgraph-prefix", "", "Output path prefix for per-cluster bedGraph tracks; this and/or -npy-prefix required")
	bgzfOut        = flag.Bool("bgzf", false, "BGZF-compress bedGraph outputs (appends .gz to their names)")
	chromSizesPath = flag.String("chrom-sizes", "", "UCSC-style chrom.sizes path; regions are clipped to chromosome ends. Required when a region has no explicit end")
	clustersPath   = flag.String("clusters", "", "Barcode-to-cluster assignment TSV path; required")
	correctBC      = flag.Bool("correct-barcodes", false, "Assign barcodes within one substitution of the assignment table when the matching cluster is unique")
	indexPath      = flag.String("index", "", "Input tabix index path. Defaults to fragments path + .tbi")
	npyPrefix      = flag.String("npy-prefix", "", "Output path prefix for coverage matrices in NumPy .npy form; this and/or -bedgraph-prefix required")
	pad            = flag.Int("pad", int(coverage.DefaultOpts.Pad), "Number of flanking positions added to each side of every region")
	parallelism    = flag.Int("parallelism", coverage.DefaultOpts.Parallelism, "Maximum number of simultaneous coverage jobs to launch; 0 = runtime.NumCPU()")
	precision      = flag.Int("precision", 0, "Digits after the decimal point in bedGraph values")
)

func coverageUsage() {
	fmt.Printf("Usage: %s [OPTIONS] fragments.tsv.gz\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

// regionPrefix disambiguates output names when more than one region was
// requested.
func regionPrefix(prefix string, m *coverage.Matrix, single bool) string {
	if single {
		return prefix
	}
	return fmt.Sprintf("%s.%s_%d_%d", prefix, m.Chrom, m.Start, m.End)
}

func main() {
	flag.Usage = coverageUsage
	shutdown := grail.Init()
	defer shutdown()

	allArgs := flag.Args()
	nPositionalArgs := flag.NArg()
	positionalArgs := allArgs[len(allArgs)-nPositionalArgs:]
	if nPositionalArgs != 1 {
		if nPositionalArgs < 1 {
			log.Fatalf("Missing positional argument (fragments path required); please check flag syntax: '%s'", strings.Join(positionalArgs, " "))
		} else {
			log.Fatalf("Too many positional arguments (only fragments path expected); please check flag syntax: '%s'", strings.Join(positionalArgs, " "))
		}
	}
	fragPath := positionalArgs[0]
	if *clustersPath == "" {
		log.Fatalf("-clusters is required")
	}
	if (*bedgraphPrefix == "") && (*npyPrefix == "") {
		log.Fatalf("No output requested; -bedgraph-prefix and/or -npy-prefix required")
	}
	if *pad < 0 {
		log.Fatalf("-pad must be nonnegative")
	}

	var err error
	var sizes interval.ChromSizes
	if *chromSizesPath != "" {
		if sizes, err = interval.ReadChromSizesFromPath(*chromSizesPath); err != nil {
			log.Panicf("%v", err)
		}
	}
	entries, err := coverage.ResolveRegions(*bedPath, *region, sizes)
	if err != nil {
		log.Panicf("%v", err)
	}
	clusters, err := cluster.Load(*clustersPath)
	if err != nil {
		log.Panicf("%v", err)
	}
	log.Printf("%d barcodes in %d clusters", clusters.Len(), clusters.NumClusters())
	var assign coverage.Assignment = clusters
	var corrector *cluster.Corrector
	if *correctBC {
		corrector = cluster.NewCorrector(clusters)
		assign = corrector
	}

	var reader *fragments.Reader
	if *indexPath == "" {
		reader, err = fragments.Open(fragPath)
	} else {
		reader, err = fragments.OpenWithIndex(fragPath, *indexPath)
	}
	if err != nil {
		log.Panicf("%v", err)
	}
	ctx := vcontext.Background()
	opts := coverage.Opts{
		Pad:         interval.PosType(*pad),
		Parallelism: *parallelism,
	}
	matrices, stats, err := coverage.Batch(ctx, reader, assign, entries, opts)
	if cerr := reader.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		log.Panicf("%v", err)
	}
	log.Printf("filled %d windows: %d records assigned, %d unassigned", len(matrices), stats.Assigned, stats.Unassigned)
	if corrector != nil {
		log.Printf("corrected %d barcode(s)", corrector.Corrected())
	}

	single := len(matrices) == 1
	for _, m := range matrices {
		if *bedgraphPrefix != "" {
			cores := make([][]float64, len(m.Data))
			for i := range m.Data {
				cores[i] = m.Core(i)
			}
			pfx := regionPrefix(*bedgraphPrefix, m, single)
			if _, err := track.WriteBedGraphFiles(ctx, pfx, track.SignalCoverage, m.Chrom, m.Start, m.Labels, cores, *precision, *bgzfOut); err != nil {
				log.Panicf("%v", err)
			}
		}
		if *npyPrefix != "" {
			pfx := regionPrefix(*npyPrefix, m, single)
			if _, err := track.WriteNpyFile(ctx, pfx, track.SignalCoverage, m.Data); err != nil {
				log.Panicf("%v", err)
			}
		}
	}
	if *npyPrefix != "" {
		if _, err := track.WriteClusterLabels(ctx, *npyPrefix, clusters.Labels()); err != nil {
			log.Panicf("%v", err)
		}
	}
	log.Debug.Printf("exiting")
}
