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
scatac-denoise denoises per-cluster scATAC coverage with a pretrained
convolutional model and calls peaks on the result.
*/

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/scatac/cluster"
	"github.com/grailbio/scatac/coverage"
	"github.com/grailbio/scatac/denoise"
	"github.com/grailbio/scatac/encoding/fragments"
	"github.com/grailbio/scatac/interval"
	"github.com/grailbio/scatac/peak"
	"github.com/grailbio/scatac/track"
)

var (
	bedPath        = flag.String("regions", "", "Input BED path; this xor -region required")
	region         = flag.String("region", "", "Restrict denoising to the specified region. Format as <contig ID>:<1-based first pos>-<last pos>, <contig ID>:<1-based pos>, or just <contig ID>; this xor -regions required")
	bedgraphPrefix = flag.String("bedgraph-prefix", "", "Output path prefix for per-cluster denoised-signal and peak-probability bedGraph tracks")
	bgzfOut        = flag.Bool("bgzf", false, "BGZF-compress bedGraph outputs (appends .gz to their names)")
	blacklistPath  = flag.String("blacklist", "", "BED path of regions whose called peaks are discarded")
	chromSizesPath = flag.String("chrom-sizes", "", "UCSC-style chrom.sizes path; regions are clipped to chromosome ends. Required when a region has no explicit end")
	clustersPath   = flag.String("clusters", "", "Barcode-to-cluster assignment TSV path; required")
	correctBC      = flag.Bool("correct-barcodes", false, "Assign barcodes within one substitution of the assignment table when the matching cluster is unique")
	indexPath      = flag.String("index", "", "Input tabix index path. Defaults to fragments path + .tbi")
	intervalSize   = flag.Int("interval-size", denoise.DefaultOpts.IntervalSize, "Number of unpadded positions denoised per model invocation; longer regions must span exact multiples of this")
	modelPath      = flag.String("model", "", "Model weights path (NumPy .npz archive); required")
	npyPrefix      = flag.String("npy-prefix", "", "Output path prefix for denoised-signal and peak-probability matrices in NumPy .npy form")
	pad            = flag.Int("pad", int(coverage.DefaultOpts.Pad), "Number of flanking coverage positions the model sees on each side of every interval")
	parallelism    = flag.Int("parallelism", 0, "Maximum number of simultaneous coverage and inference jobs to launch; 0 = runtime.NumCPU()")
	peakMergeDist  = flag.Int("peak-merge-dist", peak.DefaultOpts.MergeDist, "Merge neighboring peaks separated by fewer than this many positions; 0 never merges")
	peakMinLen     = flag.Int("peak-min-len", peak.DefaultOpts.MinLen, "Drop peaks spanning fewer than this many positions")
	peaksPrefix    = flag.String("peaks-prefix", "", "Output path prefix for per-cluster peak BED files")
	peakThreshold  = flag.Float64("peak-threshold", peak.DefaultOpts.Threshold, "Minimum peak probability inside a called peak")
	precision      = flag.Int("precision", 3, "Digits after the decimal point in bedGraph values")
)

func denoiseUsage() {
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

func writePeaks(ctx context.Context, path string, peaks []peak.Peak) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return peak.WriteBED(out.Writer(ctx), peaks)
}

func main() {
	flag.Usage = denoiseUsage
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
	if *modelPath == "" {
		log.Fatalf("-model is required")
	}
	if (*bedgraphPrefix == "") && (*npyPrefix == "") && (*peaksPrefix == "") {
		log.Fatalf("No output requested; -bedgraph-prefix, -npy-prefix, and/or -peaks-prefix required")
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
	size := *intervalSize
	if size <= 0 {
		size = denoise.DefaultIntervalSize
	}
	for _, entry := range entries {
		if n := int(entry.End - entry.Start0); n > size && n%size != 0 {
			log.Fatalf("Region %s:%d-%d length %d is not a multiple of -interval-size %d", entry.Chrom, entry.Start0+1, entry.End, n, size)
		}
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
	net, err := denoise.LoadNet(*modelPath)
	if err != nil {
		log.Panicf("%v", err)
	}
	cfg := net.Config()
	log.Debug.Printf("model: %d channels, %d+%d blocks, kernels %d/%d, dilation %d",
		cfg.Channels, cfg.Blocks, cfg.BlocksClass, cfg.KernelSize, cfg.KernelSizeClass, cfg.Dilation)
	var blacklist *peak.Blacklist
	if *blacklistPath != "" {
		if blacklist, err = peak.LoadBlacklist(*blacklistPath); err != nil {
			log.Panicf("%v", err)
		}
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
	matrices, stats, err := coverage.Batch(ctx, reader, assign, entries, coverage.Opts{
		Pad:         interval.PosType(*pad),
		Parallelism: *parallelism,
	})
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

	dopts := denoise.Opts{
		IntervalSize: size,
		Parallelism:  *parallelism,
	}
	popts := peak.Opts{
		Threshold: *peakThreshold,
		MergeDist: *peakMergeDist,
		MinLen:    *peakMinLen,
	}
	single := len(matrices) == 1
	nPeaks := 0
	for _, m := range matrices {
		res, ierr := denoise.Infer(ctx, net, m, dopts)
		if ierr != nil {
			log.Panicf("%v", ierr)
		}
		if *bedgraphPrefix != "" {
			pfx := regionPrefix(*bedgraphPrefix, m, single)
			if _, err := track.WriteBedGraphFiles(ctx, pfx, track.SignalDenoised, res.Chrom, res.Start, res.Labels, res.Reg, *precision, *bgzfOut); err != nil {
				log.Panicf("%v", err)
			}
			if _, err := track.WriteBedGraphFiles(ctx, pfx, track.SignalClassification, res.Chrom, res.Start, res.Labels, res.Cla, *precision, *bgzfOut); err != nil {
				log.Panicf("%v", err)
			}
		}
		if *npyPrefix != "" {
			pfx := regionPrefix(*npyPrefix, m, single)
			if _, err := track.WriteNpyFile(ctx, pfx, track.SignalDenoised, res.Reg); err != nil {
				log.Panicf("%v", err)
			}
			if _, err := track.WriteNpyFile(ctx, pfx, track.SignalClassification, res.Cla); err != nil {
				log.Panicf("%v", err)
			}
		}
		if *peaksPrefix != "" {
			pfx := regionPrefix(*peaksPrefix, m, single)
			for i, label := range res.Labels {
				peaks := peak.Call(res.Chrom, res.Start, res.Cla[i], res.Reg[i], popts)
				peaks = blacklist.Filter(peaks)
				nPeaks += len(peaks)
				path := fmt.Sprintf("%s.cluster_%s.peaks.bed", pfx, label)
				if err := writePeaks(ctx, path, peaks); err != nil {
					log.Panicf("%v", err)
				}
			}
		}
	}
	if *npyPrefix != "" {
		if _, err := track.WriteClusterLabels(ctx, *npyPrefix, clusters.Labels()); err != nil {
			log.Panicf("%v", err)
		}
	}
	if *peaksPrefix != "" {
		log.Printf("called %d peaks", nPeaks)
	}
	log.Debug.Printf("exiting")
}
