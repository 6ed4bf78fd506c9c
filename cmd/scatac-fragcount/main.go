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
scatac-fragcount reports the number of fragment records per cell barcode in
a scATAC fragment file.
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
	"github.com/grailbio/scatac/encoding/fragments"
)

var (
	inputPath  = flag.String("i", "", "Input fragment file path; plain, gzip, or bzip2 text accepted. Required")
	outputPath = flag.String("o", "", "Output TSV path; default is stdout")
)

func fragcountUsage() {
	fmt.Printf("Usage: %s -i fragments.tsv.gz [-o counts.tsv]\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func writeCounts(ctx context.Context, path string, counts []fragments.BarcodeCount) (err error) {
	if path == "" {
		return fragments.WriteBarcodeCounts(os.Stdout, counts)
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return fragments.WriteBarcodeCounts(out.Writer(ctx), counts)
}

func main() {
	flag.Usage = fragcountUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 0 {
		log.Fatalf("Unexpected positional arguments; please check flag syntax: '%s'", strings.Join(flag.Args(), " "))
	}
	if *inputPath == "" {
		log.Fatalf("-i is required")
	}
	counts, err := fragments.BarcodeCounts(*inputPath)
	if err != nil {
		log.Panicf("%v", err)
	}
	log.Debug.Printf("counted %d barcodes", len(counts))
	ctx := vcontext.Background()
	if err := writeCounts(ctx, *outputPath, counts); err != nil {
		log.Panicf("%v", err)
	}
	log.Debug.Printf("exiting")
}
