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

/*
scatac-coverage computes per-cluster fragment coverage over genomic regions
from a tabix-indexed scATAC fragment file.  Cell barcodes are mapped to
clusters with a two-column assignment table; every cluster in the table
gets one coverage track per region, where each fragment adds 1 to every
position it covers.  With -correct-barcodes, an observed barcode within
one substitution of the table is counted toward the matching cluster when
that cluster is unique; other barcodes absent from the table are skipped.

Regions are taken from a BED file (-regions) or a single region string
(-region), and are clipped to chromosome ends when -chrom-sizes is given.
A region naming just a chromosome requires -chrom-sizes.  -pad widens the
computed matrix by the given number of flanking positions on each side.

Per-cluster bedGraph tracks (-bedgraph-prefix) cover the unpadded regions,
with zero runs omitted.  NumPy matrices (-npy-prefix) contain one row per
cluster over the padded window, with a .clusters.txt sidecar naming the row
order; this is the layout consumed by model training and evaluation
tooling.  When more than one region is requested, each region's outputs
carry a <chrom>_<start>_<end> name component.

Sample usage:
scatac-coverage \
    -clusters clusters.tsv \
    -regions windows.bed \
    -chrom-sizes hg38.chrom.sizes \
    -bedgraph-prefix cov \
    fragments.tsv.gz
*/
package main
