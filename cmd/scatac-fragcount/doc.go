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
scatac-fragcount scans a scATAC fragment file and reports the number of
fragment records per cell barcode, ordered by decreasing count (ties broken
by barcode).  The output is two-column TSV (barcode, fragments); this is the
usual input for knee-point cell calling and for sanity-checking a
barcode-to-cluster assignment table before computing coverage.

The scan streams the whole file and needs no tabix index.  Plain text,
gzip/bgzip (.gz, .bgz), and bzip2 (.bz2) inputs are accepted.

Sample usage:
scatac-fragcount \
    -i fragments.tsv.gz \
    -o counts.tsv
*/
package main
