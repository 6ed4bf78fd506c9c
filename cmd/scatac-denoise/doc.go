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
scatac-denoise runs the scATAC denoising pipeline over a tabix-indexed
fragment file: per-cluster fragment coverage, a pretrained convolutional
denoising model, and peak calling on the model outputs.

Coverage is computed as in scatac-coverage, over regions taken from
-regions or -region, optionally with -correct-barcodes snapping.  Each
region is cut into -interval-size tiles for inference, so a region longer
than -interval-size must span an exact multiple of it; shorter regions are
denoised whole.  -pad controls how much flanking coverage the model sees
around each tile and should match the padding the model was trained with.
Weights are loaded from a NumPy .npz archive (-model) written by the
training tooling.

Any combination of three output families may be requested.
-bedgraph-prefix writes per-cluster denoised-signal and peak-probability
bedGraph tracks.  -npy-prefix writes the same signals as NumPy matrices
with one row per cluster, plus a .clusters.txt sidecar naming the row
order.  -peaks-prefix writes per-cluster BED files of regions whose peak
probability stays at or above -peak-threshold, merged across gaps shorter
than -peak-merge-dist, dropped when shorter than -peak-min-len, and
filtered against an optional -blacklist BED.  As in scatac-coverage,
multi-region runs insert a <chrom>_<start>_<end> component into output
names.

Sample usage:
scatac-denoise \
    -clusters clusters.tsv \
    -model atac_model.npz \
    -region chr1:100000001-100050000 \
    -pad 5000 \
    -bedgraph-prefix denoised \
    -peaks-prefix peaks \
    fragments.tsv.gz
*/
package main
