/*Package interval represents sets of genomic coordinates as interval-unions,
  along with the parsers that produce them: BED files, samtools-style region
  strings, and chromosome size tables.
  Overlapping intervals are always merged on load.  Callers needing to keep
  overlapping intervals distinct must track them separately.
  Every position is assumed to fit in a PosType, currently defined as int32
  since that's what tabix indexes are limited to.
*/
package interval
