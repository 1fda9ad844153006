// Package biosimd provides byte-array primitives for ASCII DNA sequences:
// fast ACGT validation, 2-bit packing, and reverse-complementing, shared by
// the guide codec and the genome ingester.
package biosimd
