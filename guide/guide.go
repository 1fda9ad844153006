// Package guide implements the 2-bit encoding of a CRISPR guide sequence
// plus its PAM orientation into a single 64-bit word, and the bit-level
// operations (reverse-complement, mismatch popcount) the rest of this module
// builds on.
//
// Bits 0..2L-1 of a Word hold L bases, big-endian within the word: the first
// base of the guide occupies the highest pair. Bit 2L (one past the bases)
// is the pam_right flag: 1 if the PAM lies on the 3' side of the guide as
// stored, 0 if on the 5' side. Higher bits are always zero.
package guide

import (
	"math/bits"

	"github.com/genomix/crispor/biosimd"
)

// Word is a guide+PAM-orientation encoded as a 64-bit word.
type Word uint64

// ErrorWord is the reserved sentinel for an invalid or skipped slot. No
// valid encoding ever equals it.
const ErrorWord Word = ^Word(0)

// MaxLength is the largest guide length this encoding supports: 2*L+1 bits
// of payload must fit in 63 bits so that ErrorWord (all 64 bits set) can
// never collide with a valid encoding.
const MaxLength = 31

// Encode packs seq (length bases, alphabet A/C/G/T, case sensitive) and the
// pam_right flag into a Word. If any base in seq is not A/C/G/T, Encode
// returns ErrorWord.
func Encode(seq []byte, pamRight bool) Word {
	if len(seq) == 0 || len(seq) > MaxLength {
		return ErrorWord
	}
	if biosimd.IsNonACGTPresent(seq) {
		return ErrorWord
	}
	var w Word
	if pamRight {
		w = 1
	}
	for _, b := range seq {
		w = (w << 2) | Word(biosimd.ASCIIBaseTo2Bit(b))
	}
	return w
}

// Decode returns the length-base ACGT string encoded in w. If w is
// ErrorWord, Decode returns length copies of 'N'.
func Decode(w Word, length int) []byte {
	out := make([]byte, length)
	if w == ErrorWord {
		for i := range out {
			out[i] = 'N'
		}
		return out
	}
	for i := 0; i < length; i++ {
		shift := uint(2 * (length - 1 - i))
		code := byte((w >> shift) & 0b11)
		out[i] = baseTable[code]
	}
	return out
}

var baseTable = [4]byte{'A', 'C', 'G', 'T'}

// PamRight reports the PAM-orientation flag of a valid encoding (bit 2L).
func PamRight(w Word, length int) bool {
	return (w>>uint(2*length))&1 == 1
}

// RevcompBits returns the reverse-complement of a valid encoding w: the
// pam_right flag is flipped and the L base-pairs are bitwise-inverted
// (A<->T, C<->G) and reversed in order. The result is a valid encoding,
// distinct from ErrorWord, whenever w is valid.
func RevcompBits(w Word, length int) Word {
	maskBits := uint(2*length + 1)
	mask := Word(1)<<maskBits - 1
	inv := ^w & mask

	pamBit := (inv >> uint(2*length)) & 1
	var out Word = pamBit
	for i := 0; i < length; i++ {
		code := (inv >> uint(2*i)) & 0b11
		out = (out << 2) | code
	}
	return out
}

// PopCount2 counts the number of mismatched bases encoded in xor, the XOR of
// two encodings restricted to their base bits (the PAM bit must already be
// masked out by the caller). Each base occupies 2 bits, so a naive
// bits.OnesCount64 would overcount a mismatch where both bits differ; folding
// adjacent bit-pairs with `x |= x>>1; x &= 0x5555...` collapses every
// nonzero base-pair to a single 1 before counting.
func PopCount2(xor Word) int {
	x := uint64(xor)
	x |= x >> 1
	x &= 0x5555555555555555
	return bits.OnesCount64(x)
}

// RevcompString returns the reverse-complement of an ACGT string. Any
// character outside A/C/G/T is an error.
func RevcompString(s string) (string, error) {
	if len(s) == 0 {
		return "", nil
	}
	b := []byte(s)
	if biosimd.IsNonACGTPresent(b) {
		return "", ErrInvalidBase
	}
	biosimd.ReverseComp8Inplace(b)
	return string(b), nil
}
