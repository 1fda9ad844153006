package biosimd_test

import (
	"testing"

	"github.com/genomix/crispor/biosimd"
	"github.com/stretchr/testify/assert"
)

func TestASCIIBaseTo2Bit(t *testing.T) {
	cases := []struct {
		b    byte
		want byte
	}{
		{'A', 0}, {'C', 1}, {'G', 2}, {'T', 3},
		{'a', 0}, {'c', 1}, {'g', 2}, {'t', 3},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, biosimd.ASCIIBaseTo2Bit(c.b))
	}
}

func TestASCIITo2bit(t *testing.T) {
	src := []byte("ACGTACGT")
	dst := make([]byte, (len(src)+3)/4)
	biosimd.ASCIITo2bit(dst, src)
	// A=0 C=1 G=2 T=3, little-endian within each byte.
	want := byte(0) | (1 << 2) | (2 << 4) | (3 << 6)
	assert.Equal(t, want, dst[0])
	assert.Equal(t, want, dst[1])
}

func TestIsNonACGTPresent(t *testing.T) {
	assert.False(t, biosimd.IsNonACGTPresent([]byte("ACGTACGT")))
	assert.True(t, biosimd.IsNonACGTPresent([]byte("ACGTN")))
	assert.True(t, biosimd.IsNonACGTPresent([]byte("acgt")))
}

func TestCleanASCIISeqInplace(t *testing.T) {
	b := []byte("acgtNRYx")
	biosimd.CleanASCIISeqInplace(b)
	assert.Equal(t, "ACGTNNNN", string(b))
}

func TestReverseComp8Inplace(t *testing.T) {
	b := []byte("ACGTACGT")
	biosimd.ReverseComp8Inplace(b)
	assert.Equal(t, "ACGTACGT", string(b))

	b = []byte("AAAACCGT")
	biosimd.ReverseComp8Inplace(b)
	assert.Equal(t, "ACGGTTTT", string(b))

	b = []byte("A")
	biosimd.ReverseComp8Inplace(b)
	assert.Equal(t, "T", string(b))
}
