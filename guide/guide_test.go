package guide_test

import (
	"testing"

	"github.com/genomix/crispor/guide"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const L = 20

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// Invariant 1: decode(encode(s, p), L) == s for every s in ACGT^L, p in {0,1}.
	seqs := []string{
		"AAAAAAAAAAAAAAAAAAAA",
		"TTTTTTTTTTTTTTTTTTTT",
		"ACGTACGTACGTACGTACGT",
		"CCCCCCCCCCCCCCCCCCCC",
		"GATTACAGATTACAGATTAC",
	}
	for _, s := range seqs {
		for _, p := range []bool{false, true} {
			w := guide.Encode([]byte(s), p)
			require.NotEqual(t, guide.ErrorWord, w, "seq %s should encode cleanly", s)
			assert.Equal(t, s, string(guide.Decode(w, L)))
			assert.Equal(t, p, guide.PamRight(w, L))
		}
	}
}

func TestEncodeInvalidBase(t *testing.T) {
	w := guide.Encode([]byte("NAAAAAAAAAAAAAAAAAAA"), true)
	assert.Equal(t, guide.ErrorWord, w)
}

func TestDecodeErrorWord(t *testing.T) {
	assert.Equal(t, "NNNNNNNNNNNNNNNNNNNN", string(guide.Decode(guide.ErrorWord, L)))
}

func TestRevcompBitsInvolution(t *testing.T) {
	// Invariant 2: revcomp_bits(revcomp_bits(w, L), L) == w.
	seqs := []string{
		"AAAAAAAAAAAAAAAAAAAA",
		"ACGTACGTACGTACGTACGT",
		"GATTACAGATTACAGATTAC",
	}
	for _, s := range seqs {
		for _, p := range []bool{false, true} {
			w := guide.Encode([]byte(s), p)
			rc := guide.RevcompBits(w, L)
			rc2 := guide.RevcompBits(rc, L)
			assert.Equal(t, w, rc2)
		}
	}
}

func TestRevcompBitsMatchesString(t *testing.T) {
	// Invariant 3: decode(revcomp_bits(encode(s, p), L), L) == revcomp_str(s),
	// and the PAM flag is flipped.
	s := "ACGTACGTACGTACGTACGT"
	for _, p := range []bool{false, true} {
		w := guide.Encode([]byte(s), p)
		rc := guide.RevcompBits(w, L)
		want, err := guide.RevcompString(s)
		require.NoError(t, err)
		assert.Equal(t, want, string(guide.Decode(rc, L)))
		assert.Equal(t, !p, guide.PamRight(rc, L))
	}
}

func TestPopCount2(t *testing.T) {
	// Invariant 4: popcount2(a^a) == 0.
	a := guide.Encode([]byte("ACGTACGTACGTACGTACGT"), true)
	assert.Equal(t, 0, guide.PopCount2(a^a))

	// popcount2(encode(s,p) ^ encode(t,p)) == hamming_bases(s,t).
	cases := []struct {
		s, tt string
		hd    int
	}{
		{"AAAAAAAAAAAAAAAAAAAA", "AAAAAAAAAAAAAAAAAAAA", 0},
		{"AAAAAAAAAAAAAAAAAAAA", "CAAAAAAAAAAAAAAAAAAA", 1},
		{"AAAAAAAAAAAAAAAAAAAA", "TTTTAAAAAAAAAAAAAAAA", 4},
		{"ACGTACGTACGTACGTACGT", "TGCATGCATGCATGCATGCA", 20},
	}
	for _, c := range cases {
		s := guide.Encode([]byte(c.s), true)
		tt := guide.Encode([]byte(c.tt), true)
		assert.Equal(t, c.hd, guide.PopCount2(s^tt), "s=%s t=%s", c.s, c.tt)
	}
}

func TestRevcompStringError(t *testing.T) {
	// S3: revcomp of a sequence with a non-ACGT character is an error.
	_, err := guide.RevcompString("ACGTACGTACGTACGTACGTNGG")
	require.Error(t, err)
}

func TestRevcompStringBasic(t *testing.T) {
	got, err := guide.RevcompString("ACGT")
	require.NoError(t, err)
	assert.Equal(t, "ACGT", got)

	got, err = guide.RevcompString("AAAACCGT")
	require.NoError(t, err)
	assert.Equal(t, "ACGGTTTT", got)
}

func TestCodecWithPAM(t *testing.T) {
	w := guide.Encode([]byte("AAAAAAAAAAAAAAAAAAAA"), false)
	c := guide.NewCodec(w, L)
	assert.False(t, c.PamRight())
	c2 := c.WithPAM(true)
	assert.True(t, c2.PamRight())
	assert.Equal(t, c.Bases(), c2.Bases())
}
