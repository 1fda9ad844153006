// Package scan implements the hot-loop search kernel: exact matching and
// off-target mismatch scanning against a loaded guide index.
package scan

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/genomix/crispor/guide"
	"github.com/genomix/crispor/guideindex"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/traverse"
)

// MaxMismatches is the Hamming-distance ceiling an off-target scan reports.
const MaxMismatches = 4

// MaxOffs is the per-query cap on returned off-target ids. Once a query's
// total hit count reaches this, its id list is dropped (summary stays
// exact).
const MaxOffs = 2000

// cancelCheckInterval is how often, in scanned slots, a running scan polls
// its context for cancellation.
const cancelCheckInterval = 1 << 20

// Query is a single encoded search query: the guide as given, and its
// reverse complement precomputed once up front.
type Query struct {
	ID     uint64
	Seq    guide.Word
	RevSeq guide.Word
}

// NewQuery encodes seq (length bases) and precomputes its reverse
// complement.
func NewQuery(id uint64, seq []byte, length int, pamRight bool) (Query, error) {
	w := guide.Encode(seq, pamRight)
	if w == guide.ErrorWord {
		return Query{}, errors.E(errors.Invalid, fmt.Sprintf("query sequence %q contains a non-ACGT character", seq))
	}
	return Query{ID: id, Seq: w, RevSeq: guide.RevcompBits(w, length)}, nil
}

// PAMMode selects which PAM orientation(s) an exact search matches against.
type PAMMode int

const (
	// PAMLeft matches only the query as given, PAM bit included.
	PAMLeft PAMMode = iota
	// PAMRight matches only the query as given, PAM bit included; like
	// PAMLeft, it never matches the query's reverse complement.
	PAMRight
	// PAMEither normalizes the PAM bit out of the comparison, matching
	// either orientation.
	PAMEither
)

// Search performs an exact match of q against every non-error slot in
// store, returning matching global ids in ascending slot order. In
// PAMLeft/PAMRight mode only q itself (as encoded by NewQuery) is matched;
// PAMEither normalizes the PAM bit out of the comparison and matches either
// q or its reverse complement.
func Search(store *guideindex.Store, q Query, mode PAMMode) []uint64 {
	length := int(store.Meta.SeqLength)
	pamOn := guide.Word(1) << uint(2*length)

	seq, revSeq := q.Seq, q.RevSeq
	checkRev := mode == PAMEither
	var forcePamMask guide.Word
	if mode == PAMEither {
		forcePamMask = pamOn
		seq |= pamOn
		revSeq |= pamOn
	}

	var hits []uint64
	numSeqs := store.NumSeqs()
	for j := uint64(1); j <= numSeqs; j++ {
		w := store.Word(j)
		if w == guide.ErrorWord {
			continue
		}
		cur := w | forcePamMask
		if cur == seq || (checkRev && cur == revSeq) {
			hits = append(hits, j+store.Meta.Offset)
		}
	}
	return hits
}

// OffTargetResult is one query's off-target scan result.
type OffTargetResult struct {
	ID uint64
	// Summary[mm] is the number of slots found at Hamming distance mm,
	// for mm in [0, MaxMismatches].
	Summary [MaxMismatches + 1]uint64
	// OffTargets holds the matching global ids in ascending order, or nil
	// if the query's total hit count reached MaxOffs.
	OffTargets []uint64
}

// OffTargets scans the entire store against every query in queries,
// parallelizing across runtime.NumCPU() disjoint slot-range chunks and
// reducing per-chunk partial results at the end. ctx is polled roughly
// every 1<<20 slots per chunk; a cancelled scan returns ctx.Err() and a
// nil result slice.
func OffTargets(ctx context.Context, store *guideindex.Store, queries []Query, maxOffs int) ([]OffTargetResult, error) {
	if maxOffs <= 0 {
		maxOffs = MaxOffs
	}
	numSeqs := store.NumSeqs()
	if numSeqs == 0 || len(queries) == 0 {
		results := make([]OffTargetResult, len(queries))
		for i, q := range queries {
			results[i] = OffTargetResult{ID: q.ID}
		}
		return results, nil
	}

	nchunks := runtime.NumCPU()
	if uint64(nchunks) > numSeqs {
		nchunks = int(numSeqs)
	}
	chunkSize := (numSeqs + uint64(nchunks) - 1) / uint64(nchunks)

	partials := make([][]OffTargetResult, nchunks)
	err := traverse.Each(nchunks, func(c int) error {
		start := uint64(c)*chunkSize + 1
		end := start + chunkSize
		if end > numSeqs+1 {
			end = numSeqs + 1
		}
		if start >= end {
			partials[c] = nil
			return nil
		}
		chunk, err := scanChunk(ctx, store, queries, start, end, maxOffs)
		if err != nil {
			return err
		}
		partials[c] = chunk
		return nil
	})
	if err != nil {
		return nil, err
	}

	return reduce(queries, partials, maxOffs), nil
}

func scanChunk(ctx context.Context, store *guideindex.Store, queries []Query, start, end uint64, maxOffs int) ([]OffTargetResult, error) {
	length := int(store.Meta.SeqLength)
	pamOn := guide.Word(1) << uint(2*length)
	pamOff := ^pamOn

	results := make([]OffTargetResult, len(queries))
	for i, q := range queries {
		results[i].ID = q.ID
	}

	sinceCheck := uint64(0)
	for j := start; j < end; j++ {
		sinceCheck++
		if sinceCheck >= cancelCheckInterval {
			sinceCheck = 0
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		w := store.Word(j)
		if w == guide.ErrorWord {
			continue
		}
		gid := j + store.Meta.Offset
		for i := range queries {
			q := &queries[i]
			xor := q.Seq ^ w
			var mm int
			if xor&pamOn == 0 {
				mm = guide.PopCount2(xor & pamOff)
			} else {
				xorR := q.RevSeq ^ w
				mm = guide.PopCount2(xorR & pamOff)
			}
			if mm > MaxMismatches {
				continue
			}
			r := &results[i]
			r.Summary[mm]++
			if len(r.OffTargets) < maxOffs {
				r.OffTargets = append(r.OffTargets, gid)
			}
		}
	}
	return results, nil
}

func reduce(queries []Query, partials [][]OffTargetResult, maxOffs int) []OffTargetResult {
	final := make([]OffTargetResult, len(queries))
	for i, q := range queries {
		final[i].ID = q.ID
	}

	totals := make([]uint64, len(queries))
	for _, chunk := range partials {
		if chunk == nil {
			continue
		}
		for i := range chunk {
			for mm := 0; mm <= MaxMismatches; mm++ {
				final[i].Summary[mm] += chunk[i].Summary[mm]
				totals[i] += chunk[i].Summary[mm]
			}
			if chunk[i].OffTargets != nil {
				final[i].OffTargets = append(final[i].OffTargets, chunk[i].OffTargets...)
			}
		}
	}
	for i := range final {
		if totals[i] >= uint64(maxOffs) {
			final[i].OffTargets = nil
			continue
		}
		sort.Slice(final[i].OffTargets, func(a, b int) bool { return final[i].OffTargets[a] < final[i].OffTargets[b] })
	}
	return final
}
