// Package service implements the narrow operations an external front end
// invokes against a registry of loaded guide indexes.
package service

import (
	"context"
	"fmt"

	"github.com/genomix/crispor/guide"
	"github.com/genomix/crispor/guideindex"
	"github.com/genomix/crispor/registry"
	"github.com/genomix/crispor/scan"
	"github.com/grailbio/base/errors"
)

// Service adapts the registry and scan kernel to the four operations an
// HTTP (or RPC) front end needs.
type Service struct {
	Registry *registry.Registry
	// MaxOffs overrides scan.MaxOffs when positive.
	MaxOffs int
}

func (s *Service) store(species string) (*guideindex.Store, error) {
	return s.Registry.Get(species)
}

func validateSeq(seq string, want int) error {
	if len(seq) != want {
		return errors.E(errors.Invalid, fmt.Sprintf("sequence length %d, expected %d", len(seq), want))
	}
	return nil
}

// checkBases raises if seq contains any character outside A/C/G/T, detected
// by guide.Encode returning its ErrorWord sentinel. For index records that
// sentinel becomes a placeholder slot that preserves position-to-id
// alignment; for a query it is turned into an error here, so an invalid
// query is reported rather than silently matching nothing.
func checkBases(seq string) error {
	w := guide.Encode([]byte(seq), true)
	if w == guide.ErrorWord {
		return errors.E(errors.Invalid, fmt.Sprintf("sequence %q contains a character outside A/C/G/T", seq))
	}
	return nil
}

// Search performs an exact search. pamRight is 0, 1, or 2 (PAM-agnostic).
func (s *Service) Search(species, seq string, pamRight int) ([]uint64, error) {
	store, err := s.store(species)
	if err != nil {
		return nil, err
	}
	if err := validateSeq(seq, int(store.Meta.SeqLength)); err != nil {
		return nil, err
	}
	if err := checkBases(seq); err != nil {
		return nil, err
	}

	var mode scan.PAMMode
	var encodedPamRight bool
	switch pamRight {
	case 0:
		mode = scan.PAMLeft
		encodedPamRight = false
	case 1:
		mode = scan.PAMRight
		encodedPamRight = true
	case 2:
		mode = scan.PAMEither
		encodedPamRight = true
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("pam_right must be 0, 1, or 2, got %d", pamRight))
	}

	q, err := scan.NewQuery(0, []byte(seq), int(store.Meta.SeqLength), encodedPamRight)
	if err != nil {
		return nil, err
	}
	return scan.Search(store, q, mode), nil
}

// OffTargetsByIDs looks up each id's stored sequence and runs an
// off-target scan for it. store is accepted purely as an interface
// artifact mirrored from the HTTP layer (persisting off-target results is
// out of scope); its value is ignored.
func (s *Service) OffTargetsByIDs(species string, ids []uint64, store bool) ([]scan.OffTargetResult, error) {
	st, err := s.store(species)
	if err != nil {
		return nil, err
	}

	queries := make([]scan.Query, len(ids))
	for i, id := range ids {
		w, err := st.Get(id - st.Meta.Offset)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("id %d", id))
		}
		length := int(st.Meta.SeqLength)
		queries[i] = scan.Query{ID: id, Seq: w, RevSeq: guide.RevcompBits(w, length)}
	}
	return scan.OffTargets(context.Background(), st, queries, s.maxOffs())
}

// OffTargetsBySeq constructs a synthetic query (id 0) from seq and runs a
// single off-target scan.
func (s *Service) OffTargetsBySeq(species, seq string, pamRight bool) (scan.OffTargetResult, error) {
	st, err := s.store(species)
	if err != nil {
		return scan.OffTargetResult{}, err
	}
	if err := validateSeq(seq, int(st.Meta.SeqLength)); err != nil {
		return scan.OffTargetResult{}, err
	}
	if err := checkBases(seq); err != nil {
		return scan.OffTargetResult{}, err
	}

	q, err := scan.NewQuery(0, []byte(seq), int(st.Meta.SeqLength), pamRight)
	if err != nil {
		return scan.OffTargetResult{}, err
	}
	results, err := scan.OffTargets(context.Background(), st, []scan.Query{q}, s.maxOffs())
	if err != nil {
		return scan.OffTargetResult{}, err
	}
	return results[0], nil
}

// IDsToSequences decodes each global id back to its ACGT sequence.
func (s *Service) IDsToSequences(species string, ids []uint64) ([]string, error) {
	st, err := s.store(species)
	if err != nil {
		return nil, err
	}
	seqs := make([]string, len(ids))
	for i, id := range ids {
		seq, err := st.GetSequence(id)
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("id %d", id))
		}
		seqs[i] = seq
	}
	return seqs, nil
}

func (s *Service) maxOffs() int {
	if s.MaxOffs > 0 {
		return s.MaxOffs
	}
	return scan.MaxOffs
}
