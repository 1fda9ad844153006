package guideindex

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/genomix/crispor/guide"
	"github.com/grailbio/base/errors"
)

// Store owns a loaded index: its metadata header and the packed array of
// guide words. Once Load returns, a Store is immutable and safe
// for concurrent readers without locking.
type Store struct {
	Meta Metadata
	// crisprs holds NumSeqs+1 words; crisprs[0] is always 0 padding, so
	// local id i (1-based) reads directly from crisprs[i].
	crisprs []guide.Word
	path    string
}

// NumSeqs returns the number of guides in the store.
func (s *Store) NumSeqs() uint64 { return s.Meta.NumSeqs }

// Path returns the backing file path, or "" if the store wasn't loaded
// from disk.
func (s *Store) Path() string { return s.path }

// Word returns the raw encoded word at local slot j (1-based), with no
// bounds checking — the scan kernel's hot loop uses this directly.
func (s *Store) Word(j uint64) guide.Word { return s.crisprs[j] }

// Get returns the encoded word for local id (1-based slot index).
func (s *Store) Get(localID uint64) (guide.Word, error) {
	if s.Meta.NumSeqs == 0 {
		return 0, errors.E(errors.Precondition, "store is empty")
	}
	if localID == 0 || localID > s.Meta.NumSeqs {
		return 0, errors.E(errors.Precondition, fmt.Sprintf("local id %d out of range [1, %d]", localID, s.Meta.NumSeqs))
	}
	return s.crisprs[localID], nil
}

// GetSequence decodes the guide stored under the given global id (local
// slot + Meta.Offset) back to an ACGT string.
func (s *Store) GetSequence(globalID uint64) (string, error) {
	if globalID <= s.Meta.Offset {
		return "", errors.E(errors.Precondition, fmt.Sprintf("global id %d is not beyond offset %d", globalID, s.Meta.Offset))
	}
	w, err := s.Get(globalID - s.Meta.Offset)
	if err != nil {
		return "", err
	}
	return string(guide.Decode(w, int(s.Meta.SeqLength))), nil
}

// Load reads a binary index file from path into memory.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(err, errors.Invalid, fmt.Sprintf("opening index %s", path))
	}
	defer f.Close() // nolint: errcheck

	br := bufio.NewReaderSize(f, bufSize)
	meta, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	if meta.NumSeqs*8 > MaxIndexBytes {
		return nil, errors.E(errors.ResourceExhausted, fmt.Sprintf("index requires %d bytes, exceeding the %d byte ceiling", meta.NumSeqs*8, uint64(MaxIndexBytes)))
	}

	words := make([]guide.Word, meta.NumSeqs+1)
	if err := readWords(br, words); err != nil {
		return nil, err
	}
	return &Store{Meta: meta, crisprs: words, path: path}, nil
}

// BuildStats summarizes the outcome of a Build call.
type BuildStats struct {
	Written int
	Skipped int
}

// Record is one parsed line of a text record file: chr,start,seq23,
// pam_right(0|1),species_id.
type Record struct {
	Chr       string
	Start     uint64
	Seq23     string
	PamRight  bool
	SpeciesID uint8
}

// ParseRecord parses one comma-delimited text record line. Blank lines
// should be skipped by the caller before calling ParseRecord.
func ParseRecord(line string) (Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return Record{}, errors.E(errors.Invalid, fmt.Sprintf("malformed record %q: expected 5 comma-delimited fields, got %d", line, len(fields)))
	}
	start, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Record{}, errors.E(err, errors.Invalid, fmt.Sprintf("malformed start offset in record %q", line))
	}
	var pamRight bool
	switch fields[3] {
	case "0":
		pamRight = false
	case "1":
		pamRight = true
	default:
		return Record{}, errors.E(errors.Invalid, fmt.Sprintf("pam_right must be 0 or 1, got %q in record %q", fields[3], line))
	}
	speciesID, err := strconv.ParseUint(fields[4], 10, 8)
	if err != nil {
		return Record{}, errors.E(err, errors.Invalid, fmt.Sprintf("malformed species id in record %q", line))
	}
	return Record{
		Chr:       fields[0],
		Start:     start,
		Seq23:     fields[2],
		PamRight:  pamRight,
		SpeciesID: uint8(speciesID),
	}, nil
}

// pamLen is the fixed PAM length assumed by the seq23 record format: a
// record's guide length is always len(seq23) - pamLen.
const pamLen = 3

// guideFromRecord derives the L-base guide from a seq23 record: the first
// L bases if the PAM is on the right, else the last L bases.
func guideFromRecord(seq23 string, pamRight bool, length int) []byte {
	b := []byte(seq23)
	if pamRight {
		return b[:length]
	}
	return b[len(b)-length:]
}

// Build streams each input text-record file, derives and encodes each
// record's guide, and writes a binary index file to out. Build aborts the
// whole operation (leaving no partial file) on any Format error, including
// mixed guide lengths across records.
func Build(inputs []string, metaTemplate Metadata, out string) (BuildStats, error) {
	tmp := out + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return BuildStats{}, errors.E(err, errors.Invalid, fmt.Sprintf("creating %s", tmp))
	}
	succeeded := false
	defer func() {
		f.Close() // nolint: errcheck
		if !succeeded {
			os.Remove(tmp) // nolint: errcheck
		}
	}()

	bw := bufio.NewWriterSize(f, bufSize)
	// Reserve space for the header; it's rewritten with the final NumSeqs
	// once every record has been counted, matching the write-marker,
	// seek-past-zeroed-header, stream-while-counting, seek-back-and-rewrite
	// protocol described for this format.
	zero := metaTemplate
	zero.NumSeqs = 0
	if err := writeHeader(bw, zero); err != nil {
		return BuildStats{}, err
	}

	var stats BuildStats
	var guideLen = -1
	for _, inputPath := range inputs {
		if err := buildOneInput(inputPath, bw, &stats, &guideLen); err != nil {
			return BuildStats{}, err
		}
	}
	if err := bw.Flush(); err != nil {
		return BuildStats{}, errors.E(err, errors.Invalid, fmt.Sprintf("flushing %s", tmp))
	}

	finalMeta := metaTemplate
	finalMeta.NumSeqs = uint64(stats.Written + stats.Skipped)
	if guideLen >= 0 {
		finalMeta.SeqLength = uint64(guideLen)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return BuildStats{}, errors.E(err, errors.Invalid, fmt.Sprintf("seeking %s", tmp))
	}
	if err := writeHeader(f, finalMeta); err != nil {
		return BuildStats{}, err
	}
	if err := f.Close(); err != nil {
		return BuildStats{}, errors.E(err, errors.Invalid, fmt.Sprintf("closing %s", tmp))
	}
	if err := os.Rename(tmp, out); err != nil {
		return BuildStats{}, errors.E(err, errors.Invalid, fmt.Sprintf("renaming %s to %s", tmp, out))
	}
	succeeded = true
	return stats, nil
}

func buildOneInput(path string, bw *bufio.Writer, stats *BuildStats, guideLen *int) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.E(err, errors.Invalid, fmt.Sprintf("opening %s", path))
	}
	defer f.Close() // nolint: errcheck

	scanner := bufio.NewScanner(f)
	scanner.Buffer(nil, bufSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			return errors.E(err, errors.Invalid, fmt.Sprintf("%s:%d", path, lineNum))
		}
		if len(rec.Seq23) <= pamLen {
			return errors.E(errors.Invalid, fmt.Sprintf("%s:%d: record seq23 %q is too short to hold a guide plus PAM", path, lineNum, rec.Seq23))
		}
		recGuideLen := len(rec.Seq23) - pamLen
		if *guideLen < 0 {
			*guideLen = recGuideLen
		} else if recGuideLen != *guideLen {
			return errors.E(errors.Invalid, fmt.Sprintf("%s:%d: mixed guide lengths in build input: %d and %d", path, lineNum, *guideLen, recGuideLen))
		}
		g := guideFromRecord(rec.Seq23, rec.PamRight, *guideLen)
		w := guide.Encode(g, rec.PamRight)
		if err := writeOneWord(bw, w); err != nil {
			return err
		}
		if w == guide.ErrorWord {
			stats.Skipped++
		} else {
			stats.Written++
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.E(err, errors.Invalid, fmt.Sprintf("reading %s", path))
	}
	return nil
}

func writeOneWord(w io.Writer, word guide.Word) error {
	return writeWords(w, []guide.Word{word})
}
