// Package guideindex implements the on-disk binary index format for a
// corpus of encoded guide words, and the Store that owns a loaded index in
// memory.
//
// File layout (all multi-byte fields little-endian):
//
//	offset   size                  field
//	0        1                     endian marker, must be 0x01
//	1        4                     version (uint32), must equal Version
//	5        sizeof(Metadata)      metadata header
//	...      NumSeqs * 8           packed uint64 guide words
package guideindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/genomix/crispor/guide"
	"github.com/grailbio/base/errors"
)

// bufSize matches the teacher's large-buffer idiom for big genomic inputs
// (see encoding/fasta's bufferInitSize), scaled down for a fixed-record
// binary stream rather than a single scanner token.
const bufSize = 1 << 20

func bufReader(r io.Reader) *bufio.Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return br
	}
	return bufio.NewReaderSize(r, bufSize)
}

// EndianMarker is the single byte that opens every index file. Readers
// reject any file whose first byte isn't this value; byte-reversed hosts
// are not supported.
const EndianMarker = 0x01

// Version is the index format version this implementation reads and
// writes. A file whose version field doesn't match is rejected.
const Version = 3

// MaxIndexBytes is the hard ceiling on the packed guide-word array. An
// index that would require more is refused rather than allocated.
const MaxIndexBytes = 3 << 30 // 3 GiB

const speciesFieldLen = 30
const assemblyFieldLen = 30

// Metadata is the fixed-layout header that precedes the packed guide-word
// array in an index file.
type Metadata struct {
	NumSeqs   uint64
	SeqLength uint64
	Offset    uint64
	SpeciesID uint8
	Species   [speciesFieldLen]byte
	Assembly  [assemblyFieldLen]byte
}

// SpeciesName returns the null-padded Species field as a Go string.
func (m *Metadata) SpeciesName() string {
	return trimNulls(m.Species[:])
}

// AssemblyName returns the null-padded Assembly field as a Go string.
func (m *Metadata) AssemblyName() string {
	return trimNulls(m.Assembly[:])
}

// SetSpeciesName copies name into the fixed-size Species field, truncating
// if necessary.
func (m *Metadata) SetSpeciesName(name string) {
	setFixed(m.Species[:], name)
}

// SetAssemblyName copies name into the fixed-size Assembly field, truncating
// if necessary.
func (m *Metadata) SetAssemblyName(name string) {
	setFixed(m.Assembly[:], name)
}

func setFixed(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, s)
}

func trimNulls(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// readMetadata reads the fixed header fields one at a time, the way
// encoding/bam.ReadIndex reads its .bai fields: the struct mixes scalars and
// fixed byte arrays, so a single binary.Read into the struct risks silent
// padding mismatches across platforms. Reading field by field keeps the
// on-disk layout exactly as documented regardless of Go struct alignment.
func readMetadata(r io.Reader) (Metadata, error) {
	var m Metadata
	fields := []interface{}{
		&m.NumSeqs, &m.SeqLength, &m.Offset, &m.SpeciesID,
	}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return m, errors.E(err, errors.Invalid, "reading index metadata")
		}
	}
	if _, err := io.ReadFull(r, m.Species[:]); err != nil {
		return m, errors.E(err, errors.Invalid, "reading species field")
	}
	if _, err := io.ReadFull(r, m.Assembly[:]); err != nil {
		return m, errors.E(err, errors.Invalid, "reading assembly field")
	}
	return m, nil
}

func writeMetadata(w io.Writer, m Metadata) error {
	fields := []interface{}{
		m.NumSeqs, m.SeqLength, m.Offset, m.SpeciesID,
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return errors.E(err, errors.Invalid, "writing index metadata")
		}
	}
	if _, err := w.Write(m.Species[:]); err != nil {
		return errors.E(err, errors.Invalid, "writing species field")
	}
	if _, err := w.Write(m.Assembly[:]); err != nil {
		return errors.E(err, errors.Invalid, "writing assembly field")
	}
	return nil
}

// readHeader reads and validates the endian marker, version, and metadata
// header from r, leaving the reader positioned at the start of the packed
// word array.
func readHeader(r io.Reader) (Metadata, error) {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return Metadata{}, errors.E(err, errors.Invalid, "reading endian marker")
	}
	if marker[0] != EndianMarker {
		return Metadata{}, errors.E(errors.Invalid, fmt.Sprintf("unsupported endian marker 0x%02x, byte-reversed hosts are not supported", marker[0]))
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return Metadata{}, errors.E(err, errors.Invalid, "reading version")
	}
	if version != Version {
		return Metadata{}, errors.E(errors.Invalid, fmt.Sprintf("index version %d, expected %d", version, Version))
	}
	return readMetadata(r)
}

func writeHeader(w io.Writer, m Metadata) error {
	if _, err := w.Write([]byte{EndianMarker}); err != nil {
		return errors.E(err, errors.Invalid, "writing endian marker")
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(Version)); err != nil {
		return errors.E(err, errors.Invalid, "writing version")
	}
	return writeMetadata(w, m)
}

// readWords reads numSeqs packed little-endian uint64 guide words into
// dst[1:], leaving dst[0] as the zero-valued padding slot that makes
// 1-based local ids index directly into the array.
func readWords(r io.Reader, dst []guide.Word) error {
	br := bufReader(r)
	for i := 1; i < len(dst); i++ {
		var v uint64
		if err := binary.Read(br, binary.LittleEndian, &v); err != nil {
			return errors.E(err, errors.Invalid, fmt.Sprintf("reading guide word %d", i))
		}
		dst[i] = guide.Word(v)
	}
	return nil
}

// writeWords writes words through w without flushing; callers that pass a
// *bufio.Writer own the flush, so a word-at-a-time caller doesn't pay for a
// syscall per record. Build flushes once, after every input has streamed
// through.
func writeWords(w io.Writer, words []guide.Word) error {
	for _, word := range words {
		if err := binary.Write(w, binary.LittleEndian, uint64(word)); err != nil {
			return errors.E(err, errors.Invalid, "writing guide word")
		}
	}
	return nil
}
