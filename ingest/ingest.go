// Package ingest streams a FASTA genome into the comma-delimited text
// records guideindex.Build consumes: one record per 23-base window whose
// trailing or leading 3 bases match the PAM (or its reverse complement).
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/genomix/crispor/guide"
	"github.com/grailbio/base/errors"
)

const (
	mib            = 1024 * 1024
	bufferInitSize = 64 * mib
	windowLen      = 23
)

// isWhitespaceTable classifies bytes the way interval.getTokens does: any
// byte <= ' ' is whitespace.
var isWhitespaceTable [256]bool

func init() {
	for i := 0; i <= int(' '); i++ {
		isWhitespaceTable[i] = true
	}
}

// IngestStats summarizes one Ingest call.
type IngestStats struct {
	Chromosomes int
	Records     int
}

// window is a 23-base circular FIFO, exposing its contents as a contiguous
// slice via a rotate-on-read rather than per-push shifting.
type window struct {
	buf   [windowLen]byte
	start int // index of the logically-first (oldest) byte
}

func newWindow() *window {
	w := &window{}
	for i := range w.buf {
		w.buf[i] = 'N'
	}
	return w
}

// push evicts the oldest byte and appends b.
func (w *window) push(b byte) {
	w.buf[w.start] = b
	w.start = (w.start + 1) % windowLen
}

// bytes returns the window's contents in logical (oldest-to-newest) order.
func (w *window) bytes() []byte {
	out := make([]byte, windowLen)
	for i := 0; i < windowLen; i++ {
		out[i] = w.buf[(w.start+i)%windowLen]
	}
	return out
}

// Ingest reads a FASTA genome from r and writes guideindex build records to
// w: one line per window position whose trailing 3 bases equal pam
// (pam_right=1) and/or whose leading 3 bases equal the reverse complement of
// pam (pam_right=0). pam is matched literally, not as an IUPAC pattern.
func Ingest(w io.Writer, r io.Reader, pam string, speciesID uint8) (IngestStats, error) {
	if len(pam) == 0 {
		return IngestStats{}, errors.E(errors.Invalid, "pam string must not be empty")
	}
	revPam, err := guide.RevcompString(pam)
	if err != nil {
		return IngestStats{}, errors.E(err, errors.Invalid, fmt.Sprintf("pam %q is not a valid ACGT sequence", pam))
	}

	br := bufio.NewReaderSize(r, bufferInitSize)
	bw := bufio.NewWriter(w)
	defer bw.Flush() // nolint: errcheck

	var stats IngestStats
	var chrName string
	var pos int
	win := newWindow()

	flushHeader := func(line []byte) {
		stats.Chromosomes++
		chrName = firstToken(line)
		chrName = strings.TrimPrefix(chrName, "chr")
		chrName = strings.TrimPrefix(chrName, "Chr")
		pos = 0
		win = newWindow()
	}

	for {
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 {
			if line[0] == '>' {
				flushHeader(line[1:])
			} else {
				for _, b := range line {
					if isWhitespaceTable[b] {
						continue
					}
					win.push(b)
					pos++
					if pos < windowLen {
						continue
					}
					n, writeErr := emitRecords(bw, win, pos, chrName, pam, revPam, speciesID)
					if writeErr != nil {
						return stats, writeErr
					}
					stats.Records += n
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return stats, errors.E(readErr, errors.Invalid, "reading fasta input")
		}
	}
	if err := bw.Flush(); err != nil {
		return stats, errors.E(err, errors.Invalid, "flushing ingest output")
	}
	return stats, nil
}

func emitRecords(bw *bufio.Writer, win *window, pos int, chrName, pam, revPam string, speciesID uint8) (int, error) {
	b := win.bytes()
	start := pos - windowLen + 1
	n := 0
	if string(b[windowLen-3:]) == pam {
		if err := writeRecord(bw, chrName, start, b, true, speciesID); err != nil {
			return n, err
		}
		n++
	}
	if string(b[:3]) == revPam {
		if err := writeRecord(bw, chrName, start, b, false, speciesID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func writeRecord(bw *bufio.Writer, chr string, start int, seq23 []byte, pamRight bool, speciesID uint8) error {
	pr := 0
	if pamRight {
		pr = 1
	}
	_, err := fmt.Fprintf(bw, "%s,%d,%s,%d,%d\n", chr, start, seq23, pr, speciesID)
	if err != nil {
		return errors.E(err, errors.Invalid, "writing ingest record")
	}
	return nil
}

// firstToken returns the first whitespace-delimited token of line, the way
// interval.getTokens extracts fields.
func firstToken(line []byte) string {
	i := 0
	for i < len(line) && isWhitespaceTable[line[i]] {
		i++
	}
	j := i
	for j < len(line) && !isWhitespaceTable[line[j]] {
		j++
	}
	return string(line[i:j])
}
