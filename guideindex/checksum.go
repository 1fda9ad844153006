package guideindex

import (
	"encoding/binary"

	"blainsmith.com/go/seahash"
)

// Checksum digests every non-padding slot's raw little-endian word through
// a single seahash stream, the way cmd/bio-pamtool's checksum command feeds
// record bytes through one digest per worker. It is a cheap whole-index
// identity check, not a cryptographic hash.
func Checksum(store *Store) uint64 {
	h := seahash.New()
	var buf [8]byte
	n := store.NumSeqs()
	for j := uint64(1); j <= n; j++ {
		binary.LittleEndian.PutUint64(buf[:], uint64(store.Word(j)))
		h.Write(buf[:]) // nolint: errcheck
	}
	return h.Sum64()
}
