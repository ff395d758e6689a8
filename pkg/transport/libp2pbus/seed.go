package libp2pbus

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
)

// seededReader expands a short seed string into an unbounded deterministic
// byte stream via repeated SHA-256, so a pinned PrivateKeySeed always
// regenerates the same libp2p identity across restarts. Nothing about this
// needs to be cryptographically unpredictable — only reproducible.
type seededReader struct {
	seed    string
	counter uint64
	buf     []byte
}

func newSeededReader(seed string) io.Reader {
	return &seededReader{seed: seed}
}

func (r *seededReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.buf) == 0 {
			var ctr [8]byte
			binary.BigEndian.PutUint64(ctr[:], r.counter)
			r.counter++
			sum := sha256.Sum256(append([]byte(r.seed), ctr[:]...))
			r.buf = sum[:]
		}
		c := copy(p[n:], r.buf)
		r.buf = r.buf[c:]
		n += c
	}
	return n, nil
}
