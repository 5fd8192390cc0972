package coin

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
)

const fingerprintSeed = "TrioMint:fingerprint:v1"

// FingerprintOf computes the public fingerprint of a triple:
// SHA-256(seed || x || y || z), rendered as four dash-separated hex groups.
// Pure and deterministic; the primary read path is the cached value on the
// coin record, this is the mint-time and cache-miss fallback computation.
func FingerprintOf(t Triple) string {
	hasher := sha256.New()
	hasher.Write([]byte(fingerprintSeed))

	var buf [8]byte
	for _, axis := range []int{t.X, t.Y, t.Z} {
		binary.LittleEndian.PutUint64(buf[:], uint64(axis))
		hasher.Write(buf[:])
	}

	sum := hasher.Sum(nil)
	raw := hex.EncodeToString(sum[:8])

	groups := make([]string, 0, 4)
	for i := 0; i < len(raw); i += 4 {
		groups = append(groups, raw[i:i+4])
	}
	return strings.Join(groups, "-")
}
