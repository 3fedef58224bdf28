package cryptoengine

import (
	"crypto/sha256"
	"hash"

	"golang.org/x/crypto/blake2b"
)

func newSHA256() hash.Hash { return sha256.New() }

// Sha256Digest hashes data with SHA-256, used as the HPKE-variant thread-ID
// digest (the TSP_SHA256 selector family).
func Sha256Digest(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Blake2b256Digest hashes data with BLAKE2b-256, used as the NaCl-variant
// thread-ID digest (the TSP_BLAKE2B256 selector family).
func Blake2b256Digest(data []byte) [32]byte {
	return blake2b.Sum256(data)
}
